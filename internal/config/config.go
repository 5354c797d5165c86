// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/SyedDaiam9101/policy-runtime/internal/ortenv"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "POLICY_RUNTIME"

// Config holds all configuration for the runtime and its server.
type Config struct {
	// Model configuration
	Model     string `mapstructure:"model"`
	BatchSize int    `mapstructure:"batch_size"`

	// ONNX Runtime configuration
	ORTLibrary  string `mapstructure:"ort_library"`
	ORTLogLevel string `mapstructure:"ort_log_level"`

	// Compute backend selection
	Compute ComputeConfig `mapstructure:"compute"`

	// Server configuration
	Port        int           `mapstructure:"port"`
	MetricsPort int           `mapstructure:"metrics_port"`
	Redis       string        `mapstructure:"redis"`
	StateTTL    time.Duration `mapstructure:"state_ttl"`

	// OpenTelemetry configuration
	OTELEnabled  bool   `mapstructure:"otel_enabled"`
	OTELEndpoint string `mapstructure:"otel_endpoint"`

	LogLevel string `mapstructure:"log_level"`

	// Feature flags
	UseMockInference bool `mapstructure:"use_mock_inference"`
}

// ComputeConfig describes the host the runtime pretends to be: the rendering
// adapter string a game engine would report and the OS name.
type ComputeConfig struct {
	AdapterName string `mapstructure:"adapter_name"`
	OS          string `mapstructure:"os"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model", "model.onnx")
	v.SetDefault("batch_size", 1)
	v.SetDefault("ort_library", "")
	v.SetDefault("ort_log_level", "warning")
	v.SetDefault("compute.adapter_name", "")
	v.SetDefault("compute.os", "")
	v.SetDefault("port", 50051)
	v.SetDefault("metrics_port", 9100)
	v.SetDefault("redis", "")
	v.SetDefault("state_ttl", "10m")
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_endpoint", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("use_mock_inference", false)
}

// Load loads configuration from flags, environment variables, and an optional
// config file. configPath may be empty, in which case the usual locations are
// searched and a missing file is not an error.
// Priority (highest to lowest): flags > env vars > config file > defaults
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.BindEnv("otel_endpoint", EnvPrefix+"_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("use_mock_inference", EnvPrefix+"_USE_MOCK")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configPath, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/policy-runtime/")
		v.AddConfigPath("$HOME/.policy-runtime")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Setting an endpoint implies tracing.
	if cfg.OTELEndpoint != "" {
		cfg.OTELEnabled = true
	}

	return &cfg, nil
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"model":         "model",
	"batch-size":    "batch_size",
	"ort-library":   "ort_library",
	"ort-log-level": "ort_log_level",
	"adapter":       "compute.adapter_name",
	"os":            "compute.os",
	"port":          "port",
	"metrics-port":  "metrics_port",
	"redis":         "redis",
	"state-ttl":     "state_ttl",
	"log-level":     "log_level",
	"mock":          "use_mock_inference",
}

// bindFlags binds only the flags the user actually set so unset flags do not
// shadow environment or file values.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.Visit(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("failed to bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Model == "" && !c.UseMockInference {
		return fmt.Errorf("model path is required when not using mock inference")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("invalid batch size: %d", c.BatchSize)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	if _, err := ortenv.ParseLogLevel(c.ORTLogLevel); err != nil {
		return err
	}
	return nil
}

// ValidateServer validates the settings only the gRPC server needs.
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MetricsPort <= 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.MetricsPort)
	}
	if c.Port == c.MetricsPort {
		return fmt.Errorf("port and metrics_port must be different")
	}
	if c.StateTTL < 0 {
		return fmt.Errorf("invalid state ttl: %s", c.StateTTL)
	}
	return nil
}
