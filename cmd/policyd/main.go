// cmd/policyd/main.go
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/SyedDaiam9101/policy-runtime/internal/config"
)

const serviceName = "policy-runtime"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app carries what every subcommand needs.
type app struct {
	fs         afero.Fs
	configPath string
	pretty     bool
}

func newRootCmd(fs afero.Fs) *cobra.Command {
	a := &app{fs: fs}

	root := &cobra.Command{
		Use:   "policyd",
		Short: "Runs exported Godot RL policies with ONNX Runtime",
		Long: `policyd loads a policy exported from a Godot RL agents training run
(an ONNX graph with "obs" and "state_ins" inputs and "output" and
"state_outs" outputs) and runs it on the CPU.

Use "serve" to expose the policy over gRPC, "inspect" to print the model
signature, and "act" to run a single forward pass from a file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Path to config file (optional)")
	pf.BoolVar(&a.pretty, "pretty", false, "Human-readable console logs")
	pf.String("model", "", "Path to ONNX policy file (default: model.onnx)")
	pf.Int("batch-size", 1, "Batch dimension the policy is run with")
	pf.String("ort-library", "", "Path to the onnxruntime shared library")
	pf.String("ort-log-level", "warning", "onnxruntime log level (verbose, info, warning, error, fatal)")
	pf.String("adapter", "", "Rendering adapter name used for compute detection")
	pf.String("os", "", "OS name used for compute detection (default: host OS)")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.Bool("mock", false, "Use the mock inference engine")

	root.AddCommand(
		newServeCmd(a),
		newInspectCmd(a),
		newActCmd(a),
	)
	return root
}

// load reads the merged configuration for cmd and builds the logger.
func (a *app) load(flags *pflag.FlagSet, w io.Writer) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(a.configPath, flags)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, newLogger(w, cfg.LogLevel, a.pretty), nil
}

func newLogger(w io.Writer, level string, pretty bool) zerolog.Logger {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w}
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", serviceName).Logger()
}

func main() {
	if err := newRootCmd(afero.NewOsFs()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
