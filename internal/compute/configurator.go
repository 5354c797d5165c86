// internal/compute/configurator.go
package compute

import (
	"fmt"

	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"
)

// activeBackend is the backend every resolution returns.
const activeBackend = CPU

// AdapterSource reports the name of the graphics adapter the host renders on.
type AdapterSource interface {
	AdapterName() string
}

// StaticAdapter is an AdapterSource with a fixed adapter name.
type StaticAdapter string

func (s StaticAdapter) AdapterName() string { return string(s) }

// AdapterFunc adapts a function to AdapterSource.
type AdapterFunc func() string

func (f AdapterFunc) AdapterName() string { return f() }

// Selection is the outcome of backend resolution.
type Selection struct {
	OS        string
	Adapter   string
	Detected  ComputeName
	Preferred ComputeName
	Active    ComputeName
}

// Configurator builds session options for the policy session.
type Configurator struct {
	logger   zerolog.Logger
	adapters AdapterSource
	osName   string
	logLevel ort.LoggingLevel
}

// Option configures a Configurator.
type Option func(*Configurator)

// WithAdapterSource sets where the adapter name comes from.
func WithAdapterSource(src AdapterSource) Option {
	return func(c *Configurator) { c.adapters = src }
}

// WithOS overrides the host OS name.
func WithOS(name string) Option {
	return func(c *Configurator) {
		if name != "" {
			c.osName = name
		}
	}
}

// WithLogLevel sets the ONNX Runtime log severity threshold.
func WithLogLevel(level ort.LoggingLevel) Option {
	return func(c *Configurator) { c.logLevel = level }
}

// NewConfigurator creates a Configurator. Without an adapter source the
// adapter name is empty, which resolves like unknown hardware.
func NewConfigurator(logger zerolog.Logger, opts ...Option) *Configurator {
	c := &Configurator{
		logger:   logger.With().Str("component", "compute").Logger(),
		adapters: StaticAdapter(""),
		osName:   HostOS(),
		logLevel: ort.LoggingLevelWarning,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ComputeCheck detects the backend for the host's graphics adapter.
func (c *Configurator) ComputeCheck() ComputeName {
	return c.check(c.adapters.AdapterName())
}

func (c *Configurator) check(adapter string) ComputeName {
	detected, ok := DetectVendor(adapter)
	if !ok {
		c.logger.Info().Str("adapter", adapter).Msg("graphics card not recognized, using CPU")
	}
	return detected
}

// Resolve determines the compute backend. Detection is informational: the
// active backend is always CPU.
func (c *Configurator) Resolve() Selection {
	adapter := c.adapters.AdapterName()
	detected := c.check(adapter)
	sel := Selection{
		OS:        c.osName,
		Adapter:   adapter,
		Detected:  detected,
		Preferred: Preferred(c.osName, detected),
		Active:    activeBackend,
	}

	c.logger.Info().
		Str("os", sel.OS).
		Stringer("detected", sel.Detected).
		Stringer("preferred", sel.Preferred).
		Stringer("compute_api", sel.Active).
		Msg("resolved compute backend")

	return sel
}

// MakeConfiguredSessionOptions creates session options with the log
// threshold applied and the resolved backend appended. The caller owns the
// returned options and must Destroy them.
func (c *Configurator) MakeConfiguredSessionOptions() (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	if err := opts.SetLogSeverityLevel(c.logLevel); err != nil {
		opts.Destroy()
		return nil, fmt.Errorf("failed to set log severity: %w", err)
	}

	sel := c.Resolve()
	if err := applyBackend(opts, sel.Active); err != nil {
		opts.Destroy()
		return nil, err
	}

	return opts, nil
}

// applyBackend appends the execution provider for name. CPU is ONNX
// Runtime's default provider and needs no registration.
func applyBackend(opts *ort.SessionOptions, name ComputeName) error {
	switch name {
	case CPU:
		return nil
	default:
		return fmt.Errorf("compute backend %s is not enabled", name)
	}
}
