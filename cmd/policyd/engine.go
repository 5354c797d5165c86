// cmd/policyd/engine.go
package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/SyedDaiam9101/policy-runtime/internal/compute"
	"github.com/SyedDaiam9101/policy-runtime/internal/config"
	"github.com/SyedDaiam9101/policy-runtime/internal/inference"
	"github.com/SyedDaiam9101/policy-runtime/internal/ortenv"
)

// loadedEngine is an initialized engine plus what was learned loading it.
type loadedEngine struct {
	engine    inference.Engine
	session   *inference.Session // nil for the mock
	selection compute.Selection
}

func (l *loadedEngine) inputNames() []string {
	if l.session == nil {
		return nil
	}
	infos := l.session.Inputs()
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}

func (l *loadedEngine) Close() error {
	err := l.engine.Close()
	if l.session != nil {
		if shutdownErr := ortenv.Shutdown(); err == nil {
			err = shutdownErr
		}
	}
	return err
}

func newConfigurator(cfg *config.Config, logger zerolog.Logger) (*compute.Configurator, error) {
	level, err := ortenv.ParseLogLevel(cfg.ORTLogLevel)
	if err != nil {
		return nil, err
	}
	return compute.NewConfigurator(logger,
		compute.WithAdapterSource(compute.StaticAdapter(cfg.Compute.AdapterName)),
		compute.WithOS(cfg.Compute.OS),
		compute.WithLogLevel(level),
	), nil
}

// loadEngine initializes the onnxruntime environment and the policy session,
// or returns the mock when configured.
func loadEngine(fs afero.Fs, cfg *config.Config, logger zerolog.Logger) (*loadedEngine, error) {
	conf, err := newConfigurator(cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.UseMockInference {
		logger.Info().Msg("using mock inference engine")
		return &loadedEngine{engine: inference.NewMock(), selection: conf.Resolve()}, nil
	}

	if err := ortenv.Init(ortenv.Config{
		LibraryPath: cfg.ORTLibrary,
		LogLevel:    cfg.ORTLogLevel,
	}, logger); err != nil {
		return nil, err
	}

	session := inference.New(fs, conf, logger)
	logger.Info().Str("model", cfg.Model).Int("batch_size", cfg.BatchSize).Msg("loading ONNX policy")
	if _, err := session.Initialize(cfg.Model, cfg.BatchSize); err != nil {
		ortenv.Shutdown()
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}

	return &loadedEngine{engine: session, session: session, selection: conf.Resolve()}, nil
}
