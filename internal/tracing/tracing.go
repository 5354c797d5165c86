// internal/tracing/tracing.go

// Package tracing installs the global OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Options configures Init.
type Options struct {
	ServiceName    string
	ServiceVersion string
	// Endpoint is the collector address. Spans are written to Writer until
	// an OTLP exporter is wired in.
	Endpoint string
	// Writer receives exported spans. Nil means stdout.
	Writer io.Writer
	// Batch exports spans asynchronously; tests use the synchronous syncer.
	Batch bool
}

// Init creates a tracer provider, sets it as the global provider and returns
// its shutdown function.
func Init(opts Options, logger zerolog.Logger) (func(context.Context) error, error) {
	exporterOpts := []stdouttrace.Option{}
	if opts.Writer != nil {
		exporterOpts = append(exporterOpts, stdouttrace.WithWriter(opts.Writer))
	} else {
		exporterOpts = append(exporterOpts, stdouttrace.WithPrettyPrint())
	}

	if opts.Endpoint != "" {
		logger.Info().Str("endpoint", opts.Endpoint).Msg("using stdout trace exporter")
	}

	exporter, err := stdouttrace.New(exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	version := opts.ServiceVersion
	if version == "" {
		version = "dev"
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(opts.ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	spanExport := sdktrace.WithSyncer(exporter)
	if opts.Batch {
		spanExport = sdktrace.WithBatcher(exporter)
	}

	tp := sdktrace.NewTracerProvider(
		spanExport,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
