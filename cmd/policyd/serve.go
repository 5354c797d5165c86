// cmd/policyd/serve.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/SyedDaiam9101/policy-runtime/internal/config"
	"github.com/SyedDaiam9101/policy-runtime/internal/handler"
	"github.com/SyedDaiam9101/policy-runtime/internal/metrics"
	"github.com/SyedDaiam9101/policy-runtime/internal/middleware"
	"github.com/SyedDaiam9101/policy-runtime/internal/statestore"
	"github.com/SyedDaiam9101/policy-runtime/internal/tracing"
)

func newServeCmd(a *app) *cobra.Command {
	var drain time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the policy over gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := a.load(cmd.Flags(), os.Stdout)
			if err != nil {
				return err
			}
			if err := cfg.ValidateServer(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, cfg, logger, drain)
		},
	}

	f := cmd.Flags()
	f.Int("port", 50051, "gRPC server port")
	f.Int("metrics-port", 9100, "Prometheus metrics and health port")
	f.String("redis", "", "Redis address for agent state (optional)")
	f.Duration("state-ttl", 10*time.Minute, "How long stored agent state is kept")
	f.DurationVar(&drain, "drain", 5*time.Second, "Time between reporting unhealthy and stopping")
	return cmd
}

func (a *app) serve(ctx context.Context, cfg *config.Config, logger zerolog.Logger, drain time.Duration) error {
	logger.Info().
		Int("port", cfg.Port).
		Str("model", cfg.Model).
		Str("redis", cfg.Redis).
		Int("metrics_port", cfg.MetricsPort).
		Bool("otel", cfg.OTELEnabled).
		Msg("starting " + serviceName)

	var tracerShutdown func(context.Context) error
	if cfg.OTELEnabled {
		var err error
		tracerShutdown, err = tracing.Init(tracing.Options{
			ServiceName:    serviceName,
			ServiceVersion: version,
			Endpoint:       cfg.OTELEndpoint,
			Batch:          true,
		}, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to initialize tracer")
		} else {
			logger.Info().Str("endpoint", cfg.OTELEndpoint).Msg("OpenTelemetry tracing enabled")
		}
	}

	loaded, err := loadEngine(a.fs, cfg, logger)
	if err != nil {
		return err
	}
	defer loaded.Close()
	metrics.SetModelOutputSize(loaded.engine.OutputSize())

	// Agent state storage is optional
	var store handler.StateStore
	if cfg.Redis != "" {
		logger.Info().Str("addr", cfg.Redis).Msg("connecting to Redis")
		s, err := statestore.New(ctx, cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("continuing without agent state storage")
		} else {
			defer s.Close()
			store = s
		}
	}

	healthServer := health.NewServer()
	httpServer := startHTTPServer(cfg.MetricsPort, healthServer, logger)

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			middleware.UnaryRequestIDInterceptor(logger),
			middleware.UnaryObserveInterceptor(),
		),
	}
	if cfg.OTELEnabled {
		opts = append(opts, grpc.StatsHandler(otelgrpc.NewServerHandler()))
	}
	grpcServer := grpc.NewServer(opts...)

	h := handler.New(loaded.engine, store, cfg.StateTTL, handler.ModelInfo{
		Path:    cfg.Model,
		Inputs:  loaded.inputNames(),
		Compute: loaded.selection.Active.String(),
	})
	handler.RegisterPolicyRunnerServer(grpcServer, h)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	addr := fmt.Sprintf(":%d", cfg.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	setServing(healthServer, healthpb.HealthCheckResponse_SERVING)
	metrics.SetHealthy()

	go func() {
		<-ctx.Done()
		logger.Info().Msg("shutdown signal received")

		setServing(healthServer, healthpb.HealthCheckResponse_NOT_SERVING)
		metrics.SetUnhealthy()

		// Give load balancers time to see the unhealthy status
		time.Sleep(drain)
		grpcServer.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("http server shutdown failed")
		}
		if tracerShutdown != nil {
			if err := tracerShutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("tracer shutdown failed")
			}
		}
	}()

	logger.Info().Str("addr", addr).Msg("gRPC server listening")
	if err := grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}

	logger.Info().Msg("server shutdown complete")
	return nil
}

func setServing(hs *health.Server, st healthpb.HealthCheckResponse_ServingStatus) {
	hs.SetServingStatus(handler.ServiceName, st)
	hs.SetServingStatus("", st)
}

func healthHandler(hs *health.Server, notOK string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := hs.Check(r.Context(), &healthpb.HealthCheckRequest{})
		if err != nil || resp.Status != healthpb.HealthCheckResponse_SERVING {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(notOK))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

func newHTTPMux(hs *health.Server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", healthHandler(hs, "Service Unavailable"))
	mux.HandleFunc("/readyz", healthHandler(hs, "Not Ready"))
	return mux
}

func startHTTPServer(port int, hs *health.Server, logger zerolog.Logger) *http.Server {
	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:              addr,
		Handler:           newHTTPMux(hs),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening (metrics, health)")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return server
}
