// internal/middleware/observe.go
package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/SyedDaiam9101/policy-runtime/internal/metrics"
)

// UnaryObserveInterceptor times each unary call, records it in the gRPC
// latency histogram labelled with method and status code, and logs the
// outcome with the request-scoped logger.
func UnaryObserveInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		elapsed := time.Since(start)

		code := status.Code(err)
		metrics.RecordGRPCLatency(info.FullMethod, code.String(), elapsed.Seconds())

		logger := zerolog.Ctx(ctx)
		event := logger.Info()
		if err != nil {
			event = logger.Warn().Err(err)
		}
		event.
			Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("elapsed", elapsed).
			Msg("rpc handled")

		return resp, err
	}
}
