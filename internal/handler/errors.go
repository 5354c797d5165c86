// internal/handler/errors.go
package handler

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/SyedDaiam9101/policy-runtime/internal/inference"
)

// grpcError maps inference errors to gRPC status errors
func grpcError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, inference.ErrShapeMismatch):
		return status.Errorf(codes.InvalidArgument, "observation shape mismatch: %v", err)

	case errors.Is(err, inference.ErrInvalidArgument):
		return status.Errorf(codes.InvalidArgument, "%v", err)

	case errors.Is(err, inference.ErrNotInitialized):
		return status.Errorf(codes.FailedPrecondition, "inference engine not initialized")

	case errors.Is(err, inference.ErrModelLoad):
		return status.Errorf(codes.FailedPrecondition, "model loading failed: %v", err)

	case errors.Is(err, inference.ErrUnsupportedOutput):
		return status.Errorf(codes.Unimplemented, "%v", err)

	case errors.Is(err, inference.ErrInference):
		return status.Errorf(codes.Internal, "inference execution failed: %v", err)

	default:
		return status.Errorf(codes.Internal, "internal error: %v", err)
	}
}

// failureReason labels an inference error for metrics
func failureReason(err error) string {
	switch {
	case errors.Is(err, inference.ErrShapeMismatch):
		return "shape_mismatch"
	case errors.Is(err, inference.ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, inference.ErrUnsupportedOutput):
		return "unsupported_output"
	default:
		return "execution"
	}
}

// invalidArgumentError creates an InvalidArgument gRPC error
func invalidArgumentError(format string, args ...interface{}) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}

// failedPreconditionError creates a FailedPrecondition gRPC error
func failedPreconditionError(format string, args ...interface{}) error {
	return status.Errorf(codes.FailedPrecondition, format, args...)
}

// internalError creates an Internal gRPC error
func internalError(format string, args ...interface{}) error {
	return status.Errorf(codes.Internal, format, args...)
}
