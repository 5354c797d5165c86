// internal/handler/handler.go
package handler

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/SyedDaiam9101/policy-runtime/internal/inference"
	"github.com/SyedDaiam9101/policy-runtime/internal/metrics"
)

var tracer = otel.Tracer("github.com/SyedDaiam9101/policy-runtime/internal/handler")

// StateStore caches the last recurrent state returned to each agent. Act
// writes it and clears it on reset; only GetState reads it.
// statestore.Store implements it.
type StateStore interface {
	Set(ctx context.Context, agentID string, state []float32, ttl time.Duration) error
	Get(ctx context.Context, agentID string) ([]float32, bool, error)
	Clear(ctx context.Context, agentID string) error
}

// ModelInfo describes the served model for Describe.
type ModelInfo struct {
	Path    string
	Inputs  []string
	Compute string
}

// Handler implements PolicyRunnerServer.
type Handler struct {
	infer    inference.Engine
	store    StateStore
	stateTTL time.Duration
	info     ModelInfo
}

// New creates a new Handler. store may be nil, in which case agent state is
// not persisted.
func New(infer inference.Engine, store StateStore, stateTTL time.Duration, info ModelInfo) *Handler {
	return &Handler{
		infer:    infer,
		store:    store,
		stateTTL: stateTTL,
		info:     info,
	}
}

// actRequest is a decoded Act request.
type actRequest struct {
	agentID  string
	obs      inference.Observations
	stateIns float32
	reset    bool
}

func decodeActRequest(req *structpb.Struct) (*actRequest, error) {
	if req == nil {
		return nil, invalidArgumentError("request cannot be nil")
	}
	fields := req.GetFields()

	out := &actRequest{obs: inference.Observations{}}

	if v, ok := fields["agent_id"]; ok {
		s, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, invalidArgumentError("agent_id must be a string")
		}
		out.agentID = s.StringValue
	}

	obs := fields["obs"].GetStructValue()
	if obs == nil || len(obs.GetFields()) == 0 {
		return nil, invalidArgumentError("obs must be a non-empty object")
	}
	for key, v := range obs.GetFields() {
		list := v.GetListValue()
		if list == nil {
			return nil, invalidArgumentError("obs[%q] must be a list of numbers", key)
		}
		values := make([]float32, len(list.GetValues()))
		for i, item := range list.GetValues() {
			n, ok := item.GetKind().(*structpb.Value_NumberValue)
			if !ok {
				return nil, invalidArgumentError("obs[%q][%d] is not a number", key, i)
			}
			if math.IsNaN(n.NumberValue) || math.IsInf(n.NumberValue, 0) {
				return nil, invalidArgumentError("obs[%q][%d] is not finite", key, i)
			}
			values[i] = float32(n.NumberValue)
		}
		out.obs[key] = values
	}

	if v, ok := fields["state_ins"]; ok {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, invalidArgumentError("state_ins must be a number")
		}
		out.stateIns = float32(n.NumberValue)
	}

	if v, ok := fields["reset"]; ok {
		b, ok := v.GetKind().(*structpb.Value_BoolValue)
		if !ok {
			return nil, invalidArgumentError("reset must be a bool")
		}
		out.reset = b.BoolValue
	}
	// A reset is signalled to the model through the state flag.
	if out.reset {
		out.stateIns = 1
	}

	return out, nil
}

func numberList[T float32 | int64](values []T) *structpb.Value {
	items := make([]*structpb.Value, len(values))
	for i, v := range values {
		items[i] = structpb.NewNumberValue(float64(v))
	}
	return structpb.NewListValue(&structpb.ListValue{Values: items})
}

func tensorValue(t *inference.Tensor) *structpb.Value {
	if t.Kind == inference.KindInt64 {
		return numberList(t.Ints)
	}
	return numberList(t.Floats)
}

// Act runs one forward pass for the request's observations.
func (h *Handler) Act(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	logger := zerolog.Ctx(ctx)

	if h.infer == nil {
		return nil, failedPreconditionError("inference engine not initialized")
	}

	areq, err := decodeActRequest(req)
	if err != nil {
		return nil, err
	}

	if areq.reset && areq.agentID != "" && h.store != nil {
		if err := h.store.Clear(ctx, areq.agentID); err != nil {
			logger.Warn().Err(err).Str("agent_id", areq.agentID).Msg("failed to clear agent state")
		}
	}

	ctx, span := tracer.Start(ctx, "RunInference")
	span.SetAttributes(
		attribute.Int("obs.keys", len(areq.obs)),
		attribute.Float64("state_ins", float64(areq.stateIns)),
	)
	inferStart := time.Now()
	result, err := h.infer.RunInference(areq.obs, areq.stateIns)
	inferDuration := time.Since(inferStart)
	metrics.RecordInferenceLatency(inferDuration.Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inference failed")
		span.End()
		metrics.RecordInferenceFailure(failureReason(err))
		logger.Error().Err(err).Str("agent_id", areq.agentID).Msg("inference error")
		return nil, grpcError(err)
	}
	span.End()

	action, state := result.Action(), result.State()
	if action == nil || state == nil {
		return nil, internalError("model returned %d outputs, expected %q and %q",
			len(result), inference.OutputName, inference.StateOutName)
	}

	if areq.agentID != "" && h.store != nil {
		if err := h.store.Set(ctx, areq.agentID, state.Float32s(), h.stateTTL); err != nil {
			logger.Warn().Err(err).Str("agent_id", areq.agentID).Msg("failed to store agent state")
		}
	}

	logger.Debug().
		Str("agent_id", areq.agentID).
		Int("action_len", action.Len()).
		Str("action_kind", action.Kind.String()).
		Float64("inference_ms", float64(inferDuration.Microseconds())/1000.0).
		Msg("act")

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		inference.OutputName:   tensorValue(action),
		inference.StateOutName: tensorValue(state),
		"output_kind":          structpb.NewStringValue(action.Kind.String()),
		"output_size":          structpb.NewNumberValue(float64(h.infer.OutputSize())),
	}}, nil
}

// Describe reports the served model.
func (h *Handler) Describe(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if h.infer == nil {
		return nil, failedPreconditionError("inference engine not initialized")
	}

	inputs := make([]interface{}, len(h.info.Inputs))
	for i, name := range h.info.Inputs {
		inputs[i] = name
	}

	resp, err := structpb.NewStruct(map[string]interface{}{
		"model":       h.info.Path,
		"output_size": float64(h.infer.OutputSize()),
		"inputs":      inputs,
		"compute":     h.info.Compute,
	})
	if err != nil {
		return nil, internalError("failed to encode description: %v", err)
	}
	return resp, nil
}

// GetState returns the last stored recurrent state of an agent.
func (h *Handler) GetState(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	agentID := req.GetFields()["agent_id"].GetStringValue()
	if agentID == "" {
		return nil, invalidArgumentError("agent_id is required")
	}
	if h.store == nil {
		return nil, failedPreconditionError("agent state storage is not configured")
	}

	state, found, err := h.store.Get(ctx, agentID)
	if err != nil {
		return nil, internalError("%v", fmt.Errorf("state lookup: %w", err))
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"agent_id":             structpb.NewStringValue(agentID),
		"found":                structpb.NewBoolValue(found),
		inference.StateOutName: numberList(state),
	}}, nil
}

// Ensure Handler implements PolicyRunnerServer at compile time
var _ PolicyRunnerServer = (*Handler)(nil)
