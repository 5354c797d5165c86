// internal/handler/handler_test.go
package handler

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/SyedDaiam9101/policy-runtime/internal/inference"
	"github.com/SyedDaiam9101/policy-runtime/internal/middleware"
)

// memStore is an in-memory StateStore.
type memStore struct {
	mu     sync.Mutex
	states map[string][]float32
	ttls   map[string]time.Duration
}

func newMemStore() *memStore {
	return &memStore{states: map[string][]float32{}, ttls: map[string]time.Duration{}}
}

func (s *memStore) Set(_ context.Context, agentID string, state []float32, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[agentID] = append([]float32(nil), state...)
	s.ttls[agentID] = ttl
	return nil
}

func (s *memStore) Get(_ context.Context, agentID string) ([]float32, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[agentID]
	return state, ok, nil
}

func (s *memStore) Clear(_ context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, agentID)
	return nil
}

func actRequestStruct(t *testing.T, fields map[string]interface{}) *structpb.Struct {
	t.Helper()
	req, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	return req
}

func obsRequest(t *testing.T) *structpb.Struct {
	return actRequestStruct(t, map[string]interface{}{
		"obs": map[string]interface{}{
			"obs": []interface{}{0.1, 0.2, 0.3, 0.4},
		},
	})
}

func numbers(v *structpb.Value) []float64 {
	var out []float64
	for _, item := range v.GetListValue().GetValues() {
		out = append(out, item.GetNumberValue())
	}
	return out
}

func TestActWithNilInference(t *testing.T) {
	h := New(nil, nil, 0, ModelInfo{})

	_, err := h.Act(context.Background(), obsRequest(t))
	if err == nil {
		t.Fatal("Expected error when inference is nil, got nil")
	}

	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("Expected gRPC status error, got: %v", err)
	}

	if st.Code() != codes.FailedPrecondition {
		t.Errorf("Expected FailedPrecondition, got: %v", st.Code())
	}
}

func TestActWithNilRequest(t *testing.T) {
	mock := inference.NewMock()
	h := New(mock, nil, 0, ModelInfo{})

	_, err := h.Act(context.Background(), nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("Expected InvalidArgument, got: %v", err)
	}

	if mock.CallCount != 0 {
		t.Errorf("Expected mock.CallCount=0, got %d", mock.CallCount)
	}
}

func TestActWithMalformedObservations(t *testing.T) {
	tests := []struct {
		name    string
		fields  map[string]interface{}
		message string
	}{
		{"missing obs", map[string]interface{}{}, "obs must be"},
		{"empty obs", map[string]interface{}{"obs": map[string]interface{}{}}, "obs must be"},
		{"obs not object", map[string]interface{}{"obs": []interface{}{1.0}}, "obs must be"},
		{"value not list", map[string]interface{}{"obs": map[string]interface{}{"obs": 1.0}}, "list of numbers"},
		{"element not number", map[string]interface{}{"obs": map[string]interface{}{"obs": []interface{}{"x"}}}, "not a number"},
		{"state flag not number", map[string]interface{}{
			"obs":       map[string]interface{}{"obs": []interface{}{1.0}},
			"state_ins": "zero",
		}, "state_ins"},
		{"agent id not string", map[string]interface{}{
			"obs":      map[string]interface{}{"obs": []interface{}{1.0}},
			"agent_id": 4.0,
		}, "agent_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := inference.NewMock()
			h := New(mock, nil, 0, ModelInfo{})

			_, err := h.Act(context.Background(), actRequestStruct(t, tt.fields))
			st, ok := status.FromError(err)
			if !ok || st.Code() != codes.InvalidArgument {
				t.Fatalf("Expected InvalidArgument, got: %v", err)
			}
			if !strings.Contains(st.Message(), tt.message) {
				t.Errorf("Expected message containing %q, got: %s", tt.message, st.Message())
			}
			if mock.CallCount != 0 {
				t.Errorf("Expected no inference call, got %d", mock.CallCount)
			}
		})
	}
}

func TestActWithMockInference(t *testing.T) {
	mock := inference.NewMock()
	mock.State = []float32{0.5, 0.25}
	h := New(mock, nil, 0, ModelInfo{})

	resp, err := h.Act(context.Background(), obsRequest(t))
	if err != nil {
		t.Fatalf("Act failed: %v", err)
	}

	fields := resp.GetFields()

	// Mock returns [0.1, 0.2, 0.3]
	expected := []float32{0.1, 0.2, 0.3}
	got := numbers(fields[inference.OutputName])
	if len(got) != len(expected) {
		t.Fatalf("Expected %d actions, got %d", len(expected), len(got))
	}
	for i, v := range expected {
		if float32(got[i]) != v {
			t.Errorf("output[%d] = %f, expected %f", i, got[i], v)
		}
	}

	assert.Equal(t, []float64{0.5, 0.25}, numbers(fields[inference.StateOutName]))
	assert.Equal(t, "float32", fields["output_kind"].GetStringValue())
	assert.Equal(t, 3.0, fields["output_size"].GetNumberValue())

	if mock.CallCount != 1 {
		t.Errorf("Expected mock.CallCount=1, got %d", mock.CallCount)
	}
	if mock.LastStateIns != 0 {
		t.Errorf("Expected state flag 0, got %f", mock.LastStateIns)
	}
}

func TestActDiscreteAction(t *testing.T) {
	mock := inference.NewDiscreteMock([]int64{2})
	h := New(mock, nil, 0, ModelInfo{})

	resp, err := h.Act(context.Background(), obsRequest(t))
	require.NoError(t, err)

	assert.Equal(t, []float64{2}, numbers(resp.GetFields()[inference.OutputName]))
	assert.Equal(t, "int64", resp.GetFields()["output_kind"].GetStringValue())
}

func TestActPassesStateFlag(t *testing.T) {
	mock := inference.NewMock()
	h := New(mock, nil, 0, ModelInfo{})

	req := actRequestStruct(t, map[string]interface{}{
		"obs":       map[string]interface{}{"obs": []interface{}{1.0}},
		"state_ins": 7.0,
	})
	_, err := h.Act(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, float32(7), mock.LastStateIns)

	req = actRequestStruct(t, map[string]interface{}{
		"obs":   map[string]interface{}{"obs": []interface{}{1.0}},
		"reset": true,
	})
	_, err = h.Act(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, float32(1), mock.LastStateIns)
}

func TestActWithInferenceError(t *testing.T) {
	mock := inference.NewMock()
	mock.SetError("model execution failed")
	h := New(mock, nil, 0, ModelInfo{})

	_, err := h.Act(context.Background(), obsRequest(t))
	if err == nil {
		t.Fatal("Expected error from inference, got nil")
	}

	// Should be mapped to Internal error
	if status.Code(err) != codes.Internal {
		t.Errorf("Expected Internal error code, got: %v", status.Code(err))
	}
}

func TestActWithUnknownObservationKey(t *testing.T) {
	mock := inference.NewMock()
	mock.Keys = []string{"obs"}
	h := New(mock, nil, 0, ModelInfo{})

	req := actRequestStruct(t, map[string]interface{}{
		"obs": map[string]interface{}{"camera": []interface{}{1.0}},
	})
	_, err := h.Act(context.Background(), req)
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("Expected InvalidArgument, got: %v", err)
	}
}

func TestActStoresAgentState(t *testing.T) {
	mock := inference.NewMock()
	mock.State = []float32{3, 4}
	store := newMemStore()
	h := New(mock, store, time.Minute, ModelInfo{})

	req := actRequestStruct(t, map[string]interface{}{
		"agent_id": "car-1",
		"obs":      map[string]interface{}{"obs": []interface{}{1.0}},
	})
	_, err := h.Act(context.Background(), req)
	require.NoError(t, err)

	state, found, err := store.Get(context.Background(), "car-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []float32{3, 4}, state)
	assert.Equal(t, time.Minute, store.ttls["car-1"])

	resp, err := h.GetState(context.Background(), actRequestStruct(t, map[string]interface{}{"agent_id": "car-1"}))
	require.NoError(t, err)
	assert.True(t, resp.GetFields()["found"].GetBoolValue())
	assert.Equal(t, []float64{3, 4}, numbers(resp.GetFields()[inference.StateOutName]))
}

func TestActResetClearsAgentState(t *testing.T) {
	mock := inference.NewMock()
	mock.ShouldError = true
	store := newMemStore()
	require.NoError(t, store.Set(context.Background(), "car-2", []float32{9}, 0))
	h := New(mock, store, time.Minute, ModelInfo{})

	req := actRequestStruct(t, map[string]interface{}{
		"agent_id": "car-2",
		"reset":    true,
		"obs":      map[string]interface{}{"obs": []interface{}{1.0}},
	})
	_, err := h.Act(context.Background(), req)
	require.Error(t, err)

	_, found, err := store.Get(context.Background(), "car-2")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestActStoredStateIsNotFedBack(t *testing.T) {
	mock := inference.NewMock()
	mock.State = []float32{7, 8}
	store := newMemStore()
	h := New(mock, store, time.Minute, ModelInfo{})
	ctx := context.Background()

	req := actRequestStruct(t, map[string]interface{}{
		"agent_id": "walker",
		"obs":      map[string]interface{}{"obs": []interface{}{1.0}},
	})
	_, err := h.Act(ctx, req)
	require.NoError(t, err)

	mock.State = []float32{9, 10}
	_, err = h.Act(ctx, req)
	require.NoError(t, err)

	// The second pass gets the request's flag, not the cached vector.
	assert.Equal(t, 2, mock.CallCount)
	assert.Equal(t, float32(0), mock.LastStateIns)

	resp, err := h.GetState(ctx, actRequestStruct(t, map[string]interface{}{"agent_id": "walker"}))
	require.NoError(t, err)
	assert.Equal(t, []float64{9, 10}, numbers(resp.GetFields()[inference.StateOutName]))

	reset := actRequestStruct(t, map[string]interface{}{
		"agent_id": "walker",
		"reset":    true,
		"obs":      map[string]interface{}{"obs": []interface{}{1.0}},
	})
	mock.State = []float32{0, 0}
	_, err = h.Act(ctx, reset)
	require.NoError(t, err)
	assert.Equal(t, float32(1), mock.LastStateIns)

	state, found, err := store.Get(ctx, "walker")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []float32{0, 0}, state)
}

func TestGetStateErrors(t *testing.T) {
	h := New(inference.NewMock(), nil, 0, ModelInfo{})

	_, err := h.GetState(context.Background(), &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.GetState(context.Background(), actRequestStruct(t, map[string]interface{}{"agent_id": "a"}))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	h = New(inference.NewMock(), newMemStore(), 0, ModelInfo{})
	resp, err := h.GetState(context.Background(), actRequestStruct(t, map[string]interface{}{"agent_id": "a"}))
	require.NoError(t, err)
	assert.False(t, resp.GetFields()["found"].GetBoolValue())
	assert.Empty(t, numbers(resp.GetFields()[inference.StateOutName]))
}

func TestDescribe(t *testing.T) {
	h := New(inference.NewMock(), nil, 0, ModelInfo{
		Path:    "policy.onnx",
		Inputs:  []string{"obs", "state_ins"},
		Compute: "CPU",
	})

	resp, err := h.Describe(context.Background(), &structpb.Struct{})
	require.NoError(t, err)

	desc := resp.AsMap()
	assert.Equal(t, "policy.onnx", desc["model"])
	assert.Equal(t, 3.0, desc["output_size"])
	assert.Equal(t, []interface{}{"obs", "state_ins"}, desc["inputs"])
	assert.Equal(t, "CPU", desc["compute"])

	_, err = New(nil, nil, 0, ModelInfo{}).Describe(context.Background(), nil)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestActWithRequestID(t *testing.T) {
	mock := inference.NewMock()
	h := New(mock, nil, 0, ModelInfo{})

	// Simulate request with request ID in context
	testRequestID := "test-request-id-123"
	md := metadata.Pairs(middleware.RequestIDHeader, testRequestID)
	ctx := metadata.NewIncomingContext(context.Background(), md)

	interceptor := middleware.UnaryRequestIDInterceptor(zerolog.Nop())
	var capturedCtx context.Context

	wrappedHandler := func(ctx context.Context, req interface{}) (interface{}, error) {
		capturedCtx = ctx
		return h.Act(ctx, req.(*structpb.Struct))
	}

	_, err := interceptor(ctx, obsRequest(t), &grpc.UnaryServerInfo{FullMethod: actMethod}, wrappedHandler)
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}

	extractedID := middleware.GetRequestID(capturedCtx)
	if extractedID != testRequestID {
		t.Errorf("Expected request ID %s, got %s", testRequestID, extractedID)
	}
}

func startServer(t *testing.T, srv PolicyRunnerServer) *Client {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		middleware.UnaryRequestIDInterceptor(zerolog.Nop()),
		middleware.UnaryObserveInterceptor(),
	))
	RegisterPolicyRunnerServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewClient(conn)
}

func TestServiceOverGRPC(t *testing.T) {
	mock := inference.NewMock()
	store := newMemStore()
	client := startServer(t, New(mock, store, time.Minute, ModelInfo{Path: "m.onnx", Compute: "CPU"}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req := actRequestStruct(t, map[string]interface{}{
		"agent_id": "bot",
		"obs":      map[string]interface{}{"obs": []interface{}{0.1, 0.2}},
	})
	var header metadata.MD
	resp, err := client.Act(ctx, req, grpc.Header(&header))
	require.NoError(t, err)
	assert.Len(t, numbers(resp.GetFields()[inference.OutputName]), 3)
	assert.Len(t, header.Get(middleware.RequestIDHeader), 1)

	desc, err := client.Describe(ctx)
	require.NoError(t, err)
	assert.Equal(t, "m.onnx", desc.GetFields()["model"].GetStringValue())

	state, err := client.GetState(ctx, "bot")
	require.NoError(t, err)
	assert.True(t, state.GetFields()["found"].GetBoolValue())

	_, err = client.Act(ctx, &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
