// internal/inference/mock_test.go
package inference

import (
	"errors"
	"testing"
)

func TestMockInference_RunInference(t *testing.T) {
	mock := NewMock()

	result, err := mock.RunInference(Observations{"obs": {0.1, 0.2, 0.3, 0.4}}, 0)
	if err != nil {
		t.Fatalf("RunInference failed: %v", err)
	}

	if len(result) != 2 {
		t.Fatalf("Expected 2 outputs, got %d", len(result))
	}

	expectedAction := []float32{0.1, 0.2, 0.3}
	action := result.Action()
	if action.Kind != KindFloat32 {
		t.Errorf("Expected float action, got %s", action.Kind)
	}
	for i, v := range expectedAction {
		if action.Floats[i] != v {
			t.Errorf("Action[%d] = %f, expected %f", i, action.Floats[i], v)
		}
	}

	if result.State() == nil {
		t.Error("Expected state_outs in result")
	}

	if mock.CallCount != 1 {
		t.Errorf("Expected CallCount=1, got %d", mock.CallCount)
	}
}

func TestMockInference_Error(t *testing.T) {
	mock := NewMock()
	mock.SetError("test error")

	result, err := mock.RunInference(Observations{"obs": {0.1}}, 0)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if result != nil {
		t.Error("Expected nil result on error")
	}
	if !errors.Is(err, ErrInference) {
		t.Errorf("Expected ErrInference, got %v", err)
	}

	mock.ClearError()
	if _, err := mock.RunInference(Observations{"obs": {0.1}}, 0); err != nil {
		t.Errorf("Expected no error after ClearError, got %v", err)
	}
}

func TestMockInference_EmptyObservation(t *testing.T) {
	mock := NewMock()
	_, err := mock.RunInference(Observations{}, 0)
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("Expected ErrShapeMismatch for empty observation, got %v", err)
	}
}

func TestMockInference_UnknownKey(t *testing.T) {
	mock := NewMock()
	mock.Keys = []string{"obs"}

	_, err := mock.RunInference(Observations{"camera": {1}}, 0)
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("Expected ErrShapeMismatch for unknown key, got %v", err)
	}
}

func TestMockInference_Discrete(t *testing.T) {
	mock := NewDiscreteMock([]int64{2})

	result, err := mock.RunInference(Observations{"obs": {1}}, 1)
	if err != nil {
		t.Fatalf("RunInference failed: %v", err)
	}

	action := result.Action()
	if action.Kind != KindInt64 || len(action.Ints) != 1 || action.Ints[0] != 2 {
		t.Errorf("Expected int64 action [2], got %+v", action)
	}
	if mock.OutputSize() != 1 {
		t.Errorf("Expected OutputSize=1, got %d", mock.OutputSize())
	}
	if mock.LastStateIns != 1 {
		t.Errorf("Expected LastStateIns=1, got %f", mock.LastStateIns)
	}
}

func TestMockInference_CustomAction(t *testing.T) {
	customAction := []float32{1.0, 2.0, 3.0, 4.0, 5.0}
	mock := NewMockWithAction(customAction)

	result, err := mock.RunInference(Observations{"obs": {0.1}}, 0)
	if err != nil {
		t.Fatalf("RunInference failed: %v", err)
	}

	if got := result.Action().Len(); got != len(customAction) {
		t.Errorf("Expected %d actions, got %d", len(customAction), got)
	}
	if mock.OutputSize() != int64(len(customAction)) {
		t.Errorf("Expected OutputSize=%d, got %d", len(customAction), mock.OutputSize())
	}
}
