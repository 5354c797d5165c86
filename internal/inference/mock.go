// internal/inference/mock.go
package inference

import (
	"fmt"
	"slices"
)

// MockInference is a mock implementation of Engine for testing.
// It returns deterministic outputs without requiring the ONNX shared library.
type MockInference struct {
	// DefaultAction is the float action returned when IntAction is nil
	DefaultAction []float32
	// IntAction, if set, is returned as an int64 action (discrete policies)
	IntAction []int64
	// State is returned as state_outs
	State []float32
	// Keys, if set, are the only observation keys accepted
	Keys []string
	// ShouldError if true, RunInference will return an error
	ShouldError bool
	// ErrorMessage is the error message to return when ShouldError is true
	ErrorMessage string
	// CallCount tracks the number of times RunInference was called
	CallCount int
	// LastStateIns records the state flag of the last call
	LastStateIns float32
}

// NewMock creates a new MockInference with default action [0.1, 0.2, 0.3]
// and a two-element zero state.
func NewMock() *MockInference {
	return &MockInference{
		DefaultAction: []float32{0.1, 0.2, 0.3},
		State:         []float32{0, 0},
	}
}

// NewMockWithAction creates a MockInference with a custom float action
func NewMockWithAction(action []float32) *MockInference {
	m := NewMock()
	m.DefaultAction = action
	return m
}

// NewDiscreteMock creates a MockInference returning an int64 action
func NewDiscreteMock(action []int64) *MockInference {
	m := NewMock()
	m.IntAction = action
	return m
}

// RunInference returns the configured outputs. It checks the observation
// keys when Keys is set.
func (m *MockInference) RunInference(obs Observations, stateIns float32) (Result, error) {
	m.CallCount++
	m.LastStateIns = stateIns

	if m.ShouldError {
		msg := m.ErrorMessage
		if msg == "" {
			msg = "mock inference error"
		}
		return nil, fmt.Errorf("%w: %s", ErrInference, msg)
	}

	if len(obs) == 0 {
		return nil, shapeMismatch("empty observation")
	}
	if m.Keys != nil {
		for key := range obs {
			if !slices.Contains(m.Keys, key) {
				return nil, shapeMismatch("model has no input for observation key %q", key)
			}
		}
	}

	var action *Tensor
	if m.IntAction != nil {
		action = newIntTensor(OutputName, []int64{1, int64(len(m.IntAction))}, m.IntAction)
	} else {
		action = newFloatTensor(OutputName, []int64{1, int64(len(m.DefaultAction))}, m.DefaultAction)
	}

	return Result{
		OutputName:   action,
		StateOutName: newFloatTensor(StateOutName, []int64{1, int64(len(m.State))}, m.State),
	}, nil
}

// OutputSize returns the length of the configured action
func (m *MockInference) OutputSize() int64 {
	if m.IntAction != nil {
		return int64(len(m.IntAction))
	}
	return int64(len(m.DefaultAction))
}

// Close is a no-op for the mock implementation
func (m *MockInference) Close() error {
	return nil
}

// SetError configures the mock to return an error on the next RunInference call
func (m *MockInference) SetError(msg string) {
	m.ShouldError = true
	m.ErrorMessage = msg
}

// ClearError clears any configured error
func (m *MockInference) ClearError() {
	m.ShouldError = false
	m.ErrorMessage = ""
}

// Ensure MockInference implements Engine at compile time
var _ Engine = (*MockInference)(nil)
