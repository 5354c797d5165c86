// internal/inference/types.go
package inference

import (
	"errors"
	"fmt"
)

// Tensor names fixed by the policy export format.
const (
	OutputName   = "output"
	StateOutName = "state_outs"
	StateInName  = "state_ins"
)

// OutputNames are the outputs requested from every forward pass, in order.
var OutputNames = []string{OutputName, StateOutName}

var (
	// ErrModelLoad means the model file could not be read or is not a
	// usable policy graph.
	ErrModelLoad = errors.New("failed to load model")
	// ErrInvalidArgument means a caller-supplied argument is out of range.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotInitialized means RunInference was called without a loaded model.
	ErrNotInitialized = errors.New("inference session is not initialized")
	// ErrInference means the forward pass produced no result.
	ErrInference = errors.New("inference failed")
	// ErrShapeMismatch means the observations do not fit the model inputs.
	// It always accompanies ErrInference.
	ErrShapeMismatch = errors.New("observation shape mismatch")
	// ErrUnsupportedOutput means an output has an element type other than
	// float32 or int64. It always accompanies ErrInference.
	ErrUnsupportedOutput = errors.New("unsupported output element type")
)

// shapeMismatch builds an error matching both ErrInference and
// ErrShapeMismatch.
func shapeMismatch(format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", ErrInference, ErrShapeMismatch, fmt.Sprintf(format, args...))
}

// Observations maps an observation key to its values. Each key becomes one
// model input of shape (batch, len(values)/batch).
type Observations map[string][]float32

// ElementKind is the element type of an output tensor.
type ElementKind int

const (
	KindFloat32 ElementKind = iota
	KindInt64
)

func (k ElementKind) String() string {
	switch k {
	case KindFloat32:
		return "float32"
	case KindInt64:
		return "int64"
	}
	return fmt.Sprintf("ElementKind(%d)", int(k))
}

// Tensor is an output copied out of the runtime. Exactly one of Floats and
// Ints is populated, as indicated by Kind.
type Tensor struct {
	Name   string
	Shape  []int64
	Kind   ElementKind
	Floats []float32
	Ints   []int64
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	if t.Kind == KindInt64 {
		return len(t.Ints)
	}
	return len(t.Floats)
}

// Float32s returns the values as float32, converting integer actions.
func (t *Tensor) Float32s() []float32 {
	if t.Kind == KindFloat32 {
		return t.Floats
	}
	out := make([]float32, len(t.Ints))
	for i, v := range t.Ints {
		out[i] = float32(v)
	}
	return out
}

// Result holds the outputs of one forward pass keyed by output name.
type Result map[string]*Tensor

// Action returns the action output.
func (r Result) Action() *Tensor { return r[OutputName] }

// State returns the recurrent state output.
func (r Result) State() *Tensor { return r[StateOutName] }

// Float32Map flattens the result to plain float arrays, the shape game
// engines consume: {"output": [...], "state_outs": [...]}.
func (r Result) Float32Map() map[string][]float32 {
	out := make(map[string][]float32, len(r))
	for name, t := range r {
		out[name] = t.Float32s()
	}
	return out
}
