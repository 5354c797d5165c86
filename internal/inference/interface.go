// internal/inference/interface.go
package inference

import ort "github.com/yalue/onnxruntime_go"

// Engine runs single forward passes of a recurrent policy.
type Engine interface {
	// RunInference runs one forward pass. stateIns is the recurrent-state
	// reset flag fed to the model as "state_ins". On failure the result is
	// nil and the error wraps ErrInference.
	RunInference(obs Observations, stateIns float32) (Result, error)

	// OutputSize returns the action dimension of the loaded model.
	OutputSize() int64

	// Close releases any resources held by the engine.
	Close() error
}

// SessionOptionsProvider builds the options a session is created with.
// compute.Configurator implements it.
type SessionOptionsProvider interface {
	MakeConfiguredSessionOptions() (*ort.SessionOptions, error)
}
