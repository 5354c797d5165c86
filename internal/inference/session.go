// internal/inference/session.go
package inference

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	ort "github.com/yalue/onnxruntime_go"
)

// Session wraps one ONNX runtime session holding a policy model.
// It implements the Engine interface. Calls are expected to be sequential;
// the mutex only keeps overlapping misuse from reaching native code.
type Session struct {
	mu sync.Mutex

	fs      afero.Fs
	logger  zerolog.Logger
	options SessionOptionsProvider

	modelPath  string
	batchSize  int
	outputSize int64

	inputs  []ort.InputOutputInfo
	outputs []ort.InputOutputInfo

	session     *ort.DynamicAdvancedSession
	sessionOpts *ort.SessionOptions
}

// New creates an uninitialized Session that reads models from fs and builds
// session options with provider. Call Initialize before RunInference.
func New(fs afero.Fs, provider SessionOptionsProvider, logger zerolog.Logger) *Session {
	return &Session{
		fs:      fs,
		logger:  logger.With().Str("component", "inference").Logger(),
		options: provider,
	}
}

// Initialize loads the model at path and prepares it for batchSize rows per
// call. It returns the model's action dimension. Calling Initialize again
// replaces the loaded model; if loading fails the previous model is kept.
func (s *Session) Initialize(path string, batchSize int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if batchSize <= 0 {
		return 0, fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidArgument, batchSize)
	}

	model, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	if !ort.IsInitialized() {
		return 0, fmt.Errorf("%w: onnxruntime environment is not initialized", ErrModelLoad)
	}

	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(model)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrModelLoad, path, err)
	}
	size, err := outputSize(outputs)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrModelLoad, path, err)
	}

	inputNames := make([]string, len(inputs))
	for i, info := range inputs {
		inputNames[i] = info.Name
	}

	opts, err := s.options.MakeConfiguredSessionOptions()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}

	session, err := ort.NewDynamicAdvancedSessionWithONNXData(model, inputNames, OutputNames, opts)
	if err != nil {
		opts.Destroy()
		return 0, fmt.Errorf("%w: failed to create ONNX session: %w", ErrModelLoad, err)
	}

	// The previous model stays loaded until its replacement is ready.
	if err := s.release(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to release previous model")
	}

	s.modelPath = path
	s.batchSize = batchSize
	s.outputSize = size
	s.inputs = inputs
	s.outputs = outputs
	s.session = session
	s.sessionOpts = opts

	s.logger.Info().
		Str("model", path).
		Int("batch_size", batchSize).
		Int64("output_size", size).
		Strs("inputs", inputNames).
		Msg("model loaded")

	return size, nil
}

// RunInference runs one forward pass. Tensors for the observations and the
// state flag are built per call and destroyed before returning; the result
// holds copies of the output data.
func (s *Session) RunInference(obs Observations, stateIns float32) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, ErrNotInitialized
	}

	result, err := s.run(obs, stateIns)
	if err != nil {
		s.logger.Error().Err(err).Str("model", s.modelPath).Msg("error at inference")
		return nil, err
	}
	return result, nil
}

func (s *Session) run(obs Observations, stateIns float32) (Result, error) {
	specs, err := buildInputs(s.inputs, obs, stateIns, s.batchSize)
	if err != nil {
		return nil, err
	}

	inputs := make([]ort.Value, 0, len(specs))
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	for _, spec := range specs {
		tensor, err := ort.NewTensor(ort.NewShape(spec.Shape...), spec.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create input tensor %q: %w", ErrInference, spec.Name, err)
		}
		inputs = append(inputs, tensor)
	}

	// nil outputs are allocated by onnxruntime with the model's types.
	outputs := make([]ort.Value, len(OutputNames))
	defer func() {
		for _, v := range outputs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	if err := s.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	result := make(Result, len(outputs))
	for i, v := range outputs {
		t, err := decodeOutput(OutputNames[i], v)
		if err != nil {
			return nil, err
		}
		result[t.Name] = t
	}
	return result, nil
}

// OutputSize returns the action dimension reported at Initialize.
func (s *Session) OutputSize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputSize
}

// Inputs returns the model's declared inputs.
func (s *Session) Inputs() []ort.InputOutputInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputs
}

// Outputs returns the model's declared outputs.
func (s *Session) Outputs() []ort.InputOutputInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputs
}

// Close releases the session and then its options. It is safe to call more
// than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.release()
}

func (s *Session) release() error {
	var sessionErr, optsErr error
	if s.session != nil {
		sessionErr = s.session.Destroy()
		s.session = nil
	}
	if s.sessionOpts != nil {
		optsErr = s.sessionOpts.Destroy()
		s.sessionOpts = nil
	}

	if sessionErr != nil {
		return fmt.Errorf("failed to destroy session: %w", sessionErr)
	}
	if optsErr != nil {
		return fmt.Errorf("failed to destroy session options: %w", optsErr)
	}
	return nil
}

// Ensure Session implements Engine at compile time
var _ Engine = (*Session)(nil)
