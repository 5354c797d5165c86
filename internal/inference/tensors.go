// internal/inference/tensors.go
package inference

import (
	"fmt"
	"slices"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// inputSpec is one input tensor before it is handed to the runtime.
type inputSpec struct {
	Name  string
	Shape []int64
	Data  []float32
}

// buildInputs lays out the observations and the state flag in the order of
// the model's declared inputs. Every declared input must be covered and
// every observation key must be declared.
func buildInputs(declared []ort.InputOutputInfo, obs Observations, stateIns float32, batch int) ([]inputSpec, error) {
	known := make(map[string]bool, len(declared))
	for _, info := range declared {
		known[info.Name] = true
	}

	var unknown []string
	for key := range obs {
		if !known[key] || key == StateInName {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, shapeMismatch("model has no input for observation keys %v", unknown)
	}

	specs := make([]inputSpec, 0, len(declared))
	for _, info := range declared {
		if info.Name == StateInName {
			specs = append(specs, stateSpec(stateIns, batch))
			continue
		}

		values, ok := obs[info.Name]
		if !ok {
			return nil, shapeMismatch("missing observation key %q", info.Name)
		}
		spec, err := observationSpec(info, values, batch)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// stateSpec builds the (batch,) recurrent-state reset tensor.
func stateSpec(stateIns float32, batch int) inputSpec {
	data := make([]float32, batch)
	for i := range data {
		data[i] = stateIns
	}
	return inputSpec{Name: StateInName, Shape: []int64{int64(batch)}, Data: data}
}

// observationSpec builds a (batch, features) tensor for one key, checking it
// against the declared feature dimension when the model fixes one.
func observationSpec(info ort.InputOutputInfo, values []float32, batch int) (inputSpec, error) {
	if len(values) == 0 || len(values)%batch != 0 {
		return inputSpec{}, shapeMismatch("observation %q has %d values, not a multiple of batch size %d",
			info.Name, len(values), batch)
	}
	features := int64(len(values) / batch)

	dims := info.Dimensions
	if len(dims) > 0 && len(dims) != 2 {
		return inputSpec{}, shapeMismatch("input %q expects rank %d, observations are rank 2", info.Name, len(dims))
	}
	if len(dims) == 2 && dims[0] > 0 && dims[0] != int64(batch) {
		return inputSpec{}, shapeMismatch("input %q has fixed batch size %d, session uses %d",
			info.Name, dims[0], batch)
	}
	if len(dims) == 2 && dims[1] > 0 && dims[1] != features {
		return inputSpec{}, shapeMismatch("observation %q has %d features, model expects %d",
			info.Name, features, dims[1])
	}

	return inputSpec{
		Name:  info.Name,
		Shape: []int64{int64(batch), features},
		Data:  slices.Clone(values),
	}, nil
}

// outputSize returns dimension 1 of the action output and checks both policy
// outputs are declared.
func outputSize(declared []ort.InputOutputInfo) (int64, error) {
	var action *ort.InputOutputInfo
	hasState := false
	for i := range declared {
		switch declared[i].Name {
		case OutputName:
			action = &declared[i]
		case StateOutName:
			hasState = true
		}
	}

	if action == nil {
		return 0, fmt.Errorf("model has no %q output", OutputName)
	}
	if !hasState {
		return 0, fmt.Errorf("model has no %q output", StateOutName)
	}
	if len(action.Dimensions) < 2 {
		return 0, fmt.Errorf("output %q has rank %d, expected at least 2", OutputName, len(action.Dimensions))
	}
	return action.Dimensions[1], nil
}

// newFloatTensor copies runtime-owned float data.
func newFloatTensor(name string, shape []int64, data []float32) *Tensor {
	return &Tensor{Name: name, Shape: slices.Clone(shape), Kind: KindFloat32, Floats: slices.Clone(data)}
}

// newIntTensor copies runtime-owned int64 data.
func newIntTensor(name string, shape []int64, data []int64) *Tensor {
	return &Tensor{Name: name, Shape: slices.Clone(shape), Kind: KindInt64, Ints: slices.Clone(data)}
}

// decodeOutput copies an output value, branching on its element type:
// continuous policies export float actions, discrete ones int64.
func decodeOutput(name string, v ort.Value) (*Tensor, error) {
	switch t := v.(type) {
	case *ort.Tensor[float32]:
		return newFloatTensor(name, t.GetShape(), t.GetData()), nil
	case *ort.Tensor[int64]:
		return newIntTensor(name, t.GetShape(), t.GetData()), nil
	case nil:
		return nil, fmt.Errorf("%w: output %q was not produced", ErrInference, name)
	default:
		return nil, fmt.Errorf("%w: %w: output %q is %T", ErrInference, ErrUnsupportedOutput, name, v)
	}
}
