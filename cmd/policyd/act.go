// cmd/policyd/act.go
package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/SyedDaiam9101/policy-runtime/internal/inference"
)

// observationFile is the input of "act". JSON files parse as YAML.
//
//	state_ins: 0
//	obs:
//	  obs: [0.1, 0.2, 0.3, 0.4]
type observationFile struct {
	StateIns float32              `yaml:"state_ins"`
	Obs      map[string][]float32 `yaml:"obs"`
}

func readObservationFile(fs afero.Fs, path string) (*observationFile, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read observations: %w", err)
	}
	var f observationFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(f.Obs) == 0 {
		return nil, fmt.Errorf("%s: no observations under \"obs\"", path)
	}
	return &f, nil
}

// actOutput is what "act" prints. Discrete actions keep their integer type.
type actOutput struct {
	Output     interface{} `yaml:"output"`
	StateOuts  []float32   `yaml:"state_outs"`
	OutputKind string      `yaml:"output_kind"`
}

func newActOutput(result inference.Result) actOutput {
	action := result.Action()
	out := actOutput{OutputKind: action.Kind.String()}
	if action.Kind == inference.KindInt64 {
		out.Output = action.Ints
	} else {
		out.Output = action.Floats
	}
	if state := result.State(); state != nil {
		out.StateOuts = state.Float32s()
	}
	return out
}

func newActCmd(a *app) *cobra.Command {
	var stateIns float32

	cmd := &cobra.Command{
		Use:   "act <observations.yaml>",
		Short: "Run one forward pass on observations read from a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := a.load(cmd.Flags(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			obsFile, err := readObservationFile(a.fs, args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("state-ins") {
				obsFile.StateIns = stateIns
			}

			loaded, err := loadEngine(a.fs, cfg, logger)
			if err != nil {
				return err
			}
			defer loaded.Close()

			result, err := loaded.engine.RunInference(obsFile.Obs, obsFile.StateIns)
			if err != nil {
				return err
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(newActOutput(result))
		},
	}

	cmd.Flags().Float32Var(&stateIns, "state-ins", 0, "Recurrent state flag, overrides the file")
	return cmd
}
