// cmd/policyd/inspect.go
package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/SyedDaiam9101/policy-runtime/internal/compute"
)

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [model]",
		Short: "Print the policy signature and the resolved compute backend",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := a.load(cmd.Flags(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Model = args[0]
			}

			loaded, err := loadEngine(a.fs, cfg, logger)
			if err != nil {
				return err
			}
			defer loaded.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "model:       %s\n", cfg.Model)
			fmt.Fprintf(out, "output size: %d\n", loaded.engine.OutputSize())
			printSelection(out, loaded.selection)
			if loaded.session != nil {
				fmt.Fprintln(out, "inputs:")
				printInfos(out, loaded.session.Inputs())
				fmt.Fprintln(out, "outputs:")
				printInfos(out, loaded.session.Outputs())
			}
			return nil
		},
	}
}

func printSelection(w io.Writer, sel compute.Selection) {
	fmt.Fprintf(w, "os:          %s\n", sel.OS)
	fmt.Fprintf(w, "adapter:     %q\n", sel.Adapter)
	fmt.Fprintf(w, "detected:    %s\n", sel.Detected)
	fmt.Fprintf(w, "preferred:   %s\n", sel.Preferred)
	fmt.Fprintf(w, "compute api: %s\n", sel.Active)
}

func printInfos(w io.Writer, infos []ort.InputOutputInfo) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, info := range infos {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", info.Name, info.DataType, info.Dimensions)
	}
	tw.Flush()
}
