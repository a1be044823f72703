package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"sfchat/internal/client"
	"sfchat/internal/config"
	"sfchat/internal/examples"
)

func newExamplesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "Run the guided text generation examples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExamples(cmd, opts)
		},
	}
}

func runExamples(cmd *cobra.Command, opts *rootOptions) error {
	out := cmd.OutOrStdout()
	st := opts.styles

	cfg, logger, cleanup, err := opts.setupValid()
	if errors.Is(err, config.ErrMissingCredential) {
		fmt.Fprintln(out, st.Warn.Render("Set your SiliconFlow API key first."))
		fmt.Fprintln(out, "  1. Register at https://cloud.siliconflow.cn/ and create an API key")
		fmt.Fprintf(out, "  2. export %s=your-api-key\n", config.EnvAPIKey)
		fmt.Fprintln(out, "  3. or pass --api-key / set api_key in the config file")
		return err
	}
	if err != nil {
		return err
	}
	defer cleanup()

	cl, err := client.New(cfg, client.WithLogger(logger))
	if err != nil {
		return err
	}

	report, err := examples.Run(cmd.Context(), out, cl)
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	reg, err := cfg.PresetRegistry()
	if err != nil {
		return err
	}
	examples.PrintPresets(out, reg, cfg.ModelName)

	if n := len(report.Failed); n > 0 {
		return errors.Errorf("%d of %d examples failed", n, report.Ran)
	}
	return nil
}
