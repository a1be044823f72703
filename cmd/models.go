package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"sfchat/internal/client"
	"sfchat/internal/examples"
)

func newModelsCmd(opts *rootOptions) *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List model presets, or the models the service offers with --remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if remote {
				return runRemoteModels(cmd, opts)
			}
			return runModels(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "query the service instead of the local presets")
	return cmd
}

func runModels(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	reg, err := cfg.PresetRegistry()
	if err != nil {
		return err
	}
	examples.PrintPresets(cmd.OutOrStdout(), reg, cfg.ModelName)
	return nil
}

func runRemoteModels(cmd *cobra.Command, opts *rootOptions) error {
	cfg, logger, cleanup, err := opts.setupValid()
	if err != nil {
		printHint(cmd.ErrOrStderr(), opts.styles, err)
		return err
	}
	defer cleanup()

	cl, err := client.New(cfg, client.WithLogger(logger))
	if err != nil {
		return err
	}
	ids, err := cl.ListModels(cmd.Context())
	if err != nil {
		printHint(cmd.ErrOrStderr(), opts.styles, err)
		return err
	}

	out := cmd.OutOrStdout()
	for _, id := range ids {
		marker := " "
		if id == cfg.ModelName {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s\n", marker, id)
	}
	return nil
}
