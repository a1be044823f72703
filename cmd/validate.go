package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"sfchat/internal/config"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd, opts)
		},
	}
}

func runValidate(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	st := opts.styles
	out := cmd.OutOrStdout()
	row := func(label, value string) {
		fmt.Fprintf(out, "  %s %s\n", st.Label.Render(fmt.Sprintf("%-12s", label)), value)
	}

	fmt.Fprintln(out, st.Title.Render("Configuration"))
	row("base_url", cfg.BaseURL)
	row("model_name", cfg.ModelName)
	row("api_key", cfg.MaskedAPIKey())
	row("max_tokens", fmt.Sprint(cfg.MaxTokens))
	row("temperature", fmt.Sprint(cfg.Temperature))
	row("top_p", fmt.Sprint(cfg.TopP))
	row("timeout", cfg.TimeoutDuration().String())
	row("retry_times", fmt.Sprint(cfg.RetryTimes))

	verr := cfg.Validate()
	if verr == nil {
		fmt.Fprintln(out, st.OK.Render("configuration is valid"))
		return nil
	}

	var invalid *config.ValidationError
	if errors.As(verr, &invalid) {
		for _, v := range invalid.Violations {
			fmt.Fprintf(out, "  %s %s\n", st.Error.Render("✗"), v.String())
		}
	}
	printHint(cmd.ErrOrStderr(), st, verr)
	return verr
}
