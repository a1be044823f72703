package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"sfchat/internal/account"
)

func newBalanceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the account balance behind the API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBalance(cmd, opts)
		},
	}
}

func runBalance(cmd *cobra.Command, opts *rootOptions) error {
	cfg, logger, cleanup, err := opts.setupValid()
	if err != nil {
		printHint(cmd.ErrOrStderr(), opts.styles, err)
		return err
	}
	defer cleanup()

	svc, err := account.New(cfg, nil, logger)
	if err != nil {
		return err
	}
	info, err := svc.UserInfo(cmd.Context())
	if err != nil {
		printHint(cmd.ErrOrStderr(), opts.styles, err)
		return err
	}

	st := opts.styles
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, st.Title.Render("Account"))
	fmt.Fprintf(out, "  %s %s (%s)\n", st.Label.Render("user          "), info.Name, info.ID)
	fmt.Fprintf(out, "  %s %s\n", st.Label.Render("gift balance  "), info.Balance)
	fmt.Fprintf(out, "  %s %s\n", st.Label.Render("charge balance"), info.ChargeBalance)
	fmt.Fprintf(out, "  %s %s\n", st.Label.Render("total balance "), info.TotalBalance)
	return nil
}
