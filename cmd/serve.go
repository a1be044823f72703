package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"sfchat/internal/client"
	"sfchat/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local HTTP gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts, port)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "override server port from configuration")
	return cmd
}

func runServe(cmd *cobra.Command, opts *rootOptions, overridePort int) error {
	cfg, logger, cleanup, err := opts.setupValid()
	if err != nil {
		printHint(cmd.ErrOrStderr(), opts.styles, err)
		return err
	}
	defer cleanup()

	if cmd.Flags().Changed("port") {
		if overridePort <= 0 || overridePort > 65535 {
			return errors.Errorf("port override %d must be a valid TCP port", overridePort)
		}
		cfg.Server.Port = overridePort
	}

	cl, err := client.New(cfg, client.WithLogger(logger))
	if err != nil {
		return err
	}
	reg, err := cfg.PresetRegistry()
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, cl, reg, logger)
	if err != nil {
		return err
	}
	return srv.Run(cmd.Context())
}
