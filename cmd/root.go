// Package cmd implements the sfchat CLI commands.
package cmd

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sfchat/internal/config"
	"sfchat/internal/logs"
	"sfchat/internal/ui"
)

// rootOptions carries the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	envFile    string
	apiKey     string
	presetKey  string
	logLevel   string

	getenv func(string) string
	styles ui.Styles
}

// Execute runs the CLI with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	root := newRootCmd(&rootOptions{getenv: os.Getenv})
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	if opts.getenv == nil {
		opts.getenv = os.Getenv
	}
	opts.styles = ui.Default()

	root := &cobra.Command{
		Use:   "sfchat",
		Short: "Chat with SiliconFlow hosted models",
		Long: "sfchat is a client for the SiliconFlow OpenAI-compatible chat API.\n" +
			"The API key is read from --api-key, the config file or " + config.EnvAPIKey + ".",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "path to a YAML or TOML configuration file")
	pf.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	pf.StringVar(&opts.apiKey, "api-key", "", "API key, overrides config and environment")
	pf.StringVarP(&opts.presetKey, "preset", "p", "", "model preset key, see 'sfchat models'")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newChatCmd(opts),
		newStreamCmd(opts),
		newModelsCmd(opts),
		newValidateCmd(opts),
		newExamplesCmd(opts),
		newBalanceCmd(opts),
		newServeCmd(opts),
	)
	return root
}

// loadConfig merges file, env file, flags and environment in that order.
// The result is not validated.
func (o *rootOptions) loadConfig() (config.Config, error) {
	if err := config.LoadEnv(o.envFile); err != nil {
		return config.Config{}, err
	}

	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if o.presetKey != "" {
		reg, err := cfg.PresetRegistry()
		if err != nil {
			return config.Config{}, err
		}
		p, err := reg.Lookup(o.presetKey)
		if err != nil {
			return config.Config{}, errors.Wrapf(err, "--preset %q", o.presetKey)
		}
		cfg.ApplyPreset(p)
	}

	if key := strings.TrimSpace(o.apiKey); key != "" {
		cfg.APIKey = key
	}
	cfg.ResolveCredential(o.getenv)

	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

// setup loads the configuration and installs the process logger. The returned
// func restores the previous global logger.
func (o *rootOptions) setup() (config.Config, *zap.Logger, func(), error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return config.Config{}, nil, nil, err
	}

	logger, err := logs.New(cfg.Log)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	undo := zap.ReplaceGlobals(logger)
	cleanup := func() {
		_ = logger.Sync()
		undo()
	}
	return cfg, logger, cleanup, nil
}

// setupValid is setup followed by Validate.
func (o *rootOptions) setupValid() (config.Config, *zap.Logger, func(), error) {
	cfg, logger, cleanup, err := o.setup()
	if err != nil {
		return cfg, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		cleanup()
		return cfg, nil, nil, err
	}
	return cfg, logger, cleanup, nil
}

func printHint(w io.Writer, st ui.Styles, err error) {
	if hint := hintFor(err); hint != "" {
		_, _ = io.WriteString(w, st.Warn.Render(hint)+"\n")
	}
}
