package cmd

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"sfchat/internal/client"
	"sfchat/internal/config"
	"sfchat/internal/models"
)

// samplingFlags are the per-call overrides shared by chat and stream.
type samplingFlags struct {
	system      string
	maxTokens   int
	temperature float64
	topP        float64
	extra       []string
}

func (f *samplingFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.system, "system", "s", "", "system prompt sent before the user prompt")
	fl.IntVar(&f.maxTokens, "max-tokens", 0, "maximum tokens to generate")
	fl.Float64Var(&f.temperature, "temperature", 0, "sampling temperature (0-2)")
	fl.Float64Var(&f.topP, "top-p", 0, "nucleus sampling probability (0-1]")
	fl.StringArrayVar(&f.extra, "extra", nil, "extra request field as key=value, repeatable")
}

// options returns call options for the flags the user actually set.
func (f *samplingFlags) options(cmd *cobra.Command) ([]client.CallOption, error) {
	var opts []client.CallOption
	fl := cmd.Flags()
	if fl.Changed("max-tokens") {
		opts = append(opts, client.WithMaxTokens(f.maxTokens))
	}
	if fl.Changed("temperature") {
		opts = append(opts, client.WithTemperature(f.temperature))
	}
	if fl.Changed("top-p") {
		opts = append(opts, client.WithTopP(f.topP))
	}
	for _, kv := range f.extra {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, errors.Errorf("--extra %q: expected key=value", kv)
		}
		opts = append(opts, client.WithExtra(strings.TrimSpace(key), parseExtraValue(value)))
	}
	return opts, nil
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var (
		flags samplingFlags
		usage bool
	)
	cmd := &cobra.Command{
		Use:   "chat <prompt>",
		Short: "Send a prompt and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts, &flags, usage, strings.Join(args, " "))
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&usage, "usage", false, "print token usage after the reply")
	return cmd
}

func runChat(cmd *cobra.Command, opts *rootOptions, flags *samplingFlags, usage bool, prompt string) error {
	callOpts, err := flags.options(cmd)
	if err != nil {
		return err
	}
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

	resp, err := cl.Generate(cmd.Context(), models.Prompt(prompt, flags.system), callOpts...)
	if err != nil {
		printHint(cmd.ErrOrStderr(), opts.styles, err)
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, resp.Message.Content)
	if usage {
		u := resp.Usage
		fmt.Fprintf(out, "%s prompt %d, completion %d, total %d\n",
			opts.styles.Dim.Render("tokens:"), u.PromptTokens, u.CompletionTokens, u.TotalTokens)
	}
	return nil
}

func newStreamCmd(opts *rootOptions) *cobra.Command {
	var flags samplingFlags
	cmd := &cobra.Command{
		Use:   "stream <prompt>",
		Short: "Send a prompt and print the reply as it arrives",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStream(cmd, opts, &flags, strings.Join(args, " "))
		},
	}
	flags.register(cmd)
	return cmd
}

func runStream(cmd *cobra.Command, opts *rootOptions, flags *samplingFlags, prompt string) error {
	callOpts, err := flags.options(cmd)
	if err != nil {
		return err
	}
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

	stream, err := cl.StreamChat(cmd.Context(), prompt, flags.system, callOpts...)
	if err != nil {
		printHint(cmd.ErrOrStderr(), opts.styles, err)
		return err
	}
	defer stream.Close()

	out := cmd.OutOrStdout()
	for content, err := range stream.Fragments() {
		if err != nil {
			fmt.Fprintln(out)
			printHint(cmd.ErrOrStderr(), opts.styles, err)
			return err
		}
		fmt.Fprint(out, content)
	}
	fmt.Fprintln(out)
	return nil
}

func hintFor(err error) string {
	if errors.Is(err, config.ErrMissingCredential) {
		return "set " + config.EnvAPIKey + " or pass --api-key; keys are issued at https://cloud.siliconflow.cn/"
	}
	if errors.Is(err, client.ErrNoChoices) {
		return "the service returned no answer"
	}
	if kind := client.KindOf(err); kind != client.KindUnknown {
		return client.Hint(kind)
	}
	return ""
}

// parseExtraValue reads a flag value as a YAML scalar or flow collection so
// that numbers and booleans keep their type. Anything unparsable stays a string.
func parseExtraValue(raw string) any {
	if strings.TrimSpace(raw) == "" {
		return raw
	}
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
		return raw
	}
	return v
}
