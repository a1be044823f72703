// Package examples runs the guided chat scenarios shown by the CLI.
package examples

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"sfchat/internal/client"
	"sfchat/internal/models"
	"sfchat/internal/preset"
	"sfchat/internal/ui"
)

// Chatter is the part of the chat client the scenarios use.
type Chatter interface {
	Model() string
	Generate(ctx context.Context, messages []models.Message, opts ...client.CallOption) (*models.Response, error)
	SimpleChat(ctx context.Context, prompt, systemPrompt string, opts ...client.CallOption) (string, error)
	StreamChat(ctx context.Context, prompt, systemPrompt string, opts ...client.CallOption) (*client.Stream, error)
	MultiTurnChat(ctx context.Context, history []models.Message, opts ...client.CallOption) (string, error)
}

// Scenario is one self-contained demonstration.
type Scenario struct {
	Title string
	run   func(ctx context.Context, p *printer, chat Chatter) error
}

// Report summarises a Run.
type Report struct {
	Ran    int
	Failed []string
}

type printer struct {
	w     io.Writer
	st    ui.Styles
	model string
}

func (p *printer) line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) reply(text string) {
	p.line("%s", p.st.Label.Render(p.model+" reply:"))
	p.line("%s", text)
}

func (p *printer) usage(u models.Usage) {
	p.line("%s prompt %d, completion %d, total %d",
		p.st.Dim.Render("Tokens:"), u.PromptTokens, u.CompletionTokens, u.TotalTokens)
}

// Scenarios returns the built-in scenarios in display order.
func Scenarios() []Scenario {
	return []Scenario{
		{Title: "Simple text generation", run: simpleGeneration},
		{Title: "Chat with a system prompt", run: systemPromptChat},
		{Title: "Streaming output", run: streamingOutput},
		{Title: "Multi-turn conversation", run: multiTurn},
		{Title: "Creative writing (high temperature)", run: creativeWriting},
		{Title: "Error inspection", run: errorInspection},
	}
}

func simpleGeneration(ctx context.Context, p *printer, chat Chatter) error {
	prompt := "Write a quicksort in Python with detailed comments."
	resp, err := chat.Generate(ctx, models.Prompt(prompt, ""), client.WithMaxTokens(1000), client.WithTemperature(0.3))
	if err != nil {
		return err
	}
	p.line("%s %s", p.st.Label.Render("User:"), prompt)
	p.reply(resp.Message.Content)
	p.usage(resp.Usage)
	return nil
}

func systemPromptChat(ctx context.Context, p *printer, chat Chatter) error {
	system := "You are a professional Python programming assistant. Give clear, concise and efficient solutions."
	prompt := "How do I read and process a JSON file in Python? Include a code sample."
	text, err := chat.SimpleChat(ctx, prompt, system, client.WithMaxTokens(800))
	if err != nil {
		return err
	}
	p.line("%s %s", p.st.Label.Render("System:"), system)
	p.line("%s %s", p.st.Label.Render("User:"), prompt)
	p.reply(text)
	return nil
}

func streamingOutput(ctx context.Context, p *printer, chat Chatter) error {
	prompt := "Explain what machine learning is and describe its main types."
	stream, err := chat.StreamChat(ctx, prompt, "", client.WithMaxTokens(1000))
	if err != nil {
		return err
	}
	defer stream.Close()

	p.line("%s %s", p.st.Label.Render("User:"), prompt)
	p.line("%s", p.st.Label.Render(p.model+" reply (streaming):"))
	for content, err := range stream.Fragments() {
		if err != nil {
			fmt.Fprintln(p.w)
			return err
		}
		fmt.Fprint(p.w, content)
	}
	fmt.Fprintln(p.w)
	return nil
}

func multiTurn(ctx context.Context, p *printer, chat Chatter) error {
	history := []models.Message{
		models.UserMessage("What is a REST API?"),
		models.AssistantMessage("A REST API is a style of web API built on HTTP..."),
		models.UserMessage("Can you show a concrete Python implementation?"),
	}
	text, err := chat.MultiTurnChat(ctx, history, client.WithMaxTokens(1000))
	if err != nil {
		return err
	}
	p.line("%s", p.st.Label.Render("History:"))
	for _, m := range history {
		p.line("%s: %s", strings.ToUpper(string(m.Role)), m.Content)
	}
	p.reply(text)
	return nil
}

func creativeWriting(ctx context.Context, p *printer, chat Chatter) error {
	prompt := "Write a short science fiction story about the future of AI, around 200 words."
	text, err := chat.SimpleChat(ctx, prompt, "", client.WithTemperature(1.2), client.WithMaxTokens(500))
	if err != nil {
		return err
	}
	p.line("%s %s", p.st.Label.Render("User:"), prompt)
	p.reply(text)
	return nil
}

// unknownModel is a model id the service is expected to reject.
const unknownModel = "non-existent-model"

func errorInspection(ctx context.Context, p *printer, chat Chatter) error {
	p.line("%s %s", p.st.Label.Render("Requesting model:"), unknownModel)
	text, err := chat.SimpleChat(ctx, "Hello", "", client.WithExtra("model", unknownModel), client.WithMaxTokens(50))
	if err == nil {
		p.line("%s", p.st.Warn.Render("The service accepted the request:"))
		p.line("%s", text)
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	message := err.Error()
	var reqErr *client.RequestError
	if errors.As(err, &reqErr) {
		message = reqErr.Message
	}
	p.line("%s %s", p.st.Label.Render("Kind:"), client.KindOf(err))
	p.line("%s %d", p.st.Label.Render("Status:"), client.StatusOf(err))
	p.line("%s %s", p.st.Label.Render("Message:"), message)
	p.line("%s %s", p.st.Label.Render("Hint:"), describe(err))
	return nil
}

// Run executes every scenario in order. A failing scenario is reported with a
// hint and the run continues. The error is non-nil only when ctx ends early.
func Run(ctx context.Context, w io.Writer, chat Chatter) (Report, error) {
	p := &printer{w: w, st: ui.Default(), model: chat.Model()}
	var report Report

	p.line("%s", p.st.Divider(60))
	p.line("%s", p.st.Title.Render(chat.Model()+" text generation examples"))
	p.line("%s", p.st.Divider(60))

	for i, sc := range Scenarios() {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		p.line("\n%s", p.st.Section.Render(fmt.Sprintf("%d. %s", i+1, sc.Title)))
		p.line("%s", p.st.Divider(40))

		report.Ran++
		err := sc.run(ctx, p, chat)
		if err == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report, ctxErr
		}
		report.Failed = append(report.Failed, sc.Title)
		p.line("%s %v", p.st.Error.Render("Generation failed:"), err)
		p.line("%s", p.st.Warn.Render(describe(err)))
	}
	return report, nil
}

func describe(err error) string {
	if errors.Is(err, client.ErrNoChoices) {
		return "the service returned no answer"
	}
	return client.Hint(client.KindOf(err))
}

// PrintPresets lists the registered presets, marking the one in use.
func PrintPresets(w io.Writer, reg *preset.Registry, currentModel string) {
	st := ui.Default()
	fmt.Fprintln(w, st.Title.Render("Available models"))
	for _, p := range reg.List() {
		marker := " "
		if p.ModelName == currentModel {
			marker = st.OK.Render("*")
		}
		fmt.Fprintf(w, "%s %-16s %-36s %s\n", marker, p.Key, p.ModelName, st.Dim.Render(p.Description))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, st.Label.Render("Notes:"))
	fmt.Fprintln(w, "- Pro models are billed to the charged balance only")
	fmt.Fprintln(w, "- other models accept both gift and charged balance")
}
