// Package client wraps an OpenAI-compatible chat completion endpoint with a
// fixed model, configuration driven defaults, typed errors and bounded retries.
package client

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"sfchat/internal/config"
	"sfchat/internal/logs"
	"sfchat/internal/models"
)

const (
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 8 * time.Second
)

// Client sends chat requests for a single model. It is immutable after New and
// safe for concurrent use.
type Client struct {
	cfg            config.Config
	api            *openai.Client
	baseHTTP       *http.Client
	logger         *zap.Logger
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// New builds a client from cfg. It fails with config.ErrMissingCredential
// when no API key is set. The remaining fields are not validated here; call
// cfg.Validate first when that matters.
func New(cfg config.Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.WithStack(config.ErrMissingCredential)
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}
	if strings.TrimSpace(cfg.ModelName) == "" {
		return nil, errors.New("model name must not be empty")
	}
	cfg.BaseURL = baseURL

	c := &Client{
		cfg:            cfg,
		logger:         zap.L(),
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logs.Module(c.logger, "client")

	hc := c.baseHTTP
	if hc == nil {
		hc = newHTTPClient(cfg.TimeoutDuration())
	}
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped := *hc
	wrapped.Transport = &headerTransport{base: base, headers: cfg.Headers(), logger: c.logger}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = baseURL
	apiCfg.HTTPClient = &wrapped
	c.api = openai.NewClientWithConfig(apiCfg)

	c.logger.Debug("client ready",
		zap.String("base_url", baseURL),
		zap.String("model", cfg.ModelName),
		zap.String("api_key", cfg.MaskedAPIKey()),
	)
	return c, nil
}

// Model returns the model every request is sent to.
func (c *Client) Model() string {
	return c.cfg.ModelName
}

// Generate sends messages and returns the first choice. Transient failures are
// retried up to the configured retry_times.
func (c *Client) Generate(ctx context.Context, messages []models.Message, opts ...CallOption) (*models.Response, error) {
	req, extras, err := c.buildRequest(messages, opts)
	if err != nil {
		return nil, err
	}

	var resp openai.ChatCompletionResponse
	err = c.retry(ctx, "generate", func() error {
		attemptCtx, cancel := c.attemptContext(ctx)
		defer cancel()

		r, err := c.api.CreateChatCompletion(withExtras(attemptCtx, extras), req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}

	choice := resp.Choices[0]
	out := &models.Response{
		ID:    resp.ID,
		Model: resp.Model,
		Message: models.Message{
			Role:    models.Role(choice.Message.Role),
			Content: choice.Message.Content,
		},
		FinishReason: string(choice.FinishReason),
		Usage: models.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	c.logger.Debug("chat completion",
		zap.String("id", out.ID),
		zap.String("finish_reason", out.FinishReason),
		zap.Int("total_tokens", out.Usage.TotalTokens),
	)
	return out, nil
}

// GenerateStream opens a streamed completion. Only opening the stream is
// retried; the caller must Close the returned Stream.
func (c *Client) GenerateStream(ctx context.Context, messages []models.Message, opts ...CallOption) (*Stream, error) {
	req, extras, err := c.buildRequest(messages, opts)
	if err != nil {
		return nil, err
	}
	req.Stream = true

	var raw *openai.ChatCompletionStream
	err = c.retry(ctx, "generate_stream", func() error {
		s, err := c.api.CreateChatCompletionStream(withExtras(ctx, extras), req)
		if err != nil {
			return err
		}
		raw = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newStream(raw), nil
}

// SimpleChat sends prompt, preceded by systemPrompt when it is not empty, and
// returns the text of the first choice.
func (c *Client) SimpleChat(ctx context.Context, prompt, systemPrompt string, opts ...CallOption) (string, error) {
	resp, err := c.Generate(ctx, models.Prompt(prompt, systemPrompt), opts...)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// StreamChat is the streamed form of SimpleChat.
func (c *Client) StreamChat(ctx context.Context, prompt, systemPrompt string, opts ...CallOption) (*Stream, error) {
	return c.GenerateStream(ctx, models.Prompt(prompt, systemPrompt), opts...)
}

// MultiTurnChat sends history as is and returns the text of the first choice.
func (c *Client) MultiTurnChat(ctx context.Context, history []models.Message, opts ...CallOption) (string, error) {
	resp, err := c.Generate(ctx, history, opts...)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// ListModels returns the ids of the models the service exposes.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	var list openai.ModelsList
	err := c.retry(ctx, "list_models", func() error {
		attemptCtx, cancel := c.attemptContext(ctx)
		defer cancel()

		l, err := c.api.ListModels(attemptCtx)
		if err != nil {
			return err
		}
		list = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (c *Client) buildRequest(messages []models.Message, opts []CallOption) (openai.ChatCompletionRequest, map[string]any, error) {
	if len(messages) == 0 {
		return openai.ChatCompletionRequest{}, nil, errors.New("at least one message is required")
	}

	o := callOptions{
		maxTokens:   c.cfg.MaxTokens,
		temperature: c.cfg.Temperature,
		topP:        c.cfg.TopP,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.check(); err != nil {
		return openai.ChatCompletionRequest{}, nil, err
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	req := openai.ChatCompletionRequest{
		Model:       c.cfg.ModelName,
		Messages:    msgs,
		MaxTokens:   o.maxTokens,
		Temperature: float32(o.temperature),
		TopP:        float32(o.topP),
		Stop:        o.stop,
		Seed:        o.seed,
	}

	extras := make(map[string]any, len(o.extra)+1)
	// the SDK drops a zero temperature from the body
	if o.temperature == 0 {
		extras["temperature"] = 0
	}
	for k, v := range o.extra {
		extras[k] = v
	}
	return req, extras, nil
}

func (c *Client) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if timeout := c.cfg.TimeoutDuration(); timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// retry runs fn until it succeeds, fails with a non-retryable error, or
// retry_times retries have been spent. The returned error is classified.
func (c *Client) retry(ctx context.Context, op string, fn func() error) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.initialBackoff
	expo.MaxInterval = c.maxBackoff
	expo.MaxElapsedTime = 0
	expo.Reset()

	retries := c.cfg.RetryTimes
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(retries)), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := Classify(fn())
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		c.logger.Warn("retrying request",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if err != nil {
		c.logger.Debug("request failed", zap.String("op", op), zap.Int("attempts", attempt), zap.Error(err))
		return Classify(err)
	}
	return nil
}
