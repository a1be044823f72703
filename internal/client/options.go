package client

import (
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"sfchat/internal/config"
)

// ErrInvalidCallOption marks a sampling parameter outside the accepted range.
var ErrInvalidCallOption = errors.New("invalid call option")

// Option configures a Client at construction.
type Option func(*Client)

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHTTPClient replaces the base HTTP client. Its transport is still wrapped
// so that headers and extra body fields are applied.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.baseHTTP = hc
	}
}

// WithBackoff sets the exponential backoff bounds between retries.
func WithBackoff(initial, max time.Duration) Option {
	return func(c *Client) {
		if initial > 0 {
			c.initialBackoff = initial
		}
		if max > 0 {
			c.maxBackoff = max
		}
	}
}

// CallOption overrides a sampling parameter for a single call.
type CallOption func(*callOptions)

type callOptions struct {
	maxTokens   int
	temperature float64
	topP        float64
	stop        []string
	seed        *int
	extra       map[string]any
}

// check applies the bounds config.Validate enforces on the defaults.
func (o callOptions) check() error {
	var msg string
	switch {
	case o.maxTokens < 1 || o.maxTokens > config.MaxTokensLimit:
		msg = fmt.Sprintf("max_tokens must be between 1 and %d, got %d", config.MaxTokensLimit, o.maxTokens)
	case o.temperature < 0 || o.temperature > 2:
		msg = fmt.Sprintf("temperature must be between 0 and 2, got %v", o.temperature)
	case o.topP <= 0 || o.topP > 1:
		msg = fmt.Sprintf("top_p must be > 0 and <= 1, got %v", o.topP)
	default:
		return nil
	}
	return &RequestError{Kind: KindBadRequest, Message: msg, Err: ErrInvalidCallOption}
}

// WithMaxTokens caps the number of generated tokens.
func WithMaxTokens(n int) CallOption {
	return func(o *callOptions) { o.maxTokens = n }
}

// WithTemperature sets the sampling temperature. Zero is sent explicitly.
func WithTemperature(t float64) CallOption {
	return func(o *callOptions) { o.temperature = t }
}

func WithTopP(p float64) CallOption {
	return func(o *callOptions) { o.topP = p }
}

func WithStop(stop ...string) CallOption {
	return func(o *callOptions) { o.stop = append([]string(nil), stop...) }
}

func WithSeed(seed int) CallOption {
	return func(o *callOptions) { o.seed = &seed }
}

// WithExtra adds a provider specific field to the request body, for options
// that have no dedicated CallOption (for example "top_k" or "min_p").
func WithExtra(key string, value any) CallOption {
	return func(o *callOptions) {
		if o.extra == nil {
			o.extra = make(map[string]any)
		}
		o.extra[key] = value
	}
}

// WithExtras adds several provider specific fields at once.
func WithExtras(fields map[string]any) CallOption {
	return func(o *callOptions) {
		for k, v := range fields {
			WithExtra(k, v)(o)
		}
	}
}
