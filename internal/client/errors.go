package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

// ErrNoChoices is returned when the service answered without any choice.
var ErrNoChoices = errors.New("response did not include choices")

// Kind classifies a failed request by the HTTP status the service returned.
type Kind int

const (
	KindUnknown Kind = iota
	KindBadRequest
	KindUnauthorized
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Hint returns a short message suitable for showing to a person.
func Hint(k Kind) string {
	switch k {
	case KindRateLimited:
		return "rate limit reached, wait a moment and try again"
	case KindUnauthorized:
		return "the API key was rejected, check api_key or SILICONFLOW_API_KEY"
	case KindBadRequest:
		return "the request was rejected, check the input and parameters"
	default:
		return "the request failed"
	}
}

// RequestError is returned by every operation that reaches the network.
type RequestError struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("siliconflow request failed (%s, status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("siliconflow request failed: %s", e.Message)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// KindForStatus maps an HTTP status code to a Kind.
func KindForStatus(code int) Kind {
	switch code {
	case http.StatusBadRequest:
		return KindBadRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindUnauthorized
	case http.StatusTooManyRequests:
		return KindRateLimited
	default:
		return KindUnknown
	}
}

// Classify converts an error from the transport into a *RequestError based on
// the status code carried by the SDK error. nil stays nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &RequestError{
			Kind:       KindForStatus(apiErr.HTTPStatusCode),
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			Err:        err,
		}
	}

	var sdkErr *openai.RequestError
	if errors.As(err, &sdkErr) {
		msg := http.StatusText(sdkErr.HTTPStatusCode)
		if sdkErr.Err != nil {
			msg = sdkErr.Err.Error()
		}
		return &RequestError{
			Kind:       KindForStatus(sdkErr.HTTPStatusCode),
			StatusCode: sdkErr.HTTPStatusCode,
			Message:    msg,
			Err:        err,
		}
	}

	return &RequestError{Kind: KindUnknown, Message: err.Error(), Err: err}
}

// KindOf returns the Kind of err, or KindUnknown when err is not a *RequestError.
func KindOf(err error) Kind {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Kind
	}
	return KindUnknown
}

// StatusOf returns the upstream status code carried by err, or 0.
func StatusOf(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}
	return 0
}

// IsRetryable reports whether repeating the request may succeed: rate limits,
// server errors and failures that never produced a status code.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return false
	}
	switch {
	case reqErr.Kind == KindRateLimited:
		return true
	case reqErr.StatusCode >= 500:
		return true
	case reqErr.StatusCode == 0:
		return true
	default:
		return false
	}
}
