package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second

	requestIDHeader = "X-Request-Id"
)

// newHTTPClient returns a client without an overall deadline so that streams
// can run as long as the service keeps sending; the configured timeout bounds
// the wait for response headers instead.
func newHTTPClient(responseTimeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: responseTimeout,
	}

	return &http.Client{Transport: transport}
}

type extrasKey struct{}

// withExtras attaches body fields that the transport merges into the JSON
// payload of the outgoing request.
func withExtras(ctx context.Context, extras map[string]any) context.Context {
	if len(extras) == 0 {
		return ctx
	}
	return context.WithValue(ctx, extrasKey{}, extras)
}

func extrasFrom(ctx context.Context) map[string]any {
	extras, _ := ctx.Value(extrasKey{}).(map[string]any)
	return extras
}

// headerTransport stamps configured headers and a request id on every call and
// applies per-call extra body fields.
type headerTransport struct {
	base    http.RoundTripper
	headers http.Header
	logger  *zap.Logger
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	for k, vs := range t.headers {
		out.Header[k] = append([]string(nil), vs...)
	}
	if out.Header.Get(requestIDHeader) == "" {
		out.Header.Set(requestIDHeader, uuid.NewString())
	}

	if extras := extrasFrom(req.Context()); len(extras) > 0 && req.Body != nil && req.Body != http.NoBody {
		if err := mergeBody(out, extras); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	resp, err := t.base.RoundTrip(out)
	fields := []zap.Field{
		zap.String("request_id", out.Header.Get(requestIDHeader)),
		zap.String("method", out.Method),
		zap.String("path", out.URL.Path),
		zap.Duration("latency", time.Since(start)),
	}
	if err != nil {
		t.logger.Debug("upstream request failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	t.logger.Debug("upstream request", append(fields, zap.Int("status", resp.StatusCode))...)
	return resp, nil
}

func mergeBody(req *http.Request, extras map[string]any) error {
	raw, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return errors.Wrap(err, "read request body")
	}

	payload := make(map[string]json.RawMessage)
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return errors.Wrap(err, "decode request body")
		}
	}
	for k, v := range extras {
		encoded, err := json.Marshal(v)
		if err != nil {
			return errors.Wrapf(err, "encode extra field %q", k)
		}
		payload[k] = encoded
	}

	merged, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encode request body")
	}
	req.Body = io.NopCloser(bytes.NewReader(merged))
	req.ContentLength = int64(len(merged))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(merged)), nil
	}
	return nil
}
