package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"sfchat/internal/config"
)

// recorded keeps what the fake upstream received.
type recorded struct {
	mu      sync.Mutex
	bodies  []map[string]any
	headers []http.Header
}

func (r *recorded) add(body map[string]any, h http.Header) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodies = append(r.bodies, body)
	r.headers = append(r.headers, h.Clone())
}

func (r *recorded) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bodies)
}

func (r *recorded) last() (map[string]any, http.Header) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bodies[len(r.bodies)-1], r.headers[len(r.headers)-1]
}

// fakeUpstream serves /v1/chat/completions with reply, which is called once
// per request with the zero based call index.
func fakeUpstream(t *testing.T, reply func(c echo.Context, call int) error) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}

	e := echo.New()
	e.HideBanner = true
	e.POST("/v1/chat/completions", func(c echo.Context) error {
		body := map[string]any{}
		if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
			return c.JSON(http.StatusBadRequest, apiError("malformed body"))
		}
		call := rec.calls()
		rec.add(body, c.Request().Header)
		return reply(c, call)
	})
	e.GET("/v1/models", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"id": "deepseek-ai/DeepSeek-V3", "object": "model"},
				{"id": "Qwen/Qwen2.5-Coder-7B-Instruct", "object": "model"},
			},
		})
	})

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv, rec
}

func apiError(msg string) map[string]any {
	return map[string]any{"error": map[string]any{"message": msg, "type": "invalid_request_error"}}
}

func completion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "deepseek-ai/DeepSeek-V3",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7},
	}
}

func writeSSE(c echo.Context, chunks ...string) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.WriteHeader(http.StatusOK)
	for i, content := range chunks {
		chunk := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion.chunk",
			"created": 1,
			"model":   "deepseek-ai/DeepSeek-V3",
			"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": content}}},
		}
		if i == len(chunks)-1 {
			chunk["choices"].([]map[string]any)[0]["finish_reason"] = "stop"
		}
		data, err := json.Marshal(chunk)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(res, "data: %s\n\n", data); err != nil {
			return err
		}
		res.Flush()
	}
	_, err := fmt.Fprint(res, "data: [DONE]\n\n")
	return err
}

func testConfig(baseURL string) config.Config {
	cfg := config.Default()
	cfg.APIKey = "sk-test-key"
	cfg.BaseURL = baseURL + "/v1"
	cfg.Timeout = 5
	cfg.RetryTimes = 2
	return cfg
}

func newTestClient(t *testing.T, cfg config.Config, logger *zap.Logger) *Client {
	t.Helper()
	if logger == nil {
		logger = zaptest.NewLogger(t)
	}
	c, err := New(cfg, WithLogger(logger), WithBackoff(time.Millisecond, 2*time.Millisecond))
	require.NoError(t, err)
	return c
}
