package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfchat/internal/config"
	"sfchat/internal/preset"
)

type fakeAPI struct {
	mu   sync.Mutex
	last map[string]any
	url  string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{}

	e := echo.New()
	e.POST("/v1/chat/completions", func(c echo.Context) error {
		body := map[string]any{}
		if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
			return c.NoContent(http.StatusBadRequest)
		}
		f.mu.Lock()
		f.last = body
		f.mu.Unlock()

		if body["stream"] == true {
			res := c.Response()
			res.Header().Set(echo.HeaderContentType, "text/event-stream")
			res.WriteHeader(http.StatusOK)
			for _, piece := range []string{"str", "eamed"} {
				fmt.Fprintf(res, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", piece)
			}
			fmt.Fprint(res, "data: [DONE]\n\n")
			return nil
		}
		return c.JSON(http.StatusOK, map[string]any{
			"id": "1",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "pong"},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 5, "completion_tokens": 1, "total_tokens": 6},
		})
	})
	e.GET("/v1/models", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"data": []map[string]any{
			{"id": "deepseek-ai/DeepSeek-V3"}, {"id": "deepseek-ai/DeepSeek-R1"},
		}})
	})
	e.GET("/v1/user/info", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"code": 20000, "status": true,
			"data": map[string]any{"id": "u-7", "name": "tester", "balance": "1.00", "chargeBalance": "2.00", "totalBalance": "3.00"},
		})
	})

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	f.url = srv.URL + "/v1"
	return f
}

func (f *fakeAPI) body() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sfchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runCLI(t *testing.T, env map[string]string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd(&rootOptions{getenv: func(k string) string { return env[k] }})
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append(args,
		"--env-file", filepath.Join(t.TempDir(), "absent.env"),
		"--log-level", "error",
	))
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestChat(t *testing.T) {
	api := newFakeAPI(t)
	cfgPath := writeConfig(t, "base_url: "+api.url+"\nretry_times: 0\n")

	out, _, err := runCLI(t, map[string]string{config.EnvAPIKey: "sk-env"},
		"chat", "ping", "me", "--config", cfgPath,
		"--system", "answer tersely", "--temperature", "0", "--max-tokens", "64", "--extra", "top_k=20")
	require.NoError(t, err)
	assert.Equal(t, "pong\n", out)

	body := api.body()
	assert.Equal(t, float64(0), body["temperature"])
	assert.Equal(t, float64(64), body["max_tokens"])
	assert.Equal(t, float64(20), body["top_k"])
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "ping me", msgs[1].(map[string]any)["content"])
}

func TestChat_Usage(t *testing.T) {
	api := newFakeAPI(t)
	cfgPath := writeConfig(t, "base_url: "+api.url+"\nretry_times: 0\n")

	out, _, err := runCLI(t, nil, "chat", "ping", "--config", cfgPath, "--api-key", "k", "--usage")
	require.NoError(t, err)
	assert.Contains(t, out, "pong\n")
	assert.Contains(t, out, "prompt 5, completion 1, total 6")

	out, _, err = runCLI(t, nil, "chat", "ping", "--config", cfgPath, "--api-key", "k")
	require.NoError(t, err)
	assert.NotContains(t, out, "total 6")
}

func TestChat_PresetFlag(t *testing.T) {
	api := newFakeAPI(t)
	cfgPath := writeConfig(t, "base_url: "+api.url+"\n")

	_, _, err := runCLI(t, nil, "chat", "hi", "--config", cfgPath, "--api-key", "sk-flag", "--preset", "qwen-coder-32b")
	require.NoError(t, err)
	assert.Equal(t, "Qwen/Qwen2.5-Coder-32B-Instruct", api.body()["model"])
	assert.Equal(t, float64(4000), api.body()["max_tokens"])

	_, _, err = runCLI(t, nil, "chat", "hi", "--config", cfgPath, "--api-key", "sk-flag", "--preset", "nope")
	assert.True(t, errors.Is(err, preset.ErrUnknownPreset))
}

func TestChat_MissingCredential(t *testing.T) {
	_, stderr, err := runCLI(t, nil, "chat", "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrMissingCredential))
	assert.Contains(t, stderr, config.EnvAPIKey)
}

func TestChat_BadExtra(t *testing.T) {
	_, _, err := runCLI(t, nil, "chat", "hi", "--extra", "novalue")
	assert.Error(t, err)
}

func TestStream(t *testing.T) {
	api := newFakeAPI(t)
	cfgPath := writeConfig(t, "base_url: "+api.url+"\napi_key: sk-file\n")

	out, _, err := runCLI(t, nil, "stream", "go", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "streamed\n", out)
	assert.Equal(t, true, api.body()["stream"])
}

func TestValidate(t *testing.T) {
	out, _, err := runCLI(t, nil, "validate")
	require.Error(t, err)
	assert.Contains(t, out, "api_key must be set")

	cfgPath := writeConfig(t, "max_tokens: 99999\ntop_p: 0\n")
	out, _, err = runCLI(t, nil, "validate", "--config", cfgPath, "--api-key", "sk-0123456789")
	require.Error(t, err)
	assert.Contains(t, out, "max_tokens")
	assert.Contains(t, out, "top_p")
	assert.False(t, errors.Is(err, config.ErrMissingCredential))

	out, _, err = runCLI(t, nil, "validate", "--api-key", "sk-0123456789")
	require.NoError(t, err)
	assert.Contains(t, out, "configuration is valid")
	assert.NotContains(t, out, "sk-0123456789")
}

func TestModels(t *testing.T) {
	cfgPath := writeConfig(t, "presets:\n  - key: mine\n    model_name: org/mine\n")
	out, _, err := runCLI(t, nil, "models", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "deepseek-ai/DeepSeek-R1")
	assert.Contains(t, out, "org/mine")
}

func TestModels_Remote(t *testing.T) {
	api := newFakeAPI(t)
	cfgPath := writeConfig(t, "base_url: "+api.url+"\n")

	out, _, err := runCLI(t, nil, "models", "--remote", "--config", cfgPath, "--api-key", "k")
	require.NoError(t, err)
	assert.Equal(t, "* deepseek-ai/DeepSeek-V3\n  deepseek-ai/DeepSeek-R1\n", out)
}

func TestBalance(t *testing.T) {
	api := newFakeAPI(t)
	cfgPath := writeConfig(t, "base_url: "+api.url+"\n")

	out, _, err := runCLI(t, nil, "balance", "--config", cfgPath, "--api-key", "k")
	require.NoError(t, err)
	assert.Contains(t, out, "tester (u-7)")
	assert.Contains(t, out, "3.00")
}

func TestExamples_MissingCredential(t *testing.T) {
	out, _, err := runCLI(t, nil, "examples")
	require.Error(t, err)
	assert.Contains(t, out, "export "+config.EnvAPIKey)
}

func TestExamples(t *testing.T) {
	api := newFakeAPI(t)
	cfgPath := writeConfig(t, "base_url: "+api.url+"\n")

	out, _, err := runCLI(t, nil, "examples", "--config", cfgPath, "--api-key", "k")
	require.NoError(t, err)
	assert.Contains(t, out, "pong")
	assert.Contains(t, out, "streamed")
	assert.Contains(t, out, "Available models")
}

func TestServe_RejectsBadPort(t *testing.T) {
	_, _, err := runCLI(t, nil, "serve", "--api-key", "k", "--port", "70000")
	assert.Error(t, err)
}
