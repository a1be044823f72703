package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfchat/internal/preset"
)

func validConfig() Config {
	cfg := Default()
	cfg.APIKey = "sk-test-0123456789"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "https://api.siliconflow.cn/v1", cfg.BaseURL)
	assert.Equal(t, "deepseek-ai/DeepSeek-V3", cfg.ModelName)
	assert.Equal(t, 2000, cfg.MaxTokens)
	assert.Equal(t, 0.7, cfg.Temperature)
	assert.Equal(t, 0.95, cfg.TopP)
	assert.Equal(t, 60, cfg.Timeout)
	assert.Equal(t, 3, cfg.RetryTimes)
	assert.Empty(t, cfg.APIKey)
}

func TestValidate_AcceptsBoundaries(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.MaxTokens = 1 },
		func(c *Config) { c.MaxTokens = MaxTokensLimit },
		func(c *Config) { c.Temperature = 0 },
		func(c *Config) { c.Temperature = 2 },
		func(c *Config) { c.TopP = 1 },
		func(c *Config) { c.TopP = 0.0001 },
	}
	for _, mutate := range cases {
		cfg := validConfig()
		mutate(&cfg)
		assert.NoError(t, cfg.Validate())
		assert.True(t, cfg.Valid())
	}
}

func TestValidate_RejectsOutOfRange(t *testing.T) {
	cases := map[string]func(*Config){
		"base_url":    func(c *Config) { c.BaseURL = "" },
		"model_name":  func(c *Config) { c.ModelName = "" },
		"max_tokens":  func(c *Config) { c.MaxTokens = 0 },
		"temperature": func(c *Config) { c.Temperature = 2.5 },
		"top_p":       func(c *Config) { c.TopP = 0 },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.False(t, cfg.Valid())

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.True(t, verr.Has(field))
			assert.False(t, errors.Is(err, ErrMissingCredential))
		})
	}

	cfg := validConfig()
	cfg.MaxTokens = MaxTokensLimit + 1
	assert.False(t, cfg.Valid())
	cfg = validConfig()
	cfg.TopP = 1.01
	assert.False(t, cfg.Valid())
	cfg = validConfig()
	cfg.Temperature = -0.1
	assert.False(t, cfg.Valid())
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	cfg := Default()
	cfg.MaxTokens = 20000
	cfg.TopP = 0

	err := cfg.Validate()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Violations, 3)
	assert.True(t, errors.Is(err, ErrMissingCredential))
	assert.Contains(t, err.Error(), "max_tokens must be <= 16384")
}

func TestValidate_RejectsBlankCredential(t *testing.T) {
	cfg := validConfig()
	cfg.APIKey = "   "
	assert.False(t, cfg.Valid())
	assert.True(t, errors.Is(cfg.Validate(), ErrMissingCredential))

	cfg = validConfig()
	cfg.ModelName = "\t"
	var verr *ValidationError
	require.True(t, errors.As(cfg.Validate(), &verr))
	assert.True(t, verr.Has("model_name"))
	assert.Contains(t, verr.Error(), "model_name must be set")
}

func TestResolveCredential(t *testing.T) {
	env := map[string]string{EnvAPIKey: " sk-from-env "}
	getenv := func(k string) string { return env[k] }

	cfg := Default()
	cfg.ResolveCredential(getenv)
	assert.Equal(t, "sk-from-env", cfg.APIKey)

	cfg = Default()
	cfg.APIKey = "explicit"
	cfg.ResolveCredential(getenv)
	assert.Equal(t, "explicit", cfg.APIKey)

	cfg = Default()
	cfg.ResolveCredential(func(string) string { return "" })
	assert.True(t, errors.Is(cfg.Validate(), ErrMissingCredential))
}

func TestHeaders(t *testing.T) {
	cfg := validConfig()
	h := cfg.Headers()
	assert.Equal(t, "Bearer sk-test-0123456789", h.Get("Authorization"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.Len(t, h, 2)
}

func TestNew_AppliesPreset(t *testing.T) {
	cfg := New("k", "deepseek-r1-pro")
	assert.Equal(t, "Pro/deepseek-ai/DeepSeek-R1", cfg.ModelName)
	assert.Equal(t, 4000, cfg.MaxTokens)

	cfg = New("k", "unknown-model", WithTemperature(0.2))
	assert.Equal(t, "deepseek-ai/DeepSeek-V3", cfg.ModelName)
	assert.Equal(t, 2000, cfg.MaxTokens)
	assert.Equal(t, 0.2, cfg.Temperature)

	cfg = New("k", "qwen-coder-32b", WithMaxTokens(123))
	assert.Equal(t, 123, cfg.MaxTokens)
}

func TestLoad_YAMLAndTOML(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "sfchat.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
api_key: sk-yaml
model_name: Qwen/Qwen2.5-Coder-7B-Instruct
temperature: 0
server:
  port: 9090
presets:
  - key: local
    model_name: org/local
`), 0o600))

	cfg, err := Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "sk-yaml", cfg.APIKey)
	assert.Equal(t, "Qwen/Qwen2.5-Coder-7B-Instruct", cfg.ModelName)
	assert.Equal(t, 0.0, cfg.Temperature)
	assert.Equal(t, 0.95, cfg.TopP)
	assert.Equal(t, 9090, cfg.Server.Port)
	require.NoError(t, cfg.Validate())

	reg, err := cfg.PresetRegistry()
	require.NoError(t, err)
	assert.Equal(t, "org/local", reg.Resolve("local").ModelName)

	tomlPath := filepath.Join(dir, "sfchat.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(`
max_tokens = 512
top_p = 0.5

[log]
level = "debug"
`), 0o600))

	cfg, err = Load(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.MaxTokens)
	assert.Equal(t, 0.5, cfg.TopP)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	p := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(p, []byte(`{}`), 0o600))
	_, err = Load(p)
	assert.Error(t, err)
}

func TestPresetRegistry_Duplicate(t *testing.T) {
	cfg := validConfig()
	cfg.Presets = []preset.Preset{{Key: "deepseek-v3", ModelName: "org/shadow"}}
	_, err := cfg.PresetRegistry()
	assert.Error(t, err)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SFCHAT_TEST_LOADENV=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("SFCHAT_TEST_LOADENV") })

	require.NoError(t, LoadEnv(filepath.Join(dir, "absent.env"), envFile))
	assert.Equal(t, "from-file", os.Getenv("SFCHAT_TEST_LOADENV"))
	assert.NoError(t, LoadEnv(filepath.Join(dir, "none.env")))
}

func TestMaskedAPIKey(t *testing.T) {
	cfg := Config{APIKey: "sk-abcdefghijkl"}
	assert.Equal(t, "sk-a*******ijkl", cfg.MaskedAPIKey())
	assert.Equal(t, "***", Config{APIKey: "abc"}.MaskedAPIKey())
}

func TestServerConfigValidate(t *testing.T) {
	assert.NoError(t, ServerConfig{Port: 8080}.Validate())
	assert.Error(t, ServerConfig{Port: 0}.Validate())
	assert.Error(t, ServerConfig{Port: 70000}.Validate())
}
