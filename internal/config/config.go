package config

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"sfchat/internal/logs"
	"sfchat/internal/preset"
)

const (
	// EnvAPIKey is consulted only when no explicit key is configured.
	EnvAPIKey = "SILICONFLOW_API_KEY"

	DefaultBaseURL     = "https://api.siliconflow.cn/v1"
	DefaultMaxTokens   = 2000
	DefaultTemperature = 0.7
	DefaultTopP        = 0.95
	DefaultTimeout     = 60
	DefaultRetryTimes  = 3
	DefaultServerPort  = 8080

	MaxTokensLimit = 16384
)

// ErrMissingCredential indicates that no API key could be resolved.
var ErrMissingCredential = errors.New("api key is not set: configure api_key or export " + EnvAPIKey)

// Config holds everything needed to talk to the chat endpoint.
type Config struct {
	APIKey      string  `yaml:"api_key" toml:"api_key" validate:"required,notblank"`
	BaseURL     string  `yaml:"base_url" toml:"base_url" validate:"required,url"`
	ModelName   string  `yaml:"model_name" toml:"model_name" validate:"required,notblank"`
	MaxTokens   int     `yaml:"max_tokens" toml:"max_tokens" validate:"min=1,max=16384"`
	Temperature float64 `yaml:"temperature" toml:"temperature" validate:"gte=0,lte=2"`
	TopP        float64 `yaml:"top_p" toml:"top_p" validate:"gt=0,lte=1"`
	// Timeout is in seconds; zero disables the client-side deadline.
	Timeout    int `yaml:"timeout" toml:"timeout" validate:"gte=0"`
	RetryTimes int `yaml:"retry_times" toml:"retry_times" validate:"gte=0"`

	Log     logs.Config     `yaml:"log" toml:"log" validate:"-"`
	Server  ServerConfig    `yaml:"server" toml:"server" validate:"-"`
	Presets []preset.Preset `yaml:"presets" toml:"presets" validate:"-"`
}

// ServerConfig defines the local gateway listener.
type ServerConfig struct {
	Port int `yaml:"port" toml:"port"`
}

// Validate checks the listener settings.
func (s ServerConfig) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return errors.Errorf("server.port must be a valid TCP port, got %d", s.Port)
	}
	return nil
}

// Default returns the configuration used when nothing is overridden.
// The API key is left empty; see ResolveCredential.
func Default() Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		ModelName:   preset.Resolve(preset.DefaultKey).ModelName,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
		Timeout:     DefaultTimeout,
		RetryTimes:  DefaultRetryTimes,
		Log:         logs.DefaultConfig(),
		Server:      ServerConfig{Port: DefaultServerPort},
	}
}

// Option overrides a single configuration field.
type Option func(*Config)

func WithBaseURL(u string) Option { return func(c *Config) { c.BaseURL = u } }
func WithMaxTokens(n int) Option { return func(c *Config) { c.MaxTokens = n } }
func WithTemperature(t float64) Option { return func(c *Config) { c.Temperature = t } }
func WithTopP(p float64) Option { return func(c *Config) { c.TopP = p } }
func WithTimeout(seconds int) Option { return func(c *Config) { c.Timeout = seconds } }
func WithRetryTimes(n int) Option { return func(c *Config) { c.RetryTimes = n } }
func WithModelName(name string) Option { return func(c *Config) { c.ModelName = name } }

// New builds a configuration from a preset key. Unknown keys fall back to the
// default preset. The preset's recommended max_tokens is applied before opts,
// so an explicit WithMaxTokens wins.
func New(apiKey, presetKey string, opts ...Option) Config {
	cfg := Default()
	cfg.APIKey = apiKey
	cfg.ApplyPreset(preset.Resolve(presetKey))
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// ApplyPreset switches the model and its recommended max_tokens.
func (c *Config) ApplyPreset(p preset.Preset) {
	c.ModelName = p.ModelName
	if p.RecommendedMaxTokens > 0 {
		c.MaxTokens = p.RecommendedMaxTokens
	}
}

// Load reads a YAML or TOML file on top of Default. The result is not
// validated; call Validate once the credential has been resolved.
func Load(path string) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "resolve config path")
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config file %q", absPath)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(absPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config file %q", absPath)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config file %q", absPath)
		}
	default:
		return Config{}, errors.Errorf("config file %q: unsupported extension, use .yaml, .yml or .toml", absPath)
	}
	return cfg, nil
}

// LoadEnv loads KEY=VALUE files into the process environment. Missing files
// are skipped and variables already set are left alone.
func LoadEnv(files ...string) error {
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return errors.Wrap(err, "load env files")
	}
	return nil
}

// ResolveCredential fills an empty APIKey from the environment. It is the
// only place the process environment is consulted for the credential.
func (c *Config) ResolveCredential(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if strings.TrimSpace(c.APIKey) == "" {
		c.APIKey = strings.TrimSpace(getenv(EnvAPIKey))
	}
}

// Headers returns the headers every authenticated request carries.
func (c Config) Headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.APIKey)
	h.Set("Content-Type", "application/json")
	return h
}

// TimeoutDuration converts the configured timeout to a duration.
func (c Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// MaskedAPIKey returns a form of the key that is safe to log.
func (c Config) MaskedAPIKey() string {
	k := c.APIKey
	if len(k) <= 8 {
		return strings.Repeat("*", len(k))
	}
	return k[:4] + strings.Repeat("*", len(k)-8) + k[len(k)-4:]
}

// PresetRegistry returns the built-in presets extended with the ones declared
// in the configuration file.
func (c Config) PresetRegistry() (*preset.Registry, error) {
	reg := preset.Default().Clone()
	for _, p := range c.Presets {
		if err := reg.Register(p); err != nil {
			return nil, errors.Wrap(err, "register configured preset")
		}
	}
	return reg, nil
}
