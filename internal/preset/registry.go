package preset

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// ErrUnknownPreset indicates the requested preset key is not registered.
var ErrUnknownPreset = errors.New("unknown preset")

// ErrDuplicatePreset indicates an attempt to register the same key twice.
var ErrDuplicatePreset = errors.New("preset already registered")

// DefaultKey is the preset used when a lookup key is not recognised.
const DefaultKey = "deepseek-v3"

// Preset is a named shortcut to a remote model and its recommended parameters.
type Preset struct {
	Key                  string `yaml:"key" toml:"key" json:"key"`
	ModelName            string `yaml:"model_name" toml:"model_name" json:"model_name"`
	Description          string `yaml:"description" toml:"description" json:"description"`
	RecommendedMaxTokens int    `yaml:"recommended_max_tokens" toml:"recommended_max_tokens" json:"recommended_max_tokens"`
	ContextLength        int    `yaml:"context_length" toml:"context_length" json:"context_length"`
}

// Registry maintains a mapping of preset keys and aliases to presets.
type Registry struct {
	mu         sync.RWMutex
	presets    map[string]Preset
	aliases    map[string]string
	defaultKey string
}

// NewRegistry constructs an empty registry whose fallback is defaultKey.
func NewRegistry(defaultKey string) *Registry {
	return &Registry{
		presets:    make(map[string]Preset),
		aliases:    make(map[string]string),
		defaultKey: defaultKey,
	}
}

// Register adds a preset under its key.
func (r *Registry) Register(p Preset) error {
	key := strings.TrimSpace(p.Key)
	if key == "" {
		return errors.New("preset key must not be empty")
	}
	if strings.TrimSpace(p.ModelName) == "" {
		return errors.Errorf("preset %q: model_name must not be empty", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.presets[key]; exists {
		return errors.Wrap(ErrDuplicatePreset, key)
	}
	if _, exists := r.aliases[key]; exists {
		return errors.Errorf("preset %q conflicts with existing alias", key)
	}
	p.Key = key
	r.presets[key] = p
	return nil
}

// Alias makes alias resolve to the preset registered under target.
func (r *Registry) Alias(alias, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.presets[alias]; exists {
		return errors.Errorf("alias %q conflicts with existing preset", alias)
	}
	if _, ok := r.presets[target]; !ok {
		return errors.Errorf("alias %q references unknown preset %q", alias, target)
	}
	r.aliases[alias] = target
	return nil
}

// Lookup returns the preset for key or alias.
func (r *Registry) Lookup(key string) (Preset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if target, ok := r.aliases[key]; ok {
		key = target
	}
	p, ok := r.presets[key]
	if !ok {
		return Preset{}, errors.Wrap(ErrUnknownPreset, key)
	}
	return p, nil
}

// Resolve returns the preset for key, falling back to the registry default
// when the key is unrecognised.
func (r *Registry) Resolve(key string) Preset {
	if p, err := r.Lookup(key); err == nil {
		return p
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.presets[r.defaultKey]
}

// List returns every registered preset ordered by key.
func (r *Registry) List() []Preset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Preset, 0, len(r.presets))
	for _, p := range r.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Clone returns an independent copy so callers can extend it without
// touching the shared default table.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := NewRegistry(r.defaultKey)
	for k, v := range r.presets {
		c.presets[k] = v
	}
	for k, v := range r.aliases {
		c.aliases[k] = v
	}
	return c
}
