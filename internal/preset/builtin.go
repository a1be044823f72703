package preset

var builtin = []Preset{
	{
		Key:                  "deepseek-v3",
		ModelName:            "deepseek-ai/DeepSeek-V3",
		Description:          "DeepSeek-V3 standard (gift balance accepted)",
		RecommendedMaxTokens: 2000,
		ContextLength:        32768,
	},
	{
		Key:                  "deepseek-v3-pro",
		ModelName:            "Pro/deepseek-ai/DeepSeek-V3",
		Description:          "DeepSeek-V3 Pro (paid balance only, faster)",
		RecommendedMaxTokens: 4000,
		ContextLength:        32768,
	},
	{
		Key:                  "deepseek-r1",
		ModelName:            "deepseek-ai/DeepSeek-R1",
		Description:          "DeepSeek-R1 reasoning model (gift balance accepted)",
		RecommendedMaxTokens: 2000,
		ContextLength:        32768,
	},
	{
		Key:                  "deepseek-r1-pro",
		ModelName:            "Pro/deepseek-ai/DeepSeek-R1",
		Description:          "DeepSeek-R1 Pro reasoning model (paid balance only)",
		RecommendedMaxTokens: 4000,
		ContextLength:        32768,
	},
	{
		Key:                  "qwen-coder-7b",
		ModelName:            "Qwen/Qwen2.5-Coder-7B-Instruct",
		Description:          "Qwen2.5-Coder 7B code model",
		RecommendedMaxTokens: 2000,
		ContextLength:        32768,
	},
	{
		Key:                  "qwen-coder-32b",
		ModelName:            "Qwen/Qwen2.5-Coder-32B-Instruct",
		Description:          "Qwen2.5-Coder 32B code model",
		RecommendedMaxTokens: 4000,
		ContextLength:        32768,
	},
}

var builtinAliases = map[string]string{
	"v3": "deepseek-v3",
	"r1": "deepseek-r1",
}

var defaultRegistry = mustBuiltin()

func mustBuiltin() *Registry {
	r := NewRegistry(DefaultKey)
	for _, p := range builtin {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
	for alias, target := range builtinAliases {
		if err := r.Alias(alias, target); err != nil {
			panic(err)
		}
	}
	return r
}

// Default returns the registry holding the built-in presets. It must be
// treated as read-only; use Clone to extend it.
func Default() *Registry {
	return defaultRegistry
}

// Resolve looks key up in the built-in registry, falling back to DefaultKey.
func Resolve(key string) Preset {
	return defaultRegistry.Resolve(key)
}
