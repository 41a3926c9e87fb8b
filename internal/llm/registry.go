package llm

import (
	"fmt"
	"os"
	"sync"

	"github.com/graphmind/graphmind/internal/logger"
)

// Factory constructs a Provider from ModelConfig-shaped fields. Mirrors
// the teacher's ai.ProviderFactory (ai/registry.go), narrowed to this
// module's three backends.
type Factory interface {
	Name() string
	Create(cfg ProviderConfig, log logger.Logger) (Provider, error)
	// DetectEnvironment reports whether this provider's required
	// credentials/environment are present, used by auto-detection when
	// Provider is "auto".
	DetectEnvironment() bool
}

// ProviderConfig is the subset of config.ModelConfig a Factory needs;
// kept separate from internal/config to avoid an import cycle (llm is a
// lower-level package than config in this module's dependency graph —
// config.Default() only needs ModelConfig's field values, not llm's
// types).
type ProviderConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	Region      string
	Temperature float32
	MaxTokens   int
}

type registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

var global = &registry{factories: make(map[string]Factory)}

// Register adds a Factory under its Name(). Providers register
// themselves from an init() in their own package, per the teacher's
// ai.Register pattern.
func Register(f Factory) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.factories[f.Name()] = f
}

// Create builds a Provider for the named backend. "auto" (or an empty
// name) checks the registered factories in the fixed order bedrock,
// openaicompat, httpgeneric and picks the first whose
// DetectEnvironment returns true, falling back to "httpgeneric" if none
// match — matching the teacher's ai.DetectEnvironment auto-selection,
// generalized across a smaller provider set.
func Create(name string, cfg ProviderConfig, log logger.Logger) (Provider, error) {
	global.mu.RLock()
	defer global.mu.RUnlock()

	if name != "" && name != "auto" {
		f, ok := global.factories[name]
		if !ok {
			return nil, fmt.Errorf("llm: unknown provider %q", name)
		}
		return f.Create(cfg, log)
	}

	for _, candidate := range []string{"bedrock", "openaicompat", "httpgeneric"} {
		f, ok := global.factories[candidate]
		if ok && f.DetectEnvironment() {
			return f.Create(cfg, log)
		}
	}
	if f, ok := global.factories["httpgeneric"]; ok {
		return f.Create(cfg, log)
	}
	return nil, fmt.Errorf("llm: no provider available")
}

// EnvNonEmpty is a small helper shared by provider DetectEnvironment
// implementations.
func EnvNonEmpty(key string) bool {
	return os.Getenv(key) != ""
}
