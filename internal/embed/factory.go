package embed

import (
	"fmt"
	"os"
	"strings"
)

// Config holds embedder configuration.
type Config struct {
	Provider  string
	APIKey    string
	CacheSize int
}

func buildProvider(cfg Config, cache *Cache) (Embedder, error) {
	provider := strings.ToLower(cfg.Provider)
	switch provider {
	case ProviderJina:
		return NewJinaProvider(cfg.APIKey, cache)
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cache)
	case ProviderLocal, "":
		return NewLocalProvider(cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider returns the provider that would be used based on the
// current environment, preferring an explicit override, then falling back
// to whichever API key is present, then local.
func DetectProvider() string {
	if p := os.Getenv("SEMANTIC_CODE_EMBEDDING_PROVIDER"); p != "" {
		return strings.ToLower(p)
	}
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}

// New constructs an Embedder from explicit configuration. Callers own the
// returned instance's lifetime (Server.Close calls its Close) rather than
// reaching into a shared global, per §9's Design Notes resolution:
// Embedder/Reranker are injected at Server construction, not globals.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}
	return buildProvider(cfg, cache)
}
