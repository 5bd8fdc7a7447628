package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/boletinlabs/dirc/internal/config"
	dircerrors "github.com/boletinlabs/dirc/internal/errors"
)

// New builds the embedder selected by cfg.Provider and wraps it with an
// LRU cache when cfg.CacheSize is positive.
//
// An empty provider auto-detects: the local endpoint is tried first and
// the static embedder is the offline fallback. An explicit provider
// fails hard when it cannot start, so a misconfigured deployment never
// silently degrades to hash embeddings.
func New(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	inner, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(inner, cfg.CacheSize), nil
	}
	return inner, nil
}

// newProvider builds the raw provider. Network-backed providers are
// wrapped with a circuit breaker; the static embedder cannot fail and
// runs bare.
func newProvider(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "local":
		local, err := NewLocalEmbedder(ctx, LocalConfig{
			Endpoint:   cfg.Endpoint,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		return NewBreakerEmbedder(local), nil
	case "openai":
		remote, err := NewOpenAIEmbedder(OpenAIConfig{
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		return NewBreakerEmbedder(remote), nil
	case "static":
		return NewStaticEmbedder(), nil
	case "":
		return autoDetect(ctx, cfg), nil
	default:
		return nil, dircerrors.ConfigError(
			fmt.Sprintf("unknown embeddings provider %q", cfg.Provider), nil).
			WithSuggestion("use 'local', 'openai', 'static', or leave empty for auto-detection")
	}
}

// autoDetect prefers the local endpoint and falls back to static.
func autoDetect(ctx context.Context, cfg config.EmbeddingsConfig) Embedder {
	local, err := NewLocalEmbedder(ctx, LocalConfig{
		Endpoint:   cfg.Endpoint,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
	})
	if err == nil {
		slog.Debug("embeddings auto-detect selected local provider",
			"model", local.ModelName(), "dimensions", local.Dimensions())
		return NewBreakerEmbedder(local)
	}
	slog.Warn("local embedding endpoint unavailable, using static embeddings",
		"error", err)
	return NewStaticEmbedder()
}
