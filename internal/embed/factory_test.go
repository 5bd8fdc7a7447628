package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boletinlabs/dirc/internal/config"
)

func TestNew_StaticProvider(t *testing.T) {
	e, err := New(context.Background(), config.EmbeddingsConfig{Provider: "static"})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, "static", e.ModelName())
	assert.Equal(t, StaticDimensions, e.Dimensions())
}

func TestNew_WrapsWithCache(t *testing.T) {
	e, err := New(context.Background(), config.EmbeddingsConfig{
		Provider:  "static",
		CacheSize: 64,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	cached, ok := e.(*CachedEmbedder)
	require.True(t, ok, "positive cache_size must wrap the provider")
	assert.Equal(t, "static", cached.Inner().ModelName())
}

func TestNew_NoCacheWhenDisabled(t *testing.T) {
	e, err := New(context.Background(), config.EmbeddingsConfig{Provider: "static"})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, ok := e.(*CachedEmbedder)
	assert.False(t, ok)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(context.Background(), config.EmbeddingsConfig{Provider: "quantum"})
	assert.Error(t, err)
}

func TestNew_AutoDetectFallsBackToStatic(t *testing.T) {
	// Nothing listens on port 1, so auto-detection lands on static.
	e, err := New(context.Background(), config.EmbeddingsConfig{
		Endpoint: "http://127.0.0.1:1",
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, "static", e.ModelName())
}
