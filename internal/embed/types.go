// Package embed provides the embedding providers: a local
// Ollama-compatible HTTP backend, a hosted OpenAI backend, and a
// deterministic static backend for tests and offline mode. A caching
// decorator wraps any of them.
package embed

import (
	"context"
	"math"
	"time"
)

// Batch limits shared by all providers.
const (
	MinBatchSize     = 1
	MaxBatchSize     = 256
	DefaultBatchSize = 32
)

// DefaultTimeout bounds one embedding request when the caller's context
// carries no tighter deadline.
const DefaultTimeout = 30 * time.Second

// DefaultMaxRetries is the number of attempts before a provider failure
// surfaces as an embedding error.
const DefaultMaxRetries = 3

// StaticDimensions is the vector width of the static embedder.
const StaticDimensions = 256

// Embedder turns text into dense vectors.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts at once.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector width.
	Dimensions() int

	// ModelName returns the model identifier recorded on chunk rows.
	ModelName() string

	// Available reports whether the backend is reachable and ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector scales v to unit length. Zero vectors pass through.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
