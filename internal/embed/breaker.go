package embed

import (
	"context"
	"errors"

	dircerrors "github.com/boletinlabs/dirc/internal/errors"
)

// BreakerEmbedder wraps a network-backed provider with a circuit
// breaker: after a run of consecutive failures the provider is presumed
// down and calls fail fast until the reset timeout passes. Long-lived
// callers (watch mode, the MCP server) keep serving keyword-only
// queries instead of waiting out a dead endpoint on every request.
type BreakerEmbedder struct {
	inner Embedder
	cb    *dircerrors.CircuitBreaker
}

var _ Embedder = (*BreakerEmbedder)(nil)

// NewBreakerEmbedder wraps inner. The breaker is named after the model
// so open-circuit log lines identify the provider.
func NewBreakerEmbedder(inner Embedder, opts ...dircerrors.CircuitBreakerOption) *BreakerEmbedder {
	return &BreakerEmbedder{
		inner: inner,
		cb:    dircerrors.NewCircuitBreaker(inner.ModelName(), opts...),
	}
}

// State exposes the breaker state for diagnostics.
func (b *BreakerEmbedder) State() dircerrors.State { return b.cb.State() }

func (b *BreakerEmbedder) open() error {
	return dircerrors.Embedding("embedding provider unavailable", dircerrors.ErrCircuitOpen).
		WithSuggestion("wait for the provider to recover, or use keyword search meanwhile")
}

// record feeds the call outcome to the breaker. Cancellation says
// nothing about provider health and is not counted as a failure.
func (b *BreakerEmbedder) record(err error) {
	switch {
	case err == nil:
		b.cb.RecordSuccess()
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
	default:
		b.cb.RecordFailure()
	}
}

// Embed passes through unless the circuit is open.
func (b *BreakerEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if !b.cb.Allow() {
		return nil, b.open()
	}
	vec, err := b.inner.Embed(ctx, text)
	b.record(err)
	return vec, err
}

// EmbedBatch passes through unless the circuit is open.
func (b *BreakerEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if !b.cb.Allow() {
		return nil, b.open()
	}
	vecs, err := b.inner.EmbedBatch(ctx, texts)
	b.record(err)
	return vecs, err
}

// Dimensions returns the inner embedder's dimension.
func (b *BreakerEmbedder) Dimensions() int { return b.inner.Dimensions() }

// ModelName returns the inner embedder's model identifier.
func (b *BreakerEmbedder) ModelName() string { return b.inner.ModelName() }

// Available reports false while the circuit is open.
func (b *BreakerEmbedder) Available(ctx context.Context) bool {
	return b.cb.Allow() && b.inner.Available(ctx)
}

// Close closes the inner embedder.
func (b *BreakerEmbedder) Close() error { return b.inner.Close() }
