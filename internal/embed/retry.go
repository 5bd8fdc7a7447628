package embed

import (
	"context"
	"errors"

	dircerrors "github.com/boletinlabs/dirc/internal/errors"
)

// RetryConfig is the shared backoff configuration; providers embed it
// in their own configs.
type RetryConfig = dircerrors.RetryConfig

// DefaultRetryConfig returns the production backoff: 3 retries,
// 1s -> 16s, doubling.
func DefaultRetryConfig() RetryConfig {
	cfg := dircerrors.DefaultRetryConfig()
	cfg.MaxRetries = DefaultMaxRetries
	return cfg
}

// WithRetry runs fn with exponential backoff and maps the outcome into
// the embedding error taxonomy: cancellation surfaces as a cancelled
// error, anything else exhausting the retries as an embedding error.
// Context cancellation cuts the loop immediately, both between attempts
// and while waiting.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	err := dircerrors.Retry(ctx, cfg, fn)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return dircerrors.FromContext(err)
	}
	var ce *dircerrors.CoreError
	if errors.As(err, &ce) {
		return err
	}
	return dircerrors.Embedding("provider failed after retries", err)
}
