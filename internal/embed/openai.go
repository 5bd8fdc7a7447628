package embed

import (
	"context"
	"fmt"
	"os"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	dircerrors "github.com/boletinlabs/dirc/internal/errors"
)

// OpenAI provider defaults.
const (
	// DefaultOpenAIModel balances quality and cost for Spanish prose.
	DefaultOpenAIModel = "text-embedding-3-small"

	// DefaultOpenAIDimensions is the width of text-embedding-3-small.
	DefaultOpenAIDimensions = 1536
)

// OpenAIConfig configures the hosted embedder.
type OpenAIConfig struct {
	// APIKey falls back to $OPENAI_API_KEY when empty.
	APIKey string
	// BaseURL overrides the API endpoint for compatible gateways.
	BaseURL string
	// Model is the embedding model name.
	Model string
	// Dimensions is the expected vector width.
	Dimensions int
	// Retry overrides the default backoff when non-zero.
	Retry RetryConfig
}

// OpenAIEmbedder calls the OpenAI Embeddings API. Rate limits and
// transient failures go through the same backoff as the local provider.
type OpenAIEmbedder struct {
	client openaisdk.Client
	model  string
	dims   int
	retry  RetryConfig
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates the hosted embedder.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, dircerrors.ConfigError(
			"openai embeddings provider requires an API key", nil).
			WithSuggestion("set OPENAI_API_KEY or switch embeddings.provider to 'local' or 'static'")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultOpenAIDimensions
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIEmbedder{
		client: openaisdk.NewClient(opts...),
		model:  cfg.Model,
		dims:   cfg.Dimensions,
		retry:  cfg.Retry,
	}, nil
}

// Embed generates the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, dircerrors.Embedding(
			fmt.Sprintf("expected 1 embedding, got %d", len(vecs)), nil)
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one API call with retry.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var out [][]float32
	err := WithRetry(ctx, e.retry, func() error {
		resp, callErr := e.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
			Model: openaisdk.EmbeddingModel(e.model),
			Input: openaisdk.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
		})
		if callErr != nil {
			return callErr
		}
		if len(resp.Data) != len(texts) {
			return fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
		}
		out = make([][]float32, len(resp.Data))
		for i, emb := range resp.Data {
			vec := make([]float32, len(emb.Embedding))
			for j, v := range emb.Embedding {
				vec[j] = float32(v)
			}
			out[i] = normalizeVector(vec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int { return e.dims }

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string { return e.model }

// Available is true whenever the client is configured; the API itself
// is probed lazily on first use.
func (e *OpenAIEmbedder) Available(_ context.Context) bool { return true }

// Close releases resources.
func (e *OpenAIEmbedder) Close() error { return nil }
