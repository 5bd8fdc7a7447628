package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	dircerrors "github.com/boletinlabs/dirc/internal/errors"
)

// Local provider constants.
const (
	// DefaultLocalEndpoint is the default Ollama-compatible endpoint.
	DefaultLocalEndpoint = "http://localhost:11434"

	// DefaultLocalModel is the default embedding model; nomic-embed-text
	// handles Spanish prose well at 768 dimensions.
	DefaultLocalModel = "nomic-embed-text"

	// localConnectTimeout bounds the availability probe.
	localConnectTimeout = 5 * time.Second

	// localPoolSize is the HTTP connection pool width.
	localPoolSize = 4
)

// LocalConfig configures the local HTTP embedder.
type LocalConfig struct {
	// Endpoint is the Ollama-compatible base URL.
	Endpoint string
	// Model is the embedding model name.
	Model string
	// Dimensions overrides auto-detection when non-zero.
	Dimensions int
	// Retry overrides the default backoff when non-zero.
	Retry RetryConfig
	// SkipProbe skips the startup availability probe and dimension
	// detection. Used by tests that point at a stub server.
	SkipProbe bool
}

// LocalEmbedder talks to an Ollama-compatible /api/embed endpoint.
// The HTTP client carries no client-level timeout: deadlines come from
// the caller's context, so per-call budgets stay in the caller's hands.
type LocalEmbedder struct {
	client    *http.Client
	transport *http.Transport
	endpoint  string
	modelName string
	dims      int
	retry     RetryConfig
}

var _ Embedder = (*LocalEmbedder)(nil)

type embedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// NewLocalEmbedder creates the local embedder and, unless skipped,
// probes the endpoint and detects the vector width with one test call.
func NewLocalEmbedder(ctx context.Context, cfg LocalConfig) (*LocalEmbedder, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultLocalEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultLocalModel
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	transport := &http.Transport{
		MaxIdleConns:        localPoolSize,
		MaxIdleConnsPerHost: localPoolSize,
		MaxConnsPerHost:     localPoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	e := &LocalEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		endpoint:  cfg.Endpoint,
		modelName: cfg.Model,
		dims:      cfg.Dimensions,
		retry:     cfg.Retry,
	}

	if !cfg.SkipProbe {
		probeCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
		if !e.Available(probeCtx) {
			transport.CloseIdleConnections()
			return nil, dircerrors.New(dircerrors.ErrCodeNetworkUnavailable,
				fmt.Sprintf("embedding endpoint %s is not reachable", cfg.Endpoint), nil).
				WithSuggestion("start the local embedding server or set embeddings.provider to 'static'")
		}
		if e.dims == 0 {
			vec, err := e.Embed(probeCtx, "probe")
			if err != nil {
				transport.CloseIdleConnections()
				return nil, dircerrors.Embedding("failed to detect embedding dimensions", err)
			}
			e.dims = len(vec)
		}
	}
	return e, nil
}

// Embed generates the embedding for a single text.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
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

// EmbedBatch embeds texts in one request, retrying transient failures
// with exponential backoff before surfacing an embedding error.
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var embeddings [][]float32
	err := WithRetry(ctx, e.retry, func() error {
		var callErr error
		embeddings, callErr = e.doEmbed(ctx, texts)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return embeddings, nil
}

func (e *LocalEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	// Single string for one text, array for batches; both are accepted
	// but the single form matches older servers.
	var input any = texts
	if len(texts) == 1 {
		input = texts[0]
	}
	body, err := json.Marshal(embedRequest{Model: e.modelName, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.endpoint+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embed request failed with status %d: %s",
			resp.StatusCode, string(respBody))
	}

	var apiResult embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResult); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}
	if len(apiResult.Embeddings) != len(texts) {
		return nil, fmt.Errorf("server returned %d embeddings for %d texts",
			len(apiResult.Embeddings), len(texts))
	}

	embeddings := make([][]float32, len(apiResult.Embeddings))
	for i, emb := range apiResult.Embeddings {
		vec := make([]float32, len(emb))
		for j, v := range emb {
			vec[j] = float32(v)
		}
		embeddings[i] = normalizeVector(vec)
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *LocalEmbedder) Dimensions() int { return e.dims }

// ModelName returns the model identifier.
func (e *LocalEmbedder) ModelName() string { return e.modelName }

// Available probes the endpoint root.
func (e *LocalEmbedder) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, localConnectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, e.endpoint+"/", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close drains the connection pool.
func (e *LocalEmbedder) Close() error {
	e.transport.CloseIdleConnections()
	return nil
}
