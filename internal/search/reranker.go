package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RerankResult is one cross-encoder score.
type RerankResult struct {
	// Index is the original position in the input documents slice.
	Index int
	// Score is the relevance score in [0, 1].
	Score float64
}

// Reranker reorders candidates with a cross-encoder. Cross-encoders
// jointly encode query-document pairs, which scores relevance better
// than the bi-encoder that produced the candidates, at higher cost.
type Reranker interface {
	// Rerank scores documents against the query, sorted by score
	// descending. topK of 0 returns all.
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error)

	// Available reports whether the reranker backend is reachable.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// Reranker strategies.
const (
	StrategyNoop  = "noop"
	StrategyCross = "cross-encoder"
)

// NewReranker builds the reranker for a strategy name. Unknown names
// are an error so a typo does not silently disable re-ranking.
func NewReranker(ctx context.Context, strategy string, cfg CrossEncoderConfig) (Reranker, error) {
	switch strategy {
	case "", StrategyNoop:
		return &NoOpReranker{}, nil
	case StrategyCross:
		return NewCrossEncoderReranker(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown rerank strategy %q", strategy)
	}
}

// NoOpReranker preserves the incoming order. It exists so the rerank
// plumbing can be exercised without a model behind it.
type NoOpReranker struct{}

var _ Reranker = (*NoOpReranker)(nil)

// Rerank returns the documents in original order with decreasing
// scores.
func (n *NoOpReranker) Rerank(_ context.Context, _ string, documents []string, topK int) ([]RerankResult, error) {
	results := make([]RerankResult, len(documents))
	for i := range documents {
		results[i] = RerankResult{Index: i, Score: 1.0 - float64(i)*0.01}
	}
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Available always reports true.
func (n *NoOpReranker) Available(_ context.Context) bool { return true }

// Close is a no-op.
func (n *NoOpReranker) Close() error { return nil }

// Cross-encoder defaults.
const (
	DefaultRerankerEndpoint = "http://localhost:9659"
	DefaultRerankerModel    = "reranker-small"
	DefaultRerankerTimeout  = 30 * time.Second
)

// CrossEncoderConfig configures the HTTP cross-encoder backend.
type CrossEncoderConfig struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
	// SkipHealthCheck skips the startup probe. Used by tests.
	SkipHealthCheck bool
}

// CrossEncoderReranker calls an HTTP reranking service exposing
// /rerank with query/documents pairs.
type CrossEncoderReranker struct {
	client   *http.Client
	endpoint string
	model    string
	timeout  time.Duration
}

var _ Reranker = (*CrossEncoderReranker)(nil)

// NewCrossEncoderReranker creates the HTTP reranker and probes it.
func NewCrossEncoderReranker(ctx context.Context, cfg CrossEncoderConfig) (*CrossEncoderReranker, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultRerankerEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultRerankerModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultRerankerTimeout
	}

	r := &CrossEncoderReranker{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		timeout:  cfg.Timeout,
	}

	if !cfg.SkipHealthCheck {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if !r.Available(probeCtx) {
			return nil, fmt.Errorf("reranker endpoint %s is not reachable", cfg.Endpoint)
		}
	}
	return r, nil
}

type crossEncoderRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
	TopK      int      `json:"top_k,omitempty"`
}

type crossEncoderResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
}

// Rerank posts the query-document pairs and returns the scores.
func (r *CrossEncoderReranker) Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error) {
	if len(documents) == 0 {
		return []RerankResult{}, nil
	}

	body, err := json.Marshal(crossEncoderRequest{
		Query:     query,
		Documents: documents,
		Model:     r.model,
		TopK:      topK,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		r.endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("rerank failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result crossEncoderResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}

	results := make([]RerankResult, len(result.Results))
	for i, item := range result.Results {
		results[i] = RerankResult{Index: item.Index, Score: item.Score}
	}
	return results, nil
}

// Available probes the health endpoint.
func (r *CrossEncoderReranker) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, r.endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close drains the connection pool.
func (r *CrossEncoderReranker) Close() error {
	if transport, ok := r.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}
