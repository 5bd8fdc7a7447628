package search

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/boletinlabs/dirc/internal/config"
	"github.com/boletinlabs/dirc/internal/embed"
	dircerrors "github.com/boletinlabs/dirc/internal/errors"
	"github.com/boletinlabs/dirc/internal/index"
	"github.com/boletinlabs/dirc/internal/store"
)

// MaxTopK caps the result page size.
const MaxTopK = 100

// Config tunes the retrieval engine.
type Config struct {
	TopK                int
	RRFK                int
	CandidateMultiplier int
	RerankDepth         int
	HighlightWindow     int
	EmbedTimeout        time.Duration
	VectorTimeout       time.Duration
	KeywordTimeout      time.Duration
}

// ConfigFrom maps the loaded search configuration onto engine tuning.
func ConfigFrom(sc config.SearchConfig) Config {
	return Config{
		TopK:                sc.TopK,
		RRFK:                sc.RRFK,
		CandidateMultiplier: sc.CandidateMultiplier,
		RerankDepth:         sc.RerankDepth,
		HighlightWindow:     sc.HighlightWindow,
		EmbedTimeout:        config.Duration(sc.EmbedTimeout, 30*time.Second),
		VectorTimeout:       config.Duration(sc.VectorTimeout, 30*time.Second),
		KeywordTimeout:      config.Duration(sc.KeywordTimeout, 10*time.Second),
	}
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = 10
	}
	if c.RRFK <= 0 {
		c.RRFK = DefaultRRFConstant
	}
	if c.CandidateMultiplier <= 0 {
		c.CandidateMultiplier = 2
	}
	if c.RerankDepth <= 0 {
		c.RerankDepth = 20
	}
	if c.HighlightWindow <= 0 {
		c.HighlightWindow = DefaultHighlightWindow
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = 30 * time.Second
	}
	if c.VectorTimeout <= 0 {
		c.VectorTimeout = 30 * time.Second
	}
	if c.KeywordTimeout <= 0 {
		c.KeywordTimeout = 10 * time.Second
	}
	return c
}

// Engine runs retrieval over the triple index.
type Engine struct {
	sql      *store.SQLiteStore
	vectors  *store.HNSWStore
	embedder embed.Embedder
	reranker Reranker
	cfg      Config
}

// NewEngine wires the stores, the embedder, and the reranker.
func NewEngine(sql *store.SQLiteStore, vectors *store.HNSWStore, embedder embed.Embedder, reranker Reranker, cfg Config) *Engine {
	if reranker == nil {
		reranker = &NoOpReranker{}
	}
	return &Engine{
		sql:      sql,
		vectors:  vectors,
		embedder: embedder,
		reranker: reranker,
		cfg:      cfg.withDefaults(),
	}
}

// Search dispatches on the requested technique and returns the scored,
// enriched response.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	if req.Query == "" {
		return nil, dircerrors.Input("search query must not be empty", nil)
	}
	topK := req.TopK
	if topK <= 0 {
		topK = e.cfg.TopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	if req.Technique == "" {
		req.Technique = TechniqueHybrid
	}

	start := time.Now()
	resp := &Response{Query: req.Query, Technique: req.Technique}

	var err error
	switch req.Technique {
	case TechniqueSemantic:
		resp.Results, err = e.semanticSearch(ctx, req, topK)
	case TechniqueKeyword:
		resp.Results, err = e.keywordSearch(ctx, req, topK)
	case TechniqueHybrid:
		err = e.hybridSearch(ctx, req, topK, resp)
	default:
		return nil, dircerrors.Input(
			"unknown search technique: "+string(req.Technique), nil)
	}
	if err != nil {
		return nil, err
	}

	if resp.Results == nil {
		resp.Results = []RankedHit{}
	}
	resp.TotalResults = len(resp.Results)
	resp.ExecutionTimeMS = time.Since(start).Milliseconds()
	return resp, nil
}

// semanticSearch embeds the query and ranks by vector similarity.
// Cosine distance d in [0, 2] maps to score clamp(1 - d/2, 0, 1).
func (e *Engine) semanticSearch(ctx context.Context, req Request, topK int) ([]RankedHit, error) {
	candidates, hitsByID, err := e.semanticLeg(ctx, req, topK)
	if err != nil {
		return nil, err
	}

	hits := make([]RankedHit, 0, len(candidates))
	for _, c := range candidates {
		hits = append(hits, e.semanticHit(c, hitsByID[c.ID]))
	}
	if err := e.resolveTexts(ctx, hits); err != nil {
		return nil, err
	}
	e.attachHighlights(hits, req.Query)
	return hits, nil
}

// keywordSearch runs BM25 with the full filter set and min-max
// normalizes the page scores to [0, 1].
func (e *Engine) keywordSearch(ctx context.Context, req Request, topK int) ([]RankedHit, error) {
	candidates, hitsByID, err := e.keywordLeg(ctx, req, topK)
	if err != nil {
		return nil, err
	}

	hits := make([]RankedHit, 0, len(candidates))
	for _, c := range candidates {
		hits = append(hits, e.keywordHit(c, hitsByID[c.ID]))
	}
	e.attachHighlights(hits, req.Query)
	return hits, nil
}

// hybridSearch runs both legs in parallel over a widened candidate
// pool, fuses with RRF, optionally reranks, and trims. A single failed
// leg degrades; both failing is an error.
func (e *Engine) hybridSearch(ctx context.Context, req Request, topK int, resp *Response) error {
	fetch := topK * e.cfg.CandidateMultiplier

	var (
		semCandidates []candidate
		semHits       map[string]*store.VectorHit
		semErr        error
		kwCandidates  []candidate
		kwHits        map[string]*store.KeywordHit
		kwErr         error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		semCandidates, semHits, semErr = e.semanticLeg(gctx, req, fetch)
		return nil // leg errors degrade, they do not cancel the sibling
	})
	g.Go(func() error {
		kwCandidates, kwHits, kwErr = e.keywordLeg(gctx, req, fetch)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if semErr != nil && kwErr != nil {
		return dircerrors.New(dircerrors.ErrCodeSearchFailed,
			"both hybrid legs failed", errors.Join(semErr, kwErr))
	}
	if semErr != nil {
		resp.Degraded = string(TechniqueSemantic)
		slog.Warn("hybrid semantic leg failed, degrading to keyword results",
			slog.String("error", semErr.Error()))
	}
	if kwErr != nil {
		resp.Degraded = string(TechniqueKeyword)
		slog.Warn("hybrid keyword leg failed, degrading to semantic results",
			slog.String("error", kwErr.Error()))
	}

	fusedResults := fuseRRF(semCandidates, kwCandidates, e.cfg.RRFK)
	if len(fusedResults) > topK {
		fusedResults = fusedResults[:topK]
	}

	hits := make([]RankedHit, 0, len(fusedResults))
	for _, f := range fusedResults {
		if kw, ok := kwHits[f.ID]; ok {
			hit := e.keywordHit(candidate{ID: f.ID, Score: f.RRFScore}, kw)
			if sem, inSem := semHits[f.ID]; inSem {
				mergeMetadata(hit.Metadata, sem.Metadata)
			}
			hits = append(hits, hit)
			continue
		}
		hits = append(hits, e.semanticHit(candidate{ID: f.ID, Score: f.RRFScore}, semHits[f.ID]))
	}
	if err := e.resolveTexts(ctx, hits); err != nil {
		return err
	}

	if req.Rerank {
		resp.Reranked = e.rerank(ctx, req, hits)
	}
	e.attachHighlights(hits, req.Query)
	resp.Results = hits
	return nil
}

// semanticLeg returns ranked candidates from the vector store. Filter
// keys the vector metadata cannot express are dropped before the call.
func (e *Engine) semanticLeg(ctx context.Context, req Request, k int) ([]candidate, map[string]*store.VectorHit, error) {
	embedCtx, cancelEmbed := context.WithTimeout(ctx, e.cfg.EmbedTimeout)
	defer cancelEmbed()
	vector, err := e.embedder.Embed(embedCtx, req.Query)
	if err != nil {
		return nil, nil, err
	}

	searchCtx, cancelSearch := context.WithTimeout(ctx, e.cfg.VectorTimeout)
	defer cancelSearch()
	vecHits, err := e.vectors.Search(searchCtx, vector, k, req.Filters.semanticFilter())
	if err != nil {
		return nil, nil, err
	}

	candidates := make([]candidate, 0, len(vecHits))
	byID := make(map[string]*store.VectorHit, len(vecHits))
	for _, h := range vecHits {
		score := 1.0 - float64(h.Distance)/2.0
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		candidates = append(candidates, candidate{ID: h.ID, Score: score})
		byID[h.ID] = h
	}
	return candidates, byID, nil
}

// keywordLeg returns ranked candidates from the BM25 index with the
// full filter set, page scores min-max normalized.
func (e *Engine) keywordLeg(ctx context.Context, req Request, k int) ([]candidate, map[string]*store.KeywordHit, error) {
	searchCtx, cancel := context.WithTimeout(ctx, e.cfg.KeywordTimeout)
	defer cancel()

	kwHits, err := e.sql.SearchBM25(searchCtx, req.Query, k, req.Filters.keywordFilter())
	if err != nil {
		return nil, nil, err
	}
	if len(kwHits) == 0 {
		return nil, map[string]*store.KeywordHit{}, nil
	}

	minScore, maxScore := kwHits[0].BM25Score, kwHits[0].BM25Score
	for _, h := range kwHits {
		if h.BM25Score < minScore {
			minScore = h.BM25Score
		}
		if h.BM25Score > maxScore {
			maxScore = h.BM25Score
		}
	}

	candidates := make([]candidate, 0, len(kwHits))
	byID := make(map[string]*store.KeywordHit, len(kwHits))
	for _, h := range kwHits {
		score := 1.0
		if maxScore > minScore {
			score = (h.BM25Score - minScore) / (maxScore - minScore)
		}
		id := index.VectorID(h.DocumentID, h.ChunkIndex)
		candidates = append(candidates, candidate{ID: id, Score: score})
		byID[id] = h
	}
	return candidates, byID, nil
}

func (e *Engine) keywordHit(c candidate, kw *store.KeywordHit) RankedHit {
	return RankedHit{
		ChunkID:    c.ID,
		DocumentID: kw.DocumentID,
		ChunkIndex: kw.ChunkIndex,
		Text:       kw.Text,
		Score:      c.Score,
		FileName:   kw.FileName,
		Metadata: map[string]string{
			"section_type": kw.SectionType,
			"language":     kw.Language,
			"topic":        kw.Topic,
		},
	}
}

func (e *Engine) semanticHit(c candidate, vec *store.VectorHit) RankedHit {
	hit := RankedHit{ChunkID: c.ID, Score: c.Score}
	if docID, idx, ok := index.ParseVectorID(c.ID); ok {
		hit.DocumentID = docID
		hit.ChunkIndex = idx
	}
	if vec != nil {
		hit.Metadata = copyStringMap(vec.Metadata)
	}
	return hit
}

// resolveTexts loads chunk texts for hits that came back without one
// (semantic hits carry only metadata). Hits from legacy vector-only
// documents have no relational row and keep an empty text.
func (e *Engine) resolveTexts(ctx context.Context, hits []RankedHit) error {
	var missing []int64
	positions := make(map[int64][]int)
	for i, hit := range hits {
		if hit.Text != "" || hit.Metadata == nil {
			continue
		}
		chunkID, err := strconv.ParseInt(hit.Metadata["chunk_id"], 10, 64)
		if err != nil {
			continue
		}
		if len(positions[chunkID]) == 0 {
			missing = append(missing, chunkID)
		}
		positions[chunkID] = append(positions[chunkID], i)
	}
	if len(missing) == 0 {
		return nil
	}

	rows, err := e.sql.GetChunksByIDs(ctx, missing)
	if err != nil {
		return err
	}
	for _, row := range rows {
		for _, i := range positions[row.ChunkID] {
			hits[i].Text = row.Text
		}
	}

	// File names ride along for hits that resolved a row.
	docs := make(map[string]string)
	for i := range hits {
		if hits[i].FileName != "" || hits[i].DocumentID == "" || hits[i].Text == "" {
			continue
		}
		name, ok := docs[hits[i].DocumentID]
		if !ok {
			doc, err := e.sql.GetDocument(ctx, hits[i].DocumentID)
			if err != nil {
				return err
			}
			if doc != nil {
				name = doc.FileName
			}
			docs[hits[i].DocumentID] = name
		}
		hits[i].FileName = name
	}
	return nil
}

// rerank passes the head of the ranked list through the cross-encoder
// and reorders it by the new scores. Failure keeps the fusion order and
// reports reranked=false.
func (e *Engine) rerank(ctx context.Context, req Request, hits []RankedHit) bool {
	depth := e.cfg.RerankDepth
	if depth > len(hits) {
		depth = len(hits)
	}
	if depth == 0 {
		return false
	}

	reranker := e.reranker
	if req.RerankStrategy != "" {
		r, err := NewReranker(ctx, req.RerankStrategy, CrossEncoderConfig{})
		if err != nil {
			slog.Warn("rerank strategy rejected, keeping fusion order",
				slog.String("strategy", req.RerankStrategy),
				slog.String("error", err.Error()))
			return false
		}
		defer func() { _ = r.Close() }()
		reranker = r
	}
	if reranker == nil {
		reranker = &NoOpReranker{}
	}

	texts := make([]string, depth)
	for i := 0; i < depth; i++ {
		texts[i] = hits[i].Text
	}

	results, err := reranker.Rerank(ctx, req.Query, texts, 0)
	if err != nil {
		slog.Warn("reranker failed, keeping fusion order",
			slog.String("error", err.Error()))
		return false
	}

	head := make([]RankedHit, depth)
	copy(head, hits[:depth])
	for pos, r := range results {
		if r.Index < 0 || r.Index >= depth || pos >= depth {
			continue
		}
		hit := head[r.Index]
		hit.Score = r.Score
		hits[pos] = hit
	}
	sort.SliceStable(hits[:depth], func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	return true
}

func (e *Engine) attachHighlights(hits []RankedHit, query string) {
	for i := range hits {
		if hits[i].Text == "" {
			continue
		}
		hits[i].Highlight = highlight(hits[i].Text, query, e.cfg.HighlightWindow)
	}
}

// Stats exposes corpus counters for the stats surface.
func (e *Engine) Stats(ctx context.Context) (*store.CorpusStats, int, error) {
	stats, err := e.sql.Stats(ctx)
	if err != nil {
		return nil, 0, err
	}
	return stats, e.vectors.Count(), nil
}

// Close releases the reranker.
func (e *Engine) Close() error {
	return e.reranker.Close()
}

func mergeMetadata(dst, src map[string]string) {
	for k, v := range src {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
}

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
