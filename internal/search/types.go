// Package search is the retrieval service: semantic, keyword, and
// hybrid queries over the triple index, with reciprocal-rank fusion,
// optional cross-encoder re-ranking, and filter compilation.
package search

import (
	"strings"

	"github.com/boletinlabs/dirc/internal/store"
)

// Technique selects the retrieval strategy.
type Technique string

const (
	TechniqueSemantic Technique = "semantic"
	TechniqueKeyword  Technique = "keyword"
	TechniqueHybrid   Technique = "hybrid"
)

// Filters narrows a search. All set fields combine with AND. Keys a
// technique cannot enforce are silently dropped: the semantic leg
// cannot express year, month, amount/table flags, or entity matches,
// so those only bind under keyword and on the keyword leg of hybrid.
type Filters struct {
	Year           string   `json:"year,omitempty"`
	Month          string   `json:"month,omitempty"`
	Section        string   `json:"section,omitempty"`
	JurisdictionID string   `json:"jurisdiction_id,omitempty"`
	Topic          string   `json:"topic,omitempty"`
	Language       string   `json:"language,omitempty"`
	HasTables      *bool    `json:"has_tables,omitempty"`
	HasAmounts     *bool    `json:"has_amounts,omitempty"`
	Entities       []string `json:"entities,omitempty"`
	DocumentID     string   `json:"document_id,omitempty"`
	SourceID       string   `json:"source_id,omitempty"`
}

// keywordFilter compiles every filter into the keyword store's map.
func (f Filters) keywordFilter() store.FilterMap {
	m := store.FilterMap{}
	put := func(key, value string) {
		if value != "" {
			m[key] = value
		}
	}
	put("year", f.Year)
	put("month", f.Month)
	put("section_type", f.Section)
	put("jurisdiction_id", f.JurisdictionID)
	put("topic", f.Topic)
	put("language", f.Language)
	put("document_id", f.DocumentID)
	put("source_id", f.SourceID)
	if f.HasTables != nil {
		m["has_tables"] = boolString(*f.HasTables)
	}
	if f.HasAmounts != nil {
		m["has_amounts"] = boolString(*f.HasAmounts)
	}
	if len(f.Entities) > 0 {
		m["entities"] = strings.Join(f.Entities, store.EntitySeparator)
	}
	return m
}

// semanticFilter compiles only the predicates the vector store's
// metadata can express. The rest are dropped, not approximated:
// post-filtering truncated top-k results would silently lose matches.
func (f Filters) semanticFilter() map[string]string {
	m := map[string]string{}
	put := func(key, value string) {
		if value != "" {
			m[key] = value
		}
	}
	put("section_type", f.Section)
	put("jurisdiction_id", f.JurisdictionID)
	put("topic", f.Topic)
	put("language", f.Language)
	put("document_id", f.DocumentID)
	put("source_id", f.SourceID)
	return m
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Request is one retrieval call.
type Request struct {
	Query     string    `json:"query"`
	TopK      int       `json:"top_k"`
	Technique Technique `json:"technique"`
	Filters   Filters   `json:"filters"`
	// Rerank passes the top hybrid results through the cross-encoder.
	Rerank bool `json:"rerank"`
	// RerankStrategy names the reranker; empty uses the engine's.
	RerankStrategy string `json:"rerank_strategy,omitempty"`
}

// RankedHit is one scored result.
type RankedHit struct {
	ChunkID    string            `json:"chunk_id"`
	DocumentID string            `json:"document_id"`
	ChunkIndex int               `json:"chunk_index"`
	Text       string            `json:"text"`
	Score      float64           `json:"score"`
	FileName   string            `json:"file_name,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Highlight  string            `json:"highlight,omitempty"`
}

// Response is the retrieval result envelope.
type Response struct {
	Results         []RankedHit `json:"results"`
	Query           string      `json:"query"`
	Technique       Technique   `json:"technique"`
	TotalResults    int         `json:"total_results"`
	ExecutionTimeMS int64       `json:"execution_time_ms"`
	Reranked        bool        `json:"reranked"`
	// Degraded names the hybrid leg that failed when the other one
	// still produced results: "semantic" or "keyword".
	Degraded string `json:"degraded,omitempty"`
}
