package mcp

import (
	"github.com/boletinlabs/dirc/internal/pipeline"
	"github.com/boletinlabs/dirc/internal/search"
)

// SearchInput is the input schema of the search tool.
type SearchInput struct {
	Query          string   `json:"query" jsonschema:"the search query, in Spanish or English"`
	TopK           int      `json:"top_k,omitempty" jsonschema:"maximum number of results, default 10, max 100"`
	Technique      string   `json:"technique,omitempty" jsonschema:"retrieval technique: semantic, keyword, or hybrid (default)"`
	Rerank         bool     `json:"rerank,omitempty" jsonschema:"pass the top results through the cross-encoder reranker"`
	RerankStrategy string   `json:"rerank_strategy,omitempty" jsonschema:"reranker to use: noop or cross-encoder"`
	Year           string   `json:"year,omitempty" jsonschema:"filter by gazette year, e.g. 2024"`
	Month          string   `json:"month,omitempty" jsonschema:"filter by gazette month, zero-padded, e.g. 05"`
	Section        string   `json:"section,omitempty" jsonschema:"filter by section type: decree, resolution, tender, subsidy, appointment, budget, general"`
	JurisdictionID string   `json:"jurisdiction_id,omitempty" jsonschema:"filter by jurisdiction identifier"`
	Topic          string   `json:"topic,omitempty" jsonschema:"filter by topic tag"`
	Language       string   `json:"language,omitempty" jsonschema:"filter by ISO 639-1 language code"`
	HasTables      *bool    `json:"has_tables,omitempty" jsonschema:"filter chunks that contain tables"`
	HasAmounts     *bool    `json:"has_amounts,omitempty" jsonschema:"filter chunks that mention monetary amounts"`
	Entities       []string `json:"entities,omitempty" jsonschema:"filter by extracted entities, combined with AND"`
	DocumentID     string   `json:"document_id,omitempty" jsonschema:"restrict to one document"`
	SourceID       string   `json:"source_id,omitempty" jsonschema:"filter by upstream source identifier"`
}

// SearchOutput is the output schema of the search tool.
type SearchOutput struct {
	Results         []search.RankedHit `json:"results" jsonschema:"ranked results, scores in [0,1]"`
	TotalResults    int                `json:"total_results"`
	Technique       string             `json:"technique"`
	ExecutionTimeMS int64              `json:"execution_time_ms"`
	Reranked        bool               `json:"reranked"`
	Degraded        string             `json:"degraded,omitempty" jsonschema:"hybrid leg that failed while the other still answered"`
}

// IngestInput is the input schema of the ingest_document tool.
type IngestInput struct {
	FileID            string `json:"file_id" jsonschema:"file id or path of the PDF to ingest"`
	ChunkSize         int    `json:"chunk_size,omitempty" jsonschema:"chunk size in characters, default 1000"`
	ChunkOverlap      int    `json:"chunk_overlap,omitempty" jsonschema:"overlap between consecutive chunks, default 200"`
	SkipCleaning      *bool  `json:"skip_cleaning,omitempty" jsonschema:"skip text normalization"`
	SkipEnrichment    *bool  `json:"skip_enrichment,omitempty" jsonschema:"skip metadata extraction"`
	UseTripleIndexing *bool  `json:"use_triple_indexing,omitempty" jsonschema:"write all three indexes transactionally, default true"`
}

// IngestOutput is the output schema of the ingest_document tool: the
// full pipeline response including the per-stage records.
type IngestOutput struct {
	pipeline.Response
}

// VerifyInput is the input schema of the verify_document tool.
type VerifyInput struct {
	DocumentID string `json:"document_id,omitempty" jsonschema:"document to verify; omit with all=true to verify the whole corpus"`
	All        bool   `json:"all,omitempty" jsonschema:"verify every indexed document"`
}

// VerifyOutput is the output schema of the verify_document tool.
type VerifyOutput struct {
	Consistent bool           `json:"consistent" jsonschema:"true when every checked document is consistent"`
	Reports    []VerifyReport `json:"reports"`
}

// VerifyReport is one document's consistency report.
type VerifyReport struct {
	DocumentID   string   `json:"document_id"`
	Consistent   bool     `json:"consistent"`
	SQLChunks    int      `json:"sql_chunks"`
	FTSChunks    int      `json:"fts_chunks"`
	VectorChunks int      `json:"vector_chunks"`
	Issues       []string `json:"issues,omitempty"`
}

// RepairInput is the input schema of the repair_document tool.
type RepairInput struct {
	DocumentID string `json:"document_id" jsonschema:"document to repair from its relational rows"`
}

// RepairOutput is the output schema of the repair_document tool.
type RepairOutput struct {
	DocumentID       string `json:"document_id"`
	ChunksReembedded int    `json:"chunks_reembedded"`
	FTSRebuilt       bool   `json:"fts_rebuilt"`
}

// StatsInput is the input schema of the corpus_stats tool.
type StatsInput struct{}

// StatsOutput is the output schema of the corpus_stats tool.
type StatsOutput struct {
	Documents      int            `json:"documents"`
	Chunks         int            `json:"chunks"`
	IndexedChunks  int            `json:"indexed_chunks"`
	Vectors        int            `json:"vectors"`
	SectionCounts  map[string]int `json:"section_counts,omitempty"`
	EmbeddingModel string         `json:"embedding_model,omitempty"`
	DBSizeBytes    int64          `json:"db_size_bytes"`
}
