// Package store is the persistence layer of the ingestion core: the
// relational chunk store and its lock-step FTS5 index live in one SQLite
// database, and the vector index is an in-process HNSW graph with a
// metadata sidecar.
package store

import (
	"time"
)

// DocumentRow is one row in the documents table. A document is created
// lazily when its first chunk is written and never mutated afterwards.
type DocumentRow struct {
	DocumentID     string
	SourceID       string
	FileName       string
	PageCount      int
	Year           string
	Month          string
	JurisdictionID string
	CreatedAt      time.Time
}

// ChunkRow is one row in the chunks table, the source of truth for a
// chunk. ChunkID is assigned by the database on insert.
type ChunkRow struct {
	ChunkID    int64
	DocumentID string
	ChunkIndex int
	Text       string
	NumChars   int
	StartChar  int
	EndChar    int
	ChunkHash  string

	SectionType string
	Language    string
	HasTables   bool
	HasAmounts  bool
	Entities    map[string][]string
	Topic       string

	// Denormalized document attributes so keyword filters compile to
	// plain column predicates.
	Year           string
	Month          string
	JurisdictionID string
	SourceID       string

	EmbeddingModel      string
	EmbeddingDimensions int
	// IndexedAt is set only after the row has landed in all three
	// indexes.
	IndexedAt *time.Time
	CreatedAt time.Time
}

// KeywordHit is one BM25-scored full-text match. BM25Score is the
// negated FTS5 rank, so higher means a better match and the value is
// unbounded above.
type KeywordHit struct {
	ChunkID     int64
	DocumentID  string
	ChunkIndex  int
	Text        string
	BM25Score   float64
	SectionType string
	Language    string
	Topic       string
	FileName    string
}

// FilterMap restricts a keyword search to chunks matching every entry.
// Keys are chunk column names; unknown keys are ignored by the compiler
// rather than rejected, which is the documented filter contract.
type FilterMap map[string]string

// CorpusStats summarizes the indexed corpus for the stats surface.
type CorpusStats struct {
	Documents      int
	Chunks         int
	IndexedChunks  int
	SectionCounts  map[string]int
	EmbeddingModel string
	DBSizeBytes    int64
}
