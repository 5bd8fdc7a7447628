// Package index coordinates writes across the three indexes: the
// relational chunk store, its lock-step FTS index, and the vector
// store. The relational store is the source of truth; the vector store
// sits outside the SQLite transaction and is kept consistent with a
// compensation step instead.
package index

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/boletinlabs/dirc/internal/chunk"
	"github.com/boletinlabs/dirc/internal/embed"
	"github.com/boletinlabs/dirc/internal/enrich"
	dircerrors "github.com/boletinlabs/dirc/internal/errors"
	"github.com/boletinlabs/dirc/internal/store"
)

// Document identifies and describes the document being indexed.
type Document struct {
	DocumentID     string
	SourceID       string
	FileName       string
	PageCount      int
	Year           string
	Month          string
	JurisdictionID string
	// Language and Topic are carried onto every chunk. Empty language
	// defaults to Spanish during enrichment.
	Language string
	Topic    string
}

// Options tunes one indexing run.
type Options struct {
	// SkipEnrichment stores chunks with default metadata. The chunk
	// hash is still computed.
	SkipEnrichment bool
	// VectorOnly skips the relational and FTS writes entirely and only
	// populates the vector store. Verification and repair do not cover
	// documents ingested this way.
	VectorOnly bool
}

// Result reports the outcome of one document indexing run.
type Result struct {
	DocumentID      string
	ChunksIndexed   int
	RollbackApplied bool
	Duration        time.Duration
}

// Orchestrator owns the write path. All mutations of a document go
// through it, serialized by a per-document lock.
type Orchestrator struct {
	sql      *store.SQLiteStore
	vectors  *store.HNSWStore
	embedder embed.Embedder
	locks    *DocumentLocks
}

// NewOrchestrator wires the stores and the embedder.
func NewOrchestrator(sql *store.SQLiteStore, vectors *store.HNSWStore, embedder embed.Embedder) *Orchestrator {
	return &Orchestrator{
		sql:      sql,
		vectors:  vectors,
		embedder: embedder,
		locks:    NewDocumentLocks(),
	}
}

// VectorID is the vector store id of a chunk: document id plus chunk
// index. The relational row id cannot serve here because vector writes
// happen before the row's transaction commits.
func VectorID(documentID string, chunkIndex int) string {
	return documentID + "#" + strconv.Itoa(chunkIndex)
}

// ParseVectorID splits a vector id back into document id and chunk
// index.
func ParseVectorID(id string) (string, int, bool) {
	pos := strings.LastIndex(id, "#")
	if pos < 1 {
		return "", 0, false
	}
	idx, err := strconv.Atoi(id[pos+1:])
	if err != nil {
		return "", 0, false
	}
	return id[:pos], idx, true
}

// IndexDocument writes all chunks of a document into the three indexes.
// Re-ingesting an existing document replaces it. Any chunk failure
// rolls back the whole document: either every chunk is visible in all
// three indexes or none is, and the result reports zero chunks with
// RollbackApplied set.
func (o *Orchestrator) IndexDocument(ctx context.Context, doc Document, chunks []chunk.ChunkResult, opts Options) (*Result, error) {
	if doc.DocumentID == "" {
		return nil, dircerrors.Input("document_id must not be empty", nil)
	}
	if err := o.locks.Acquire(doc.DocumentID); err != nil {
		return nil, err
	}
	defer o.locks.Release(doc.DocumentID)

	start := time.Now()

	// Replace semantics: clear whatever a previous ingest left behind.
	if err := o.purgeLocked(ctx, doc.DocumentID); err != nil {
		return nil, err
	}

	if opts.VectorOnly {
		return o.indexVectorOnly(ctx, doc, chunks, start)
	}

	var addedVectorIDs []string
	for _, c := range chunks {
		vectorID, err := o.indexChunk(ctx, doc, c, opts)
		if err != nil {
			o.rollbackDocument(ctx, doc.DocumentID, addedVectorIDs)
			return &Result{
				DocumentID:      doc.DocumentID,
				RollbackApplied: true,
				Duration:        time.Since(start),
			}, err
		}
		addedVectorIDs = append(addedVectorIDs, vectorID)
	}

	slog.Info("document indexed",
		slog.String("document_id", doc.DocumentID),
		slog.Int("chunks", len(chunks)),
		slog.Duration("duration", time.Since(start)))

	return &Result{
		DocumentID:    doc.DocumentID,
		ChunksIndexed: len(chunks),
		Duration:      time.Since(start),
	}, nil
}

// indexChunk writes one chunk to all three indexes. The relational and
// FTS writes share a transaction; the vector write lands before the
// commit and is compensated with a delete when the commit fails, so a
// committed row always has its vector.
func (o *Orchestrator) indexChunk(ctx context.Context, doc Document, c chunk.ChunkResult, opts Options) (string, error) {
	meta := o.enrichChunk(c.Text, doc, opts)

	tx, err := o.sql.BeginChunkTx(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.EnsureDocument(ctx, store.DocumentRow{
		DocumentID:     doc.DocumentID,
		SourceID:       doc.SourceID,
		FileName:       doc.FileName,
		PageCount:      doc.PageCount,
		Year:           doc.Year,
		Month:          doc.Month,
		JurisdictionID: doc.JurisdictionID,
	}); err != nil {
		return "", err
	}

	row := &store.ChunkRow{
		DocumentID:     doc.DocumentID,
		ChunkIndex:     c.ChunkIndex,
		Text:           c.Text,
		NumChars:       c.NumChars,
		StartChar:      c.StartChar,
		EndChar:        c.EndChar,
		ChunkHash:      meta.ChunkHash,
		SectionType:    meta.SectionType,
		Language:       meta.Language,
		HasTables:      meta.HasTables,
		HasAmounts:     meta.HasAmounts,
		Entities:       meta.Entities,
		Topic:          meta.Topic,
		Year:           doc.Year,
		Month:          doc.Month,
		JurisdictionID: doc.JurisdictionID,
		SourceID:       doc.SourceID,
	}
	if err := tx.InsertChunk(ctx, row); err != nil {
		return "", err
	}

	vector, err := o.embedder.Embed(ctx, c.Text)
	if err != nil {
		return "", err
	}

	vectorID := VectorID(doc.DocumentID, c.ChunkIndex)
	if err := o.vectors.Add(ctx, []store.VectorItem{{
		ID:       vectorID,
		Vector:   vector,
		Metadata: vectorMetadata(doc, row),
	}}); err != nil {
		return "", err
	}

	if err := tx.MarkIndexed(ctx, row.ChunkID, o.embedder.ModelName(), o.embedder.Dimensions(), time.Now()); err != nil {
		o.compensateVector(ctx, vectorID)
		return "", err
	}
	if err := tx.Commit(); err != nil {
		o.compensateVector(ctx, vectorID)
		return "", err
	}
	return vectorID, nil
}

// indexVectorOnly is the legacy path: embeddings only, no relational or
// FTS rows, no per-chunk transactionality beyond the vector write.
func (o *Orchestrator) indexVectorOnly(ctx context.Context, doc Document, chunks []chunk.ChunkResult, start time.Time) (*Result, error) {
	items := make([]store.VectorItem, 0, len(chunks))
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}

	vectors, err := o.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return &Result{DocumentID: doc.DocumentID, Duration: time.Since(start)}, err
	}
	for i, c := range chunks {
		items = append(items, store.VectorItem{
			ID:     VectorID(doc.DocumentID, c.ChunkIndex),
			Vector: vectors[i],
			Metadata: map[string]string{
				"document_id": doc.DocumentID,
				"chunk_index": strconv.Itoa(c.ChunkIndex),
				"source_id":   doc.SourceID,
			},
		})
	}
	if err := o.vectors.Add(ctx, items); err != nil {
		return &Result{DocumentID: doc.DocumentID, Duration: time.Since(start)}, err
	}

	return &Result{
		DocumentID:    doc.DocumentID,
		ChunksIndexed: len(chunks),
		Duration:      time.Since(start),
	}, nil
}

// enrichChunk runs metadata extraction, or builds the minimal metadata
// when enrichment is skipped.
func (o *Orchestrator) enrichChunk(text string, doc Document, opts Options) *enrich.Metadata {
	if opts.SkipEnrichment {
		language := doc.Language
		if language == "" {
			language = enrich.DefaultLanguage
		}
		return &enrich.Metadata{
			SectionType: enrich.SectionGeneral,
			Language:    language,
			Topic:       doc.Topic,
			ChunkHash:   enrich.Hash(text),
		}
	}
	return enrich.Enrich(text, enrich.Options{Language: doc.Language, Topic: doc.Topic})
}

// DeleteDocument removes a document from all three indexes. The FTS
// entries go with the relational rows via the delete trigger.
func (o *Orchestrator) DeleteDocument(ctx context.Context, documentID string) error {
	if err := o.locks.Acquire(documentID); err != nil {
		return err
	}
	defer o.locks.Release(documentID)
	return o.purgeLocked(ctx, documentID)
}

func (o *Orchestrator) purgeLocked(ctx context.Context, documentID string) error {
	if err := o.sql.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	if ids := o.vectors.IDsForDocument(documentID); len(ids) > 0 {
		if err := o.vectors.Delete(ctx, ids); err != nil {
			return err
		}
	}
	return nil
}

// rollbackDocument undoes a partial ingest: the relational delete
// cascades to chunks and FTS, and the listed vector ids are removed.
func (o *Orchestrator) rollbackDocument(ctx context.Context, documentID string, vectorIDs []string) {
	// Use a fresh context so rollback still runs after cancellation.
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := o.sql.DeleteDocument(cleanupCtx, documentID); err != nil {
		slog.Error("rollback failed to delete document rows",
			slog.String("document_id", documentID),
			slog.String("error", err.Error()))
	}
	if err := o.vectors.Delete(cleanupCtx, vectorIDs); err != nil {
		slog.Error("rollback failed to delete vectors",
			slog.String("document_id", documentID),
			slog.String("error", err.Error()))
	}
	slog.Warn("document ingest rolled back",
		slog.String("document_id", documentID),
		slog.Int("chunks_discarded", len(vectorIDs)))
}

// compensateVector removes a vector written ahead of a transaction that
// did not commit.
func (o *Orchestrator) compensateVector(ctx context.Context, vectorID string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.vectors.Delete(cleanupCtx, []string{vectorID}); err != nil {
		slog.Error("failed to compensate vector write",
			slog.String("vector_id", vectorID),
			slog.String("error", err.Error()))
	}
}

func vectorMetadata(doc Document, row *store.ChunkRow) map[string]string {
	meta := map[string]string{
		"document_id":  doc.DocumentID,
		"chunk_index":  strconv.Itoa(row.ChunkIndex),
		"chunk_id":     strconv.FormatInt(row.ChunkID, 10),
		"section_type": row.SectionType,
		"language":     row.Language,
	}
	if doc.SourceID != "" {
		meta["source_id"] = doc.SourceID
	}
	if doc.JurisdictionID != "" {
		meta["jurisdiction_id"] = doc.JurisdictionID
	}
	if row.Topic != "" {
		meta["topic"] = row.Topic
	}
	return meta
}

// Stats combines relational counters with the vector store count.
func (o *Orchestrator) Stats(ctx context.Context) (*store.CorpusStats, int, error) {
	stats, err := o.sql.Stats(ctx)
	if err != nil {
		return nil, 0, err
	}
	return stats, o.vectors.Count(), nil
}
