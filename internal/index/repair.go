package index

import (
	"context"
	"log/slog"
	"time"

	dircerrors "github.com/boletinlabs/dirc/internal/errors"
	"github.com/boletinlabs/dirc/internal/store"
)

// RepairReport is the outcome of a per-document repair.
type RepairReport struct {
	DocumentID       string        `json:"document_id"`
	ChunksReembedded int           `json:"chunks_reembedded"`
	FTSRebuilt       bool          `json:"fts_rebuilt"`
	Duration         time.Duration `json:"-"`
}

// Repair rebuilds the derived indexes of a document from the relational
// rows, which are the source of truth. The FTS entries are regenerated
// through the update trigger and the vectors are re-embedded with the
// current model, so a repair also migrates a document across a model
// change.
func (o *Orchestrator) Repair(ctx context.Context, documentID string) (*RepairReport, error) {
	if err := o.locks.Acquire(documentID); err != nil {
		return nil, err
	}
	defer o.locks.Release(documentID)

	start := time.Now()

	doc, err := o.sql.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, dircerrors.Input(
			"cannot repair a document that is not indexed: "+documentID, nil)
	}

	chunks, err := o.sql.GetChunksByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	// The in-place text rewrite re-fires the FTS update trigger, which
	// drops and re-adds every entry for the document.
	if err := o.sql.TouchChunks(ctx, documentID); err != nil {
		return nil, err
	}

	// Drop stale vectors first so a crash mid-repair leaves a deficit
	// that verification catches, not duplicates.
	if ids := o.vectors.IDsForDocument(documentID); len(ids) > 0 {
		if err := o.vectors.Delete(ctx, ids); err != nil {
			return nil, err
		}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := o.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	items := make([]store.VectorItem, len(chunks))
	for i, c := range chunks {
		items[i] = store.VectorItem{
			ID:     VectorID(documentID, c.ChunkIndex),
			Vector: vectors[i],
			Metadata: vectorMetadata(Document{
				DocumentID:     documentID,
				SourceID:       c.SourceID,
				JurisdictionID: c.JurisdictionID,
			}, c),
		}
	}
	if err := o.vectors.Add(ctx, items); err != nil {
		return nil, err
	}

	// Record the model that produced the fresh vectors.
	tx, err := o.sql.BeginChunkTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	now := time.Now()
	for _, c := range chunks {
		if err := tx.MarkIndexed(ctx, c.ChunkID, o.embedder.ModelName(), o.embedder.Dimensions(), now); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	slog.Info("document repaired",
		slog.String("document_id", documentID),
		slog.Int("chunks", len(chunks)),
		slog.String("model", o.embedder.ModelName()))

	return &RepairReport{
		DocumentID:       documentID,
		ChunksReembedded: len(chunks),
		FTSRebuilt:       true,
		Duration:         time.Since(start),
	}, nil
}
