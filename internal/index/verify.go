package index

import (
	"context"
	"fmt"
	"time"
)

// VerifyReport is the outcome of a per-document consistency check
// across the three indexes.
type VerifyReport struct {
	DocumentID   string        `json:"document_id"`
	Consistent   bool          `json:"consistent"`
	SQLChunks    int           `json:"sql_chunks"`
	FTSChunks    int           `json:"fts_chunks"`
	VectorChunks int           `json:"vector_chunks"`
	Issues       []string      `json:"issues,omitempty"`
	Duration     time.Duration `json:"-"`
}

// Verify checks that the document's chunks agree across the relational
// store, the FTS index, and the vector store, and that the chunk
// indexes form a gapless 0..n-1 sequence. It reports, never mutates.
func (o *Orchestrator) Verify(ctx context.Context, documentID string) (*VerifyReport, error) {
	start := time.Now()
	report := &VerifyReport{DocumentID: documentID}

	doc, err := o.sql.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	report.SQLChunks, err = o.sql.CountChunks(ctx, documentID)
	if err != nil {
		return nil, err
	}
	report.FTSChunks, err = o.sql.CountFTS(ctx, documentID)
	if err != nil {
		return nil, err
	}
	report.VectorChunks = o.vectors.CountForDocument(documentID)

	if doc == nil {
		if report.SQLChunks == 0 && report.FTSChunks == 0 && report.VectorChunks == 0 {
			report.Issues = append(report.Issues, "document is not indexed")
		} else {
			report.Issues = append(report.Issues,
				"document row is missing but index entries exist")
		}
	}

	if report.FTSChunks != report.SQLChunks {
		report.Issues = append(report.Issues, fmt.Sprintf(
			"FTS index has %d entries, chunks table has %d", report.FTSChunks, report.SQLChunks))
	}
	if report.VectorChunks != report.SQLChunks {
		report.Issues = append(report.Issues, fmt.Sprintf(
			"vector store has %d entries, chunks table has %d", report.VectorChunks, report.SQLChunks))
	}

	indexes, err := o.sql.ChunkIndexes(ctx, documentID)
	if err != nil {
		return nil, err
	}
	for i, idx := range indexes {
		if idx != i {
			report.Issues = append(report.Issues, fmt.Sprintf(
				"chunk indexes have a gap: expected %d, found %d", i, idx))
			break
		}
	}

	// Every committed row must carry its vector under the composite id.
	for _, idx := range indexes {
		if !o.vectors.Contains(VectorID(documentID, idx)) {
			report.Issues = append(report.Issues, fmt.Sprintf(
				"chunk %d has no vector entry", idx))
		}
	}

	report.Consistent = doc != nil && len(report.Issues) == 0
	report.Duration = time.Since(start)
	return report, nil
}

// VerifyAll verifies every indexed document.
func (o *Orchestrator) VerifyAll(ctx context.Context) ([]*VerifyReport, error) {
	ids, err := o.sql.ListDocumentIDs(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]*VerifyReport, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := o.Verify(ctx, id)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}
