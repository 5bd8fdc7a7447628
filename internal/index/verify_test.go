package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dircerrors "github.com/boletinlabs/dirc/internal/errors"
)

func TestVerify_ConsistentDocument(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := o.IndexDocument(ctx, testDocument("doc-ok"),
		testChunks("uno", "dos", "tres"), Options{})
	require.NoError(t, err)

	report, err := o.Verify(ctx, "doc-ok")
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Empty(t, report.Issues)
	assert.Equal(t, 3, report.SQLChunks)
	assert.Equal(t, 3, report.FTSChunks)
	assert.Equal(t, 3, report.VectorChunks)
}

func TestVerify_UnknownDocument(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)

	report, err := o.Verify(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, report.Consistent)
	assert.Contains(t, report.Issues, "document is not indexed")
}

func TestVerify_DetectsMissingVector(t *testing.T) {
	o, _, vectors := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := o.IndexDocument(ctx, testDocument("doc-drift"),
		testChunks("uno", "dos", "tres"), Options{})
	require.NoError(t, err)

	// Simulate drift: a vector disappears behind the orchestrator's back.
	require.NoError(t, vectors.Delete(ctx, []string{VectorID("doc-drift", 1)}))

	report, err := o.Verify(ctx, "doc-drift")
	require.NoError(t, err)
	assert.False(t, report.Consistent)
	assert.Equal(t, 3, report.SQLChunks)
	assert.Equal(t, 2, report.VectorChunks)
	assert.NotEmpty(t, report.Issues)
}

func TestVerifyAll(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	for _, id := range []string{"doc-1", "doc-2"} {
		_, err := o.IndexDocument(ctx, testDocument(id), testChunks("texto"), Options{})
		require.NoError(t, err)
	}

	reports, err := o.VerifyAll(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	for _, r := range reports {
		assert.True(t, r.Consistent)
	}
}

func TestRepair_RestoresConsistency(t *testing.T) {
	o, _, vectors := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := o.IndexDocument(ctx, testDocument("doc-repair"),
		testChunks("uno", "dos", "tres"), Options{})
	require.NoError(t, err)

	// Drop all vectors; repair must rebuild them from the chunk rows.
	require.NoError(t, vectors.Delete(ctx, vectors.IDsForDocument("doc-repair")))
	report, err := o.Verify(ctx, "doc-repair")
	require.NoError(t, err)
	require.False(t, report.Consistent)

	repair, err := o.Repair(ctx, "doc-repair")
	require.NoError(t, err)
	assert.Equal(t, 3, repair.ChunksReembedded)
	assert.True(t, repair.FTSRebuilt)

	report, err = o.Verify(ctx, "doc-repair")
	require.NoError(t, err)
	assert.True(t, report.Consistent, "repair must restore full consistency: %v", report.Issues)
}

func TestRepair_UnknownDocument(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)

	_, err := o.Repair(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, dircerrors.ErrCodeInvalidInput, dircerrors.GetCode(err))
}

func TestDocumentLocks(t *testing.T) {
	locks := NewDocumentLocks()

	require.NoError(t, locks.Acquire("doc-a"))
	err := locks.Acquire("doc-a")
	require.Error(t, err)
	assert.Equal(t, dircerrors.ErrCodeDocumentBusy, dircerrors.GetCode(err))

	// Other documents are unaffected.
	require.NoError(t, locks.Acquire("doc-b"))
	locks.Release("doc-b")

	locks.Release("doc-a")
	require.NoError(t, locks.Acquire("doc-a"))
}
