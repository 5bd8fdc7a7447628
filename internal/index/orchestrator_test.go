package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boletinlabs/dirc/internal/chunk"
	"github.com/boletinlabs/dirc/internal/embed"
	dircerrors "github.com/boletinlabs/dirc/internal/errors"
	"github.com/boletinlabs/dirc/internal/store"
)

// failingEmbedder fails every Embed call after the first failAfter
// successes. failAfter < 0 never fails.
type failingEmbedder struct {
	embed.Embedder
	failAfter int
	calls     int
}

func (f *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.failAfter >= 0 && f.calls > f.failAfter {
		return nil, errors.New("embedder down")
	}
	return f.Embedder.Embed(ctx, text)
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *store.SQLiteStore, *store.HNSWStore) {
	t.Helper()
	sqlStore, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlStore.Close() })

	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embed.StaticDimensions))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	return NewOrchestrator(sqlStore, vectors, embed.NewStaticEmbedder()), sqlStore, vectors
}

func testDocument(id string) Document {
	return Document{
		DocumentID:     id,
		SourceID:       "boletin-pba",
		FileName:       id + ".pdf",
		PageCount:      3,
		Year:           "2024",
		Month:          "03",
		JurisdictionID: "pba",
	}
}

func testChunks(texts ...string) []chunk.ChunkResult {
	out := make([]chunk.ChunkResult, len(texts))
	pos := 0
	for i, text := range texts {
		out[i] = chunk.ChunkResult{
			Text:       text,
			ChunkIndex: i,
			StartChar:  pos,
			EndChar:    pos + len(text),
			NumChars:   len(text),
		}
		pos += len(text)
	}
	return out
}

func TestIndexDocument_AllThreeIndexes(t *testing.T) {
	o, sqlStore, vectors := newTestOrchestrator(t)
	ctx := context.Background()

	chunks := testChunks(
		"DECRETO 100: se aprueba el presupuesto de la provincia",
		"ARTICULO 1: el gasto se imputa a la partida correspondiente",
		"ARTICULO 2: comuniquese y archivese",
	)
	result, err := o.IndexDocument(ctx, testDocument("boletin-2024-03-15"), chunks, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.ChunksIndexed)
	assert.False(t, result.RollbackApplied)

	n, err := sqlStore.CountChunks(ctx, "boletin-2024-03-15")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	fts, err := sqlStore.CountFTS(ctx, "boletin-2024-03-15")
	require.NoError(t, err)
	assert.Equal(t, 3, fts)
	assert.Equal(t, 3, vectors.CountForDocument("boletin-2024-03-15"))

	rows, err := sqlStore.GetChunksByDocument(ctx, "boletin-2024-03-15")
	require.NoError(t, err)
	for _, row := range rows {
		assert.NotNil(t, row.IndexedAt, "committed chunks must be marked indexed")
		assert.Equal(t, "static", row.EmbeddingModel)
		assert.Equal(t, "decree", row.SectionType)
	}
}

func TestIndexDocument_RollbackOnFailure(t *testing.T) {
	o, sqlStore, vectors := newTestOrchestrator(t)
	o.embedder = &failingEmbedder{Embedder: embed.NewStaticEmbedder(), failAfter: 2}
	ctx := context.Background()

	chunks := testChunks("primer fragmento", "segundo fragmento", "tercer fragmento")
	result, err := o.IndexDocument(ctx, testDocument("doc-fail"), chunks, Options{})
	require.Error(t, err)
	require.NotNil(t, result)
	assert.True(t, result.RollbackApplied)
	assert.Zero(t, result.ChunksIndexed)

	n, err := sqlStore.CountChunks(ctx, "doc-fail")
	require.NoError(t, err)
	assert.Zero(t, n, "rollback must leave no relational rows")
	fts, err := sqlStore.CountFTS(ctx, "doc-fail")
	require.NoError(t, err)
	assert.Zero(t, fts, "rollback must leave no FTS entries")
	assert.Zero(t, vectors.CountForDocument("doc-fail"), "rollback must leave no vectors")

	doc, err := sqlStore.GetDocument(ctx, "doc-fail")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestIndexDocument_ReingestReplaces(t *testing.T) {
	o, sqlStore, vectors := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := o.IndexDocument(ctx, testDocument("doc-a"),
		testChunks("uno", "dos", "tres"), Options{})
	require.NoError(t, err)

	result, err := o.IndexDocument(ctx, testDocument("doc-a"),
		testChunks("nuevo contenido"), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChunksIndexed)

	n, err := sqlStore.CountChunks(ctx, "doc-a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, vectors.CountForDocument("doc-a"))
}

func TestIndexDocument_BusyFailsFast(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)

	require.NoError(t, o.locks.Acquire("doc-busy"))
	defer o.locks.Release("doc-busy")

	_, err := o.IndexDocument(context.Background(), testDocument("doc-busy"),
		testChunks("texto"), Options{})
	require.Error(t, err)
	assert.Equal(t, dircerrors.ErrCodeDocumentBusy, dircerrors.GetCode(err))

	var ce *dircerrors.CoreError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "document doc-busy is being indexed by another caller", ce.Message)
}

func TestIndexDocument_ParallelDistinctDocuments(t *testing.T) {
	o, sqlStore, vectors := newTestOrchestrator(t)
	ctx := context.Background()

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("ARTICULO %d: contenido del fragmento número %d", i+1, i+1)
	}
	docIDs := []string{"boletin-2024-04-01", "boletin-2024-04-02"}

	results := make([]*Result, len(docIDs))
	errs := make([]error, len(docIDs))
	var wg sync.WaitGroup
	for i, id := range docIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i], errs[i] = o.IndexDocument(ctx, testDocument(id), testChunks(texts...), Options{})
		}(i, id)
	}
	wg.Wait()

	for i, id := range docIDs {
		require.NoError(t, errs[i], "document %s", id)
		assert.Equal(t, 10, results[i].ChunksIndexed)

		n, err := sqlStore.CountChunks(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 10, n)
		fts, err := sqlStore.CountFTS(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 10, fts)
		assert.Equal(t, 10, vectors.CountForDocument(id))

		rows, err := sqlStore.GetChunksByDocument(ctx, id)
		require.NoError(t, err)
		require.Len(t, rows, 10)
		for j, row := range rows {
			assert.Equal(t, j, row.ChunkIndex, "chunk sequence must be dense for %s", id)
		}
	}
}

func TestIndexDocument_VectorOnly(t *testing.T) {
	o, sqlStore, vectors := newTestOrchestrator(t)
	ctx := context.Background()

	result, err := o.IndexDocument(ctx, testDocument("doc-legacy"),
		testChunks("uno", "dos"), Options{VectorOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.ChunksIndexed)

	n, err := sqlStore.CountChunks(ctx, "doc-legacy")
	require.NoError(t, err)
	assert.Zero(t, n, "vector-only mode must not write relational rows")
	assert.Equal(t, 2, vectors.CountForDocument("doc-legacy"))
}

func TestIndexDocument_SkipEnrichment(t *testing.T) {
	o, sqlStore, _ := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := o.IndexDocument(ctx, testDocument("doc-plain"),
		testChunks("DECRETO 55: texto que normalmente detectaria un decreto"),
		Options{SkipEnrichment: true})
	require.NoError(t, err)

	rows, err := sqlStore.GetChunksByDocument(ctx, "doc-plain")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "general", rows[0].SectionType)
	assert.NotEmpty(t, rows[0].ChunkHash, "hash is computed even without enrichment")
}

func TestDeleteDocument_PurgesAllIndexes(t *testing.T) {
	o, sqlStore, vectors := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := o.IndexDocument(ctx, testDocument("doc-del"),
		testChunks("uno", "dos"), Options{})
	require.NoError(t, err)

	require.NoError(t, o.DeleteDocument(ctx, "doc-del"))

	n, err := sqlStore.CountChunks(ctx, "doc-del")
	require.NoError(t, err)
	assert.Zero(t, n)
	fts, err := sqlStore.CountFTS(ctx, "doc-del")
	require.NoError(t, err)
	assert.Zero(t, fts)
	assert.Zero(t, vectors.CountForDocument("doc-del"))
}

func TestIndexDocument_EmptyID(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	_, err := o.IndexDocument(context.Background(), Document{}, testChunks("x"), Options{})
	require.Error(t, err)
	assert.Equal(t, dircerrors.ErrCodeInvalidInput, dircerrors.GetCode(err))
}

func TestVectorID_RoundTrip(t *testing.T) {
	id := VectorID("boletin-2024-03-15", 7)
	assert.Equal(t, "boletin-2024-03-15#7", id)

	doc, idx, ok := ParseVectorID(id)
	require.True(t, ok)
	assert.Equal(t, "boletin-2024-03-15", doc)
	assert.Equal(t, 7, idx)

	_, _, ok = ParseVectorID("no-separator")
	assert.False(t, ok)
}
