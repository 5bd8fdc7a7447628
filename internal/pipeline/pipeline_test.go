package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boletinlabs/dirc/internal/config"
	"github.com/boletinlabs/dirc/internal/embed"
	dircerrors "github.com/boletinlabs/dirc/internal/errors"
	"github.com/boletinlabs/dirc/internal/extract"
	"github.com/boletinlabs/dirc/internal/index"
	"github.com/boletinlabs/dirc/internal/store"
)

func gazetteText() string {
	var b strings.Builder
	b.WriteString("BOLETIN OFICIAL DE LA PROVINCIA\n\n")
	b.WriteString("DECRETO 142/2024\n")
	b.WriteString("ARTICULO 1. Apruébase la licitación pública para la adquisición ")
	b.WriteString(strings.Repeat("de equipamiento hospitalario destinado a los centros de salud municipales ", 8))
	b.WriteString("\n\nRESOLUCION 88/2024\n")
	b.WriteString("ARTICULO 1. Otórgase un subsidio por pesos 1.500.000 ")
	b.WriteString(strings.Repeat("a la asociación civil de bomberos voluntarios del partido ", 8))
	return b.String()
}

type fixture struct {
	service *Service
	sql     *store.SQLiteStore
	vectors *store.HNSWStore
}

func newFixture(t *testing.T, texts map[string]string) *fixture {
	t.Helper()

	sqlStore, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlStore.Close() })

	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embed.StaticDimensions))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	paths := make(map[string]string, len(texts))
	for id := range texts {
		paths[id] = id
	}

	orchestrator := index.NewOrchestrator(sqlStore, vectors, embed.NewStaticEmbedder())
	cfg := config.NewConfig()
	service := NewService(
		&StaticLocator{Paths: paths},
		&extract.StaticExtractor{Texts: texts},
		orchestrator,
		cfg.Pipeline,
		config.ChunkingConfig{ChunkSize: 400, ChunkOverlap: 50, MinChunkSize: 40},
		nil,
	)
	return &fixture{service: service, sql: sqlStore, vectors: vectors}
}

func stageByName(t *testing.T, resp *Response, name string) StageStat {
	t.Helper()
	for _, s := range resp.Stages {
		if s.Stage == name {
			return s
		}
	}
	t.Fatalf("stage %s not recorded", name)
	return StageStat{}
}

func TestProcessDocument_EndToEnd(t *testing.T) {
	f := newFixture(t, map[string]string{"boletin-2024-05.pdf": gazetteText()})
	ctx := context.Background()

	resp := f.service.ProcessDocument(ctx, "boletin-2024-05.pdf", Options{})

	require.True(t, resp.Success, "run failed at %s: %s", resp.TerminalStage, resp.Error)
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, "boletin-2024-05", resp.DocumentID)
	assert.Greater(t, resp.ChunksCreated, 1)
	assert.Equal(t, resp.ChunksCreated, resp.ChunksIndexed)

	// All six stages recorded, in order, all successful.
	want := []string{StageLocated, StageExtracted, StageCleaned, StageChunked, StageEnriched, StageIndexed}
	require.Len(t, resp.Stages, len(want))
	for i, s := range resp.Stages {
		assert.Equal(t, want[i], s.Stage)
		assert.True(t, s.Success, "stage %s failed: %s", s.Stage, s.Error)
		assert.False(t, s.EndedAt.Before(s.StartedAt))
	}

	// Date derived from the file name.
	rows, err := f.sql.GetChunksByDocument(ctx, resp.DocumentID)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, "2024", rows[0].Year)
	assert.Equal(t, "05", rows[0].Month)

	// All three indexes agree on the chunk count.
	sqlCount, err := f.sql.CountChunks(ctx, resp.DocumentID)
	require.NoError(t, err)
	ftsCount, err := f.sql.CountFTS(ctx, resp.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, resp.ChunksIndexed, sqlCount)
	assert.Equal(t, resp.ChunksIndexed, ftsCount)
	assert.Equal(t, resp.ChunksIndexed, f.vectors.Count())
}

func TestProcessDocument_UnknownFileID(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.service.ProcessDocument(context.Background(), "missing.pdf", Options{})

	assert.False(t, resp.Success)
	assert.Equal(t, StageLocated, resp.TerminalStage)
	assert.Equal(t, dircerrors.ErrCodeUnknownFileID, resp.ErrorCode)
	require.Len(t, resp.Stages, 1)
	assert.False(t, resp.Stages[0].Success)
}

func TestProcessDocument_ExtractionFailureIsStructured(t *testing.T) {
	// The locator resolves the id but the extractor has no text for it.
	f := newFixture(t, nil)
	f.service.locator = &StaticLocator{Paths: map[string]string{"broken.pdf": "broken.pdf"}}

	resp := f.service.ProcessDocument(context.Background(), "broken.pdf", Options{})

	assert.False(t, resp.Success)
	assert.Equal(t, StageExtracted, resp.TerminalStage)
	assert.Equal(t, dircerrors.ErrCodeExtractionFailed, resp.ErrorCode)
	assert.Empty(t, resp.DocumentID, "no document is created before indexing")
}

func TestProcessDocument_SkipFlags(t *testing.T) {
	skip := true
	f := newFixture(t, map[string]string{"doc.pdf": gazetteText()})

	resp := f.service.ProcessDocument(context.Background(), "doc.pdf", Options{
		SkipCleaning:   &skip,
		SkipEnrichment: &skip,
	})

	require.True(t, resp.Success, resp.Error)
	assert.True(t, stageByName(t, resp, StageCleaned).Skipped)
	assert.True(t, stageByName(t, resp, StageEnriched).Skipped)

	rows, err := f.sql.GetChunksByDocument(context.Background(), resp.DocumentID)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, "general", rows[0].SectionType, "skipped enrichment stores default metadata")
}

func TestProcessDocument_VectorOnlyLegacyMode(t *testing.T) {
	triple := false
	f := newFixture(t, map[string]string{"doc.pdf": gazetteText()})
	ctx := context.Background()

	resp := f.service.ProcessDocument(ctx, "doc.pdf", Options{UseTripleIndexing: &triple})

	require.True(t, resp.Success, resp.Error)
	assert.Greater(t, resp.ChunksIndexed, 0)

	sqlCount, err := f.sql.CountChunks(ctx, resp.DocumentID)
	require.NoError(t, err)
	assert.Zero(t, sqlCount, "legacy mode writes only the vector store")
	assert.Equal(t, resp.ChunksIndexed, f.vectors.Count())
}

func TestProcessDocument_InvalidChunkConfig(t *testing.T) {
	f := newFixture(t, map[string]string{"doc.pdf": gazetteText()})

	resp := f.service.ProcessDocument(context.Background(), "doc.pdf", Options{
		ChunkSize:    100,
		ChunkOverlap: 100,
	})

	assert.False(t, resp.Success)
	assert.Equal(t, StageChunked, resp.TerminalStage)
	assert.Equal(t, dircerrors.ErrCodeInvalidChunkConfig, resp.ErrorCode)
}

func TestProcessDocument_CancellationLeavesNoPartialState(t *testing.T) {
	f := newFixture(t, map[string]string{"doc.pdf": gazetteText()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := f.service.ProcessDocument(ctx, "doc.pdf", Options{})

	assert.False(t, resp.Success)
	assert.Equal(t, dircerrors.ErrCodeCancelled, resp.ErrorCode)

	// Nothing was written anywhere.
	ids, err := f.sql.ListDocumentIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Zero(t, f.vectors.Count())
}

func TestProcessBatch_OneFailureDoesNotAbort(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a.pdf": gazetteText(),
		"c.pdf": gazetteText(),
	})

	responses := f.service.ProcessBatch(context.Background(),
		[]string{"a.pdf", "b.pdf", "c.pdf"}, Options{})

	require.Len(t, responses, 3)
	assert.True(t, responses[0].Success, responses[0].Error)
	assert.False(t, responses[1].Success)
	assert.Equal(t, dircerrors.ErrCodeUnknownFileID, responses[1].ErrorCode)
	assert.True(t, responses[2].Success, responses[2].Error)

	// Responses stay aligned with the input order.
	assert.Equal(t, "a.pdf", responses[0].FileID)
	assert.Equal(t, "b.pdf", responses[1].FileID)
	assert.Equal(t, "c.pdf", responses[2].FileID)
}

func TestDirLocator(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "boletin.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))

	l := &DirLocator{Root: dir}
	ctx := context.Background()

	got, err := l.Locate(ctx, "boletin.pdf")
	require.NoError(t, err)
	assert.Equal(t, path, got)

	got, err = l.Locate(ctx, "boletin")
	require.NoError(t, err)
	assert.Equal(t, path, got, "bare ids resolve with a .pdf suffix")

	got, err = l.Locate(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, path, got, "existing absolute paths pass through")

	_, err = l.Locate(ctx, "nope.pdf")
	assert.Equal(t, dircerrors.ErrCodeUnknownFileID, dircerrors.GetCode(err))

	_, err = l.Locate(ctx, "")
	assert.Equal(t, dircerrors.ErrCodeInvalidInput, dircerrors.GetCode(err))
}

func TestDataDirLock_Exclusive(t *testing.T) {
	dir := t.TempDir()

	first := NewDataDirLock(dir)
	require.NoError(t, first.Acquire())
	defer func() { _ = first.Release() }()

	assert.FileExists(t, first.Path())
}

func TestDocumentFor_DateFromFileName(t *testing.T) {
	extracted := &extract.Result{Stats: extract.Stats{TotalPages: 12}}

	doc := documentFor("id", "/drop/boletin-2024-05.pdf", extracted)
	assert.Equal(t, "boletin-2024-05", doc.DocumentID)
	assert.Equal(t, "2024", doc.Year)
	assert.Equal(t, "05", doc.Month)
	assert.Equal(t, 12, doc.PageCount)

	doc = documentFor("id", "/drop/sin-fecha.pdf", extracted)
	assert.Empty(t, doc.Year)
	assert.Empty(t, doc.Month)
}
