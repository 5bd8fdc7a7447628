package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boletinlabs/dirc/internal/config"
	"github.com/boletinlabs/dirc/internal/embed"
	dircerrors "github.com/boletinlabs/dirc/internal/errors"
	"github.com/boletinlabs/dirc/internal/extract"
	"github.com/boletinlabs/dirc/internal/index"
	"github.com/boletinlabs/dirc/internal/pipeline"
	"github.com/boletinlabs/dirc/internal/search"
	"github.com/boletinlabs/dirc/internal/store"
)

func testGazette() string {
	var b strings.Builder
	b.WriteString("DECRETO 142/2024\n")
	b.WriteString("ARTICULO 1. Apruébase la licitación pública ")
	b.WriteString(strings.Repeat("para la adquisición de equipamiento hospitalario ", 8))
	b.WriteString("\n\nRESOLUCION 88/2024\n")
	b.WriteString("ARTICULO 1. Otórgase un subsidio ")
	b.WriteString(strings.Repeat("a la asociación de bomberos voluntarios ", 8))
	return b.String()
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	sqlStore, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlStore.Close() })

	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embed.StaticDimensions))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	embedder := embed.NewStaticEmbedder()
	orchestrator := index.NewOrchestrator(sqlStore, vectors, embedder)
	engine := search.NewEngine(sqlStore, vectors, embedder, nil, search.Config{})

	cfg := config.NewConfig()
	p := pipeline.NewService(
		&pipeline.StaticLocator{Paths: map[string]string{"boletin-2024-05.pdf": "boletin-2024-05.pdf"}},
		&extract.StaticExtractor{Texts: map[string]string{"boletin-2024-05.pdf": testGazette()}},
		orchestrator,
		cfg.Pipeline,
		config.ChunkingConfig{ChunkSize: 400, ChunkOverlap: 50, MinChunkSize: 40},
		nil,
	)

	s, err := NewServer(engine, orchestrator, p, nil)
	require.NoError(t, err)
	return s
}

func ingest(t *testing.T, s *Server) string {
	t.Helper()
	_, out, err := s.handleIngest(context.Background(), nil, IngestInput{FileID: "boletin-2024-05.pdf"})
	require.NoError(t, err)
	require.True(t, out.Success, out.Error)
	return out.DocumentID
}

func TestNewServer_RequiresCollaborators(t *testing.T) {
	_, err := NewServer(nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestIngestTool_EndToEnd(t *testing.T) {
	s := newTestServer(t)

	_, out, err := s.handleIngest(context.Background(), nil, IngestInput{FileID: "boletin-2024-05.pdf"})
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, "boletin-2024-05", out.DocumentID)
	assert.Greater(t, out.ChunksIndexed, 0)
	assert.Len(t, out.Stages, 6)
}

func TestIngestTool_FailureIsAResponseNotAnError(t *testing.T) {
	s := newTestServer(t)

	_, out, err := s.handleIngest(context.Background(), nil, IngestInput{FileID: "missing.pdf"})
	require.NoError(t, err, "stage failures ride in the response")

	assert.False(t, out.Success)
	assert.Equal(t, pipeline.StageLocated, out.TerminalStage)
	assert.Equal(t, dircerrors.ErrCodeUnknownFileID, out.ErrorCode)
}

func TestIngestTool_EmptyFileID(t *testing.T) {
	s := newTestServer(t)

	_, _, err := s.handleIngest(context.Background(), nil, IngestInput{})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestSearchTool_KeywordTechnique(t *testing.T) {
	s := newTestServer(t)
	ingest(t, s)

	_, out, err := s.handleSearch(context.Background(), nil, SearchInput{
		Query:     "licitación equipamiento hospitalario",
		Technique: "keyword",
		TopK:      5,
	})
	require.NoError(t, err)

	require.Greater(t, out.TotalResults, 0)
	assert.Equal(t, "keyword", out.Technique)
	for _, hit := range out.Results {
		assert.GreaterOrEqual(t, hit.Score, 0.0)
		assert.LessOrEqual(t, hit.Score, 1.0)
		assert.NotEmpty(t, hit.Text)
	}
}

func TestSearchTool_DefaultsToHybrid(t *testing.T) {
	s := newTestServer(t)
	ingest(t, s)

	_, out, err := s.handleSearch(context.Background(), nil, SearchInput{Query: "subsidio bomberos"})
	require.NoError(t, err)
	assert.Equal(t, "hybrid", out.Technique)
	assert.Greater(t, out.TotalResults, 0)
}

func TestSearchTool_EmptyQuery(t *testing.T) {
	s := newTestServer(t)

	_, _, err := s.handleSearch(context.Background(), nil, SearchInput{Query: "   "})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestVerifyTool_SingleAndAll(t *testing.T) {
	s := newTestServer(t)
	docID := ingest(t, s)
	ctx := context.Background()

	_, out, err := s.handleVerify(ctx, nil, VerifyInput{DocumentID: docID})
	require.NoError(t, err)
	require.Len(t, out.Reports, 1)
	assert.True(t, out.Consistent)
	assert.Equal(t, out.Reports[0].SQLChunks, out.Reports[0].VectorChunks)

	_, out, err = s.handleVerify(ctx, nil, VerifyInput{All: true})
	require.NoError(t, err)
	assert.True(t, out.Consistent)
	require.Len(t, out.Reports, 1)

	_, _, err = s.handleVerify(ctx, nil, VerifyInput{})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestRepairTool_UnknownDocument(t *testing.T) {
	s := newTestServer(t)

	_, _, err := s.handleRepair(context.Background(), nil, RepairInput{DocumentID: "nope"})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestRepairTool_RestoresConsistency(t *testing.T) {
	s := newTestServer(t)
	docID := ingest(t, s)
	ctx := context.Background()

	_, out, err := s.handleRepair(ctx, nil, RepairInput{DocumentID: docID})
	require.NoError(t, err)
	assert.Equal(t, docID, out.DocumentID)
	assert.Greater(t, out.ChunksReembedded, 0)
	assert.True(t, out.FTSRebuilt)
}

func TestStatsTool(t *testing.T) {
	s := newTestServer(t)
	ingest(t, s)

	_, out, err := s.handleStats(context.Background(), nil, StatsInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Documents)
	assert.Greater(t, out.Chunks, 0)
	assert.Equal(t, out.Chunks, out.IndexedChunks)
	assert.Equal(t, out.Chunks, out.Vectors)
	assert.Equal(t, "static", out.EmbeddingModel)
}

func TestMapError_Codes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"busy", dircerrors.Busy("doc-1"), ErrCodeDocumentBusy},
		{"embedding", dircerrors.Embedding("backend down", nil), ErrCodeEmbeddingFailed},
		{"unknown file", dircerrors.New(dircerrors.ErrCodeUnknownFileID, "no file", nil), ErrCodeFileNotFound},
		{"inconsistent", dircerrors.Inconsistent("drift"), ErrCodeInconsistent},
		{"validation", dircerrors.Input("bad top_k", nil), ErrCodeInvalidParams},
		{"cancelled", context.Canceled, ErrCodeTimeout},
		{"plain", assert.AnError, ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := MapError(tt.err)
			require.NotNil(t, mapped)
			assert.Equal(t, tt.code, mapped.Code)
		})
	}
	assert.Nil(t, MapError(nil))
}
