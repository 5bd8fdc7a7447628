package mcp

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/boletinlabs/dirc/internal/index"
	"github.com/boletinlabs/dirc/internal/pipeline"
	"github.com/boletinlabs/dirc/internal/search"
	"github.com/boletinlabs/dirc/pkg/version"
)

// Server bridges MCP clients with the ingestion and retrieval core.
type Server struct {
	mcp          *mcp.Server
	engine       *search.Engine
	orchestrator *index.Orchestrator
	pipeline     *pipeline.Service
	logger       *slog.Logger
}

// NewServer wires the tool handlers. The logger may be nil.
func NewServer(engine *search.Engine, orchestrator *index.Orchestrator, p *pipeline.Service, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	if orchestrator == nil {
		return nil, errors.New("index orchestrator is required")
	}
	if p == nil {
		return nil, errors.New("pipeline service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		engine:       engine,
		orchestrator: orchestrator,
		pipeline:     p,
		logger:       logger,
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: "dirc", Version: version.Version},
		nil,
	)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server { return s.mcp }

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Search the gazette corpus. Hybrid retrieval by default: BM25 keyword matching fused with semantic similarity. Filters narrow by year, month, section type, jurisdiction, entities, and more.",
	}, s.handleSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ingest_document",
		Description: "Ingest one gazette PDF: extract, clean, chunk, enrich, and write the relational, full-text, and vector indexes transactionally. Returns per-stage timing; a failed run reports its terminal stage instead of erroring.",
	}, s.handleIngest)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "verify_document",
		Description: "Check that a document's chunks agree across all three indexes: same counts, gapless chunk indexes, a vector per chunk. Read-only.",
	}, s.handleVerify)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "repair_document",
		Description: "Rebuild a document's derived indexes from its relational rows: regenerate full-text entries and re-embed every chunk with the current model.",
	}, s.handleRepair)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "corpus_stats",
		Description: "Corpus-wide statistics: document and chunk counts, per-section histogram, vector count, embedding model of record.",
	}, s.handleStats)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", 5))
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult, SearchOutput, error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query must not be empty")
	}

	technique := search.TechniqueHybrid
	if input.Technique != "" {
		technique = search.Technique(input.Technique)
	}
	resp, err := s.engine.Search(ctx, search.Request{
		Query:     input.Query,
		TopK:      input.TopK,
		Technique: technique,
		Filters: search.Filters{
			Year:           input.Year,
			Month:          input.Month,
			Section:        input.Section,
			JurisdictionID: input.JurisdictionID,
			Topic:          input.Topic,
			Language:       input.Language,
			HasTables:      input.HasTables,
			HasAmounts:     input.HasAmounts,
			Entities:       input.Entities,
			DocumentID:     input.DocumentID,
			SourceID:       input.SourceID,
		},
		Rerank:         input.Rerank,
		RerankStrategy: input.RerankStrategy,
	})
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	return nil, SearchOutput{
		Results:         resp.Results,
		TotalResults:    resp.TotalResults,
		Technique:       string(resp.Technique),
		ExecutionTimeMS: resp.ExecutionTimeMS,
		Reranked:        resp.Reranked,
		Degraded:        resp.Degraded,
	}, nil
}

func (s *Server) handleIngest(ctx context.Context, _ *mcp.CallToolRequest, input IngestInput) (
	*mcp.CallToolResult, IngestOutput, error,
) {
	if strings.TrimSpace(input.FileID) == "" {
		return nil, IngestOutput{}, NewInvalidParamsError("file_id must not be empty")
	}

	resp := s.pipeline.ProcessDocument(ctx, input.FileID, pipeline.Options{
		ChunkSize:         input.ChunkSize,
		ChunkOverlap:      input.ChunkOverlap,
		SkipCleaning:      input.SkipCleaning,
		SkipEnrichment:    input.SkipEnrichment,
		UseTripleIndexing: input.UseTripleIndexing,
	})
	// Stage failures are part of the response contract, not protocol
	// errors: the client reads terminal_stage and error_code.
	return nil, IngestOutput{Response: *resp}, nil
}

func (s *Server) handleVerify(ctx context.Context, _ *mcp.CallToolRequest, input VerifyInput) (
	*mcp.CallToolResult, VerifyOutput, error,
) {
	var reports []*index.VerifyReport
	switch {
	case input.All:
		all, err := s.orchestrator.VerifyAll(ctx)
		if err != nil {
			return nil, VerifyOutput{}, MapError(err)
		}
		reports = all
	case strings.TrimSpace(input.DocumentID) != "":
		report, err := s.orchestrator.Verify(ctx, input.DocumentID)
		if err != nil {
			return nil, VerifyOutput{}, MapError(err)
		}
		reports = []*index.VerifyReport{report}
	default:
		return nil, VerifyOutput{}, NewInvalidParamsError("document_id or all=true is required")
	}

	out := VerifyOutput{Consistent: true, Reports: make([]VerifyReport, 0, len(reports))}
	for _, r := range reports {
		if !r.Consistent {
			out.Consistent = false
		}
		out.Reports = append(out.Reports, VerifyReport{
			DocumentID:   r.DocumentID,
			Consistent:   r.Consistent,
			SQLChunks:    r.SQLChunks,
			FTSChunks:    r.FTSChunks,
			VectorChunks: r.VectorChunks,
			Issues:       r.Issues,
		})
	}
	return nil, out, nil
}

func (s *Server) handleRepair(ctx context.Context, _ *mcp.CallToolRequest, input RepairInput) (
	*mcp.CallToolResult, RepairOutput, error,
) {
	if strings.TrimSpace(input.DocumentID) == "" {
		return nil, RepairOutput{}, NewInvalidParamsError("document_id must not be empty")
	}

	report, err := s.orchestrator.Repair(ctx, input.DocumentID)
	if err != nil {
		return nil, RepairOutput{}, MapError(err)
	}
	return nil, RepairOutput{
		DocumentID:       report.DocumentID,
		ChunksReembedded: report.ChunksReembedded,
		FTSRebuilt:       report.FTSRebuilt,
	}, nil
}

func (s *Server) handleStats(ctx context.Context, _ *mcp.CallToolRequest, _ StatsInput) (
	*mcp.CallToolResult, StatsOutput, error,
) {
	stats, vectors, err := s.orchestrator.Stats(ctx)
	if err != nil {
		return nil, StatsOutput{}, MapError(err)
	}
	return nil, StatsOutput{
		Documents:      stats.Documents,
		Chunks:         stats.Chunks,
		IndexedChunks:  stats.IndexedChunks,
		Vectors:        vectors,
		SectionCounts:  stats.SectionCounts,
		EmbeddingModel: stats.EmbeddingModel,
		DBSizeBytes:    stats.DBSizeBytes,
	}, nil
}

// Serve runs the server over stdio until the context is cancelled.
// Logging must already be routed away from stdout.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp_server_started", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}
