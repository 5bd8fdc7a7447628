// Package pipeline drives a document through the ingestion stages:
// locate, extract, clean, chunk, enrich, index. Every run produces a
// structured response with per-stage timing; stage failures terminate
// the run but never escape as a raised error.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/boletinlabs/dirc/internal/chunk"
	"github.com/boletinlabs/dirc/internal/clean"
	"github.com/boletinlabs/dirc/internal/config"
	dircerrors "github.com/boletinlabs/dirc/internal/errors"
	"github.com/boletinlabs/dirc/internal/extract"
	"github.com/boletinlabs/dirc/internal/index"
)

// Stage names, in pipeline order.
const (
	StageLocated   = "located"
	StageExtracted = "extracted"
	StageCleaned   = "cleaned"
	StageChunked   = "chunked"
	StageEnriched  = "enriched"
	StageIndexed   = "indexed"
)

// StageStat records one stage of one run.
type StageStat struct {
	Stage      string            `json:"stage"`
	StartedAt  time.Time         `json:"started_at"`
	EndedAt    time.Time         `json:"ended_at"`
	DurationMS int64             `json:"duration_ms"`
	Success    bool              `json:"success"`
	Skipped    bool              `json:"skipped,omitempty"`
	Error      string            `json:"error,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
}

// Options tune one run. Nil pointer fields take the configured
// defaults; UseTripleIndexing in particular defaults to true, so a
// plain zero value must not be able to switch it off by accident.
type Options struct {
	ChunkSize         int
	ChunkOverlap      int
	SkipCleaning      *bool
	SkipEnrichment    *bool
	UseTripleIndexing *bool
}

// Response is the structured outcome of one document run. It is
// always returned, also on failure.
type Response struct {
	RunID         string      `json:"run_id"`
	FileID        string      `json:"file_id"`
	DocumentID    string      `json:"document_id,omitempty"`
	Success       bool        `json:"success"`
	TerminalStage string      `json:"terminal_stage,omitempty"`
	ErrorCode     string      `json:"error_code,omitempty"`
	Error         string      `json:"error,omitempty"`
	Stages        []StageStat `json:"stages"`
	ChunksCreated int         `json:"chunks_created"`
	ChunksIndexed int         `json:"chunks_indexed"`
	DurationMS    int64       `json:"duration_ms"`
}

// Service wires the pipeline collaborators.
type Service struct {
	locator      Locator
	extractor    extract.Extractor
	orchestrator *index.Orchestrator
	cfg          config.PipelineConfig
	chunking     config.ChunkingConfig
	logger       *slog.Logger
}

// NewService builds the pipeline service. The logger may be nil.
func NewService(locator Locator, extractor extract.Extractor, orchestrator *index.Orchestrator,
	cfg config.PipelineConfig, chunking config.ChunkingConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		locator:      locator,
		extractor:    extractor,
		orchestrator: orchestrator,
		cfg:          cfg,
		chunking:     chunking,
		logger:       logger,
	}
}

// ProcessDocument runs one file id through all stages. It never
// returns a Go error: failures land in the response, with the stage
// that stopped the run recorded as TerminalStage.
func (s *Service) ProcessDocument(ctx context.Context, fileID string, opts Options) *Response {
	start := time.Now()
	resp := &Response{
		RunID:  uuid.NewString(),
		FileID: fileID,
	}
	logger := s.logger.With(
		slog.String("run_id", resp.RunID),
		slog.String("file_id", fileID))

	skipCleaning := resolveBool(opts.SkipCleaning, s.cfg.SkipCleaning)
	skipEnrichment := resolveBool(opts.SkipEnrichment, s.cfg.SkipEnrichment)
	tripleIndexing := resolveBool(opts.UseTripleIndexing, s.cfg.UseTripleIndexing)

	// Located.
	var path string
	s.runStage(resp, StageLocated, logger, func(stat *StageStat) error {
		p, err := s.locator.Locate(ctx, fileID)
		if err != nil {
			return err
		}
		path = p
		stat.Details = map[string]string{"path": path}
		return nil
	})
	if !resp.Success {
		return s.finish(resp, start, logger)
	}

	// Extracted.
	var extracted *extract.Result
	s.runStage(resp, StageExtracted, logger, func(stat *StageStat) error {
		r, err := s.extractor.Extract(ctx, path)
		if err != nil {
			return err
		}
		extracted = r
		stat.Details = map[string]string{
			"pages":         strconv.Itoa(r.Stats.TotalPages),
			"skipped_pages": strconv.Itoa(r.Stats.SkippedPages),
			"chars":         strconv.Itoa(r.Stats.TotalChars),
		}
		return nil
	})
	if !resp.Success {
		return s.finish(resp, start, logger)
	}

	// Cleaned.
	text := extracted.FullText
	s.runStage(resp, StageCleaned, logger, func(stat *StageStat) error {
		if skipCleaning {
			stat.Skipped = true
			return nil
		}
		if err := ctx.Err(); err != nil {
			return dircerrors.FromContext(err)
		}
		before := len(text)
		text = clean.Clean(text)
		stat.Details = map[string]string{
			"chars_before": strconv.Itoa(before),
			"chars_after":  strconv.Itoa(len(text)),
		}
		return nil
	})
	if !resp.Success {
		return s.finish(resp, start, logger)
	}

	// Chunked.
	var chunks []chunk.ChunkResult
	s.runStage(resp, StageChunked, logger, func(stat *StageStat) error {
		if err := ctx.Err(); err != nil {
			return dircerrors.FromContext(err)
		}
		splitter, err := chunk.NewSplitter(s.chunkOptions(opts))
		if err != nil {
			return err
		}
		chunks = splitter.Split(text)
		if len(chunks) == 0 {
			return dircerrors.New(dircerrors.ErrCodeEmptyDocument,
				fmt.Sprintf("document %s produced no chunks", fileID), nil)
		}
		resp.ChunksCreated = len(chunks)
		stat.Details = map[string]string{"chunks": strconv.Itoa(len(chunks))}
		return nil
	})
	if !resp.Success {
		return s.finish(resp, start, logger)
	}

	// Enriched. Metadata extraction runs per chunk inside the indexing
	// transaction; the stage records whether it is on for this run.
	s.runStage(resp, StageEnriched, logger, func(stat *StageStat) error {
		if skipEnrichment {
			stat.Skipped = true
		}
		return nil
	})

	// Indexed.
	doc := documentFor(fileID, path, extracted)
	resp.DocumentID = doc.DocumentID
	s.runStage(resp, StageIndexed, logger, func(stat *StageStat) error {
		result, err := s.orchestrator.IndexDocument(ctx, doc, chunks, index.Options{
			SkipEnrichment: skipEnrichment,
			VectorOnly:     !tripleIndexing,
		})
		if result != nil {
			resp.ChunksIndexed = result.ChunksIndexed
			if result.RollbackApplied {
				stat.Details = map[string]string{"rollback": "true"}
			}
		}
		if err != nil {
			return err
		}
		if stat.Details == nil {
			stat.Details = map[string]string{}
		}
		stat.Details["chunks_indexed"] = strconv.Itoa(resp.ChunksIndexed)
		return nil
	})
	return s.finish(resp, start, logger)
}

// ProcessBatch runs every file id, up to BatchWorkers documents at a
// time. One file failing never aborts the batch; responses come back
// in input order.
func (s *Service) ProcessBatch(ctx context.Context, fileIDs []string, opts Options) []*Response {
	responses := make([]*Response, len(fileIDs))

	workers := s.cfg.BatchWorkers
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, fileID := range fileIDs {
		g.Go(func() error {
			responses[i] = s.ProcessDocument(gctx, fileID, opts)
			return nil
		})
	}
	// Workers never return errors; failures live in the responses.
	_ = g.Wait()
	return responses
}

// runStage times fn and appends its record. Resp.Success tracks
// whether the run may continue.
func (s *Service) runStage(resp *Response, stage string, logger *slog.Logger, fn func(*StageStat) error) {
	stat := StageStat{Stage: stage, StartedAt: time.Now()}
	err := fn(&stat)
	stat.EndedAt = time.Now()
	stat.DurationMS = stat.EndedAt.Sub(stat.StartedAt).Milliseconds()
	stat.Success = err == nil

	if err != nil {
		stat.Error = err.Error()
		resp.Success = false
		resp.TerminalStage = stage
		resp.ErrorCode = dircerrors.GetCode(err)
		resp.Error = err.Error()
		attrs := []any{slog.String("stage", stage)}
		for k, v := range dircerrors.FormatForLog(err) {
			attrs = append(attrs, slog.Any(k, v))
		}
		logger.Warn("pipeline_stage_failed", attrs...)
	} else {
		resp.Success = true
		logger.Debug("pipeline_stage_done",
			slog.String("stage", stage),
			slog.Int64("duration_ms", stat.DurationMS),
			slog.Bool("skipped", stat.Skipped))
	}
	resp.Stages = append(resp.Stages, stat)
}

func (s *Service) finish(resp *Response, start time.Time, logger *slog.Logger) *Response {
	resp.DurationMS = time.Since(start).Milliseconds()
	if resp.Success {
		logger.Info("pipeline_done",
			slog.String("document_id", resp.DocumentID),
			slog.Int("chunks", resp.ChunksIndexed),
			slog.Int64("duration_ms", resp.DurationMS))
	}
	return resp
}

func (s *Service) chunkOptions(opts Options) chunk.Options {
	size := opts.ChunkSize
	if size == 0 {
		size = s.chunking.ChunkSize
	}
	overlap := opts.ChunkOverlap
	if overlap == 0 {
		overlap = s.chunking.ChunkOverlap
	}
	return chunk.Options{
		ChunkSize:    size,
		ChunkOverlap: overlap,
		MinChunkSize: s.chunking.MinChunkSize,
	}
}

func resolveBool(override *bool, fallback bool) bool {
	if override != nil {
		return *override
	}
	return fallback
}

// gazetteDate matches YYYY-MM / YYYY_MM / YYYYMM in gazette file names.
var gazetteDate = regexp.MustCompile(`(19|20)\d{2}[-_]?(0[1-9]|1[0-2])`)

// documentFor derives the stable document identity from the file.
// The id is the base name without extension; a new gazette edition
// ships as a new file and therefore a new document.
func documentFor(fileID, path string, extracted *extract.Result) index.Document {
	base := filepath.Base(path)
	id := strings.TrimSuffix(base, filepath.Ext(base))

	doc := index.Document{
		DocumentID: id,
		SourceID:   fileID,
		FileName:   base,
		PageCount:  extracted.Stats.TotalPages,
	}
	if m := gazetteDate.FindString(base); m != "" {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, m)
		if len(digits) >= 6 {
			doc.Year = digits[:4]
			doc.Month = digits[4:6]
		}
	}
	return doc
}
