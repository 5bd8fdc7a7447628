package watcher

import (
	"context"
	"log/slog"

	"github.com/boletinlabs/dirc/internal/pipeline"
)

// Runner connects a DropWatcher to the ingestion pipeline: every
// stable batch of files goes through ProcessBatch, per-file outcomes
// are logged, and a failed file never stops the watch loop.
type Runner struct {
	watcher  *DropWatcher
	pipeline *pipeline.Service
	opts     pipeline.Options
	logger   *slog.Logger
}

// NewRunner wires the watcher to the pipeline. The logger may be nil.
func NewRunner(w *DropWatcher, p *pipeline.Service, opts pipeline.Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{watcher: w, pipeline: p, opts: opts, logger: logger}
}

// Run watches dir until ctx is cancelled. It blocks.
func (r *Runner) Run(ctx context.Context, dir string) error {
	go r.consume(ctx)
	go r.drainErrors(ctx)
	return r.watcher.Start(ctx, dir)
}

func (r *Runner) consume(ctx context.Context) {
	for batch := range r.watcher.Batches() {
		responses := r.pipeline.ProcessBatch(ctx, batch, r.opts)
		for _, resp := range responses {
			if resp.Success {
				r.logger.Info("watch_ingested",
					slog.String("file", resp.FileID),
					slog.String("document_id", resp.DocumentID),
					slog.Int("chunks", resp.ChunksIndexed),
					slog.Int64("duration_ms", resp.DurationMS))
			} else {
				r.logger.Error("watch_ingest_failed",
					slog.String("file", resp.FileID),
					slog.String("stage", resp.TerminalStage),
					slog.String("code", resp.ErrorCode),
					slog.String("error", resp.Error))
			}
		}
	}
}

func (r *Runner) drainErrors(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-r.watcher.Errors():
			if !ok {
				return
			}
			r.logger.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}
