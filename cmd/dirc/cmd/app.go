package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/boletinlabs/dirc/internal/config"
	"github.com/boletinlabs/dirc/internal/embed"
	"github.com/boletinlabs/dirc/internal/extract"
	"github.com/boletinlabs/dirc/internal/index"
	"github.com/boletinlabs/dirc/internal/pipeline"
	"github.com/boletinlabs/dirc/internal/search"
	"github.com/boletinlabs/dirc/internal/store"
)

// app bundles the wired core for one command invocation.
type app struct {
	cfg          *config.Config
	sql          *store.SQLiteStore
	vectors      *store.HNSWStore
	embedder     embed.Embedder
	orchestrator *index.Orchestrator
	engine       *search.Engine
	pipeline     *pipeline.Service
	lock         *pipeline.DataDirLock
}

// openApp loads configuration and opens the stores. Commands that
// mutate the corpus pass lockData to take the cross-process lock.
func openApp(ctx context.Context, lockData bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	a := &app{cfg: cfg}
	if lockData {
		a.lock = pipeline.NewDataDirLock(cfg.Storage.DataDir)
		if err := a.lock.Acquire(); err != nil {
			return nil, err
		}
	}

	a.embedder, err = embed.New(ctx, cfg.Embeddings)
	if err != nil {
		a.close()
		return nil, err
	}

	a.sql, err = store.NewSQLiteStore(cfg.Storage.DatabasePath())
	if err != nil {
		a.close()
		return nil, err
	}

	a.vectors, err = store.NewHNSWStore(store.DefaultVectorStoreConfig(a.embedder.Dimensions()))
	if err != nil {
		a.close()
		return nil, err
	}
	if _, err := os.Stat(cfg.Storage.VectorPath()); err == nil {
		if err := a.vectors.Load(cfg.Storage.VectorPath()); err != nil {
			a.close()
			return nil, fmt.Errorf("load vector index: %w", err)
		}
	}

	a.orchestrator = index.NewOrchestrator(a.sql, a.vectors, a.embedder)
	a.engine = search.NewEngine(a.sql, a.vectors, a.embedder, nil, search.ConfigFrom(cfg.Search))

	cwd, _ := os.Getwd()
	a.pipeline = pipeline.NewService(
		&pipeline.DirLocator{Root: cwd},
		extract.NewPDFExtractor(),
		a.orchestrator,
		cfg.Pipeline,
		cfg.Chunking,
		slog.Default(),
	)
	return a, nil
}

// Close persists the vector index and releases everything. Only
// commands that held the data lock may have written vectors.
func (a *app) Close() error {
	var firstErr error
	if a.vectors != nil && a.lock != nil {
		if err := a.vectors.Save(a.cfg.Storage.VectorPath()); err != nil {
			firstErr = fmt.Errorf("save vector index: %w", err)
		}
	}
	a.close()
	return firstErr
}

func (a *app) close() {
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.vectors != nil {
		_ = a.vectors.Close()
	}
	if a.sql != nil {
		_ = a.sql.Close()
	}
	if a.lock != nil {
		_ = a.lock.Release()
	}
}
