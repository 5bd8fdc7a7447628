// Package watcher observes a drop directory and feeds finished PDFs
// into the ingestion pipeline. fsnotify events are debounced per path
// and a file is only released once its size stops changing, so a
// half-copied gazette never reaches the extractor.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Options configures the drop watcher.
type Options struct {
	// Debounce is the quiet period after the last event for a path
	// before it is considered for ingestion. Default: 500ms.
	Debounce time.Duration

	// PollInterval is the spacing of the size-stability probes.
	// Default: 500ms.
	PollInterval time.Duration

	// StabilityPolls is how many consecutive unchanged sizes a file
	// needs before it counts as fully written. Default: 2.
	StabilityPolls int

	// MaxStabilityWait bounds how long one file may stay unstable
	// before it is dropped with an error. Default: 30s.
	MaxStabilityWait time.Duration

	// Patterns are the file-name globs picked up. Default: *.pdf.
	Patterns []string

	// BatchBufferSize is the batch channel buffer. Default: 16.
	BatchBufferSize int
}

// WithDefaults fills zero values.
func (o Options) WithDefaults() Options {
	if o.Debounce == 0 {
		o.Debounce = 500 * time.Millisecond
	}
	if o.PollInterval == 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.StabilityPolls == 0 {
		o.StabilityPolls = 2
	}
	if o.MaxStabilityWait == 0 {
		o.MaxStabilityWait = 30 * time.Second
	}
	if len(o.Patterns) == 0 {
		o.Patterns = []string{"*.pdf"}
	}
	if o.BatchBufferSize == 0 {
		o.BatchBufferSize = 16
	}
	return o
}

// DropWatcher watches a single flat directory.
type DropWatcher struct {
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	batches   chan []string
	errs      chan error
	opts      Options
	logger    *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewDropWatcher creates the watcher. The logger may be nil.
func NewDropWatcher(opts Options, logger *slog.Logger) (*DropWatcher, error) {
	opts = opts.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &DropWatcher{
		fsw:       fsw,
		debouncer: NewDebouncer(opts.Debounce),
		batches:   make(chan []string, opts.BatchBufferSize),
		errs:      make(chan error, 10),
		opts:      opts,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}, nil
}

// Start watches dir until the context is cancelled or Stop is called.
// It blocks; consume Batches from another goroutine.
func (w *DropWatcher) Start(ctx context.Context, dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve drop directory: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return fmt.Errorf("stat drop directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", absDir)
	}
	if err := w.fsw.Add(absDir); err != nil {
		return fmt.Errorf("watch %s: %w", absDir, err)
	}

	go w.forwardBatches(ctx)

	// Files already sitting in the directory are picked up too; a
	// watcher started after the drop must not miss them.
	w.scanExisting(absDir)

	w.logger.Info("watch_started", slog.String("dir", absDir))
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// Batches returns stable, debounced file paths ready for ingestion.
func (w *DropWatcher) Batches() <-chan []string { return w.batches }

// Errors returns non-fatal watcher errors.
func (w *DropWatcher) Errors() <-chan error { return w.errs }

// Stop releases the watcher. Safe to call multiple times.
func (w *DropWatcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.debouncer.Stop()
		err = w.fsw.Close()
	})
	return err
}

func (w *DropWatcher) scanExisting(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.emitError(err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if w.matches(path) {
			w.debouncer.Add(path)
		}
	}
}

func (w *DropWatcher) handleEvent(event fsnotify.Event) {
	switch {
	case event.Op.Has(fsnotify.Create), event.Op.Has(fsnotify.Write):
		if w.matches(event.Name) {
			w.debouncer.Add(event.Name)
		}
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		w.debouncer.Forget(event.Name)
	}
}

func (w *DropWatcher) matches(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	for _, pattern := range w.opts.Patterns {
		if ok, err := filepath.Match(strings.ToLower(pattern), name); err == nil && ok {
			return true
		}
	}
	return false
}

// forwardBatches turns debounced paths into stable batches. It owns
// the batches channel and closes it on exit.
func (w *DropWatcher) forwardBatches(ctx context.Context) {
	defer close(w.batches)
	for paths := range w.debouncer.Output() {
		ready := make([]string, 0, len(paths))
		for _, path := range paths {
			stable, err := w.waitStable(ctx, path)
			if err != nil {
				w.emitError(err)
				continue
			}
			if stable {
				ready = append(ready, path)
			}
		}
		if len(ready) == 0 {
			continue
		}
		select {
		case w.batches <- ready:
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		}
	}
}

// waitStable polls the file size until it stops changing. A file that
// disappears mid-wait returns false without error: a remove event has
// raced the debounce window.
func (w *DropWatcher) waitStable(ctx context.Context, path string) (bool, error) {
	deadline := time.Now().Add(w.opts.MaxStabilityWait)
	var lastSize int64 = -1
	unchanged := 0

	for {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, fmt.Errorf("stat %s: %w", path, err)
		}
		if info.Size() == lastSize {
			unchanged++
			if unchanged >= w.opts.StabilityPolls {
				return true, nil
			}
		} else {
			lastSize = info.Size()
			unchanged = 0
		}
		if time.Now().After(deadline) {
			return false, fmt.Errorf("file %s did not stabilize within %s", path, w.opts.MaxStabilityWait)
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-w.stopCh:
			return false, nil
		case <-time.After(w.opts.PollInterval):
		}
	}
}

func (w *DropWatcher) emitError(err error) {
	select {
	case w.errs <- err:
	default:
		w.logger.Warn("watch_error_dropped", slog.String("error", err.Error()))
	}
}
