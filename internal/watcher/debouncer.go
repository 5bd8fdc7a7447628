package watcher

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Debouncer coalesces the event storm a file copy produces into a
// single emission per path. A path is emitted once its quiet window
// elapses; Forget cancels a path whose file went away again.
type Debouncer struct {
	window  time.Duration
	mu      sync.Mutex
	pending map[string]time.Time
	timer   *time.Timer
	output  chan []string
	stopped bool
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]time.Time),
		output:  make(chan []string, 10),
	}
}

// Add records activity on path and restarts its quiet window.
func (d *Debouncer) Add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending[path] = time.Now()
	d.scheduleFlush()
}

// Forget drops a pending path. A create followed by a remove within
// the window emits nothing.
func (d *Debouncer) Forget(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, path)
}

// scheduleFlush arms the flush timer. Every Add pushes the flush out,
// so a path only surfaces after a full quiet window.
func (d *Debouncer) scheduleFlush() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	paths := make([]string, 0, len(d.pending))
	for path := range d.pending {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	d.pending = make(map[string]time.Time)

	// Non-blocking send; a saturated consumer loses the batch rather
	// than wedging the event loop.
	select {
	case d.output <- paths:
	default:
		slog.Warn("debouncer_output_full",
			slog.Int("batch_size", len(paths)))
	}
}

// Output returns the channel of debounced path batches.
func (d *Debouncer) Output() <-chan []string {
	return d.output
}

// Stop closes the output channel. Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
