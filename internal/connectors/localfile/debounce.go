package localfile

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultDebounceWindow is how long Listen waits for a path to settle before
// emitting it. Editors often produce several writes per save.
const DefaultDebounceWindow = 200 * time.Millisecond

// debouncer coalesces rapid events for the same path: however many times a
// path fires within the window, it is emitted once per quiet period.
type debouncer struct {
	window time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	output  chan []string
	stopped bool
}

func newDebouncer(window time.Duration, logger *slog.Logger) *debouncer {
	return &debouncer{
		window:  window,
		logger:  logger,
		pending: make(map[string]struct{}),
		output:  make(chan []string, 10),
	}
}

// Add records a path and (re)schedules the flush.
func (d *debouncer) Add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.pending[path] = struct{}{}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	paths := make([]string, 0, len(d.pending))
	for path := range d.pending {
		paths = append(paths, path)
	}
	d.pending = make(map[string]struct{})

	// Non-blocking send; a stalled consumer loses the batch rather than
	// wedging the watcher goroutine.
	select {
	case d.output <- paths:
	default:
		d.logger.Warn("debouncer output full, dropping batch", "batch_size", len(paths))
	}
}

// Output returns the channel of settled path batches.
func (d *debouncer) Output() <-chan []string {
	return d.output
}

// Stop stops the debouncer and closes the output channel. Safe to call once.
func (d *debouncer) Stop() {
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
