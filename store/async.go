package store

import (
	"sync"
	"time"

	"github.com/pithecene-io/sluice/types"
)

// DefaultFlushInterval is the default coalescing window for async writes.
const DefaultFlushInterval = 250 * time.Millisecond

// AsyncWriter coalesces snapshot writes. Callers hand it values as fast as
// they like (every streamed token updates the session snapshot); only the
// latest value per key reaches disk, at most once per flush interval.
//
// pending holds the newest value per key and is swapped out under mu
// before writing, so SaveAsync never blocks on the filesystem.
type AsyncWriter struct {
	store    *Store
	interval time.Duration

	mu      sync.Mutex // guards pending and stopped
	pending map[string]any
	stopped bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewAsyncWriter creates an async writer over store.
// A non-positive interval falls back to DefaultFlushInterval.
func NewAsyncWriter(store *Store, interval time.Duration) *AsyncWriter {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}

	w := &AsyncWriter{
		store:    store,
		interval: interval,
		pending:  make(map[string]any),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go w.flushLoop()
	return w
}

// SaveAsync queues value for the next flush, replacing any value already
// queued under the same key. Never blocks, never reports failure.
func (w *AsyncWriter) SaveAsync(key string, value any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.pending[key] = value
}

// WriteSnapshot queues the session snapshot under the session key. This
// is the fire-and-forget write path the session controller publishes to.
func (w *AsyncWriter) WriteSnapshot(snap *types.SessionSnapshot) {
	w.SaveAsync(KeySession, snap)
}

// Flush writes all queued values immediately.
func (w *AsyncWriter) Flush() {
	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[string]any)
	w.mu.Unlock()

	for key, value := range batch {
		w.store.Save(key, value)
	}
}

// Close stops the flush loop after a final flush.
func (w *AsyncWriter) Close() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.Flush()
	return nil
}

func (w *AsyncWriter) flushLoop() {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Flush()
		case <-w.stopCh:
			return
		}
	}
}
