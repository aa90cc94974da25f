// Package watch hands PDFs dropped into the raw directory to the pipeline.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"paperslides/internal/logging"
)

// DefaultDebounce is how long a PDF must stay quiet before it is handled.
const DefaultDebounce = 500 * time.Millisecond

// Handler processes one settled PDF.
type Handler func(ctx context.Context, path string) error

// Stats tracks watcher activity.
type Stats struct {
	Events        int
	Handled       int
	Failed        int
	Errors        int
	LastEventPath string
	LastEventTime time.Time
}

// Watcher watches a directory for new or rewritten PDFs. Each path is
// handled at most once per watcher lifetime unless it is removed and
// re-added.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	dir         string
	handler     Handler
	debounceMap map[string]time.Time
	debounceDur time.Duration
	handled     map[string]bool
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stats       Stats
}

// New creates a watcher for dir.
func New(dir string, handler Handler) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &Watcher{
		watcher:     fw,
		dir:         dir,
		handler:     handler,
		debounceMap: make(map[string]time.Time),
		debounceDur: DefaultDebounce,
		handled:     make(map[string]bool),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// SetDebounce changes the settle window; call before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounceDur = d
}

// Start begins watching. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	// running is only set once the loop exists to close doneCh
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", w.dir, err)
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	logging.Watch("Watching %s for PDFs", w.dir)

	w.running = true
	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryWatch).Error("Error closing watcher: %v", err)
	}
	logging.Watch("Watcher stopped")
}

// Done is closed when the event loop exits.
func (w *Watcher) Done() <-chan struct{} { return w.doneCh }

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event, time.Now())
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryWatch).Error("Watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case now := <-tick.C:
			w.processSettled(ctx, now)
		}
	}
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf") && !strings.HasPrefix(filepath.Base(name), ".")
}

func (w *Watcher) handleEvent(event fsnotify.Event, at time.Time) {
	if !isPDF(event.Name) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		delete(w.debounceMap, event.Name)
		delete(w.handled, event.Name)
		return
	case event.Op&(fsnotify.Create|fsnotify.Write) == 0:
		return
	}
	if w.handled[event.Name] {
		return
	}
	logging.WatchDebug("%s %s", event.Op, event.Name)
	w.stats.Events++
	w.stats.LastEventPath = event.Name
	w.stats.LastEventTime = at
	w.debounceMap[event.Name] = at
}

// processSettled hands over every path quiet for the debounce window.
func (w *Watcher) processSettled(ctx context.Context, now time.Time) {
	w.mu.Lock()
	var ready []string
	for path, last := range w.debounceMap {
		if now.Sub(last) >= w.debounceDur {
			ready = append(ready, path)
			delete(w.debounceMap, path)
			w.handled[path] = true
		}
	}
	w.mu.Unlock()

	sort.Strings(ready)
	for _, path := range ready {
		w.handle(ctx, path)
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		logging.WatchDebug("Skipping vanished %s", path)
		return
	}
	logging.Watch("Processing %s", filepath.Base(path))
	err := w.handler(ctx, path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.stats.Failed++
		logging.Get(logging.CategoryWatch).Error("Failed to process %s: %v", filepath.Base(path), err)
		return
	}
	w.stats.Handled++
}

// Scan hands over PDFs already present in the directory that have not been
// handled yet.
func (w *Watcher) Scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !isPDF(e.Name()) {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		w.mu.Lock()
		seen := w.handled[path]
		w.handled[path] = true
		w.mu.Unlock()
		if !seen {
			w.handle(ctx, path)
		}
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (w *Watcher) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// IsWatching reports whether the event loop is running.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}
