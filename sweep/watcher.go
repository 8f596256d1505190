package sweep

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes a base directory and remembers when entries appeared.
// The sweeper prefers these observed birth times over directory mtimes,
// which copy operations keep bumping.
type Watcher struct {
	watcher *fsnotify.Watcher

	mu     sync.RWMutex
	births map[string]time.Time
}

// NewWatcher starts watching baseDir.
func NewWatcher(baseDir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}
	if err := fsw.Add(absBase); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch base directory %s: %w", absBase, err)
	}

	w := &Watcher{
		watcher: fsw,
		births:  make(map[string]time.Time),
	}
	go w.loop()

	slog.Debug("Watching base directory for scratch directory births", "path", absBase)
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			switch {
			case ev.Op&fsnotify.Create != 0:
				w.mu.Lock()
				w.births[ev.Name] = time.Now()
				w.mu.Unlock()
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				w.mu.Lock()
				delete(w.births, ev.Name)
				w.mu.Unlock()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Debug("File watcher error", "error", err)
		}
	}
}

// Birth returns the observed creation time of path, if any.
func (w *Watcher) Birth(path string) (time.Time, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	t, ok := w.births[path]
	return t, ok
}

// Close stops watching. The event loop exits once the channels close.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
