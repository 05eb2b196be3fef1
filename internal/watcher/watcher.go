// Package watcher reloads registered files when they change on disk, with
// fsnotify and debouncing. Used for vocabulary hot-reload: editing a
// project's subject TSV takes effect without a restart.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher watches individual files and invokes their callbacks on change.
// The parent directory is watched rather than the file itself, so editors
// that replace files atomically (write to temp, rename over) still trigger.
type Watcher struct {
	debounce time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	files    map[string]func() // absolute path -> reload callback
	dirs     map[string]bool   // directories added to fsnotify
	timers   map[string]*time.Timer
	watcher  *fsnotify.Watcher
	started  bool
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a watcher. Files are registered with WatchFile before or
// after Start.
func New(logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		debounce: defaultDebounce,
		logger:   logger,
		files:    make(map[string]func()),
		dirs:     make(map[string]bool),
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
}

// WatchFile registers a file and its change callback.
func (w *Watcher) WatchFile(path string, onChange func()) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files[abs] = onChange
	if w.watcher != nil {
		return w.addDirLocked(filepath.Dir(abs))
	}
	return nil
}

func (w *Watcher) addDirLocked(dir string) error {
	if w.dirs[dir] {
		return nil
	}
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch directory %s: %w", dir, err)
	}
	w.dirs[dir] = true
	return nil
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	for path := range w.files {
		if err := w.addDirLocked(filepath.Dir(path)); err != nil {
			_ = w.watcher.Close()
			w.watcher = nil
			w.started = false
			w.mu.Unlock()
			return err
		}
	}
	w.logger.Debug("watcher started", zap.Int("files", len(w.files)))
	w.mu.Unlock()
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return
	}
	path := filepath.Clean(ev.Name)
	w.mu.Lock()
	onChange, ok := w.files[path]
	w.mu.Unlock()
	if !ok {
		return
	}
	w.logger.Debug("watched file changed",
		zap.String("op", ev.Op.String()),
		zap.String("path", path))
	w.debounceChange(path, onChange)
}

// debounceChange coalesces event bursts (editors fire several per save)
// into one callback.
func (w *Watcher) debounceChange(path string, onChange func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		onChange()
	})
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
