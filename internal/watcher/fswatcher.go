package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports debounced batches of changes below a root directory.
// It uses fsnotify and falls back to polling when fsnotify is unavailable.
type Watcher struct {
	fsWatcher   *fsnotify.Watcher
	pollWatcher *PollingWatcher
	debouncer   *Debouncer
	filter      *filter
	opts        Options
	events      chan []FileEvent
	errors      chan error
	stopCh      chan struct{}

	mu             sync.RWMutex
	rootPath       string
	stopped        bool
	droppedBatches atomic.Uint64
}

// New creates a watcher. Nothing is watched until Start.
func New(opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()
	w := &Watcher{
		debouncer: NewDebouncer(opts.DebounceWindow),
		opts:      opts,
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			w.fsWatcher = fsw
			return w, nil
		}
		slog.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
	}
	w.pollWatcher = NewPollingWatcher(opts.PollInterval)
	return w, nil
}

// Start watches root until ctx is cancelled or Stop is called. It blocks.
func (w *Watcher) Start(ctx context.Context, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("stat watch root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root %s is not a directory", root)
	}

	w.mu.Lock()
	w.rootPath = abs
	w.filter = newFilter(abs, w.opts)
	w.mu.Unlock()

	go w.forwardDebounced(ctx)

	if w.fsWatcher != nil {
		return w.runFsnotify(ctx)
	}
	return w.runPolling(ctx)
}

func (w *Watcher) runFsnotify(ctx context.Context) error {
	if err := w.addRecursive(w.rootPath); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}
	slog.Debug("watch_started", slog.String("root", w.rootPath), slog.String("mode", w.Mode()))

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFsnotify(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) runPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case event, ok := <-w.pollWatcher.Events():
				if !ok {
					return
				}
				w.route(event)
			case err, ok := <-w.pollWatcher.Errors():
				if !ok {
					return
				}
				w.emitError(err)
			}
		}
	}()
	slog.Debug("watch_started", slog.String("root", w.rootPath), slog.String("mode", w.Mode()))
	return w.pollWatcher.Start(ctx, w.rootPath, w.filter)
}

func (w *Watcher) handleFsnotify(event fsnotify.Event) {
	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		if isDir && !w.filter.skipDir(w.filter.rel(event.Name)) {
			// New subtree: watch it and report files already inside.
			_ = w.addRecursive(event.Name)
			w.reportExisting(event.Name)
			return
		}
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}

	w.route(FileEvent{
		Path:      w.filter.rel(event.Name),
		Operation: op,
		IsDir:     isDir,
		Timestamp: time.Now(),
	})
}

// route filters an event and hands it to the debouncer.
func (w *Watcher) route(ev FileEvent) {
	if ev.Path == "" {
		return
	}
	if isIgnoreFile(ev.Path) {
		w.filter.reload()
		ev.Operation = OpIgnoreChange
		w.debouncer.Add(ev)
		return
	}
	if ev.IsDir {
		return
	}
	if w.filter.skipFile(ev.Path) {
		return
	}
	w.debouncer.Add(ev)
}

func (w *Watcher) reportExisting(dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		w.route(FileEvent{Path: w.filter.rel(p), Operation: OpCreate, Timestamp: time.Now()})
		return nil
	})
}

func (w *Watcher) forwardDebounced(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case events, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			if len(events) > 0 {
				w.emitEvents(events)
			}
		}
	}
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel := w.filter.rel(p); rel != "" && w.filter.skipDir(rel) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(p)
	})
}

func (w *Watcher) emitEvents(events []FileEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.events <- events:
	default:
		count := w.droppedBatches.Add(1)
		slog.Warn("watch_buffer_full",
			slog.Int("batch_size", len(events)),
			slog.Uint64("total_dropped_batches", count))
	}
}

func (w *Watcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// DroppedBatches counts batches lost to a full event buffer.
func (w *Watcher) DroppedBatches() uint64 {
	return w.droppedBatches.Load()
}

// Stop releases resources and closes Events and Errors. Safe to call more
// than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()

	if w.fsWatcher != nil {
		_ = w.fsWatcher.Close()
	}
	if w.pollWatcher != nil {
		_ = w.pollWatcher.Stop()
	}
	close(w.events)
	close(w.errors)
	return nil
}

// Events returns the channel of debounced batches.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Mode is "fsnotify" or "polling".
func (w *Watcher) Mode() string {
	if w.fsWatcher != nil {
		return "fsnotify"
	}
	return "polling"
}

// Root returns the absolute watched directory.
func (w *Watcher) Root() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.rootPath
}
