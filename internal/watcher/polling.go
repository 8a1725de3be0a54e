package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// PollingWatcher detects changes by rescanning the tree every interval.
// Its events are unfiltered except for skipped directories; Watcher
// applies the file rules.
type PollingWatcher struct {
	interval time.Duration
	state    map[string]fileSnapshot
	events   chan FileEvent
	errors   chan error
	stopCh   chan struct{}
	mu       sync.Mutex
	stopped  bool
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

// NewPollingWatcher creates a polling watcher.
func NewPollingWatcher(interval time.Duration) *PollingWatcher {
	return &PollingWatcher{
		interval: interval,
		state:    make(map[string]fileSnapshot),
		events:   make(chan FileEvent, 100),
		errors:   make(chan error, 10),
		stopCh:   make(chan struct{}),
	}
}

// Start records a baseline and then polls until ctx is done or Stop.
func (p *PollingWatcher) Start(ctx context.Context, root string, f *filter) error {
	baseline, err := p.snapshot(root, f)
	if err != nil {
		return fmt.Errorf("perform initial scan: %w", err)
	}
	p.mu.Lock()
	p.state = baseline
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.detectChanges(root, f); err != nil {
				select {
				case p.errors <- err:
				default:
				}
			}
		}
	}
}

// snapshot walks root and records every regular file outside skipped dirs.
func (p *PollingWatcher) snapshot(root string, f *filter) (map[string]fileSnapshot, error) {
	files := make(map[string]fileSnapshot)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel := f.rel(path)
		if d.IsDir() {
			if rel != "" && f.skipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files[rel] = fileSnapshot{modTime: info.ModTime(), size: info.Size()}
		return nil
	})
	return files, err
}

func (p *PollingWatcher) detectChanges(root string, f *filter) error {
	current, err := p.snapshot(root, f)
	if err != nil {
		return fmt.Errorf("walk directory for changes: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for rel, snap := range current {
		prev, existed := p.state[rel]
		switch {
		case !existed:
			p.emit(FileEvent{Path: rel, Operation: OpCreate, Timestamp: now})
		case !prev.modTime.Equal(snap.modTime) || prev.size != snap.size:
			p.emit(FileEvent{Path: rel, Operation: OpModify, Timestamp: now})
		}
	}
	for rel := range p.state {
		if _, ok := current[rel]; !ok {
			p.emit(FileEvent{Path: rel, Operation: OpDelete, Timestamp: now})
		}
	}
	p.state = current
	return nil
}

// emit must be called with p.mu held.
func (p *PollingWatcher) emit(ev FileEvent) {
	if p.stopped {
		return
	}
	select {
	case p.events <- ev:
	default:
		slog.Warn("poll_buffer_full",
			slog.String("path", ev.Path),
			slog.String("op", ev.Operation.String()))
	}
}

// Stop ends polling and closes the channels. Safe to call more than once.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errors)
	return nil
}

// Events returns the raw change events.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}

// Errors returns scan errors.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errors
}
