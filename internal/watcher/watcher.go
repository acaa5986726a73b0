// Package watcher watches single files for changes.
//
// A FileWatcher owns its own fsnotify handle and can debounce; a Mux shares
// one handle between many Subscriptions. Both watch the file's parent
// directory and filter events by exact path, so editors that save by writing
// a temp file and renaming it over the original are still seen. Events are delivered on a
// single-consumer channel that is closed when the watcher is closed.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/conneroisu/rminify/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// FileWatcher watches one file for changes with optional debouncing
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	path      string
	base      string
	ops       fsnotify.Op
	debouncer *Debouncer
	events    chan ChangeEvent
	logger    logging.Logger

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Option configures a FileWatcher.
type Option func(*FileWatcher)

// WithDebounce coalesces events that arrive within delay of each other into
// the last one. Zero delivers every event.
func WithDebounce(delay time.Duration) Option {
	return func(fw *FileWatcher) {
		if delay > 0 {
			fw.debouncer = NewDebouncer(delay)
		}
	}
}

// WithOps restricts delivery to the given operations. The default is
// Create | Write.
func WithOps(ops fsnotify.Op) Option {
	return func(fw *FileWatcher) {
		fw.ops = ops
	}
}

// WithLogger sets the logger for watch errors.
func WithLogger(logger logging.Logger) Option {
	return func(fw *FileWatcher) {
		if logger != nil {
			fw.logger = logger
		}
	}
}

// NewFileWatcher creates a watcher for path. The parent directory must exist;
// the file itself need not.
func NewFileWatcher(path string, opts ...Option) (*FileWatcher, error) {
	abs, dir, err := resolveTarget(path)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	fw := &FileWatcher{
		watcher: w,
		path:    abs,
		base:    filepath.Base(abs),
		ops:     fsnotify.Create | fsnotify.Write,
		events:  make(chan ChangeEvent, 16),
		logger:  logging.Nop(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(fw)
	}

	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	return fw, nil
}

// Path returns the absolute path being watched.
func (fw *FileWatcher) Path() string { return fw.path }

// Events returns the change events. The channel is closed once the watcher
// stops.
func (fw *FileWatcher) Events() <-chan ChangeEvent { return fw.events }

// Start starts the watch loop. It runs until ctx is cancelled or Close is
// called. Calling Start more than once has no effect.
func (fw *FileWatcher) Start(ctx context.Context) {
	fw.startOnce.Do(func() {
		ctx, fw.cancel = context.WithCancel(ctx)
		go fw.watchLoop(ctx)
	})
}

// Close stops the watcher and releases the underlying watch handle. It waits
// for the watch loop to exit. Closing twice is a no-op.
func (fw *FileWatcher) Close() error {
	var err error
	fw.closeOnce.Do(func() {
		started := true
		fw.startOnce.Do(func() {
			started = false
		})

		if started {
			fw.cancel()
			<-fw.done
		} else {
			close(fw.events)
		}

		err = fw.watcher.Close()
	})
	return err
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	defer close(fw.done)
	defer close(fw.events)

	if fw.debouncer != nil {
		defer fw.debouncer.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			ev, ok := fw.convert(event)
			if !ok {
				continue
			}
			if fw.debouncer != nil {
				fw.debouncer.Add(ev)
				continue
			}
			if !fw.send(ctx, ev) {
				return
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			// Log error but continue watching
			fw.logger.Warn(ctx, err, "File watcher error", "path", fw.path)
		case <-fw.debouncer.C():
			if ev, ok := fw.debouncer.Flush(); ok {
				if !fw.send(ctx, ev) {
					return
				}
			}
		}
	}
}

func (fw *FileWatcher) send(ctx context.Context, ev ChangeEvent) bool {
	select {
	case fw.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (fw *FileWatcher) convert(event fsnotify.Event) (ChangeEvent, bool) {
	if filepath.Base(event.Name) != fw.base || filepath.Clean(event.Name) != fw.path {
		return ChangeEvent{}, false
	}
	if event.Op&fw.ops == 0 {
		return ChangeEvent{}, false
	}

	return newChangeEvent(event, fw.path), true
}

func newChangeEvent(event fsnotify.Event, path string) ChangeEvent {
	var modTime time.Time
	var size int64
	if info, err := os.Stat(path); err == nil {
		modTime = info.ModTime()
		size = info.Size()
	}

	var eventType EventType
	switch {
	case event.Has(fsnotify.Create):
		eventType = EventTypeCreated
	case event.Has(fsnotify.Write):
		eventType = EventTypeModified
	case event.Has(fsnotify.Remove):
		eventType = EventTypeDeleted
	case event.Has(fsnotify.Rename):
		eventType = EventTypeRenamed
	default:
		eventType = EventTypeModified
	}

	return ChangeEvent{
		Type:    eventType,
		Path:    path,
		ModTime: modTime,
		Size:    size,
	}
}
