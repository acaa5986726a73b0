package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/conneroisu/rminify/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// Mux shares one fsnotify watcher between many file subscriptions. Each
// parent directory is added to the watcher once and removed again when its
// last subscription is closed.
type Mux struct {
	watcher *fsnotify.Watcher
	logger  logging.Logger

	mu     sync.Mutex
	dirs   map[string]int
	subs   map[string]map[*Subscription]struct{}
	closed bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewMux creates a Mux and starts its dispatch loop.
func NewMux(logger logging.Logger) (*Mux, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	m := &Mux{
		watcher: w,
		logger:  logger,
		dirs:    make(map[string]int),
		subs:    make(map[string]map[*Subscription]struct{}),
		done:    make(chan struct{}),
	}
	go m.dispatchLoop()

	return m, nil
}

// Subscribe watches path for the given operations. The parent directory must
// exist; the file itself need not.
func (m *Mux) Subscribe(path string, ops fsnotify.Op) (*Subscription, error) {
	abs, dir, err := resolveTarget(path)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("watching %s: watcher is closed", abs)
	}

	if m.dirs[dir] == 0 {
		if err := m.watcher.Add(dir); err != nil {
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	m.dirs[dir]++

	s := &Subscription{
		mux:    m,
		path:   abs,
		dir:    dir,
		ops:    ops,
		events: make(chan ChangeEvent),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if m.subs[abs] == nil {
		m.subs[abs] = make(map[*Subscription]struct{})
	}
	m.subs[abs][s] = struct{}{}

	go s.run()

	return s, nil
}

// Dirs returns how many directories are currently watched.
func (m *Mux) Dirs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dirs)
}

func (m *Mux) unsubscribe(s *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if set := m.subs[s.path]; set != nil {
		delete(set, s)
		if len(set) == 0 {
			delete(m.subs, s.path)
		}
	}

	if m.closed {
		return
	}

	m.dirs[s.dir]--
	if m.dirs[s.dir] > 0 {
		return
	}
	delete(m.dirs, s.dir)
	// The directory may already be gone, which drops the watch on its own.
	if err := m.watcher.Remove(s.dir); err != nil {
		m.logger.Debug(context.Background(), "Directory watch already released", "dir", s.dir, "error", err.Error())
	}
}

func (m *Mux) dispatchLoop() {
	defer close(m.done)

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.dispatch(event)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn(context.Background(), err, "File watcher error")
		}
	}
}

func (m *Mux) dispatch(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	m.mu.Lock()
	targets := make([]*Subscription, 0, len(m.subs[path]))
	for s := range m.subs[path] {
		if event.Op&s.ops != 0 {
			targets = append(targets, s)
		}
	}
	m.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	ev := newChangeEvent(event, path)
	for _, s := range targets {
		s.deliver(ev)
	}
}

// Close releases the watch handle and closes every open subscription.
// Closing twice is a no-op.
func (m *Mux) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		var open []*Subscription
		for _, set := range m.subs {
			for s := range set {
				open = append(open, s)
			}
		}
		m.dirs = make(map[string]int)
		m.mu.Unlock()

		err = m.watcher.Close()
		<-m.done

		for _, s := range open {
			_ = s.Close()
		}
	})
	return err
}

// Subscription is one file's share of a Mux. Every matching event is queued
// and delivered on Events in order; a slow reader never holds up the other
// subscriptions.
type Subscription struct {
	mux    *Mux
	path   string
	dir    string
	ops    fsnotify.Op
	events chan ChangeEvent

	mu    sync.Mutex
	queue []ChangeEvent
	wake  chan struct{}

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Path returns the absolute path being watched.
func (s *Subscription) Path() string { return s.path }

// Events returns the change events. The channel is closed by Close.
func (s *Subscription) Events() <-chan ChangeEvent { return s.events }

func (s *Subscription) deliver(ev ChangeEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) next() (ChangeEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return ChangeEvent{}, false
	}
	ev := s.queue[0]
	s.queue = s.queue[1:]
	return ev, true
}

func (s *Subscription) run() {
	defer close(s.done)
	defer close(s.events)

	for {
		select {
		case <-s.wake:
		case <-s.stop:
			return
		}

		for {
			ev, ok := s.next()
			if !ok {
				break
			}
			select {
			case s.events <- ev:
			case <-s.stop:
				return
			}
		}
	}
}

// Close cancels the subscription and closes Events. Closing twice is a
// no-op.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.mux.unsubscribe(s)
		close(s.stop)
		<-s.done
	})
	return nil
}

func resolveTarget(path string) (string, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", fmt.Errorf("resolving %s: %w", path, err)
	}

	dir := filepath.Dir(abs)
	info, err := os.Stat(dir)
	if err != nil {
		return "", "", fmt.Errorf("watching %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", "", fmt.Errorf("watching %s: %s is not a directory", abs, dir)
	}

	return abs, dir, nil
}
