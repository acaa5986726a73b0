package manifest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	rerrors "github.com/conneroisu/rminify/internal/errors"
	"github.com/conneroisu/rminify/internal/fsutil"
	"github.com/conneroisu/rminify/internal/logging"
	"github.com/conneroisu/rminify/internal/watcher"
)

// DefaultReloadDelay is how long the store waits after the last change to
// the manifest file before reading it back.
const DefaultReloadDelay = 50 * time.Millisecond

// Store owns the declared pairs and the manifest file that persists them.
//
// All reads and writes of the manifest file, and every mutation of the pair
// set, happen under one lock, so the background reload never observes a
// half-written file and persisted state never diverges from memory.
type Store struct {
	mu     sync.Mutex // config lock
	path   string
	root   string
	format Format
	pairs  []FilePair
	opts   map[FilePair]PairOptions

	logger      logging.Logger
	reloadDelay time.Duration

	deltas    chan Delta
	fw        *watcher.FileWatcher
	watchOnce sync.Once
	closeOnce sync.Once
	closed    bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithReloadDelay sets how long to wait for an external writer to finish
// before reloading. Zero reloads on every change event.
func WithReloadDelay(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.reloadDelay = d
		}
	}
}

// Open loads the manifest at path. A missing manifest file is created empty.
// When root is empty the manifest's directory is the root.
func Open(path, root string, opts ...Option) (*Store, error) {
	s := &Store{
		logger:      logging.Nop(),
		reloadDelay: DefaultReloadDelay,
		opts:        make(map[FilePair]PairOptions),
		deltas:      make(chan Delta, 16),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("manifest")

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, rerrors.ErrManifestIO(path, err)
	}
	s.path = abs
	s.format = FormatFor(abs)

	if root == "" {
		root = filepath.Dir(abs)
	}
	if s.root, err = filepath.Abs(root); err != nil {
		return nil, rerrors.ErrManifestIO(path, err)
	}

	if !fsutil.Exists(abs) {
		s.mu.Lock()
		err := s.saveLocked()
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
		s.logger.Info(context.Background(), "Created manifest", "path", abs)
		return s, nil
	}

	m, err := Load(abs, s.root)
	if err != nil {
		return nil, err
	}
	s.pairs, s.opts = m.Pairs, m.Options

	return s, nil
}

// Path returns the absolute manifest path.
func (s *Store) Path() string { return s.path }

// Root returns the absolute root directory.
func (s *Store) Root() string { return s.root }

// Manifest returns a snapshot of the current state.
func (s *Store) Manifest() *Manifest {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := &Manifest{Root: s.root, Path: s.path, Pairs: append([]FilePair(nil), s.pairs...)}
	return m.withOptions(s.opts)
}

// Pairs returns a copy of the declared pairs.
func (s *Store) Pairs() []FilePair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FilePair(nil), s.pairs...)
}

// Options returns the overrides declared for p.
func (s *Store) Options(p FilePair) PairOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts[p]
}

// Contains reports whether p is declared.
func (s *Store) Contains(p FilePair) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexLocked(p) >= 0
}

func (s *Store) indexLocked(p FilePair) int {
	for i, q := range s.pairs {
		if q == p {
			return i
		}
	}
	return -1
}

// Save writes the current pairs to the manifest file.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	entries := make([]Entry, 0, len(s.pairs))
	for _, p := range s.pairs {
		entries = append(entries, Entry{Pair: p, Options: s.opts[p]})
	}
	data, err := EncodeEntries(entries, s.format)
	if err != nil {
		return rerrors.ErrManifestIO(s.path, err)
	}
	if err := fsutil.WriteFileAtomic(s.path, data, 0644); err != nil {
		return rerrors.ErrManifestIO(s.path, err)
	}
	return nil
}

// AddPair declares p and persists the manifest. Adding a pair that is
// already declared fails with ERR_PAIR_EXISTS.
func (s *Store) AddPair(p FilePair) error {
	return s.AddEntry(Entry{Pair: p})
}

// AddEntry declares a pair together with its option overrides.
func (s *Store) AddEntry(e Entry) error {
	p := e.Pair
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(p) >= 0 {
		return rerrors.ErrPairExists(p.Edit, p.Output)
	}

	prev := s.pairs
	s.pairs = append(append([]FilePair(nil), prev...), p)
	if !e.Options.IsZero() {
		s.opts[p] = e.Options
	}
	if err := s.saveLocked(); err != nil {
		s.pairs = prev
		delete(s.opts, p)
		return err
	}
	return nil
}

// RemovePair drops p and persists the manifest. It reports whether p was
// declared; removing an unknown pair does nothing.
func (s *Store) RemovePair(p FilePair) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(p)
	if i < 0 {
		return false, nil
	}

	prev := s.pairs
	next := make([]FilePair, 0, len(prev)-1)
	next = append(next, prev[:i]...)
	next = append(next, prev[i+1:]...)
	s.pairs = next
	if err := s.saveLocked(); err != nil {
		s.pairs = prev
		return false, err
	}
	delete(s.opts, p)
	return true, nil
}

// ReplacePair swaps old for p in place and persists the manifest. It is used
// once an unset editable path has been derived.
func (s *Store) ReplacePair(old, p FilePair) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(old)
	if i < 0 {
		return rerrors.ErrPairUnknown(old.String())
	}
	if old == p {
		return nil
	}

	prev := s.pairs
	next := make([]FilePair, 0, len(prev))
	for j, q := range prev {
		switch {
		case j == i:
			next = append(next, p)
		case q == p:
			// already declared elsewhere
		default:
			next = append(next, q)
		}
	}
	o, hadOpts := s.opts[old]
	s.pairs = next
	if hadOpts {
		delete(s.opts, old)
		s.opts[p] = o
	}
	if err := s.saveLocked(); err != nil {
		s.pairs = prev
		if hadOpts {
			delete(s.opts, p)
			s.opts[old] = o
		}
		return err
	}
	return nil
}

// Deltas returns the changes picked up from external edits of the manifest
// file, in the order they were applied. The channel is closed by Close.
func (s *Store) Deltas() <-chan Delta { return s.deltas }

// Watch starts watching the manifest file. Each time the file settles after a
// change it is read back and diffed against the in-memory pairs; a non-empty
// difference replaces the pairs and is sent on Deltas. Files that fail to
// decode are logged and skipped. Calling Watch again has no effect.
func (s *Store) Watch(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return rerrors.ErrClosed("manifest store")
	}

	var err error
	s.watchOnce.Do(func() {
		s.fw, err = watcher.NewFileWatcher(s.path,
			watcher.WithDebounce(s.reloadDelay),
			watcher.WithLogger(s.logger),
		)
		if err != nil {
			err = rerrors.ErrManifestIO(s.path, err)
			return
		}

		ctx, s.cancel = context.WithCancel(ctx)
		s.fw.Start(ctx)
		go s.watchLoop(ctx)
	})
	return err
}

func (s *Store) watchLoop(ctx context.Context) {
	defer close(s.done)
	defer close(s.deltas)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-s.fw.Events():
			if !ok {
				return
			}
			delta, err := s.reload()
			if err != nil {
				s.logger.Warn(ctx, err, "Ignoring manifest change", "path", s.path)
				continue
			}
			if delta.Empty() {
				continue
			}
			s.logger.Info(ctx, "Manifest changed",
				"added", len(delta.Added),
				"removed", len(delta.Removed))
			select {
			case s.deltas <- delta:
			case <-ctx.Done():
				return
			}
		}
	}
}

// reload reads the manifest file and applies the difference to the
// in-memory pairs. The file is read under the config lock; decoding and
// diffing happen outside it.
func (s *Store) reload() (Delta, error) {
	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if err != nil {
		return Delta{}, rerrors.ErrManifestIO(s.path, err)
	}

	entries, err := DecodeEntries(data, s.format)
	if err != nil {
		return Delta{}, rerrors.ErrManifestMalformed(s.path, err)
	}
	candidate, opts := splitEntries(entries)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Option changes alone produce no delta; passes read them on demand.
	s.opts = opts
	delta := Diff(s.pairs, candidate)
	if delta.Empty() {
		return delta, nil
	}
	s.pairs = candidate
	return delta, nil
}

// Close stops watching the manifest file and closes Deltas. Closing twice
// is a no-op.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		started := true
		s.watchOnce.Do(func() { started = false })

		if !started || s.fw == nil {
			close(s.deltas)
			return
		}

		s.cancel()
		err = s.fw.Close()
		<-s.done
	})
	return err
}
