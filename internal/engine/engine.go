// Package engine keeps editable files and their minified outputs in sync.
//
// The Engine owns one PairWatch per active pair, all sharing a single file
// system watch handle. It activates every declared pair on Start, follows
// manifest deltas from the store in the order they arrive, and on every
// change of an editable file minifies it into the paired output. A failure
// in one pair is logged and reported through the Notifier; it never stops
// the others.
package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"

	rerrors "github.com/conneroisu/rminify/internal/errors"
	"github.com/conneroisu/rminify/internal/fsutil"
	"github.com/conneroisu/rminify/internal/logging"
	"github.com/conneroisu/rminify/internal/manifest"
	"github.com/conneroisu/rminify/internal/minify"
	"github.com/conneroisu/rminify/internal/notify"
	"github.com/conneroisu/rminify/internal/watcher"
	"golang.org/x/sync/errgroup"
)

// DefaultParallelism bounds concurrent activations during Start and
// Reconcile.
const DefaultParallelism = 8

// Engine is the sync engine.
type Engine struct {
	store       *manifest.Store
	proc        *minify.Processor
	logger      logging.Logger
	notifier    notify.Notifier
	editSuffix  string
	parallelism int

	mu      sync.Mutex // guards live, mux, started and closed
	live    map[manifest.FilePair]*PairWatch
	mux     *watcher.Mux
	started bool
	closed  bool

	// serializes activation of one output path
	pairLocks sync.Map

	inflight  sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	closeOnce sync.Once
	loopDone  chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger logging.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithNotifier sets where minify failures and warnings are reported.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithEditSuffix sets the suffix used to derive unset editable paths.
func WithEditSuffix(suffix string) Option {
	return func(e *Engine) {
		if suffix != "" {
			e.editSuffix = suffix
		}
	}
}

// WithParallelism bounds concurrent pair activations.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// New creates an Engine over store. Nothing is watched until Start.
func New(store *manifest.Store, proc *minify.Processor, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		proc:        proc,
		logger:      logging.Nop(),
		notifier:    notify.Discard,
		editSuffix:  manifest.DefaultEditSuffix,
		parallelism: DefaultParallelism,
		live:        make(map[manifest.FilePair]*PairWatch),
		loopDone:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithComponent("engine")
	e.ctx, e.cancel = context.WithCancel(context.Background())

	return e
}

// Start watches the manifest, activates every declared pair and begins
// applying manifest deltas. Individual activation failures are reported but
// do not fail Start. Calling Start more than once has no effect.
func (e *Engine) Start(ctx context.Context) error {
	if e.isClosed() {
		return rerrors.ErrClosed("engine")
	}

	var err error
	e.startOnce.Do(func() {
		context.AfterFunc(ctx, e.cancel)

		mux, muxErr := watcher.NewMux(e.logger)
		if muxErr != nil {
			err = rerrors.ErrWatch(e.store.Root(), muxErr)
			close(e.loopDone)
			return
		}
		if err = e.store.Watch(e.ctx); err != nil {
			_ = mux.Close()
			close(e.loopDone)
			return
		}

		e.mu.Lock()
		e.mux = mux
		e.started = true
		e.mu.Unlock()

		pairs := e.store.Pairs()
		e.logger.Info(e.ctx, "Starting sync engine",
			"root", e.store.Root(),
			"manifest", e.store.Path(),
			"pairs", len(pairs))

		_ = e.activateAll(e.ctx, pairs)

		go e.deltaLoop()
	})
	return err
}

func (e *Engine) deltaLoop() {
	defer close(e.loopDone)

	for delta := range e.store.Deltas() {
		if err := e.Reconcile(e.ctx, delta); err != nil {
			e.logger.Warn(e.ctx, err, "Manifest change applied with failures")
		}
	}
}

// Reconcile applies one manifest delta: removed pairs lose their watch and
// added pairs are activated. It returns once every removal is done and every
// activation attempt has finished, with the activation failures joined.
func (e *Engine) Reconcile(ctx context.Context, delta manifest.Delta) error {
	for _, p := range delta.Removed {
		if e.dispose(p) {
			e.logger.Info(ctx, "Stopped watching pair", "edit", p.Edit, "output", p.Output)
		}
	}
	return e.activateAll(ctx, delta.Added)
}

func (e *Engine) activateAll(ctx context.Context, pairs []manifest.FilePair) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(e.parallelism)

	for _, p := range pairs {
		p := p
		g.Go(func() error {
			if err := e.activateDeclared(ctx, p); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// activateDeclared activates a pair that is already in the manifest and
// records a derived editable path back into it. When the pair was removed
// from the manifest while it was being activated, its watch is dropped
// again.
func (e *Engine) activateDeclared(ctx context.Context, p manifest.FilePair) error {
	resolved, err := e.activate(ctx, p, e.store.Options(p))
	if err != nil {
		e.report(ctx, notify.LevelError, p.Output, err, "Pair activation failed")
		return err
	}

	if resolved == p {
		return nil
	}

	err = e.store.ReplacePair(p, resolved)
	switch {
	case err == nil:
	case rerrors.HasErrorCode(err, rerrors.ErrCodePairUnknown):
		if !e.store.Contains(resolved) && e.dispose(resolved) {
			e.logger.Info(ctx, "Pair removed during activation", "edit", resolved.Edit, "output", resolved.Output)
		}
	default:
		e.logger.Warn(ctx, err, "Could not record editable path", "edit", resolved.Edit, "output", resolved.Output)
	}
	return nil
}

func (e *Engine) pairLock(output string) *sync.Mutex {
	l, _ := e.pairLocks.LoadOrStore(output, &sync.Mutex{})
	return l.(*sync.Mutex)
}

// activate makes p live: it checks the output exists, derives and seeds the
// editable file when needed, and installs the watch. It returns p with its
// editable path filled in. Activating a live pair again does nothing. Before
// Start only the seeding happens.
func (e *Engine) activate(ctx context.Context, p manifest.FilePair, opts manifest.PairOptions) (manifest.FilePair, error) {
	root := e.store.Root()

	outAbs, err := p.OutputAbs(root)
	if err != nil {
		return p, err
	}
	if !fsutil.Exists(outAbs) {
		return p, rerrors.ErrOutputMissing(outAbs)
	}

	resolved := p.WithDerivedEdit(e.editSuffix)
	if err := resolved.Validate(); err != nil {
		return p, err
	}
	editAbs, err := resolved.EditAbs(root)
	if err != nil {
		return p, err
	}

	lock := e.pairLock(resolved.Output)
	lock.Lock()
	defer lock.Unlock()

	if e.isLive(resolved) {
		return resolved, nil
	}

	if !fsutil.Exists(editAbs) {
		if err := fsutil.CopyFile(outAbs, editAbs); err != nil {
			return resolved, rerrors.ErrMinifyIO(editAbs, err)
		}
		e.logger.Info(ctx, "Seeded editable file", "edit", resolved.Edit, "output", resolved.Output)
		_, _ = e.minifyPair(ctx, resolved, e.processorFor(opts))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return resolved, rerrors.ErrClosed("engine")
	}
	if !e.started {
		return resolved, nil
	}
	if _, ok := e.live[resolved]; ok {
		return resolved, nil
	}

	pw, err := NewPairWatch(e.mux, resolved, editAbs)
	if err != nil {
		return resolved, rerrors.ErrWatch(editAbs, err)
	}
	e.live[resolved] = pw

	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		e.consume(pw)
	}()

	e.logger.Debug(ctx, "Watching pair", "edit", resolved.Edit, "output", resolved.Output)
	return resolved, nil
}

// consume runs the passes of one pair in order, so a pass never overwrites
// the output of a later edit.
func (e *Engine) consume(pw *PairWatch) {
	for p := range pw.Updates() {
		_, _ = e.minifyPair(e.ctx, p, e.processorFor(e.store.Options(p)))
	}
}

// processorFor applies a pair's overrides to the configured processor.
func (e *Engine) processorFor(o manifest.PairOptions) *minify.Processor {
	if o.IsZero() {
		return e.proc
	}

	passes := []struct {
		opt minify.JSOptions
		on  *bool
	}{
		{minify.RemoveWhitespace, o.RemoveWhitespace},
		{minify.ShortenIdentifiers, o.ShortenIdentifiers},
		{minify.ShortenSyntax, o.ShortenSyntax},
	}
	return e.proc.Override(o.InlineStyles, func(js minify.JSOptions) minify.JSOptions {
		for _, pass := range passes {
			if pass.on != nil {
				js = js.Set(pass.opt, *pass.on)
			}
		}
		return js
	})
}

// minifyPair runs one minify pass for p. Failures are reported, not
// returned. In-flight passes are not cancelled by Close.
func (e *Engine) minifyPair(ctx context.Context, p manifest.FilePair, proc *minify.Processor) (minify.Result, error) {
	ctx = context.WithoutCancel(ctx)
	root := e.store.Root()

	editAbs, err := p.EditAbs(root)
	if err != nil {
		e.report(ctx, notify.LevelError, p.Output, err, "Minify failed")
		return minify.Result{}, err
	}
	outAbs, err := p.OutputAbs(root)
	if err != nil {
		e.report(ctx, notify.LevelError, p.Output, err, "Minify failed")
		return minify.Result{}, err
	}

	res, err := proc.Process(ctx, editAbs, outAbs)
	if err != nil {
		e.report(ctx, notify.LevelError, p.Edit, err, "Minify failed")
		return res, err
	}
	if !res.Success {
		e.logger.Warn(ctx, res.Err, "Minified with warnings", "edit", p.Edit, "message", res.Message)
		e.notifier.Notify(ctx, notify.New(notify.LevelWarning, p.Edit, res.Message))
		return res, nil
	}

	e.logger.Debug(ctx, "Minified", "edit", p.Edit, "output", p.Output)
	return res, nil
}

func (e *Engine) report(ctx context.Context, level notify.Level, path string, err error, msg string) {
	e.logger.Warn(ctx, err, msg, "path", path)
	e.notifier.Notify(ctx, notify.New(level, path, err.Error()))
}

func (e *Engine) isLive(p manifest.FilePair) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.live[p]
	return ok
}

func (e *Engine) isStarted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// dispose closes and forgets the watch of p. A pair with an unset editable
// path stands for its derived form, unless that form is declared on its own.
// It reports whether a watch was live.
func (e *Engine) dispose(p manifest.FilePair) bool {
	if !p.HasEdit() {
		derived := p.WithDerivedEdit(e.editSuffix)
		if e.store.Contains(derived) {
			return false
		}
		p = derived
	}

	e.mu.Lock()
	pw, ok := e.live[p]
	delete(e.live, p)
	e.mu.Unlock()

	if !ok {
		return false
	}
	if err := pw.Close(); err != nil {
		e.logger.Warn(e.ctx, err, "Closing pair watch failed", "edit", p.Edit)
	}
	return true
}

// AddPair declares a new pair, activates it and persists the manifest. It
// returns false without error when the pair is already declared. When the
// output file does not exist nothing is recorded and the error says so
// (see errors.IsOutputMissing). Other activation failures are reported
// through the Notifier; the pair is still recorded and AddPair returns true.
//
// On an engine that was never started the editable file is seeded but no
// watch is installed; a running engine picks the pair up from the manifest.
func (e *Engine) AddPair(ctx context.Context, editablePath, outputPath string) (bool, error) {
	return e.AddPairWithOptions(ctx, editablePath, outputPath, manifest.PairOptions{})
}

// AddPairWithOptions is AddPair for a pair with its own minify settings.
func (e *Engine) AddPairWithOptions(ctx context.Context, editablePath, outputPath string, opts manifest.PairOptions) (bool, error) {
	if e.isClosed() {
		return false, rerrors.ErrClosed("engine")
	}

	p := manifest.NewFilePair(editablePath, outputPath)
	if err := p.Validate(); err != nil {
		return false, err
	}
	if e.store.Contains(p) || e.store.Contains(p.WithDerivedEdit(e.editSuffix)) {
		return false, nil
	}

	resolved, err := e.activate(ctx, p, opts)
	if err != nil {
		if rerrors.IsOutputMissing(err) {
			return false, err
		}
		e.report(ctx, notify.LevelError, p.Output, err, "Pair activation failed")
	}

	if err := e.store.AddEntry(manifest.Entry{Pair: resolved, Options: opts}); err != nil {
		if rerrors.HasErrorCode(err, rerrors.ErrCodePairExists) {
			return false, nil
		}
		e.dispose(resolved)
		return false, err
	}

	// Start may have taken its snapshot of the manifest while this pair
	// was being seeded.
	if e.isStarted() && !e.isLive(resolved) && err == nil {
		if _, err := e.activate(ctx, resolved, opts); err != nil {
			e.report(ctx, notify.LevelError, resolved.Output, err, "Pair activation failed")
		}
	}

	e.logger.Info(ctx, "Added pair", "edit", resolved.Edit, "output", resolved.Output)
	return true, nil
}

// AddScript declares a JavaScript source whose output is derived by
// inserting ".min" before the extension, with every esbuild pass switched
// on unless overrides says otherwise. A missing output is produced by a
// first minify pass. It returns the declared pair and whether it was new.
func (e *Engine) AddScript(ctx context.Context, source string, overrides manifest.PairOptions) (manifest.FilePair, bool, error) {
	p := manifest.NewFilePair(source, manifest.DeriveScriptOutputPath(source))
	if !manifest.IsScript(p.Edit) {
		return p, false, rerrors.ErrPairInvalid("not a JavaScript file").WithPath(source)
	}
	if manifest.IsScriptOutput(p.Edit) {
		return p, false, rerrors.ErrPairInvalid("already a minified script").WithPath(source)
	}
	if err := p.Validate(); err != nil {
		return p, false, err
	}
	if e.store.Contains(p) {
		return p, false, nil
	}

	root := e.store.Root()
	editAbs, err := p.EditAbs(root)
	if err != nil {
		return p, false, err
	}
	outAbs, err := p.OutputAbs(root)
	if err != nil {
		return p, false, err
	}
	if !fsutil.Exists(editAbs) {
		return p, false, rerrors.ErrPairInvalid("script source does not exist").WithPath(editAbs)
	}

	opts := manifest.AllScriptPasses().Merge(overrides)
	if !fsutil.Exists(outAbs) {
		res, err := e.minifyPair(ctx, p, e.processorFor(opts))
		if err != nil {
			return p, false, err
		}
		if !fsutil.Exists(outAbs) {
			if res.Err != nil {
				return p, false, res.Err
			}
			return p, false, rerrors.ErrOutputMissing(outAbs)
		}
	}

	added, err := e.AddPairWithOptions(ctx, p.Edit, p.Output, opts)
	return p, added, err
}

// RemovePair stops watching p and removes it from the manifest. Removing a
// pair that is not declared does nothing.
func (e *Engine) RemovePair(ctx context.Context, p manifest.FilePair) error {
	e.dispose(p)

	removed, err := e.store.RemovePair(p)
	if err != nil {
		return err
	}
	if removed {
		e.logger.Info(ctx, "Removed pair", "edit", p.Edit, "output", p.Output)
	}
	return nil
}

// EditablePaths returns the absolute editable paths of the declared pairs,
// sorted. Pairs whose editable copy has not been derived yet are skipped.
func (e *Engine) EditablePaths() []string {
	root := e.store.Root()
	var paths []string
	for _, p := range e.store.Pairs() {
		if abs, err := p.EditAbs(root); err == nil {
			paths = append(paths, abs)
		}
	}
	sort.Strings(paths)
	return paths
}

// ActivePairs returns the pairs that currently have a live watch, sorted.
func (e *Engine) ActivePairs() []manifest.FilePair {
	e.mu.Lock()
	pairs := make([]manifest.FilePair, 0, len(e.live))
	for p := range e.live {
		pairs = append(pairs, p)
	}
	e.mu.Unlock()

	manifest.SortPairs(pairs)
	return pairs
}

// PairFor finds the declared pair whose editable or output file is path.
func (e *Engine) PairFor(path string) (manifest.FilePair, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return manifest.FilePair{}, false
	}

	root := e.store.Root()
	for _, p := range e.store.Pairs() {
		if out, err := p.OutputAbs(root); err == nil && out == abs {
			return p, true
		}
		if edit, err := p.EditAbs(root); err == nil && edit == abs {
			return p, true
		}
	}
	return manifest.FilePair{}, false
}

// Touch runs a minify pass now for the pair that owns path.
func (e *Engine) Touch(ctx context.Context, path string) (minify.Result, error) {
	p, ok := e.PairFor(path)
	if !ok {
		return minify.Result{}, rerrors.ErrPairInvalid("no pair for path").WithPath(path)
	}
	if !p.HasEdit() {
		return minify.Result{}, rerrors.ErrPairInvalid("editable path is not set").WithPath(path)
	}
	return e.minifyPair(ctx, p, e.processorFor(e.store.Options(p)))
}

// Close stops following the manifest, disposes every watch and waits for
// in-flight minify passes to finish. Closing twice is a no-op.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()

		e.cancel()

		if err := e.store.Close(); err != nil {
			e.logger.Warn(context.Background(), err, "Closing manifest store failed")
		}

		started := true
		e.startOnce.Do(func() { started = false })
		if started {
			<-e.loopDone
		}

		e.mu.Lock()
		watches := e.live
		e.live = make(map[manifest.FilePair]*PairWatch)
		mux := e.mux
		e.mu.Unlock()

		for p, pw := range watches {
			if err := pw.Close(); err != nil {
				e.logger.Warn(context.Background(), err, "Closing pair watch failed", "edit", p.Edit)
			}
		}
		if mux != nil {
			if err := mux.Close(); err != nil {
				e.logger.Warn(context.Background(), err, "Closing file watcher failed")
			}
		}

		e.inflight.Wait()
		e.logger.Info(context.Background(), "Sync engine stopped")
	})
	return nil
}
