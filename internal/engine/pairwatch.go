package engine

import (
	"sync"

	"github.com/conneroisu/rminify/internal/manifest"
	"github.com/conneroisu/rminify/internal/watcher"
	"github.com/fsnotify/fsnotify"
)

// PairWatch is the live file-system subscription for one active pair. Every
// create or write of the editable file produces one value on Updates; there
// is no debouncing. Once closed, a PairWatch stays closed.
type PairWatch struct {
	pair     manifest.FilePair
	editPath string
	sub      *watcher.Subscription
	updates  chan manifest.FilePair

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewPairWatch subscribes to editPath, the resolved editable file of pair,
// on the shared mux.
func NewPairWatch(mux *watcher.Mux, pair manifest.FilePair, editPath string) (*PairWatch, error) {
	sub, err := mux.Subscribe(editPath, fsnotify.Create|fsnotify.Write)
	if err != nil {
		return nil, err
	}

	pw := &PairWatch{
		pair:     pair,
		editPath: sub.Path(),
		sub:      sub,
		updates:  make(chan manifest.FilePair, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go pw.forward()

	return pw, nil
}

func (pw *PairWatch) forward() {
	defer close(pw.done)
	defer close(pw.updates)

	for range pw.sub.Events() {
		select {
		case pw.updates <- pw.pair:
		case <-pw.stop:
			return
		}
	}
}

// Pair returns the watched pair.
func (pw *PairWatch) Pair() manifest.FilePair { return pw.pair }

// Path returns the absolute editable path being watched.
func (pw *PairWatch) Path() string { return pw.editPath }

// Updates delivers the pair each time its editable file changes. It is
// closed when the watch is closed.
func (pw *PairWatch) Updates() <-chan manifest.FilePair { return pw.updates }

// Close cancels the subscription. Closing twice is a no-op.
func (pw *PairWatch) Close() error {
	var err error
	pw.closeOnce.Do(func() {
		close(pw.stop)
		err = pw.sub.Close()
		<-pw.done
	})
	return err
}
