package watcher

import "time"

// Debouncer groups rapid file changes together. It is owned by a single
// goroutine: Add, C and Flush must not be called concurrently.
type Debouncer struct {
	delay   time.Duration
	timer   *time.Timer
	armed   bool
	pending ChangeEvent
	count   int
}

// NewDebouncer creates a Debouncer that fires delay after the last Add.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Add records ev as the latest pending event and restarts the delay.
func (d *Debouncer) Add(ev ChangeEvent) {
	d.pending = ev
	d.count++

	if d.timer == nil {
		d.timer = time.NewTimer(d.delay)
	} else {
		if !d.timer.Stop() && d.armed {
			select {
			case <-d.timer.C:
			default:
			}
		}
		d.timer.Reset(d.delay)
	}
	d.armed = true
}

// C fires when the pending event is due. It is nil while nothing is pending,
// so selecting on it blocks. A nil Debouncer has a nil channel too.
func (d *Debouncer) C() <-chan time.Time {
	if d == nil || !d.armed {
		return nil
	}
	return d.timer.C
}

// Flush returns the pending event and clears it.
func (d *Debouncer) Flush() (ChangeEvent, bool) {
	if d == nil || d.count == 0 {
		return ChangeEvent{}, false
	}
	ev := d.pending
	d.pending = ChangeEvent{}
	d.count = 0
	d.armed = false
	return ev, true
}

// Pending returns how many events have been coalesced since the last Flush.
func (d *Debouncer) Pending() int {
	if d == nil {
		return 0
	}
	return d.count
}

// Stop releases the timer.
func (d *Debouncer) Stop() {
	if d != nil && d.timer != nil {
		d.timer.Stop()
	}
	if d != nil {
		d.armed = false
	}
}
