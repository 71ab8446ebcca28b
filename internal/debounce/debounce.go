// Package debounce coalesces bursts of change notifications into a single
// reload trigger after a quiet period.
package debounce

import (
	"sync"
	"time"
)

// DefaultWindow is the quiet period used for reload triggering.
const DefaultWindow = 700 * time.Millisecond

// Debouncer fires fn once the window elapses with no further triggers.
// Trailing edge: each new trigger replaces the pending timer. There is no
// queueing across invocations; a burst arriving while fn is still running
// starts a fresh, independent debounce cycle.
type Debouncer struct {
	window time.Duration
	fn     func()

	mu    sync.Mutex
	timer *time.Timer // the single optional pending-timer handle
}

// New creates a debouncer around fn.
func New(window time.Duration, fn func()) *Debouncer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Debouncer{
		window: window,
		fn:     fn,
	}
}

// Trigger requests an invocation, restarting the quiet window.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fn)
}

// Stop cancels any pending invocation. Triggers arriving afterwards still
// arm a fresh timer; owners must stop feeding the debouncer before Stop.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
