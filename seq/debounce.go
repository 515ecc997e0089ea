package seq

import (
	"sync"
	"time"
)

// debounced collapses a burst of triggers into a single call of fn after
// the burst settles. Each Trigger pushes the deadline out; the timer is
// never cancelled and recreated, only its deadline moves, so there is no
// cancel/fire race. When the timer fires early it reschedules itself for
// the remainder.
type debounced struct {
	mu       sync.Mutex
	window   time.Duration
	fn       func()
	deadline time.Time
	timer    *time.Timer
	stopped  bool
}

func newDebounced(window time.Duration, fn func()) *debounced {
	return &debounced{window: window, fn: fn}
}

// Trigger requests a call of fn once the window elapses without further
// triggers. Safe to call from any goroutine.
func (d *debounced) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.deadline = time.Now().Add(d.window)
	if d.timer == nil {
		d.timer = time.AfterFunc(d.window, d.fire)
	}
}

func (d *debounced) fire() {
	d.mu.Lock()
	if d.stopped {
		d.timer = nil
		d.mu.Unlock()
		return
	}
	if remaining := time.Until(d.deadline); remaining > 0 {
		// a trigger arrived while we were pending; wait it out
		d.timer.Reset(remaining)
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()
	d.fn()
}

// Stop cancels any pending call. A Trigger after Stop is ignored.
func (d *debounced) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
