package seq

import (
	"sync"
	"time"
)

type (
	// AlertPriority tells how severe an alert is. When alerts collide,
	// the higher priority wins.
	AlertPriority int

	// Alert is a user-facing notification from the synchronization core
	// or the engine. Name identifies the alert source so repeats of the
	// same condition can replace each other instead of piling up.
	Alert struct {
		Name     string
		Priority AlertPriority
		Message  string
		Duration time.Duration
	}
)

const (
	Info AlertPriority = iota
	Warning
	Error
)

// DefaultAlertDuration is how long an alert stays visible when the
// sender does not say otherwise.
const DefaultAlertDuration = 3 * time.Second

// reporter rate-limits warning delivery: after one warning goes out, the
// gate closes and reopens only after the cooldown elapses, so unstable
// hardware cannot flood the user with dialogs.
type reporter struct {
	mu        sync.Mutex
	canReport bool
	cooldown  time.Duration
	timer     *time.Timer
}

func newReporter(cooldown time.Duration) *reporter {
	return &reporter{canReport: true, cooldown: cooldown}
}

// allow reports whether a warning may be delivered now, and if so,
// closes the gate until the cooldown elapses.
func (r *reporter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.canReport {
		return false
	}
	r.canReport = false
	r.timer = time.AfterFunc(r.cooldown, func() {
		r.mu.Lock()
		r.canReport = true
		r.mu.Unlock()
	})
	return true
}

func (r *reporter) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.canReport = true
}
