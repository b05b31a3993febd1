// Package watchdog ends sessions that have gone quiet.
package watchdog

import (
	"sync"
	"time"

	"parley/session"
)

const (
	TickInterval = time.Second
	DefaultIdle  = 15 * time.Second
)

// Watchdog tracks the last activity of an armed session. The owner calls
// Tick once per TickInterval; Tick reports true a single time when the
// session has been idle for longer than the limit, then disarms.
type Watchdog struct {
	idle time.Duration

	mu           sync.Mutex
	armed        bool
	lastActivity time.Time
}

func New(idle time.Duration) *Watchdog {
	if idle <= 0 {
		idle = DefaultIdle
	}
	return &Watchdog{idle: idle}
}

func (w *Watchdog) Idle() time.Duration { return w.idle }

// Arm starts watching with now as the last activity.
func (w *Watchdog) Arm(now time.Time) {
	w.mu.Lock()
	w.armed = true
	w.lastActivity = now
	w.mu.Unlock()
}

func (w *Watchdog) Disarm() {
	w.mu.Lock()
	w.armed = false
	w.mu.Unlock()
}

func (w *Watchdog) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed
}

// Touch records activity: transcript growth or the agent starting to speak.
func (w *Watchdog) Touch(now time.Time) {
	w.mu.Lock()
	if now.After(w.lastActivity) {
		w.lastActivity = now
	}
	w.mu.Unlock()
}

func (w *Watchdog) LastActivity() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastActivity
}

// Tick reports whether the session should be disconnected for
// inactivity. A speaking agent is never idle.
func (w *Watchdog) Tick(now time.Time, state session.State) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.armed {
		return false
	}
	if state == session.Speaking {
		w.lastActivity = now
		return false
	}
	if now.Sub(w.lastActivity) <= w.idle {
		return false
	}
	w.armed = false
	return true
}
