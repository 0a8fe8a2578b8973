// internal/cycletime/tracker.go
package cycletime

import "time"

// Tracker accumulates machine running time from the cycle-running status
// bit sampled once per poll tick. A run already in progress at the first
// observation is accounted from that observation, not from its unknown
// true start. Nothing is persisted across process restarts.
type Tracker struct {
	running     bool
	start       time.Time
	started     bool
	accumulated time.Duration
}

// Update advances the state machine with the running bit sampled at now.
func (t *Tracker) Update(running bool, now time.Time) {
	switch {
	case running && !t.running:
		t.start = now
		t.started = true
	case !running && t.running:
		if t.started {
			t.accumulated += now.Sub(t.start)
			t.started = false
		}
	}
	t.running = running
}

// Current returns the duration of the in-progress run, zero if idle.
func (t *Tracker) Current(now time.Time) time.Duration {
	if !t.started {
		return 0
	}
	return now.Sub(t.start)
}

// Total returns completed run time plus the in-progress run. Reported to
// the store every tick so readers see a live-incrementing counter.
func (t *Tracker) Total(now time.Time) time.Duration {
	return t.accumulated + t.Current(now)
}
