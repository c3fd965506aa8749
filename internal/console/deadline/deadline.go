// Package deadline tracks the timing state of an observation run: how long
// it has been running, how long the device has been silent, and when the
// operator should next hear a status line.
//
// The Tracker never reads the wall clock. Every query takes the current
// time as an argument so callers (and tests) control time explicitly.
package deadline

import "time"

// Cadence holds the status-line timing thresholds.
type Cadence struct {
	// GracePeriod is the initial window in which silence is expected.
	GracePeriod time.Duration
	// ShortInterval is the status cadence inside the grace period.
	ShortInterval time.Duration
	// LongInterval is the status cadence after the grace period.
	LongInterval time.Duration
}

// DefaultCadence returns the standard thresholds: a 10s grace period,
// 10s status lines during it and 30s afterwards.
func DefaultCadence() Cadence {
	return Cadence{
		GracePeriod:   10 * time.Second,
		ShortInterval: 10 * time.Second,
		LongInterval:  30 * time.Second,
	}
}

// Status describes a status line that is due.
type Status struct {
	Elapsed time.Duration
	Idle    time.Duration
	// InGrace is true while the run is still inside the grace period.
	InGrace bool
}

// Tracker holds the start, last-activity and last-status instants of one
// run. It is not safe for concurrent use; the observation loop owns it.
type Tracker struct {
	cadence      Cadence
	start        time.Time
	lastActivity time.Time
	lastStatus   time.Time
	sawActivity  bool
	hintShown    bool
}

// NewTracker starts tracking at start. Last activity and last status are
// both initialized to start.
func NewTracker(start time.Time, cadence Cadence) *Tracker {
	return &Tracker{
		cadence:      cadence,
		start:        start,
		lastActivity: start,
		lastStatus:   start,
	}
}

// Start returns the instant tracking began.
func (t *Tracker) Start() time.Time { return t.start }

// Elapsed returns the time since start.
func (t *Tracker) Elapsed(now time.Time) time.Duration {
	return now.Sub(t.start)
}

// IdleFor returns the time since bytes last arrived (or since start if
// none have).
func (t *Tracker) IdleFor(now time.Time) time.Duration {
	return now.Sub(t.lastActivity)
}

// SinceStatus returns the time since the last status line (or since start).
func (t *Tracker) SinceStatus(now time.Time) time.Duration {
	return now.Sub(t.lastStatus)
}

// MarkActivity records that bytes arrived at now. Callers must only call
// it when a read returned data.
func (t *Tracker) MarkActivity(now time.Time) {
	t.lastActivity = now
	t.sawActivity = true
}

// SawActivity reports whether any bytes have arrived during the run.
func (t *Tracker) SawActivity() bool { return t.sawActivity }

// InGrace reports whether now is still inside the grace period.
func (t *Tracker) InGrace(now time.Time) bool {
	return t.Elapsed(now) < t.cadence.GracePeriod
}

// Interval returns the status cadence in effect at now.
func (t *Tracker) Interval(now time.Time) time.Duration {
	if t.InGrace(now) {
		return t.cadence.ShortInterval
	}
	return t.cadence.LongInterval
}

// StatusDue reports whether a status line should be shown at now. Both the
// idle time and the time since the previous status line must exceed the
// current interval.
func (t *Tracker) StatusDue(now time.Time) (Status, bool) {
	interval := t.Interval(now)
	idle := t.IdleFor(now)
	if idle <= interval || t.SinceStatus(now) <= interval {
		return Status{}, false
	}
	return Status{
		Elapsed: t.Elapsed(now),
		Idle:    idle,
		InGrace: t.InGrace(now),
	}, true
}

// MarkStatus records that a status line was shown at now.
func (t *Tracker) MarkStatus(now time.Time) {
	t.lastStatus = now
}

// HintDue reports whether the one-time "no output yet" hint should be
// shown: nothing has arrived, the grace period is over, and the hint has
// not been shown before.
func (t *Tracker) HintDue(now time.Time) bool {
	return !t.hintShown && !t.sawActivity && t.Elapsed(now) >= t.cadence.GracePeriod
}

// HintShown reports whether the hint has already been shown.
func (t *Tracker) HintShown() bool { return t.hintShown }

// MarkHint records that the hint was shown. Later HintDue calls return false.
func (t *Tracker) MarkHint() {
	t.hintShown = true
}
