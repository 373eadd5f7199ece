// Package progress provides the per-task completion accounting shared by
// every task in a load run. A Tracker counts total and completed units of
// work (batches, rows, load jobs - whatever the owning task measures itself
// in) and derives a completion fraction the orchestrator aggregates.
package progress

import (
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Reporter is the read side of a Tracker, consumed by the orchestrator's
// status loop and by any presentation layer.
type Reporter interface {
	Name() string
	Completion() float64
	TotalUnits() int64
	CompletedUnits() int64
	Finished() bool
}

// Tracker holds thread-safe unit counters for one task. The two counters are
// independent atomics, but the derived fraction is recomputed under a mutex so
// a reader never observes a torn total/completed pair from a single update.
// Concurrent updates can still transiently produce fractions above 1.0 (a
// completed increment landing before its matching total increment is
// published); those are logged as anomalies and self-correct.
type Tracker struct {
	name string

	totalUnits     atomic.Int64
	completedUnits atomic.Int64

	mu       sync.Mutex
	fraction float64
	finished atomic.Bool
}

// NewTracker returns a Tracker for the named task with zeroed counters.
func NewTracker(name string) *Tracker {
	return &Tracker{name: name}
}

func (t *Tracker) Name() string {
	return t.name
}

// AddTotal adds delta units to the expected total and recomputes the fraction.
func (t *Tracker) AddTotal(delta int64) {
	t.totalUnits.Add(delta)
	t.recompute()
}

// AddCompleted adds delta completed units and recomputes the fraction.
func (t *Tracker) AddCompleted(delta int64) {
	t.completedUnits.Add(delta)
	t.recompute()
}

func (t *Tracker) recompute() {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := t.totalUnits.Load()
	if total == 0 {
		t.fraction = 0
		return
	}

	fraction := float64(t.completedUnits.Load()) / float64(total)
	if fraction > 1.0 {
		log.Debugf("%s: transient completion %f > 1.0 (%d of %d units)",
			t.name, fraction, t.completedUnits.Load(), total)
	}
	t.fraction = fraction
}

// Completion returns the current completion fraction. Zero total reports 0.0
// rather than dividing by zero; Finish pins the value to exactly 1.0.
func (t *Tracker) Completion() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fraction
}

// TotalUnits returns the current expected unit count.
func (t *Tracker) TotalUnits() int64 {
	return t.totalUnits.Load()
}

// CompletedUnits returns the current completed unit count.
func (t *Tracker) CompletedUnits() int64 {
	return t.completedUnits.Load()
}

// Finish marks the task done and forces completion to exactly 1.0, so
// accumulated floating point error can never leave a finished task at
// 0.9999... and wedge the status loop.
func (t *Tracker) Finish() {
	t.mu.Lock()
	t.fraction = 1.0
	t.mu.Unlock()
	t.finished.Store(true)
}

// Finished reports whether Finish has been called since the last Reset.
func (t *Tracker) Finished() bool {
	return t.finished.Load()
}

// Reset zeroes the counters and clears the finished latch, making the Tracker
// safe to reuse for a subsequent run.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.fraction = 0
	t.mu.Unlock()
	t.totalUnits.Store(0)
	t.completedUnits.Store(0)
	t.finished.Store(false)
}
