// Package orchestrator runs a load test: it launches every backend task
// concurrently, reports aggregate progress while they run, and collects
// their failures at the join point.
package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/openedx/xapi-db-load/internal/loadtest/backends"
	"github.com/openedx/xapi-db-load/internal/loadtest/configuration"
	"github.com/openedx/xapi-db-load/internal/loadtest/events"
	"github.com/openedx/xapi-db-load/internal/loadtest/task"
)

// statusInterval is how often overall progress is logged during a run.
const statusInterval = 10 * time.Second

// Runner owns one backend's task set and runs it to completion. A Runner is
// reusable: Reset clears all task progress for another run.
type Runner struct {
	cfg     configuration.Config
	gen     *events.Generator
	backend *backends.Backend

	running atomic.Bool

	mu        sync.Mutex
	startTime time.Time
	endTime   time.Time
}

// New constructs the data source and the configured backend's task set.
func New(ctx context.Context, cfg configuration.Config) (*Runner, error) {
	gen := events.NewGenerator(cfg)
	backend, err := backends.Build(ctx, cfg, gen)
	if err != nil {
		return nil, err
	}
	return &Runner{cfg: cfg, gen: gen, backend: backend}, nil
}

// Summary describes the configured backend for startup logging.
func (r *Runner) Summary() map[string]interface{} {
	return r.backend.Summary
}

// Tasks returns the task set, primarily for reporting.
func (r *Runner) Tasks() []task.Task {
	return r.backend.Tasks
}

// StartTime returns when the current or last run began.
func (r *Runner) StartTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startTime
}

// EndTime returns when the last run finished, zero while running.
func (r *Runner) EndTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endTime
}

// Close releases the backend's resources. Call once, after the final run.
func (r *Runner) Close() error {
	return r.backend.Close()
}

// Run executes every task concurrently and blocks until they have all
// returned. Task failures do not interrupt sibling tasks; they are collected,
// logged together, and the first one is returned after the join. Only one
// run may be in flight at a time.
func (r *Runner) Run(ctx context.Context, loadOnly bool) error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.New("a run is already in progress")
	}
	defer r.running.Store(false)

	r.mu.Lock()
	r.startTime = time.Now()
	r.endTime = time.Time{}
	r.mu.Unlock()

	log.WithFields(r.backend.Summary).Info("starting load test")

	statusDone := make(chan struct{})
	go r.statusLoop(ctx, statusDone)

	var (
		failuresMu sync.Mutex
		failures   *multierror.Error
	)

	var wg sync.WaitGroup
	for _, t := range r.backend.Tasks {
		t := t
		wg.Add(1)
		go func() {
			defer wg.Done()

			var err error
			if loadOnly {
				err = t.RunLoadOnly(ctx)
			} else {
				err = t.RunGenerate(ctx)
			}
			if err != nil {
				log.WithError(err).Errorf("task %s failed", t.Name())
				failuresMu.Lock()
				failures = multierror.Append(failures, errors.WithMessagef(err, "task %s", t.Name()))
				failuresMu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(statusDone)

	r.mu.Lock()
	r.endTime = time.Now()
	r.mu.Unlock()
	r.logStatus()

	if failures != nil {
		log.WithError(failures).Errorf("%d tasks failed", failures.Len())
		return failures.Errors[0]
	}
	log.Infof("load test complete in %s", r.EndTime().Sub(r.StartTime()))
	return nil
}

// Reset clears every task's progress so the Runner can be reused.
func (r *Runner) Reset() {
	for _, t := range r.backend.Tasks {
		t.Reset()
	}
	r.mu.Lock()
	r.startTime = time.Time{}
	r.endTime = time.Time{}
	r.mu.Unlock()
}

// OverallProgress is the arithmetic mean of every task's completion
// fraction. Tasks are weighted equally regardless of size; the number is for
// operators watching the run, not for scheduling.
func (r *Runner) OverallProgress() float64 {
	tasks := r.backend.Tasks
	if len(tasks) == 0 {
		return 0
	}

	total := 0.0
	for _, t := range tasks {
		total += t.Completion()
	}
	return total / float64(len(tasks))
}

func (r *Runner) statusLoop(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.logStatus()
			if r.OverallProgress() >= 1.0 {
				return
			}
		}
	}
}

// logStatus prints one line per task plus the aggregate. A fraction above
// 1.0 means a completed count outran its total, which the counters allow
// transiently; it is flagged so a persistent overrun gets noticed.
func (r *Runner) logStatus() {
	for _, t := range r.backend.Tasks {
		completion := t.Completion()
		switch {
		case t.Finished():
			log.Infof("%s: Complete!", t.Name())
		case completion > 1.0:
			log.Errorf("%s: completion %.4f is above 1.0, counts are out of sync", t.Name(), completion)
		default:
			log.Infof("%s: %.1f%%", t.Name(), completion*100)
		}
	}
	log.Infof("overall progress: %.1f%%, elapsed %s",
		r.OverallProgress()*100, time.Since(r.StartTime()).Round(time.Second))
}
