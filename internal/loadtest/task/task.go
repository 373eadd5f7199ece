// Package task implements the units of orchestrated work in a load run: the
// readiness-gated task base, the bounded-queue producer/consumer task, and
// the cross-task bulk-load queue.
//
// Every task embeds a progress.Tracker and exposes two entry points. The
// orchestrator calls RunGenerate when fabricating new data and RunLoadOnly
// when loading previously staged data. Both block until the run's data source
// signals readiness, then delegate to a backend-supplied body.
package task

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/openedx/xapi-db-load/internal/loadtest/configuration"
	"github.com/openedx/xapi-db-load/internal/loadtest/progress"
)

// readinessPollInterval is how often a task re-checks the data source's
// readiness latch before starting real work.
const readinessPollInterval = time.Second

// Source is the one-way readiness latch set by the run's data source task and
// observed by every other task. No task begins real work before the latch is
// set; all tasks may proceed in any relative order afterwards.
type Source interface {
	Ready() bool
}

// Task is one independently progressing unit of work in a run: a writer, a
// loader, or the data source itself.
type Task interface {
	progress.Reporter
	RunGenerate(ctx context.Context) error
	RunLoadOnly(ctx context.Context) error
	Reset()
}

// Body is a backend-supplied task implementation, invoked once the data
// source is ready. Errors returned from a Body are task-level fatal: they
// propagate to the orchestrator's join point untouched.
type Body func(ctx context.Context) error

// Base carries the bookkeeping every task shares: progress counters, the
// run config, a named logger and the data-source readiness gate. Concrete
// tasks compose a Base with body functions rather than subclassing.
type Base struct {
	*progress.Tracker

	Config configuration.Config
	Log    *log.Entry

	source   Source
	generate Body
	loadOnly Body
}

// New builds a task from its two bodies. source may be nil for the data
// source task itself, which has nothing to wait on. loadOnly may be nil for
// tasks that cannot run in load-only mode; invoking it then fails the task.
func New(name string, cfg configuration.Config, source Source, generate, loadOnly Body) *Base {
	return &Base{
		Tracker:  progress.NewTracker(name),
		Config:   cfg,
		Log:      log.WithField("task", name),
		source:   source,
		generate: generate,
		loadOnly: loadOnly,
	}
}

// RunGenerate waits for the data source, runs the generate body, and marks
// the task finished on success. Body errors are not caught here; they
// propagate to the orchestrator.
func (b *Base) RunGenerate(ctx context.Context) error {
	return b.run(ctx, b.generate, "generate")
}

// RunLoadOnly is RunGenerate's counterpart for loading already-staged data
// without regenerating it.
func (b *Base) RunLoadOnly(ctx context.Context) error {
	if b.loadOnly == nil {
		return errors.Errorf("%s does not support load-only runs", b.Name())
	}
	return b.run(ctx, b.loadOnly, "load")
}

func (b *Base) run(ctx context.Context, body Body, mode string) error {
	if err := b.waitForSource(ctx); err != nil {
		return err
	}

	if body == nil {
		return errors.Errorf("%s has no %s body", b.Name(), mode)
	}
	if err := body(ctx); err != nil {
		return err
	}

	b.Log.Infof("%s complete", mode)
	b.Finish()
	return nil
}

func (b *Base) waitForSource(ctx context.Context) error {
	if b.source == nil {
		return nil
	}

	for !b.source.Ready() {
		b.Log.Debug("data source setup not complete, waiting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readinessPollInterval):
		}
	}
	return nil
}
