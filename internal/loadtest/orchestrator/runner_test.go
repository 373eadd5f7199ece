package orchestrator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openedx/xapi-db-load/internal/loadtest/backends"
	"github.com/openedx/xapi-db-load/internal/loadtest/progress"
)

// fakeTask is a runnable stand-in whose bodies the tests control directly.
type fakeTask struct {
	*progress.Tracker
	generate func(ctx context.Context) error
	loadOnly func(ctx context.Context) error
}

func (t *fakeTask) RunGenerate(ctx context.Context) error {
	if t.generate == nil {
		return nil
	}
	return t.generate(ctx)
}

func (t *fakeTask) RunLoadOnly(ctx context.Context) error {
	if t.loadOnly == nil {
		return errors.Errorf("%s does not support load-only runs", t.Name())
	}
	return t.loadOnly(ctx)
}

func newFakeTask(name string) *fakeTask {
	return &fakeTask{Tracker: progress.NewTracker(name)}
}

func runnerWith(tasks ...*fakeTask) *Runner {
	b := &backends.Backend{}
	for _, t := range tasks {
		b.Tasks = append(b.Tasks, t)
	}
	return &Runner{backend: b}
}

func TestOverallProgressIsTheMeanCompletion(t *testing.T) {
	done := newFakeTask("done")
	done.AddTotal(1)
	done.Finish()

	half := newFakeTask("half")
	half.AddTotal(10)
	half.AddCompleted(5)

	idle := newFakeTask("idle")

	alsoDone := newFakeTask("also_done")
	alsoDone.Finish()

	r := runnerWith(done, half, idle, alsoDone)
	assert.InDelta(t, 0.625, r.OverallProgress(), 1e-9)
}

func TestRunWaitsForSiblingsBeforeReturningFailure(t *testing.T) {
	var slowFinished atomic.Bool

	failing := newFakeTask("failing")
	failing.generate = func(ctx context.Context) error {
		return errors.New("sink unreachable")
	}

	slow := newFakeTask("slow")
	slow.generate = func(ctx context.Context) error {
		time.Sleep(300 * time.Millisecond)
		slowFinished.Store(true)
		slow.Finish()
		return nil
	}

	r := runnerWith(failing, slow)
	err := r.Run(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task failing")
	assert.Contains(t, err.Error(), "sink unreachable")
	assert.True(t, slowFinished.Load(), "a failure must not cut sibling tasks short")
	assert.False(t, r.EndTime().IsZero())
}

func TestRunSucceedsWhenEveryTaskSucceeds(t *testing.T) {
	a := newFakeTask("a")
	a.generate = func(ctx context.Context) error { a.Finish(); return nil }
	b := newFakeTask("b")
	b.generate = func(ctx context.Context) error { b.Finish(); return nil }

	r := runnerWith(a, b)
	require.NoError(t, r.Run(context.Background(), false))
	assert.Equal(t, 1.0, r.OverallProgress())
	assert.False(t, r.StartTime().IsZero())
	assert.False(t, r.EndTime().IsZero())
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	release := make(chan struct{})
	blocked := newFakeTask("blocked")
	blocked.generate = func(ctx context.Context) error {
		<-release
		blocked.Finish()
		return nil
	}

	r := runnerWith(blocked)
	first := make(chan error, 1)
	go func() { first <- r.Run(context.Background(), false) }()

	// Wait until the first run holds the guard.
	require.Eventually(t, func() bool {
		return r.running.Load()
	}, time.Second, 10*time.Millisecond)

	err := r.Run(context.Background(), false)
	assert.ErrorContains(t, err, "already in progress")

	close(release)
	require.NoError(t, <-first)
}

func TestRunDispatchesLoadOnly(t *testing.T) {
	var loaded atomic.Bool
	tk := newFakeTask("loader")
	tk.loadOnly = func(ctx context.Context) error {
		loaded.Store(true)
		tk.Finish()
		return nil
	}
	tk.generate = func(ctx context.Context) error {
		t.Error("generate must not run in load-only mode")
		return nil
	}

	r := runnerWith(tk)
	require.NoError(t, r.Run(context.Background(), true))
	assert.True(t, loaded.Load())
}

func TestResetClearsTasksAndTimes(t *testing.T) {
	tk := newFakeTask("writer")
	tk.generate = func(ctx context.Context) error { tk.Finish(); return nil }

	r := runnerWith(tk)
	require.NoError(t, r.Run(context.Background(), false))
	require.True(t, tk.Finished())

	r.Reset()
	assert.False(t, tk.Finished())
	assert.Equal(t, 0.0, r.OverallProgress())
	assert.True(t, r.StartTime().IsZero())
	assert.True(t, r.EndTime().IsZero())
}
