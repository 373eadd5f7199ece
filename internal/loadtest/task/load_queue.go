package task

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openedx/xapi-db-load/internal/loadtest/configuration"
	"github.com/openedx/xapi-db-load/internal/loadtest/metrics"
	"github.com/openedx/xapi-db-load/internal/loadtest/progress"
)

// producerPollInterval is how often the load queue re-checks whether all of
// its registered producers have finished.
const producerPollInterval = time.Second

// LoadJob is one staged file to bulk-load into its destination table.
type LoadJob struct {
	ID       int64
	Database string
	Table    string
	Location string
}

// ExecuteLoad performs one bulk load. Supplied by the backend; typically an
// INSERT ... SELECT from a staged file or object-store location.
type ExecuteLoad func(ctx context.Context, job LoadJob) error

// LoadQueue is the fan-in task that bulk-loads staged files produced by the
// run's writer tasks. Writers register themselves as producers and submit
// jobs as they close out files; submission never blocks, the queue is
// unbounded. The queue finishes only once every registered producer has
// finished and every submitted job has been processed, so a transiently empty
// queue mid-run never ends it early.
type LoadQueue struct {
	*Base

	execute ExecuteLoad
	workers int

	mu        sync.Mutex
	cond      *sync.Cond
	jobs      []LoadJob
	closed    bool
	producers []progress.Reporter

	nextJobID  atomic.Int64
	failedJobs atomic.Int64
}

// NewLoadQueue builds the load queue around a backend's execute function.
func NewLoadQueue(name string, cfg configuration.Config, source Source, execute ExecuteLoad) *LoadQueue {
	lq := &LoadQueue{
		execute: execute,
		workers: cfg.NumWorkers,
	}
	lq.cond = sync.NewCond(&lq.mu)
	// Loading staged files works the same whether they were written this run
	// or by an earlier one.
	lq.Base = New(name, cfg, source, lq.runLoads, lq.runLoads)
	return lq
}

// RegisterProducer records a task whose completion gates queue shutdown.
// Registering the same producer twice, or the queue itself, is a no-op.
func (lq *LoadQueue) RegisterProducer(p progress.Reporter) {
	if p == progress.Reporter(lq) {
		return
	}

	lq.mu.Lock()
	defer lq.mu.Unlock()
	for _, existing := range lq.producers {
		if existing == p {
			return
		}
	}
	lq.producers = append(lq.producers, p)
}

// AddLoadJob submits one staged file for loading. Safe to call from any
// producer goroutine; never blocks. The returned job ID is the submission
// ordinal, starting at 1.
func (lq *LoadQueue) AddLoadJob(database, table, location string) int64 {
	lq.AddTotal(1)
	// The id comes from its own counter; re-reading the progress total here
	// would hand concurrent producers duplicate ids.
	job := LoadJob{
		ID:       lq.nextJobID.Add(1),
		Database: database,
		Table:    table,
		Location: location,
	}

	lq.mu.Lock()
	if lq.closed {
		lq.mu.Unlock()
		lq.Log.WithField("location", location).Warn("load job submitted after queue shutdown, dropping")
		return job.ID
	}
	lq.jobs = append(lq.jobs, job)
	lq.mu.Unlock()

	lq.cond.Signal()
	metrics.RecordLoadJob()
	return job.ID
}

// FailedJobs returns how many load jobs failed and were skipped this run.
func (lq *LoadQueue) FailedJobs() int64 {
	return lq.failedJobs.Load()
}

// Reset clears counters and buffered jobs for a rerun. Registered producers
// are kept.
func (lq *LoadQueue) Reset() {
	lq.Base.Reset()
	lq.mu.Lock()
	lq.jobs = nil
	lq.closed = false
	lq.mu.Unlock()
	lq.nextJobID.Store(0)
	lq.failedJobs.Store(0)
}

// runLoads is the task body for both modes: run workers against the queue
// until all producers have finished and every submitted job is accounted for.
func (lq *LoadQueue) runLoads(ctx context.Context) error {
	// Wake blocked workers on cancellation so they can observe ctx.
	wakeDone := make(chan struct{})
	defer close(wakeDone)
	go func() {
		select {
		case <-ctx.Done():
			lq.cond.Broadcast()
		case <-wakeDone:
		}
	}()

	g := &errgroup.Group{}
	for i := 0; i < lq.workers; i++ {
		workerID := i
		g.Go(func() error {
			lq.runWorker(ctx, workerID)
			return nil
		})
	}

	err := lq.superviseShutdown(ctx)

	lq.mu.Lock()
	lq.closed = true
	lq.mu.Unlock()
	lq.cond.Broadcast()

	_ = g.Wait()
	if err != nil {
		return err
	}

	if failed := lq.failedJobs.Load(); failed > 0 {
		lq.Log.Warnf("%d load jobs failed and were skipped", failed)
	}
	return nil
}

// superviseShutdown polls until every producer reports finished and every
// submitted job has been processed.
func (lq *LoadQueue) superviseShutdown(ctx context.Context) error {
	ticker := time.NewTicker(producerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if !lq.allProducersFinished() {
			continue
		}
		if lq.CompletedUnits() == lq.TotalUnits() {
			lq.Log.Info("all producers finished and queue drained, shutting down")
			return nil
		}
		lq.Log.Debugf("producers finished, %d of %d load jobs still pending",
			lq.TotalUnits()-lq.CompletedUnits(), lq.TotalUnits())
	}
}

func (lq *LoadQueue) allProducersFinished() bool {
	lq.mu.Lock()
	producers := make([]progress.Reporter, len(lq.producers))
	copy(producers, lq.producers)
	lq.mu.Unlock()

	for _, p := range producers {
		if !p.Finished() {
			return false
		}
	}
	return true
}

func (lq *LoadQueue) runWorker(ctx context.Context, workerID int) {
	logger := lq.Log.WithField("worker", workerID)
	logger.Debug("load worker started")

	for {
		job, ok := lq.dequeue(ctx)
		if !ok {
			logger.Debug("load worker finished")
			return
		}
		lq.processJob(ctx, workerID, job)
	}
}

// dequeue blocks until a job is available or the queue shuts down.
func (lq *LoadQueue) dequeue(ctx context.Context) (LoadJob, bool) {
	lq.mu.Lock()
	defer lq.mu.Unlock()

	for len(lq.jobs) == 0 && !lq.closed && ctx.Err() == nil {
		lq.cond.Wait()
	}
	if len(lq.jobs) == 0 || ctx.Err() != nil {
		return LoadJob{}, false
	}

	job := lq.jobs[0]
	lq.jobs = lq.jobs[1:]
	return job, true
}

// processJob runs one bulk load with per-job failure isolation. The job is
// counted as completed either way so the queue can always drain.
func (lq *LoadQueue) processJob(ctx context.Context, workerID int, job LoadJob) {
	logger := lq.Log.WithFields(map[string]interface{}{
		"worker":   workerID,
		"job":      job.ID,
		"table":    job.Table,
		"location": job.Location,
	})
	defer lq.AddCompleted(1)

	start := time.Now()
	if err := lq.execute(ctx, job); err != nil {
		lq.failedJobs.Add(1)
		metrics.RecordItemFailure(lq.Name())
		logger.WithError(err).Error("error running load job, skipping")
		return
	}
	logger.Infof("load job finished in %s", time.Since(start))
}
