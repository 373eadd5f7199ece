package task

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/openedx/xapi-db-load/internal/loadtest/configuration"
	"github.com/openedx/xapi-db-load/internal/loadtest/metrics"
)

// drainLogInterval is how often the shutdown path logs the number of items
// still queued while waiting for workers to catch up.
const drainLogInterval = 5 * time.Second

// Enqueue submits one payload to the task's queue, blocking while the queue
// is at capacity. It fails only when the run is cancelled mid-submit.
type Enqueue[T any] func(ctx context.Context, payload T) error

// Populate is the producing half of a queue task. It generates payloads and
// submits them through enqueue; returning ends the producing phase and lets
// the queue drain. A non-nil error is task-level fatal.
type Populate[T any] func(ctx context.Context, enqueue Enqueue[T]) error

// Process is the consuming half, invoked by worker goroutines once per queued
// item. batchID is the item's position in submission order, starting at 1.
// Errors fail only the item: it is logged, counted and skipped, and the
// worker moves on.
type Process[T any] func(ctx context.Context, workerID, batchID int, payload T) error

type queuedItem[T any] struct {
	batchID int
	payload T
}

// QueueTask is a producer/consumer task built around a bounded in-memory
// queue. A single populate goroutine submits items, blocking whenever the
// queue holds its configured capacity, while a fixed pool of workers consumes
// them concurrently. The task's body returns only after every submitted item
// has been fully processed or skipped.
type QueueTask[T any] struct {
	*Base

	capacity int
	workers  int
	populate Populate[T]
	process  Process[T]

	queue       chan queuedItem[T]
	outstanding *sync.WaitGroup
	failedItems atomic.Int64
}

// NewQueueTask wires populate and process into a task using the configured
// queue capacity and worker count. The queue itself is created per run, so a
// QueueTask can be Reset and rerun. loadOnly may be nil for backends whose
// queue tasks cannot run in load-only mode.
func NewQueueTask[T any](
	name string,
	cfg configuration.Config,
	source Source,
	populate Populate[T],
	process Process[T],
	loadOnly Body,
) *QueueTask[T] {
	q := &QueueTask[T]{
		capacity: cfg.QueueCapacity,
		workers:  cfg.NumWorkers,
		populate: populate,
		process:  process,
	}
	q.Base = New(name, cfg, source, q.runQueue, loadOnly)
	return q
}

// FailedItems returns how many queued items failed processing and were
// skipped during the current run.
func (q *QueueTask[T]) FailedItems() int64 {
	return q.failedItems.Load()
}

// Reset clears progress and failure counters so the task can run again.
func (q *QueueTask[T]) Reset() {
	q.Base.Reset()
	q.failedItems.Store(0)
}

// runQueue is the task body: start workers, run populate to completion, then
// drain and join before reporting success.
func (q *QueueTask[T]) runQueue(ctx context.Context) error {
	q.queue = make(chan queuedItem[T], q.capacity)
	// Fresh per run: a cancelled run abandons queued items without marking
	// them done, which would wedge a rerun's drain on a shared WaitGroup.
	q.outstanding = &sync.WaitGroup{}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	g := &errgroup.Group{}
	for i := 0; i < q.workers; i++ {
		workerID := i
		g.Go(func() error {
			q.runWorker(workerCtx, workerID)
			return nil
		})
	}

	populateErr := q.runPopulate(ctx)

	// No further submissions. Workers exit once the channel is drained;
	// on cancellation they exit immediately, abandoning queued items.
	close(q.queue)

	if err := q.waitForDrain(ctx); err != nil {
		stopWorkers()
		_ = g.Wait()
		return err
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if populateErr != nil {
		return populateErr
	}

	if failed := q.failedItems.Load(); failed > 0 {
		q.Log.Warnf("%d queue items failed and were skipped", failed)
	}
	return nil
}

func (q *QueueTask[T]) runPopulate(ctx context.Context) error {
	nextBatchID := 0
	enqueue := func(ctx context.Context, payload T) error {
		nextBatchID++
		q.outstanding.Add(1)
		select {
		case q.queue <- queuedItem[T]{batchID: nextBatchID, payload: payload}:
			return nil
		case <-ctx.Done():
			q.outstanding.Done()
			return ctx.Err()
		}
	}
	return q.populate(ctx, enqueue)
}

// waitForDrain blocks until every submitted item has been processed, logging
// backlog size periodically, or until the run is cancelled.
func (q *QueueTask[T]) waitForDrain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.outstanding.Wait()
		close(done)
	}()

	ticker := time.NewTicker(drainLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-ticker.C:
			q.Log.Infof("waiting for queue to drain, %d items buffered", len(q.queue))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *QueueTask[T]) runWorker(ctx context.Context, workerID int) {
	logger := q.Log.WithField("worker", workerID)
	logger.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker cancelled")
			return
		case item, ok := <-q.queue:
			if !ok {
				logger.Debug("worker finished")
				return
			}
			q.processItem(ctx, workerID, item)
			q.outstanding.Done()
		}
	}
}

// processItem runs process with failure isolation: an error or panic loses
// only this item, never the worker or the task.
func (q *QueueTask[T]) processItem(ctx context.Context, workerID int, item queuedItem[T]) {
	logger := q.Log.WithFields(map[string]interface{}{"worker": workerID, "batch": item.batchID})

	defer func() {
		if r := recover(); r != nil {
			q.failedItems.Add(1)
			metrics.RecordItemFailure(q.Name())
			logger.WithError(errors.Errorf("panic: %v", r)).Error("panic processing queue item, skipping")
		}
	}()

	if err := q.process(ctx, workerID, item.batchID, item.payload); err != nil {
		q.failedItems.Add(1)
		metrics.RecordItemFailure(q.Name())
		logger.WithError(err).Error("error processing queue item, skipping")
	}
}
