package backends

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openedx/xapi-db-load/internal/loadtest/configuration"
	"github.com/openedx/xapi-db-load/internal/loadtest/events"
	"github.com/openedx/xapi-db-load/internal/loadtest/metrics"
	"github.com/openedx/xapi-db-load/internal/loadtest/task"
)

// loadOnlyFactory builds a task's load-only body: enqueue previously staged
// files for the table instead of regenerating data. Only the lake backend
// supplies one; everywhere else load-only is unsupported and fails the task.
type loadOnlyFactory func(spec tableSpec, t *task.Base) task.Body

// taskSet builds the writer tasks every backend shares, differing only in
// the sink rows are written through.
type taskSet struct {
	cfg      configuration.Config
	gen      *events.Generator
	sink     tableSink
	specs    tableSpecs
	loadOnly loadOnlyFactory
}

// buildTasks assembles the full task list for a run: the data source first,
// then the metadata writers, then the two statement writers.
func buildTasks(cfg configuration.Config, gen *events.Generator, sink tableSink, loadOnly loadOnlyFactory) []task.Task {
	s := &taskSet{cfg: cfg, gen: gen, sink: sink, specs: specsFor(cfg), loadOnly: loadOnly}

	return []task.Task{
		gen,
		s.enrollmentsTask(),
		s.coursesTask(),
		s.blocksTask(),
		s.objectTagsTask(),
		s.taxonomiesTask(),
		s.tagsTask(),
		s.externalIDsTask(),
		s.profilesTask(),
		s.eventsTask(),
	}
}

// write pushes one batch through the sink and accounts for it.
func (s *taskSet) write(ctx context.Context, t *task.Base, spec tableSpec, fileHint string, rows []row) error {
	start := time.Now()
	if err := s.sink.WriteRows(ctx, spec.database, spec.table, fileHint, rows); err != nil {
		return err
	}
	metrics.RecordBatchWritten(t.Name(), len(rows), time.Since(start))
	return nil
}

// simpleTask builds a metadata writer around a plain body function.
func (s *taskSet) simpleTask(name string, spec tableSpec, body func(ctx context.Context, t *task.Base) error) task.Task {
	var t *task.Base
	generate := func(ctx context.Context) error { return body(ctx, t) }

	var loadOnly task.Body
	if s.loadOnly != nil {
		loadOnly = func(ctx context.Context) error { return s.loadOnly(spec, t)(ctx) }
	}

	t = task.New(name, s.cfg, s.gen, generate, loadOnly)
	return t
}

// coursesTask writes the course overview rows once per configured course
// publish, each publish its own batch and staged file.
func (s *taskSet) coursesTask() task.Task {
	spec := s.specs.courses
	return s.simpleTask("insert_courses", spec, func(ctx context.Context, t *task.Base) error {
		courses := s.gen.Courses()
		publishes := s.cfg.NumCoursePublishes
		t.AddTotal(int64(publishes))

		for i := 0; i < publishes; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if i%10 == 0 {
				t.Log.Infof("starting course publish %d of %d", i, publishes)
			}
			if err := s.write(ctx, t, spec, fmt.Sprintf("%s%d", spec.filePrefix, i), courseRows(courses)); err != nil {
				return err
			}
			t.AddCompleted(1)
		}
		return nil
	})
}

// blocksTask writes each course's block structure, repeated per publish, one
// batch per course since blocks dominate row counts.
func (s *taskSet) blocksTask() task.Task {
	spec := s.specs.blocks
	return s.simpleTask("insert_blocks", spec, func(ctx context.Context, t *task.Base) error {
		courses := s.gen.Courses()
		t.AddTotal(int64(len(courses)))

		for i, course := range courses {
			if err := ctx.Err(); err != nil {
				return err
			}

			var rows []row
			for p := 0; p < s.cfg.NumCoursePublishes; p++ {
				rows = append(rows, blockRows(course)...)
			}
			if err := s.write(ctx, t, spec, fmt.Sprintf("%s%d", spec.filePrefix, i), rows); err != nil {
				return err
			}
			t.AddCompleted(1)
		}
		return nil
	})
}

func (s *taskSet) objectTagsTask() task.Task {
	spec := s.specs.objectTags
	return s.simpleTask("insert_object_tags", spec, func(ctx context.Context, t *task.Base) error {
		courses := s.gen.Courses()
		tags := s.gen.Tags()
		t.AddTotal(int64(len(courses)))

		for i, course := range courses {
			if err := ctx.Err(); err != nil {
				return err
			}

			var rows []row
			for p := 0; p < s.cfg.NumCoursePublishes; p++ {
				rows = append(rows, objectTagRows(course, tags)...)
			}
			if err := s.write(ctx, t, spec, fmt.Sprintf("%s%d", spec.filePrefix, i), rows); err != nil {
				return err
			}
			t.AddCompleted(1)
		}
		return nil
	})
}

func (s *taskSet) taxonomiesTask() task.Task {
	spec := s.specs.taxonomies
	return s.simpleTask("insert_taxonomies", spec, func(ctx context.Context, t *task.Base) error {
		taxonomies := s.gen.Taxonomies()
		t.AddTotal(int64(len(taxonomies)))

		if err := s.write(ctx, t, spec, spec.filePrefix+"0", taxonomyRows(taxonomies)); err != nil {
			return err
		}
		t.AddCompleted(int64(len(taxonomies)))
		return nil
	})
}

func (s *taskSet) tagsTask() task.Task {
	spec := s.specs.tags
	return s.simpleTask("insert_tags", spec, func(ctx context.Context, t *task.Base) error {
		// One insert covers every tag.
		t.AddTotal(1)

		if err := s.write(ctx, t, spec, spec.filePrefix+"0", tagRows(s.gen.Tags())); err != nil {
			return err
		}
		t.AddCompleted(1)
		return nil
	})
}

// externalIDsTask writes the immutable external id mapping once, batched.
func (s *taskSet) externalIDsTask() task.Task {
	spec := s.specs.externalIDs
	return s.simpleTask("insert_external_ids", spec, func(ctx context.Context, t *task.Base) error {
		rows := externalIDRows(s.gen.ExternalIDs())
		t.AddTotal(int64(len(rows)))
		return s.writeChunked(ctx, t, spec, rows)
	})
}

// profilesTask writes one profile row per actor plus the configured churn
// rows, batched.
func (s *taskSet) profilesTask() task.Task {
	spec := s.specs.profiles
	return s.simpleTask("insert_user_profiles", spec, func(ctx context.Context, t *task.Base) error {
		rows := profileRows(s.gen.Profiles())
		t.AddTotal(int64(len(rows)))
		return s.writeChunked(ctx, t, spec, rows)
	})
}

// writeChunked writes rows in batch-size chunks, the last chunk short.
func (s *taskSet) writeChunked(ctx context.Context, t *task.Base, spec tableSpec, rows []row) error {
	for i := 0; i < len(rows); i += s.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := i + s.cfg.BatchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[i:end]
		if err := s.write(ctx, t, spec, fmt.Sprintf("%s%d", spec.filePrefix, i/s.cfg.BatchSize), chunk); err != nil {
			return err
		}
		t.AddCompleted(int64(len(chunk)))
	}
	return nil
}

// eventsTask is the heavyweight statement writer. The queue carries batch
// ids only; workers both generate and write a batch, so the CPU cost of
// statement generation and the IO cost of the sink write overlap across the
// pool. Generation itself fans out over the available cores.
func (s *taskSet) eventsTask() task.Task {
	spec := s.specs.events
	var qt *task.QueueTask[int]

	populate := func(ctx context.Context, enqueue task.Enqueue[int]) error {
		qt.AddTotal(int64(s.cfg.NumBatches))
		for i := 0; i < s.cfg.NumBatches; i++ {
			if i%10 == 0 {
				qt.Log.Debugf("enqueuing batch %d of %d", i, s.cfg.NumBatches)
			}
			if err := enqueue(ctx, i); err != nil {
				return err
			}
		}
		qt.Log.Debug("finished enqueuing batches")
		return nil
	}

	process := func(ctx context.Context, workerID, batchID int, _ int) error {
		records := generateBatch(s.gen, s.cfg.BatchSize)
		if err := s.write(ctx, qt.Base, spec, fmt.Sprintf("%s%d", spec.filePrefix, batchID), eventRows(records)); err != nil {
			return err
		}
		qt.AddCompleted(1)
		return nil
	}

	var loadOnly task.Body
	if s.loadOnly != nil {
		loadOnly = func(ctx context.Context) error { return s.loadOnly(spec, qt.Base)(ctx) }
	}

	qt = task.NewQueueTask("insert_xapi_events", s.cfg, s.gen, populate, process, loadOnly)
	return qt
}

// enrollmentsTask writes the initial registration statement for every
// enrollment. Unlike the random events task, the queue carries materialized
// batches because the statements are derived from course membership, and the
// total is only known once setup has finished. The last batch may be short.
func (s *taskSet) enrollmentsTask() task.Task {
	spec := s.specs.enrollments
	var qt *task.QueueTask[[]events.Record]

	populate := func(ctx context.Context, enqueue task.Enqueue[[]events.Record]) error {
		qt.AddTotal(int64(s.gen.EnrollmentCount()))

		all := s.gen.EnrollmentEvents()
		for i := 0; i < len(all); i += s.cfg.BatchSize {
			end := i + s.cfg.BatchSize
			if end > len(all) {
				end = len(all)
			}
			if err := enqueue(ctx, all[i:end]); err != nil {
				return err
			}
		}
		qt.Log.Debug("enrollment queue populated")
		return nil
	}

	process := func(ctx context.Context, workerID, batchID int, batch []events.Record) error {
		fileHint := fmt.Sprintf("%s%d_%d", spec.filePrefix, workerID, batchID)
		if err := s.write(ctx, qt.Base, spec, fileHint, eventRows(batch)); err != nil {
			return err
		}
		qt.AddCompleted(int64(len(batch)))
		return nil
	}

	var loadOnly task.Body
	if s.loadOnly != nil {
		loadOnly = func(ctx context.Context) error { return s.loadOnly(spec, qt.Base)(ctx) }
	}

	qt = task.NewQueueTask("insert_initial_enrollments", s.cfg, s.gen, populate, process, loadOnly)
	return qt
}

// generateBatch fabricates n statements across the available cores. JSON
// assembly is the CPU-heavy step, so it gets explicit parallelism instead of
// borrowing the IO workers' time.
func generateBatch(gen *events.Generator, n int) []events.Record {
	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}

	records := make([]events.Record, n)
	chunk := (n + workers - 1) / workers

	g := &errgroup.Group{}
	for start := 0; start < n; start += chunk {
		start := start
		end := start + chunk
		if end > n {
			end = n
		}
		g.Go(func() error {
			copy(records[start:end], gen.BatchEvents(end-start))
			return nil
		})
	}
	_ = g.Wait()
	return records
}
