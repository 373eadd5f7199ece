package backends

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openedx/xapi-db-load/internal/loadtest/configuration"
	"github.com/openedx/xapi-db-load/internal/loadtest/events"
	"github.com/openedx/xapi-db-load/internal/loadtest/task"
)

// recordingSink captures every batch so tests can assert on what the writer
// tasks produced without a real storage backend.
type recordingSink struct {
	mu      sync.Mutex
	batches []recordedBatch
}

type recordedBatch struct {
	database string
	table    string
	fileHint string
	rows     []row
}

func (s *recordingSink) WriteRows(_ context.Context, database, table, fileHint string, rows []row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, recordedBatch{database, table, fileHint, rows})
	return nil
}

func (s *recordingSink) rowCount(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, b := range s.batches {
		if b.table == table {
			count += len(b.rows)
		}
	}
	return count
}

func (s *recordingSink) batchCount(filePrefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, b := range s.batches {
		if strings.HasPrefix(b.fileHint, filePrefix) {
			count++
		}
	}
	return count
}

func fullRunConfig() configuration.Config {
	return configuration.Config{
		Backend:                "csv",
		BatchSize:              10,
		NumBatches:             4,
		NumWorkers:             2,
		QueueCapacity:          2,
		NumOrganizations:       2,
		NumActors:              12,
		NumActorProfileChanges: 3,
		NumCoursePublishes:     2,
		CourseLengthDays:       30,
		StartDate:              "2024-01-01",
		EndDate:                "2024-12-31",
		CourseSizes: map[string]configuration.CourseSize{
			"small": {Courses: 2, Actors: 4, Chapters: 2, Sequences: 2, Verticals: 2, Problems: 3, Videos: 2, ForumPosts: 1},
		},
	}
}

func TestBuildTasksWritesEveryTable(t *testing.T) {
	cfg := fullRunConfig()
	gen := events.NewGenerator(cfg)
	sink := &recordingSink{}
	specs := specsFor(cfg)

	tasks := buildTasks(cfg, gen, sink, nil)
	require.Len(t, tasks, 10)
	require.Same(t, task.Task(gen), tasks[0], "the data source runs as a task")

	ctx := context.Background()
	require.NoError(t, gen.RunGenerate(ctx))
	for _, tk := range tasks[1:] {
		require.NoError(t, tk.RunGenerate(ctx), "task %s", tk.Name())
		assert.True(t, tk.Finished(), "task %s", tk.Name())
	}

	// Random statements plus one registration per enrollment, all landing in
	// the statements table.
	expectedStatements := cfg.TotalEvents() + gen.EnrollmentCount()
	assert.Equal(t, expectedStatements, sink.rowCount(specs.events.table))
	assert.Equal(t, cfg.NumBatches, sink.batchCount(specs.events.filePrefix))
	assert.GreaterOrEqual(t, sink.batchCount(specs.enrollments.filePrefix), 1)

	assert.Equal(t, cfg.NumCoursePublishes, sink.batchCount(specs.courses.filePrefix))
	assert.Equal(t, cfg.NumCoursePublishes*cfg.TotalCourses(), sink.rowCount(specs.courses.table))

	blocksPerCourse := 1 + 2 + 2 + 2 + 3 + 2
	assert.Equal(t, cfg.TotalCourses()*cfg.NumCoursePublishes*blocksPerCourse,
		sink.rowCount(specs.blocks.table))

	assert.Equal(t, len(gen.Taxonomies()), sink.rowCount(specs.taxonomies.table))
	assert.Equal(t, len(gen.Tags()), sink.rowCount(specs.tags.table))
	assert.Equal(t, cfg.NumActors, sink.rowCount(specs.externalIDs.table))
	assert.Equal(t, cfg.NumActors+cfg.NumActorProfileChanges, sink.rowCount(specs.profiles.table))
}

func TestWriterTasksRejectLoadOnlyWithoutFactory(t *testing.T) {
	cfg := fullRunConfig()
	gen := events.NewGenerator(cfg)

	tasks := buildTasks(cfg, gen, &recordingSink{}, nil)
	err := tasks[2].RunLoadOnly(context.Background())
	assert.ErrorContains(t, err, "does not support load-only")
}

func TestWriterTasksUseLoadOnlyFactory(t *testing.T) {
	cfg := fullRunConfig()
	gen := events.NewGenerator(cfg)

	var mu sync.Mutex
	loaded := map[string]bool{}
	factory := func(spec tableSpec, t *task.Base) task.Body {
		return func(ctx context.Context) error {
			mu.Lock()
			loaded[spec.filePrefix] = true
			mu.Unlock()
			return nil
		}
	}

	tasks := buildTasks(cfg, gen, &recordingSink{}, factory)
	ctx := context.Background()
	require.NoError(t, gen.RunLoadOnly(ctx))
	for _, tk := range tasks[1:] {
		require.NoError(t, tk.RunLoadOnly(ctx), "task %s", tk.Name())
	}

	specs := specsFor(cfg)
	assert.True(t, loaded[specs.events.filePrefix])
	assert.True(t, loaded[specs.enrollments.filePrefix])
	assert.True(t, loaded[specs.courses.filePrefix])
	assert.True(t, loaded[specs.profiles.filePrefix])
}

func TestGenerateBatchProducesExactCount(t *testing.T) {
	cfg := fullRunConfig()
	gen := events.NewGenerator(cfg)
	require.NoError(t, gen.RunGenerate(context.Background()))

	for _, n := range []int{1, 7, 64} {
		records := generateBatch(gen, n)
		require.Len(t, records, n)
		for _, record := range records {
			assert.NotEmpty(t, record.EventID, "parallel generation must fill every slot")
		}
	}
}
