package backends

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openedx/xapi-db-load/internal/loadtest/configuration"
	"github.com/openedx/xapi-db-load/internal/loadtest/task"
)

func testLogger(t *testing.T) *log.Entry {
	return log.WithField("test", t.Name())
}

func backendTestConfig() configuration.Config {
	return configuration.Config{
		BatchSize:     5,
		NumBatches:    4,
		NumWorkers:    2,
		QueueCapacity: 2,
	}
}

func readGzippedCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	records, err := csv.NewReader(gz).ReadAll()
	require.NoError(t, err)
	return records
}

func noopExecute(ctx context.Context, job task.LoadJob) error { return nil }

func TestLakeSinkStagesGzippedCSV(t *testing.T) {
	dir := t.TempDir()
	sink := &lakeSink{
		dir:    dir,
		loader: task.NewLoadQueue("loader", backendTestConfig(), nil, noopExecute),
		logger: testLogger(t),
	}

	rows := []row{
		{"id-1", "2024-03-15 09:30:00", `{"id":"id-1"}`},
		{"id-2", "2024-03-15 09:31:00", `{"id":"id-2"}`},
	}
	require.NoError(t, sink.WriteRows(context.Background(), "xapi", "xapi_events_all", "xapi_7", rows))

	records := readGzippedCSV(t, filepath.Join(dir, "xapi_7.csv.gz"))
	require.Len(t, records, 2)
	assert.Equal(t, "id-1", records[0][0])
	assert.Equal(t, `{"id":"id-2"}`, records[1][2])
}

func TestLakeSinkEnqueuesLoadAfterWrite(t *testing.T) {
	dir := t.TempDir()
	loader := task.NewLoadQueue("loader", backendTestConfig(), nil, noopExecute)
	sink := &lakeSink{
		dir:            dir,
		loader:         loader,
		loadAfterWrite: true,
		logger:         testLogger(t),
	}

	require.NoError(t, sink.WriteRows(context.Background(), "xapi", "xapi_events_all", "xapi_0", []row{{"a"}}))
	assert.Equal(t, int64(1), loader.TotalUnits())

	// An empty batch stages nothing and queues nothing.
	require.NoError(t, sink.WriteRows(context.Background(), "xapi", "xapi_events_all", "xapi_1", nil))
	assert.Equal(t, int64(1), loader.TotalUnits())
}

func TestEnqueueStagedFilesMatchesOnlyItsPrefix(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"xapi_0.csv.gz",
		"xapi_1.csv.gz",
		"initial_enrollments_xapi_0.csv.gz",
		"course_blocks_0.csv.gz",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	cfg := backendTestConfig()
	specs := specsFor(cfg)

	loader := task.NewLoadQueue("loader", cfg, nil, noopExecute)
	eventsWriter := task.New("insert_xapi_events", cfg, nil, nil, nil)
	require.NoError(t, enqueueStagedFiles(eventsWriter, loader, dir, specs.events))
	assert.Equal(t, int64(2), eventsWriter.TotalUnits(),
		"the statement prefix must not match the enrollment files")
	assert.Equal(t, int64(2), eventsWriter.CompletedUnits())

	enrollmentsWriter := task.New("insert_initial_enrollments", cfg, nil, nil, nil)
	require.NoError(t, enqueueStagedFiles(enrollmentsWriter, loader, dir, specs.enrollments))
	assert.Equal(t, int64(1), enrollmentsWriter.TotalUnits())

	assert.Equal(t, int64(3), loader.TotalUnits())
}

func TestEnqueueStagedFilesSkipsWhenNothingStaged(t *testing.T) {
	cfg := backendTestConfig()
	loader := task.NewLoadQueue("loader", cfg, nil, noopExecute)
	writer := task.New("insert_tags", cfg, nil, nil, nil)

	require.NoError(t, enqueueStagedFiles(writer, loader, t.TempDir(), specsFor(cfg).tags))
	assert.Equal(t, int64(0), loader.TotalUnits())
}
