package backends

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/openedx/xapi-db-load/internal/loadtest/configuration"
	"github.com/openedx/xapi-db-load/internal/loadtest/events"
	"github.com/openedx/xapi-db-load/internal/loadtest/task"
)

func init() {
	Register("clickhouse_lake", newLakeBackend)
}

// newLakeBackend builds the staged-file backend: writer tasks stage each
// batch as a gzipped CSV file, and a fan-in load queue bulk-loads the staged
// files into ClickHouse while the writers keep producing. With LoadAfterWrite
// off the files are left in place for a later load-only run.
func newLakeBackend(ctx context.Context, cfg configuration.Config, gen *events.Generator) (*Backend, error) {
	if err := os.MkdirAll(cfg.Staging.Location, 0o755); err != nil {
		return nil, errors.WithMessage(err, "creating staging directory")
	}

	chSink, err := newClickHouseSink(ctx, cfg.ClickHouse)
	if err != nil {
		return nil, err
	}

	loader := task.NewLoadQueue("load_staged_files", cfg, gen, chSink.executeLoad(cfg.Staging))
	stage := &lakeSink{
		dir:            cfg.Staging.Location,
		loader:         loader,
		loadAfterWrite: cfg.Staging.LoadAfterWrite,
		logger:         log.WithField("sink", "lake"),
	}

	loadOnly := func(spec tableSpec, t *task.Base) task.Body {
		return func(ctx context.Context) error {
			return enqueueStagedFiles(t, loader, cfg.Staging.Location, spec)
		}
	}

	tasks := buildTasks(cfg, gen, stage, loadOnly)
	for _, t := range tasks {
		loader.RegisterProducer(t)
	}
	tasks = append(tasks, loader)

	return &Backend{
		Tasks: tasks,
		Summary: backendSummary(cfg, map[string]interface{}{
			"clickhouseHost": cfg.ClickHouse.Host,
			"stagingDir":     cfg.Staging.Location,
			"loadAfterWrite": cfg.Staging.LoadAfterWrite,
		}),
		closers: []func() error{chSink.Close},
	}, nil
}

// lakeSink writes each batch to its own gzipped CSV file in the staging
// directory, optionally queueing a bulk-load job for it right away.
type lakeSink struct {
	dir            string
	loader         *task.LoadQueue
	loadAfterWrite bool
	logger         *log.Entry
}

func (s *lakeSink) WriteRows(_ context.Context, database, table, fileHint string, rows []row) error {
	if len(rows) == 0 {
		return nil
	}

	path := filepath.Join(s.dir, fileHint+".csv.gz")
	if err := writeGzippedCSV(path, rows); err != nil {
		return errors.WithMessagef(err, "staging %s", path)
	}

	s.logger.WithField("file", path).Debugf("staged %d rows", len(rows))
	if s.loadAfterWrite {
		s.loader.AddLoadJob(database, table, path)
	}
	return nil
}

func writeGzippedCSV(path string, rows []row) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(f)
	w := csv.NewWriter(gz)
	for _, r := range rows {
		if err := w.Write(csvCells(r)); err != nil {
			_ = f.Close()
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// enqueueStagedFiles is the load-only body shared by every lake writer task:
// find the staged files written for this table in an earlier run and queue a
// load job for each. File prefixes are chosen so no two tasks match the same
// files.
func enqueueStagedFiles(t *task.Base, loader *task.LoadQueue, dir string, spec tableSpec) error {
	matches, err := filepath.Glob(filepath.Join(dir, spec.filePrefix+"*.csv.gz"))
	if err != nil {
		return errors.WithMessage(err, "listing staged files")
	}
	if len(matches) == 0 {
		t.Log.Warnf("no staged files found for prefix %s, skipping load", spec.filePrefix)
		return nil
	}

	t.AddTotal(int64(len(matches)))
	for _, path := range matches {
		loader.AddLoadJob(spec.database, spec.table, path)
		t.AddCompleted(1)
	}
	t.Log.Infof("queued %d staged files for load", len(matches))
	return nil
}
