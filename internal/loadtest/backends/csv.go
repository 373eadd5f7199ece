package backends

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/openedx/xapi-db-load/internal/loadtest/configuration"
	"github.com/openedx/xapi-db-load/internal/loadtest/events"
)

func init() {
	Register("csv", newCSVBackend)
}

// newCSVBackend builds the file backend: one gzipped CSV per destination
// table, loadable into any system later.
func newCSVBackend(_ context.Context, cfg configuration.Config, gen *events.Generator) (*Backend, error) {
	if err := os.MkdirAll(cfg.CSV.OutputDirectory, 0o755); err != nil {
		return nil, errors.WithMessage(err, "creating csv output directory")
	}

	csvSink := &csvSink{
		dir:   cfg.CSV.OutputDirectory,
		files: map[string]*csvFile{},
	}

	return &Backend{
		Tasks: buildTasks(cfg, gen, csvSink, nil),
		Summary: backendSummary(cfg, map[string]interface{}{
			"outputDirectory": cfg.CSV.OutputDirectory,
		}),
		closers: []func() error{csvSink.Close},
	}, nil
}

// csvSink appends row batches to one gzipped CSV file per table. The events
// and enrollments tasks share the statement table's file, and its writers run
// concurrently, so each file carries its own lock.
type csvSink struct {
	dir string

	mu    sync.Mutex
	files map[string]*csvFile
}

type csvFile struct {
	mu sync.Mutex
	f  *os.File
	gz *gzip.Writer
	w  *csv.Writer
}

func (s *csvSink) WriteRows(_ context.Context, _, table, _ string, rows []row) error {
	if len(rows) == 0 {
		return nil
	}

	file, err := s.file(table)
	if err != nil {
		return err
	}

	file.mu.Lock()
	defer file.mu.Unlock()
	for _, r := range rows {
		if err := file.w.Write(csvCells(r)); err != nil {
			return errors.WithMessagef(err, "writing %s row", table)
		}
	}
	file.w.Flush()
	return errors.WithMessagef(file.w.Error(), "flushing %s rows", table)
}

func (s *csvSink) file(table string) (*csvFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if file, ok := s.files[table]; ok {
		return file, nil
	}

	f, err := os.Create(filepath.Join(s.dir, table+".csv.gz"))
	if err != nil {
		return nil, errors.WithMessagef(err, "creating csv file for %s", table)
	}
	gz := gzip.NewWriter(f)
	file := &csvFile{f: f, gz: gz, w: csv.NewWriter(gz)}
	s.files[table] = file
	return file, nil
}

// Close flushes and closes every open file so the output is readable.
func (s *csvSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, file := range s.files {
		file.mu.Lock()
		file.w.Flush()
		if err := file.w.Error(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := file.gz.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := file.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		file.mu.Unlock()
	}
	s.files = map[string]*csvFile{}
	return firstErr
}
