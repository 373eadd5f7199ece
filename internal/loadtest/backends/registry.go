// Package backends builds the task set for each supported storage backend:
// direct ClickHouse SQL, staged-file lake with deferred bulk load, gzipped
// CSV, the Ralph LRS, and Postgres/Citus. All backends share one set of
// writer tasks parameterized by a tableSink; the differences live in how a
// sink persists a batch of rows.
package backends

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/openedx/xapi-db-load/internal/loadtest/configuration"
	"github.com/openedx/xapi-db-load/internal/loadtest/events"
	"github.com/openedx/xapi-db-load/internal/loadtest/task"
)

// Backend is one constructed backend: its runnable task set, a summary the
// runner logs at startup, and whatever needs closing when the run ends.
type Backend struct {
	Tasks   []task.Task
	Summary map[string]interface{}

	closers []func() error
}

// Close releases the backend's connections and file handles. Called once
// after the run completes, successfully or not.
func (b *Backend) Close() error {
	var firstErr error
	for _, close := range b.closers {
		if err := close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Factory constructs a backend from validated configuration.
type Factory func(ctx context.Context, cfg configuration.Config, gen *events.Generator) (*Backend, error)

var registry = map[string]Factory{}

// Register adds a backend factory under its id. Called from init functions;
// duplicate registration is a programming error.
func Register(id string, factory Factory) {
	if _, exists := registry[id]; exists {
		panic("backend already registered: " + id)
	}
	registry[id] = factory
}

// Build constructs the backend selected by cfg.Backend, failing fast on an
// unknown id rather than guessing.
func Build(ctx context.Context, cfg configuration.Config, gen *events.Generator) (*Backend, error) {
	factory, ok := registry[cfg.Backend]
	if !ok {
		return nil, errors.Errorf("unknown backend %q, known backends: %s",
			cfg.Backend, strings.Join(KnownBackends(), ", "))
	}
	return factory(ctx, cfg, gen)
}

// KnownBackends returns the registered backend ids, sorted.
func KnownBackends() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
