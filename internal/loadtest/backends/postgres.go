package backends

import (
	"context"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/openedx/xapi-db-load/internal/loadtest/configuration"
	"github.com/openedx/xapi-db-load/internal/loadtest/events"
	"github.com/openedx/xapi-db-load/internal/loadtest/sink"
)

func init() {
	Register("postgres", newPostgresBackend)
}

// newPostgresBackend builds the Postgres/Citus backend: the same task set as
// the direct ClickHouse backend, writing bulk VALUES inserts through a pgx
// connection pool. Destination databases map to Postgres schemas.
func newPostgresBackend(ctx context.Context, cfg configuration.Config, gen *events.Generator) (*Backend, error) {
	pool, err := pgxpool.Connect(ctx, postgresDSN(cfg.Postgres))
	if err != nil {
		return nil, errors.WithMessage(err, "connecting to postgres")
	}

	pgSink := &postgresSink{pool: pool, logger: log.WithField("sink", "postgres")}
	return &Backend{
		Tasks: buildTasks(cfg, gen, pgSink, nil),
		Summary: backendSummary(cfg, map[string]interface{}{
			"postgresHost": cfg.Postgres.Connection["host"],
		}),
		closers: []func() error{func() error { pool.Close(); return nil }},
	}, nil
}

// postgresDSN renders the configured key/value pairs as a libpq connection
// string, keys sorted for a stable DSN.
func postgresDSN(cfg configuration.PostgresConfig) string {
	keys := make([]string, 0, len(cfg.Connection))
	for k := range cfg.Connection {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = fmt.Sprintf("%s=%s", k, cfg.Connection[k])
	}
	return strings.Join(pairs, " ")
}

type postgresSink struct {
	pool   *pgxpool.Pool
	logger *log.Entry
}

func (s *postgresSink) WriteRows(ctx context.Context, database, table, _ string, rows []row) error {
	if len(rows) == 0 {
		return nil
	}

	query := fmt.Sprintf("INSERT INTO %s.%s VALUES %s", database, table, sqlTuplesStandard(rows))
	return sink.WriteWithRetry(ctx, s.logger, func(ctx context.Context) error {
		if _, err := s.pool.Exec(ctx, query); err != nil {
			return classifyPostgresError(err)
		}
		return nil
	})
}

func classifyPostgresError(err error) error {
	if errors.Is(err, io.EOF) {
		return sink.Transient(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return sink.Transient(err)
	}
	return err
}
