package backends

import (
	"context"
	"crypto/tls"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"net"
	"strings"

	clickhouse "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/openedx/xapi-db-load/internal/loadtest/configuration"
	"github.com/openedx/xapi-db-load/internal/loadtest/events"
	"github.com/openedx/xapi-db-load/internal/loadtest/sink"
	"github.com/openedx/xapi-db-load/internal/loadtest/task"
)

func init() {
	Register("clickhouse", newClickHouseBackend)
}

// newClickHouseBackend builds the direct-SQL backend: every task writes
// VALUES inserts straight to ClickHouse.
func newClickHouseBackend(ctx context.Context, cfg configuration.Config, gen *events.Generator) (*Backend, error) {
	chSink, err := newClickHouseSink(ctx, cfg.ClickHouse)
	if err != nil {
		return nil, err
	}

	return &Backend{
		Tasks: buildTasks(cfg, gen, chSink, nil),
		Summary: backendSummary(cfg, map[string]interface{}{
			"clickhouseHost": cfg.ClickHouse.Host,
		}),
		closers: []func() error{chSink.Close},
	}, nil
}

// clickHouseSink writes row batches as bulk VALUES inserts and runs the bulk
// load SQL for staged files.
type clickHouseSink struct {
	db     *sql.DB
	logger *log.Entry
}

func newClickHouseSink(ctx context.Context, cfg configuration.ClickHouseConfig) (*clickHouseSink, error) {
	opts := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	}
	if cfg.Secure {
		opts.TLS = &tls.Config{}
	}

	db := clickhouse.OpenDB(opts)
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.WithMessagef(err, "connecting to ClickHouse at %s", cfg.Host)
	}
	return &clickHouseSink{db: db, logger: log.WithField("sink", "clickhouse")}, nil
}

func (s *clickHouseSink) WriteRows(ctx context.Context, database, table, _ string, rows []row) error {
	if len(rows) == 0 {
		return nil
	}
	return s.exec(ctx, fmt.Sprintf("INSERT INTO %s.%s VALUES %s", database, table, sqlTuples(rows)))
}

func (s *clickHouseSink) exec(ctx context.Context, query string) error {
	return sink.WriteWithRetry(ctx, s.logger, func(ctx context.Context) error {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return classifyDBError(err)
		}
		return nil
	})
}

// executeLoad returns the bulk loader for staged files: a local path is read
// through the file() table function, an object store URL through s3().
func (s *clickHouseSink) executeLoad(staging configuration.StagingConfig) task.ExecuteLoad {
	return func(ctx context.Context, job task.LoadJob) error {
		var source string
		if strings.HasPrefix(job.Location, "http://") || strings.HasPrefix(job.Location, "https://") {
			source = fmt.Sprintf("s3('%s', '%s', '%s', 'CSV')",
				job.Location, staging.S3Key, staging.S3Secret)
		} else {
			source = fmt.Sprintf("file('%s', 'CSV')", job.Location)
		}
		return s.exec(ctx, fmt.Sprintf("INSERT INTO %s.%s SELECT * FROM %s", job.Database, job.Table, source))
	}
}

func (s *clickHouseSink) Close() error {
	return s.db.Close()
}

// classifyDBError marks connection-class failures as transient so the write
// gets its single retry; statement-class failures stay permanent.
func classifyDBError(err error) error {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) {
		return sink.Transient(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return sink.Transient(err)
	}
	return err
}

// backendSummary merges the run configuration summary with backend-specific
// details for the startup log.
func backendSummary(cfg configuration.Config, extra map[string]interface{}) map[string]interface{} {
	summary := cfg.Summary()
	for k, v := range extra {
		summary[k] = v
	}
	return summary
}
