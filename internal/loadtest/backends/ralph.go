package backends

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/openedx/xapi-db-load/internal/loadtest/configuration"
	"github.com/openedx/xapi-db-load/internal/loadtest/events"
	"github.com/openedx/xapi-db-load/internal/loadtest/sink"
)

func init() {
	Register("ralph", newRalphBackend)
}

// newRalphBackend builds the LRS backend: xAPI statements are POSTed to
// Ralph, which owns the statement table, while the metadata tables Ralph
// does not handle are written directly to ClickHouse.
func newRalphBackend(ctx context.Context, cfg configuration.Config, gen *events.Generator) (*Backend, error) {
	chSink, err := newClickHouseSink(ctx, cfg.ClickHouse)
	if err != nil {
		return nil, err
	}

	specs := specsFor(cfg)
	ralph := &ralphSink{
		metadata:    chSink,
		eventsTable: specs.events.table,
		url:         cfg.Ralph.URL,
		username:    cfg.Ralph.Username,
		password:    cfg.Ralph.Password,
		client:      &http.Client{Timeout: 5 * time.Minute},
		logger:      log.WithField("sink", "ralph"),
	}

	return &Backend{
		Tasks: buildTasks(cfg, gen, ralph, nil),
		Summary: backendSummary(cfg, map[string]interface{}{
			"lrsUrl":         cfg.Ralph.URL,
			"clickhouseHost": cfg.ClickHouse.Host,
		}),
		closers: []func() error{chSink.Close},
	}, nil
}

// ralphSink routes statement batches to the LRS over HTTP and everything
// else to the ClickHouse metadata sink.
type ralphSink struct {
	metadata    *clickHouseSink
	eventsTable string

	url      string
	username string
	password string
	client   *http.Client
	logger   *log.Entry
}

func (s *ralphSink) WriteRows(ctx context.Context, database, table, fileHint string, rows []row) error {
	if table == s.eventsTable {
		return s.postStatements(ctx, rows)
	}
	return s.metadata.WriteRows(ctx, database, table, fileHint, rows)
}

// postStatements sends one batch of statements as a JSON array. The
// statement column already holds serialized JSON, so the body is assembled
// directly.
func (s *ralphSink) postStatements(ctx context.Context, rows []row) error {
	var body strings.Builder
	body.WriteByte('[')
	for i, r := range rows {
		if i > 0 {
			body.WriteByte(',')
		}
		statement, ok := r[len(r)-1].(string)
		if !ok {
			return errors.Errorf("statement row has no JSON payload: %v", r)
		}
		body.WriteString(statement)
	}
	body.WriteByte(']')

	return sink.WriteWithRetry(ctx, s.logger, func(ctx context.Context) error {
		return s.post(ctx, body.String())
	})
}

func (s *ralphSink) post(ctx context.Context, body string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.SetBasicAuth(s.username, s.password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		// Connection-class failure, worth the single retry.
		return sink.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return sink.Transient(errors.Errorf("LRS returned %s", resp.Status))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("LRS rejected statement batch: %s", resp.Status)
	}
	return nil
}
