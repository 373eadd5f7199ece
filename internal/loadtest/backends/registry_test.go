package backends

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openedx/xapi-db-load/internal/loadtest/configuration"
	"github.com/openedx/xapi-db-load/internal/loadtest/events"
)

func TestKnownBackendsAreRegistered(t *testing.T) {
	known := KnownBackends()
	assert.Equal(t, []string{"clickhouse", "clickhouse_lake", "csv", "postgres", "ralph"}, known)
}

func TestBuildRejectsUnknownBackend(t *testing.T) {
	cfg := configuration.Config{Backend: "bigquery"}
	_, err := Build(context.Background(), cfg, events.NewGenerator(cfg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown backend "bigquery"`)
	assert.Contains(t, err.Error(), "clickhouse_lake")
}

func TestRegisterPanicsOnDuplicate(t *testing.T) {
	assert.Panics(t, func() {
		Register("csv", newCSVBackend)
	})
}

func TestBackendCloseRunsEveryCloser(t *testing.T) {
	closed := 0
	b := &Backend{closers: []func() error{
		func() error { closed++; return nil },
		func() error { closed++; return nil },
	}}
	require.NoError(t, b.Close())
	assert.Equal(t, 2, closed)
}
