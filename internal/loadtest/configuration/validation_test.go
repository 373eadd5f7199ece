package configuration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Backend:                "clickhouse",
		BatchSize:              100,
		NumBatches:             10,
		NumWorkers:             4,
		QueueCapacity:          20,
		NumOrganizations:       3,
		NumActors:              50,
		NumActorProfileChanges: 10,
		NumCoursePublishes:     2,
		CourseLengthDays:       30,
		StartDate:              "2024-01-01",
		EndDate:                "2024-12-31",
		CourseSizes: map[string]CourseSize{
			"small": {Courses: 2, Actors: 10, Chapters: 2, Sequences: 4, Verticals: 8, Problems: 10, Videos: 5, ForumPosts: 5},
		},
		ClickHouse: ClickHouseConfig{Host: "localhost", Port: 9000, Database: "xapi"},
	}
}

func TestValidConfigPasses(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := map[string]struct {
		mutate      func(c *Config)
		expectedErr string
	}{
		"unknown backend": {
			mutate:      func(c *Config) { c.Backend = "bigquery" },
			expectedErr: "unknown backend",
		},
		"zero batch size": {
			mutate:      func(c *Config) { c.BatchSize = 0 },
			expectedErr: "batchSize",
		},
		"negative workers": {
			mutate:      func(c *Config) { c.NumWorkers = -1 },
			expectedErr: "numWorkers",
		},
		"zero queue capacity": {
			mutate:      func(c *Config) { c.QueueCapacity = 0 },
			expectedErr: "queueCapacity",
		},
		"no course sizes": {
			mutate:      func(c *Config) { c.CourseSizes = nil },
			expectedErr: "course size",
		},
		"course wants more actors than exist": {
			mutate: func(c *Config) {
				size := c.CourseSizes["small"]
				size.Actors = 500
				c.CourseSizes["small"] = size
			},
			expectedErr: "actors",
		},
		"unparseable start date": {
			mutate:      func(c *Config) { c.StartDate = "01/01/2024" },
			expectedErr: "dates",
		},
		"start after end": {
			mutate: func(c *Config) {
				c.StartDate = "2025-01-01"
				c.EndDate = "2024-01-01"
			},
			expectedErr: "before endDate",
		},
		"date range shorter than course length": {
			mutate: func(c *Config) {
				c.EndDate = "2024-01-15"
			},
			expectedErr: "courseLengthDays",
		},
		"clickhouse without host": {
			mutate:      func(c *Config) { c.ClickHouse.Host = "" },
			expectedErr: "clickhouse.host",
		},
		"lake without staging location": {
			mutate:      func(c *Config) { c.Backend = "clickhouse_lake" },
			expectedErr: "staging.location",
		},
		"csv without output directory": {
			mutate:      func(c *Config) { c.Backend = "csv" },
			expectedErr: "csv.outputDirectory",
		},
		"ralph without url": {
			mutate:      func(c *Config) { c.Backend = "ralph" },
			expectedErr: "ralph.url",
		},
		"postgres without connection": {
			mutate:      func(c *Config) { c.Backend = "postgres" },
			expectedErr: "postgres.connection",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.expectedErr)
		})
	}
}

func TestTotals(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, 1000, cfg.TotalEvents())
	assert.Equal(t, 2, cfg.TotalCourses())
}
