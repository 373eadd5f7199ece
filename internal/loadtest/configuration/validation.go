package configuration

import (
	"github.com/pkg/errors"
)

// knownBackends mirrors the registry in the backends package. Duplicated here
// so config validation does not depend on backend construction.
var knownBackends = map[string]bool{
	"clickhouse":      true,
	"clickhouse_lake": true,
	"csv":             true,
	"ralph":           true,
	"postgres":        true,
}

// Validate checks the whole configuration tree and returns the first problem
// found. It is called before any task is constructed so that a bad config
// fails the run immediately rather than at first use.
func (c Config) Validate() error {
	if !knownBackends[c.Backend] {
		return errors.Errorf("unknown backend %q", c.Backend)
	}
	if c.BatchSize <= 0 {
		return errors.New("batchSize must be positive")
	}
	if c.NumBatches <= 0 {
		return errors.New("numBatches must be positive")
	}
	if c.NumWorkers <= 0 {
		return errors.New("numWorkers must be positive")
	}
	if c.QueueCapacity <= 0 {
		return errors.New("queueCapacity must be positive")
	}
	if c.NumOrganizations <= 0 {
		return errors.New("numOrganizations must be positive")
	}
	if c.NumActors <= 0 {
		return errors.New("numActors must be positive")
	}
	if c.NumActorProfileChanges < 0 {
		return errors.New("numActorProfileChanges must not be negative")
	}
	if c.NumCoursePublishes <= 0 {
		return errors.New("numCoursePublishes must be positive")
	}
	if len(c.CourseSizes) == 0 {
		return errors.New("at least one course size must be configured")
	}

	for name, size := range c.CourseSizes {
		if size.Courses <= 0 {
			return errors.Errorf("course size %q: courses must be positive", name)
		}
		if size.Actors <= 0 {
			return errors.Errorf("course size %q: actors must be positive", name)
		}
		if size.Actors > c.NumActors {
			return errors.Errorf(
				"course size %q wants %d actors but only %d are configured",
				name, size.Actors, c.NumActors)
		}
	}

	start, end, err := c.Dates()
	if err != nil {
		return errors.WithMessage(err, "parsing start/end dates")
	}
	if !start.Before(end) {
		return errors.New("startDate must be before endDate")
	}
	if int(end.Sub(start).Hours()/24) < c.CourseLengthDays {
		return errors.New("time between startDate and endDate must be longer than courseLengthDays")
	}

	return c.validateBackend()
}

func (c Config) validateBackend() error {
	switch c.Backend {
	case "clickhouse", "ralph":
		if c.ClickHouse.Host == "" {
			return errors.New("clickhouse.host must be set")
		}
	case "clickhouse_lake":
		if c.ClickHouse.Host == "" {
			return errors.New("clickhouse.host must be set")
		}
		if c.Staging.Location == "" {
			return errors.New("staging.location must be set for the lake backend")
		}
	case "csv":
		if c.CSV.OutputDirectory == "" {
			return errors.New("csv.outputDirectory must be set")
		}
	case "postgres":
		if len(c.Postgres.Connection) == 0 {
			return errors.New("postgres.connection must be set")
		}
	}

	if c.Backend == "ralph" && c.Ralph.URL == "" {
		return errors.New("ralph.url must be set")
	}

	return nil
}
