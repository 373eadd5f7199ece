package configuration

import (
	"time"
)

// DateFormat is the layout for startDate/endDate config values.
const DateFormat = "2006-01-02"

// Config is the full input configuration for a load run. It is read once at
// startup, validated, and then shared read-only by every task in the run.
type Config struct {
	// Backend selects the task set to run, e.g. "clickhouse", "clickhouse_lake",
	// "csv", "ralph" or "postgres". Validated against the backend registry.
	Backend string

	// BatchSize is the number of statements written per batch.
	BatchSize int
	// NumBatches is the number of randomized statement batches to generate.
	// BatchSize * NumBatches is the total number of random xAPI statements.
	NumBatches int
	// NumWorkers is the per-task worker pool size.
	NumWorkers int
	// QueueCapacity bounds each task's work queue. A populate step blocks when
	// the queue is full, capping peak memory no matter how many batches remain.
	QueueCapacity int

	NumOrganizations       int
	NumActors              int
	NumActorProfileChanges int
	NumCoursePublishes     int
	CourseLengthDays       int

	StartDate string
	EndDate   string

	// CourseSizes maps a size label ("small", "medium", ...) to the number of
	// courses of that size and their block makeup.
	CourseSizes map[string]CourseSize

	ClickHouse ClickHouseConfig
	Postgres   PostgresConfig
	Ralph      RalphConfig
	CSV        CSVConfig
	Staging    StagingConfig

	// EventSinkDatabase is the schema metadata tables are written to.
	EventSinkDatabase string
	// EventDatabase is the schema the xAPI statement table lives in.
	EventDatabase string
}

// CourseSize describes how many courses of a size category to fabricate and
// what each of those courses contains.
type CourseSize struct {
	Courses    int
	Actors     int
	Chapters   int
	Sequences  int
	Verticals  int
	Problems   int
	Videos     int
	ForumPosts int
}

type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Secure   bool
}

type PostgresConfig struct {
	// Connection holds libpq-style key/value pairs (host, port, dbname, ...).
	Connection map[string]string
}

type RalphConfig struct {
	URL      string
	Username string
	Password string
}

type CSVConfig struct {
	// OutputDirectory receives one gzipped CSV file per record type.
	OutputDirectory string
}

type StagingConfig struct {
	// Location is where lake writer tasks stage batch files. A plain path is
	// loaded back via ClickHouse's file() table function, an https:// object
	// store URL via s3().
	Location string
	// S3Key and S3Secret are passed to the s3() table function on load.
	S3Key    string
	S3Secret string
	// LoadAfterWrite enqueues a bulk-load job for every staged file as soon as
	// it is written, instead of leaving the files for a later --load-only run.
	LoadAfterWrite bool
}

// TotalEvents returns the number of random xAPI statements a run generates.
func (c Config) TotalEvents() int {
	return c.BatchSize * c.NumBatches
}

// TotalCourses returns the number of courses across all size categories.
func (c Config) TotalCourses() int {
	total := 0
	for _, size := range c.CourseSizes {
		total += size.Courses
	}
	return total
}

// Dates returns the parsed start and end dates. Validate guarantees these
// parse, so errors only surface on unvalidated configs.
func (c Config) Dates() (time.Time, time.Time, error) {
	start, err := time.Parse(DateFormat, c.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.Parse(DateFormat, c.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// Summary describes the configured run for logging at startup.
func (c Config) Summary() map[string]interface{} {
	return map[string]interface{}{
		"backend":              c.Backend,
		"numBatches":           c.NumBatches,
		"batchSize":            c.BatchSize,
		"totalEvents":          c.TotalEvents(),
		"numActors":            c.NumActors,
		"numActorProfileChanges": c.NumActorProfileChanges,
		"numCourses":           c.TotalCourses(),
		"numCoursePublishes":   c.NumCoursePublishes,
	}
}
