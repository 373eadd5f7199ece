package backends

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openedx/xapi-db-load/internal/loadtest/configuration"
)

// sinkTimeFormat is how timestamps are rendered for SQL values and CSV cells.
const sinkTimeFormat = "2006-01-02 15:04:05"

// tableSink persists one batch of rows for one destination table. fileHint
// names the staged file for file-producing sinks; it is unique per batch so
// staged batches never collide and can be bulk-loaded independently.
type tableSink interface {
	WriteRows(ctx context.Context, database, table, fileHint string, rows []row) error
}

// tableSpec ties a destination table to the staging file prefix its batches
// are written under.
type tableSpec struct {
	database   string
	table      string
	filePrefix string
}

// tableSpecs resolves the destination tables for a run. The xAPI statement
// table and the event sink tables can live in different databases.
type tableSpecs struct {
	events      tableSpec
	enrollments tableSpec
	courses     tableSpec
	blocks      tableSpec
	objectTags  tableSpec
	taxonomies  tableSpec
	tags        tableSpec
	externalIDs tableSpec
	profiles    tableSpec
}

func specsFor(cfg configuration.Config) tableSpecs {
	eventDB := cfg.EventDatabase
	if eventDB == "" {
		eventDB = "xapi"
	}
	sinkDB := cfg.EventSinkDatabase
	if sinkDB == "" {
		sinkDB = "event_sink"
	}

	return tableSpecs{
		events: tableSpec{eventDB, "xapi_events_all", "xapi_"},
		// Enrollments land in the statements table but stage under their own
		// prefix so a load-only run never loads the same files twice.
		enrollments: tableSpec{eventDB, "xapi_events_all", "initial_enrollments_xapi_"},
		courses:     tableSpec{sinkDB, "course_overviews", "course_overviews_publish_"},
		blocks:      tableSpec{sinkDB, "course_blocks", "course_blocks_"},
		objectTags:  tableSpec{sinkDB, "object_tag", "object_tag_"},
		taxonomies:  tableSpec{sinkDB, "taxonomy", "taxonomy_"},
		tags:        tableSpec{sinkDB, "tag", "tag_"},
		externalIDs: tableSpec{sinkDB, "external_id", "external_id_"},
		profiles:    tableSpec{sinkDB, "user_profile", "user_profile_"},
	}
}

// sqlValue renders one typed value as a SQL literal. Strings are single
// quoted with embedded quotes and backslashes escaped, which covers both
// ClickHouse and Postgres (standard_conforming_strings off is not supported).
func sqlValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return "'" + escapeSQLString(val) + "'"
	case time.Time:
		return "'" + val.UTC().Format(sinkTimeFormat) + "'"
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", val)
	}
}

func escapeSQLString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", `\'`)
}

// sqlTuples renders rows as a comma-joined list of value tuples for a bulk
// VALUES insert.
func sqlTuples(rows []row) string {
	var sb strings.Builder
	for i, r := range rows {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('(')
		for j, v := range r {
			if j > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(sqlValue(v))
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

// sqlTuplesStandard is sqlTuples with standard-conforming string quoting
// (embedded quotes doubled, backslashes left alone) for Postgres.
func sqlTuplesStandard(rows []row) string {
	var sb strings.Builder
	for i, r := range rows {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('(')
		for j, v := range r {
			if j > 0 {
				sb.WriteByte(',')
			}
			switch val := v.(type) {
			case string:
				sb.WriteString("'" + strings.ReplaceAll(val, "'", "''") + "'")
			default:
				sb.WriteString(sqlValue(val))
			}
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

// csvCell renders one typed value as a CSV cell.
func csvCell(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case time.Time:
		return val.UTC().Format(sinkTimeFormat)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func csvCells(r row) []string {
	cells := make([]string, len(r))
	for i, v := range r {
		cells[i] = csvCell(v)
	}
	return cells
}
