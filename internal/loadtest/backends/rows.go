package backends

import (
	"time"

	"github.com/google/uuid"

	"github.com/openedx/xapi-db-load/internal/loadtest/events"
)

// row is one table row as typed values; each sink formats them for its own
// medium. Every event-sink row carries a trailing dump_id and dump time the
// way event-sink-clickhouse stamps its exports.
type row []interface{}

func eventRows(records []events.Record) []row {
	rows := make([]row, len(records))
	for i, r := range records {
		rows[i] = row{r.EventID, r.EmissionTime, r.Event}
	}
	return rows
}

// courseRows serializes every course once, stamped as a single dump.
func courseRows(courses []*events.Course) []row {
	dumpID := uuid.NewString()
	dumpTime := time.Now().UTC()

	rows := make([]row, len(courses))
	for i, course := range courses {
		c := course.CourseRecord()
		rows[i] = row{
			c.Org, c.CourseKey, c.DisplayName,
			c.CourseStart, c.CourseEnd, c.EnrollmentStart, c.EnrollmentEnd,
			c.SelfPaced, c.CourseDataJSON, c.Created, c.Modified,
			dumpID, dumpTime,
		}
	}
	return rows
}

// blockRows serializes one course's block structure as a single dump.
func blockRows(course *events.Course) []row {
	dumpID := uuid.NewString()
	dumpTime := time.Now().UTC()

	blocks := course.BlockRecords()
	rows := make([]row, len(blocks))
	for i, b := range blocks {
		rows[i] = row{
			b.Org, b.CourseKey, b.Location, b.DisplayName,
			b.XBlockDataJSON, b.Order, b.EditedOn,
			dumpID, dumpTime,
		}
	}
	return rows
}

func objectTagRows(course *events.Course, tags []events.TagRecord) []row {
	dumpID := uuid.NewString()
	dumpTime := time.Now().UTC()

	objectTags := course.ObjectTagRecords(tags)
	rows := make([]row, len(objectTags))
	for i, t := range objectTags {
		rows[i] = row{
			i + 1, t.ObjectID, t.TaxonomyID, t.TagID, t.Value,
			"fake export id", t.Hierarchy,
			dumpID, dumpTime,
		}
	}
	return rows
}

func taxonomyRows(taxonomies []events.TaxonomyRecord) []row {
	dumpID := uuid.NewString()
	dumpTime := time.Now().UTC()

	rows := make([]row, len(taxonomies))
	for i, t := range taxonomies {
		rows[i] = row{t.ID, t.Name, dumpID, dumpTime}
	}
	return rows
}

func tagRows(tags []events.TagRecord) []row {
	dumpID := uuid.NewString()
	dumpTime := time.Now().UTC()

	rows := make([]row, len(tags))
	for i, t := range tags {
		rows[i] = row{
			t.TagID, t.TaxonomyID, t.ParentTagID, t.Value, t.ExternalID, t.Hierarchy,
			dumpID, dumpTime,
		}
	}
	return rows
}

func externalIDRows(ids []events.ExternalIDRecord) []row {
	dumpID := uuid.NewString()
	dumpTime := time.Now().UTC()

	rows := make([]row, len(ids))
	for i, id := range ids {
		rows[i] = row{
			id.ExternalID, id.ExternalIDType, id.Username, id.UserID,
			dumpID, dumpTime,
		}
	}
	return rows
}

func profileRows(profiles []events.ProfileRecord) []row {
	dumpID := uuid.NewString()
	dumpTime := time.Now().UTC()

	rows := make([]row, len(profiles))
	for i, p := range profiles {
		rows[i] = row{
			p.ID, p.UserID, p.Name, p.Username, p.Username + "@aspects.invalid",
			p.YearOfBirth, p.Gender, p.LevelOfEducation, p.Country,
			dumpID, dumpTime,
		}
	}
	return rows
}
