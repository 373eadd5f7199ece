package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openedx/xapi-db-load/internal/loadtest/configuration"
)

func testCourse(t *testing.T) *Course {
	t.Helper()
	start, _ := time.Parse(configuration.DateFormat, "2024-01-01")
	end, _ := time.Parse(configuration.DateFormat, "2024-12-31")

	actors := []Actor{newActor(0), newActor(1), newActor(2)}
	size := configuration.CourseSize{
		Courses: 1, Actors: 3, Chapters: 2, Sequences: 3,
		Verticals: 4, Problems: 5, Videos: 3, ForumPosts: 2,
	}
	return newCourse("OrgX", "abc123", 1, start, end, 30, actors, "small", size)
}

func TestNewCourseIdentifiers(t *testing.T) {
	course := testCourse(t)

	assert.Equal(t, "course-v1:OrgX+abc123+1", course.CourseID)
	assert.Equal(t, "http://localhost:18000/course/course-v1:OrgX+abc123+1", course.CourseURL)
	assert.Len(t, course.ChapterIDs, 2)
	assert.Len(t, course.ProblemIDs, 5)
	assert.Len(t, course.VideoIDs, 3)
	assert.Len(t, course.ForumPostIDs, 2)
	assert.Equal(t, 30*24*time.Hour, course.EndDate.Sub(course.StartDate))
}

func TestRandomEmissionTimeRespectsEnrollment(t *testing.T) {
	course := testCourse(t)

	for _, enrolled := range course.Actors {
		for i := 0; i < 20; i++ {
			emitted := course.randomEmissionTime(enrolled)
			assert.False(t, emitted.Before(enrolled.EnrolledAt))
			assert.False(t, emitted.After(course.EndDate.Add(24*time.Hour)))
		}
	}
}

func TestBlockRecordsStructure(t *testing.T) {
	course := testCourse(t)
	blocks := course.BlockRecords()

	// Course block + chapters + sequentials + verticals + videos + problems.
	require.Len(t, blocks, 1+2+3+4+3+5)
	assert.Contains(t, blocks[0].Location, "type@course")

	type blockData struct {
		BlockType  string `json:"block_type"`
		Section    int    `json:"section"`
		Subsection int    `json:"subsection"`
		Unit       int    `json:"unit"`
	}

	seenOrders := map[int]bool{}
	sectionsSeen := 0
	for _, block := range blocks {
		assert.False(t, seenOrders[block.Order], "block order values must be unique")
		seenOrders[block.Order] = true

		var data blockData
		require.NoError(t, json.Unmarshal([]byte(block.XBlockDataJSON), &data))
		if data.BlockType == "chapter" {
			sectionsSeen++
			assert.Equal(t, sectionsSeen, data.Section, "chapters number sections in structure order")
		}
	}
	assert.Equal(t, 2, sectionsSeen)
}

func TestObjectTagRecordsReferenceKnownTags(t *testing.T) {
	course := testCourse(t)
	_, tags := buildTaxonomies()

	validTagIDs := map[int]bool{}
	for _, tag := range tags {
		validTagIDs[tag.TagID] = true
	}

	for _, record := range course.ObjectTagRecords(tags) {
		assert.True(t, validTagIDs[record.TagID])
		assert.Equal(t, 1, record.TaxonomyID)
		assert.NotEmpty(t, record.ObjectID)
	}
}
