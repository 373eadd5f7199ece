package events

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/openedx/xapi-db-load/internal/loadtest/configuration"
)

const lmsBase = "http://localhost:18000"

// EnrolledActor pairs an actor with their enrollment time in one course run.
// Statements attributed to the actor are emitted no earlier than this.
type EnrolledActor struct {
	Actor      Actor
	EnrolledAt time.Time
}

// Course is one fabricated course run: identifiers, date range, the block ids
// statements reference, and the actors enrolled in it.
type Course struct {
	CourseUUID string
	Run        int
	Org        string
	CourseID   string
	CourseURL  string
	Name       string
	SizeName   string

	StartDate time.Time
	EndDate   time.Time

	ChapterIDs    []string
	SequentialIDs []string
	VerticalIDs   []string
	ProblemIDs    []string
	VideoIDs      []string
	ForumPostIDs  []string

	Actors []EnrolledActor
}

// newCourse builds one run of a course. The same courseUUID and name are
// shared across runs of the same course so downstream queries filtering on
// course name catch every run.
func newCourse(
	org, courseUUID string,
	run int,
	overallStart, overallEnd time.Time,
	lengthDays int,
	actors []Actor,
	sizeName string,
	size configuration.CourseSize,
) *Course {
	c := &Course{
		CourseUUID: courseUUID,
		Run:        run,
		Org:        org,
		CourseID:   fmt.Sprintf("course-v1:%s+%s+%d", org, courseUUID, run),
		Name:       fmt.Sprintf("%s (%s)", courseUUID, sizeName),
		SizeName:   sizeName,
	}
	c.CourseURL = fmt.Sprintf("%s/course/%s", lmsBase, c.CourseID)

	length := time.Duration(lengthDays) * 24 * time.Hour
	c.StartDate = randomTime(overallStart, overallEnd.Add(-length))
	c.EndDate = c.StartDate.Add(length)

	c.Actors = make([]EnrolledActor, len(actors))
	for i, a := range actors {
		c.Actors[i] = EnrolledActor{Actor: a, EnrolledAt: randomTime(c.StartDate, c.EndDate)}
	}

	c.ChapterIDs = c.blockIDs("chapter", size.Chapters)
	c.SequentialIDs = c.blockIDs("sequential", size.Sequences)
	c.VerticalIDs = c.blockIDs("vertical", size.Verticals)
	c.ProblemIDs = c.blockIDs("problem", size.Problems)
	c.VideoIDs = c.blockIDs("video", size.Videos)
	for i := 0; i < size.ForumPosts; i++ {
		c.ForumPostIDs = append(c.ForumPostIDs,
			fmt.Sprintf("%s/api/discussion/v1/threads/%s", lmsBase, uuid.NewString()[:8]))
	}
	return c
}

func (c *Course) blockIDs(blockType string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s/xblock/block-v1:%s+type@%s+block@%s",
			lmsBase, c.CourseID, blockType, uuid.NewString()[:8])
	}
	return ids
}

func (c *Course) itemsInCourse() int {
	return len(c.ChapterIDs) + len(c.SequentialIDs) + len(c.VerticalIDs) +
		len(c.ProblemIDs) + len(c.VideoIDs) + len(c.ForumPostIDs)
}

// randomEnrolledActor picks one of the course's enrolled actors.
func (c *Course) randomEnrolledActor() EnrolledActor {
	return c.Actors[rand.Intn(len(c.Actors))]
}

// randomEmissionTime returns a statement timestamp inside the course dates,
// never before the actor's enrollment.
func (c *Course) randomEmissionTime(actor EnrolledActor) time.Time {
	// Push the upper bound past midnight so the last course day is reachable.
	return randomTime(actor.EnrolledAt, c.EndDate.Add(24*time.Hour))
}

// randomNavLocation picks a position within the course's item count, used as
// the navigation target in navigation statements.
func (c *Course) randomNavLocation() string {
	items := c.itemsInCourse()
	if items <= 1 {
		return "1"
	}
	return fmt.Sprintf("%d", 1+rand.Intn(items-1))
}

func randomTime(start, end time.Time) time.Time {
	if !end.After(start) {
		return start
	}
	return start.Add(time.Duration(rand.Int63n(int64(end.Sub(start)))))
}

// CourseRecord is one row for the course overview table, mirroring the shape
// produced by event-sink-clickhouse.
type CourseRecord struct {
	Org             string
	CourseKey       string
	DisplayName     string
	CourseStart     time.Time
	CourseEnd       time.Time
	EnrollmentStart time.Time
	EnrollmentEnd   time.Time
	SelfPaced       bool
	CourseDataJSON  string
	Created         time.Time
	Modified        time.Time
}

// BlockRecord is one row for the course block table.
type BlockRecord struct {
	Org            string
	CourseKey      string
	Location       string
	DisplayName    string
	XBlockDataJSON string
	Order          int
	EditedOn       time.Time
}

// CourseRecord serializes the course overview row.
func (c *Course) CourseRecord() CourseRecord {
	return CourseRecord{
		Org:             c.Org,
		CourseKey:       c.CourseID,
		DisplayName:     c.Name,
		CourseStart:     c.StartDate,
		CourseEnd:       c.EndDate,
		EnrollmentStart: c.StartDate,
		EnrollmentEnd:   c.EndDate,
		SelfPaced:       rand.Intn(2) == 0,
		CourseDataJSON:  "{}",
		Created:         c.StartDate,
		Modified:        c.EndDate,
	}
}

type blockPosition struct {
	Section    int `json:"section"`
	Subsection int `json:"subsection"`
	Unit       int `json:"unit"`
}

// BlockRecords serializes the course structure: the course block first, then
// chapters in order with sequentials, verticals and leaf blocks shuffled in
// underneath, numbered with section/subsection/unit positions the way Studio
// publishes them.
func (c *Course) BlockRecords() []BlockRecord {
	order := 1
	structure := []BlockRecord{c.courseBlock()}

	for _, id := range c.ChapterIDs {
		order++
		structure = append(structure, c.block("chapter", id, order))
	}
	for _, id := range c.SequentialIDs {
		order++
		structure = insertAt(structure, randBetween(2, len(structure)), c.block("sequential", id, order))
	}
	for _, id := range c.VerticalIDs {
		order++
		structure = insertAt(structure, randBetween(2, len(structure)), c.block("vertical", id, order))
	}
	for _, id := range c.VideoIDs {
		order++
		structure = insertAt(structure, randBetween(4, len(structure)), c.block("video", id, order))
	}
	for _, id := range c.ProblemIDs {
		order++
		structure = insertAt(structure, randBetween(4, len(structure)), c.block("problem", id, order))
	}

	section, subsection, unit := 0, 0, 0
	for i := range structure {
		blockType := structure[i].XBlockDataJSON
		switch blockType {
		case "chapter":
			section++
			subsection, unit = 0, 0
		case "sequential":
			subsection++
			unit = 0
		case "vertical":
			unit++
		}

		data, _ := json.Marshal(struct {
			BlockType string `json:"block_type"`
			blockPosition
		}{blockType, blockPosition{section, subsection, unit}})
		structure[i].XBlockDataJSON = string(data)
	}
	return structure
}

func (c *Course) block(blockType, blockID string, order int) BlockRecord {
	location := blockID
	if idx := len(lmsBase + "/xblock/"); len(blockID) > idx {
		location = blockID[idx:]
	}
	return BlockRecord{
		Org:         c.Org,
		CourseKey:   c.CourseID,
		Location:    location,
		DisplayName: fmt.Sprintf("%s %d", titleCase(blockType), order),
		// Holds the raw block type until BlockRecords fills in positions.
		XBlockDataJSON: blockType,
		Order:          order,
		EditedOn:       c.EndDate,
	}
}

func (c *Course) courseBlock() BlockRecord {
	return BlockRecord{
		Org:            c.Org,
		CourseKey:      c.CourseID,
		Location:       fmt.Sprintf("block-v1:%s+%s+%d+type@course+block@course", c.Org, c.CourseUUID, c.Run),
		DisplayName:    fmt.Sprintf("Course %s", c.CourseUUID[:min(5, len(c.CourseUUID))]),
		XBlockDataJSON: "course",
		Order:          1,
		EditedOn:       c.EndDate,
	}
}

// ObjectTagRecords tags 0-2 random taxonomy tags onto each block.
func (c *Course) ObjectTagRecords(tags []TagRecord) []ObjectTagRecord {
	if len(tags) == 0 {
		return nil
	}

	var records []ObjectTagRecord
	tagBlock := func(blockID string) {
		location := blockID
		if idx := len(lmsBase + "/xblock/"); len(blockID) > idx {
			location = blockID[idx:]
		}
		for i := 0; i < rand.Intn(3); i++ {
			tag := tags[rand.Intn(len(tags))]
			records = append(records, ObjectTagRecord{
				ObjectID:   location,
				TaxonomyID: tag.TaxonomyID,
				TagID:      tag.TagID,
				Value:      tag.Value,
				Hierarchy:  tag.Hierarchy,
			})
		}
	}

	for _, group := range [][]string{c.VideoIDs, c.ProblemIDs, c.ChapterIDs, c.SequentialIDs, c.VerticalIDs} {
		for _, id := range group {
			tagBlock(id)
		}
	}
	tagBlock(c.CourseID)
	return records
}

func insertAt(blocks []BlockRecord, idx int, block BlockRecord) []BlockRecord {
	blocks = append(blocks, BlockRecord{})
	copy(blocks[idx+1:], blocks[idx:])
	blocks[idx] = block
	return blocks
}

// randBetween returns a random index in [low, high], clamped for short slices.
func randBetween(low, high int) int {
	if high <= low {
		return high
	}
	return low + rand.Intn(high-low+1)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
