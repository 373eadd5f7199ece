// Package events fabricates the synthetic learning-analytics data a load run
// writes: organizations, actors, tagged courses and their block structure,
// and weighted-random xAPI statements referencing them.
package events

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/openedx/xapi-db-load/internal/loadtest/configuration"
	"github.com/openedx/xapi-db-load/internal/loadtest/task"
)

// Generator is the run's data source task. Its generate phase fabricates the
// org/actor/course/tag universe every other task draws from, then sets the
// readiness latch those tasks poll before starting. Everything it exposes is
// written once during setup and read-only afterwards, so accessors are safe
// from any worker goroutine.
type Generator struct {
	*task.Base

	ready atomic.Bool

	orgs       []string
	actors     []Actor
	courses    []*Course
	taxonomies []TaxonomyRecord
	tags       []TagRecord
}

// NewGenerator builds the data source task for the configured universe.
func NewGenerator(cfg configuration.Config) *Generator {
	g := &Generator{}
	g.Base = task.New("setup", cfg, nil, g.setup, g.skipSetup)
	return g
}

// Ready reports whether setup has completed. One-way; never cleared until
// Reset.
func (g *Generator) Ready() bool {
	return g.ready.Load()
}

// Reset clears progress and the readiness latch. The fabricated universe is
// kept so a load-only rerun still resolves courses and actors.
func (g *Generator) Reset() {
	g.Base.Reset()
	g.ready.Store(false)
}

// setup fabricates the universe in dependency order. Progress counts one unit
// per setup stage plus one per course run, since courses dominate setup time.
func (g *Generator) setup(ctx context.Context) error {
	g.AddTotal(int64(3 + g.Config.TotalCourses()))

	g.setupOrgs()
	g.AddCompleted(1)
	g.setupTaxonomies()
	g.AddCompleted(1)
	g.setupActors()
	g.AddCompleted(1)

	if err := g.setupCourses(ctx); err != nil {
		return err
	}

	g.ready.Store(true)
	return nil
}

// skipSetup is the load-only body: existing staged data is being loaded, so
// there is nothing to fabricate and dependents can start immediately.
func (g *Generator) skipSetup(_ context.Context) error {
	g.ready.Store(true)
	return nil
}

func (g *Generator) setupOrgs() {
	for i := 0; i < g.Config.NumOrganizations; i++ {
		g.orgs = append(g.orgs, fmt.Sprintf("Org%d", i))
	}
}

func (g *Generator) setupTaxonomies() {
	g.taxonomies, g.tags = buildTaxonomies()
}

func (g *Generator) setupActors() {
	g.actors = make([]Actor, g.Config.NumActors)
	for i := range g.actors {
		g.actors[i] = newActor(i)
	}
}

func (g *Generator) setupCourses(ctx context.Context) error {
	total := g.Config.TotalCourses()
	g.Log.Infof("setting up %d courses", total)

	start, end, err := g.Config.Dates()
	if err != nil {
		return err
	}

	for sizeName, size := range g.Config.CourseSizes {
		g.Log.Infof("setting up %d %s courses", size.Courses, sizeName)

		created := 0
		for created < size.Courses {
			if err := ctx.Err(); err != nil {
				return err
			}

			org := g.orgs[rand.Intn(len(g.orgs))]
			actors := g.sampleActors(size.Actors)
			courseUUID := uuid.NewString()[:6]

			// The same course gets 1-4 runs sharing a name and makeup.
			runs := 1 + rand.Intn(4)
			for run := 0; run < runs && created < size.Courses; run++ {
				course := newCourse(org, courseUUID, run, start, end,
					g.Config.CourseLengthDays, actors, sizeName, size)
				g.courses = append(g.courses, course)
				created++
				g.AddCompleted(1)
			}
		}
	}
	return nil
}

// sampleActors draws k actors with replacement, matching how a subset of the
// whole learner population lands in any one course.
func (g *Generator) sampleActors(k int) []Actor {
	sampled := make([]Actor, k)
	for i := range sampled {
		sampled[i] = g.actors[rand.Intn(len(g.actors))]
	}
	return sampled
}

// BatchEvents generates n weighted-random statements.
func (g *Generator) BatchEvents(n int) []Record {
	records := make([]Record, n)
	for i := range records {
		kind := randomKind()
		course := g.courses[rand.Intn(len(g.courses))]
		actor := course.randomEnrolledActor()
		records[i] = buildStatement(kind, course, actor, course.randomEmissionTime(actor))
	}
	return records
}

// EnrollmentCount returns how many initial-enrollment statements a run emits:
// one per actor per course run. Only meaningful once setup has completed.
func (g *Generator) EnrollmentCount() int {
	count := 0
	for _, course := range g.courses {
		count += len(course.Actors)
	}
	return count
}

// EnrollmentEvents generates one registration statement for every enrolled
// actor in every course run, timestamped at their enrollment time.
func (g *Generator) EnrollmentEvents() []Record {
	registered := statementCatalog[0]
	for _, kind := range statementCatalog {
		if kind.name == "registered" {
			registered = kind
			break
		}
	}

	records := make([]Record, 0, g.EnrollmentCount())
	for _, course := range g.courses {
		for _, actor := range course.Actors {
			records = append(records, buildStatement(registered, course, actor, actor.EnrolledAt))
		}
	}
	return records
}

// Courses returns every fabricated course run.
func (g *Generator) Courses() []*Course {
	return g.courses
}

// Taxonomies returns the taxonomy rows for the run.
func (g *Generator) Taxonomies() []TaxonomyRecord {
	return g.taxonomies
}

// Tags returns the tag rows for the run.
func (g *Generator) Tags() []TagRecord {
	return g.tags
}

// ExternalIDs returns the external id mapping row for every actor.
func (g *Generator) ExternalIDs() []ExternalIDRecord {
	records := make([]ExternalIDRecord, len(g.actors))
	for i, actor := range g.actors {
		records[i] = ExternalIDRecord{
			ExternalID:     actor.ExternalID,
			ExternalIDType: "xapi",
			Username:       actor.Username,
			UserID:         actor.UserID,
		}
	}
	return records
}

// Profiles returns one profile row per actor plus the configured number of
// churn rows, each a randomized re-save of an existing actor's profile.
func (g *Generator) Profiles() []ProfileRecord {
	records := make([]ProfileRecord, 0, len(g.actors)+g.Config.NumActorProfileChanges)

	rowID := 0
	appendProfile := func(actor Actor) {
		rowID++
		records = append(records, ProfileRecord{
			ID:               rowID,
			UserID:           actor.UserID,
			Name:             actor.Name,
			Username:         actor.Username,
			YearOfBirth:      actor.YearOfBirth,
			Gender:           actor.Gender,
			LevelOfEducation: actor.LevelOfEducation,
			Country:          actor.Country,
		})
	}

	for _, actor := range g.actors {
		appendProfile(actor)
	}
	for i := 0; i < g.Config.NumActorProfileChanges; i++ {
		actor := g.actors[rand.Intn(len(g.actors))]
		// A profile edit: same identity, refreshed demographic fields.
		updated := newActor(actor.UserID)
		updated.ExternalID = actor.ExternalID
		appendProfile(updated)
	}
	return records
}
