package events

import (
	"encoding/json"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Record is one generated xAPI statement plus the denormalized fields sinks
// key on. Event holds the statement JSON.
type Record struct {
	EventID      string
	ActorID      string
	Org          string
	CourseRunID  string
	Verb         string
	EmissionTime time.Time
	Event        string
}

// objectClass selects which known course object a statement kind references.
type objectClass int

const (
	classCourse objectClass = iota
	classVideo
	classProblem
	classNavigation
	classForum
)

// statementKind is one entry in the weighted event mix.
type statementKind struct {
	name    string
	verb    string
	display string
	class   objectClass
	weight  float64
}

// statementCatalog is the event mix, weighted to roughly match the statement
// type proportions observed on a busy production LRS. Weights total ~100 so
// each reads as a percentage.
var statementCatalog = []statementKind{
	{"course_grade_calculated", "http://id.tincanapi.com/verb/earned", "earned", classCourse, 20.0},
	{"played_video", "https://w3id.org/xapi/video/verbs/played", "play", classVideo, 14.019},
	{"next_navigation", "https://w3id.org/xapi/dod-isd/verbs/navigated", "navigated", classNavigation, 12.467},
	{"browser_problem_check", "http://adlnet.gov/expapi/verbs/attempted", "attempted", classProblem, 9.9},
	{"server_problem_check", "http://adlnet.gov/expapi/verbs/evaluated", "evaluated", classProblem, 9.5},
	{"paused_video", "https://w3id.org/xapi/video/verbs/paused", "paused", classVideo, 8.912},
	{"loaded_video", "http://adlnet.gov/expapi/verbs/initialized", "initialized", classVideo, 7.125},
	{"completed_video", "http://adlnet.gov/expapi/verbs/completed", "completed", classVideo, 5.124},
	{"position_changed_video", "https://w3id.org/xapi/video/verbs/seeked", "seeked", classVideo, 5.105},
	{"stopped_video", "http://adlnet.gov/expapi/verbs/terminated", "terminated", classVideo, 3.671},
	{"show_answer", "http://adlnet.gov/expapi/verbs/asked", "asked", classProblem, 1.373},
	{"registered", "http://adlnet.gov/expapi/verbs/registered", "registered", classCourse, 1.138},
	{"previous_navigation", "https://w3id.org/xapi/dod-isd/verbs/navigated", "navigated", classNavigation, 0.811},
	{"post_created", "https://w3id.org/xapi/acrossx/verbs/posted", "posted", classForum, 0.5},
	{"unregistered", "http://id.tincanapi.com/verb/unregistered", "unregistered", classCourse, 0.146},
	{"show_hint", "http://adlnet.gov/expapi/verbs/asked", "asked", classProblem, 0.076},
	{"transcript_enabled", "http://adlnet.gov/expapi/verbs/interacted", "interacted", classVideo, 0.05},
	{"transcript_disabled", "http://adlnet.gov/expapi/verbs/interacted", "interacted", classVideo, 0.05},
	{"first_time_passed", "http://adlnet.gov/expapi/verbs/passed", "passed", classCourse, 0.031},
	{"tab_selected_navigation", "https://w3id.org/xapi/dod-isd/verbs/navigated", "navigated", classNavigation, 0.001},
	{"link_clicked", "https://w3id.org/xapi/dod-isd/verbs/navigated", "navigated", classNavigation, 0.001},
}

var totalCatalogWeight = func() float64 {
	total := 0.0
	for _, kind := range statementCatalog {
		total += kind.weight
	}
	return total
}()

// randomKind draws one statement kind according to the catalog weights.
func randomKind() statementKind {
	target := rand.Float64() * totalCatalogWeight
	for _, kind := range statementCatalog {
		target -= kind.weight
		if target < 0 {
			return kind
		}
	}
	return statementCatalog[len(statementCatalog)-1]
}

const eventVersionExtension = "https://github.com/openedx/event-routing-backends/blob/master/docs/xapi-extensions/eventVersion.rst"

// buildStatement assembles the xAPI statement JSON and its Record envelope
// for one (kind, course, actor) combination.
func buildStatement(kind statementKind, course *Course, actor EnrolledActor, emitted time.Time) Record {
	eventID := uuid.NewString()

	statement := map[string]interface{}{
		"id":      eventID,
		"version": "1.0.3",
		"actor": map[string]interface{}{
			"objectType": "Agent",
			"account": map[string]interface{}{
				"homePage": lmsBase,
				"name":     actor.Actor.ExternalID,
			},
		},
		"verb": map[string]interface{}{
			"id":      kind.verb,
			"display": map[string]string{"en": kind.display},
		},
		"object":    statementObject(kind, course),
		"context":   statementContext(kind, course),
		"timestamp": emitted.Format(time.RFC3339),
	}
	if result := statementResult(kind, course); result != nil {
		statement["result"] = result
	}

	encoded, _ := json.Marshal(statement)
	return Record{
		EventID:      eventID,
		ActorID:      actor.Actor.ExternalID,
		Org:          course.Org,
		CourseRunID:  course.CourseURL,
		Verb:         kind.verb,
		EmissionTime: emitted,
		Event:        string(encoded),
	}
}

func statementObject(kind statementKind, course *Course) map[string]interface{} {
	courseObject := map[string]interface{}{
		"id":         course.CourseURL,
		"objectType": "Activity",
		"definition": map[string]interface{}{
			"name": map[string]string{"en": "Demonstration Course"},
			"type": "http://adlnet.gov/expapi/activities/course",
		},
	}

	switch kind.class {
	case classVideo:
		return map[string]interface{}{
			"id":         randomChoice(course.VideoIDs, course.CourseURL),
			"objectType": "Activity",
			"definition": map[string]interface{}{
				"type": "https://w3id.org/xapi/video/activity-type/video",
			},
		}
	case classProblem:
		return map[string]interface{}{
			"id":         randomChoice(course.ProblemIDs, course.CourseURL),
			"objectType": "Activity",
			"definition": map[string]interface{}{
				"type": "http://adlnet.gov/expapi/activities/cmi.interaction",
			},
		}
	case classForum:
		return map[string]interface{}{
			"id":         randomChoice(course.ForumPostIDs, course.CourseURL),
			"objectType": "Activity",
			"definition": map[string]interface{}{
				"type": "http://id.tincanapi.com/activitytype/discussion",
			},
		}
	default:
		return courseObject
	}
}

func statementContext(kind statementKind, course *Course) map[string]interface{} {
	extensions := map[string]interface{}{
		eventVersionExtension: "1.0",
	}

	switch kind.class {
	case classVideo:
		extensions["https://w3id.org/xapi/video/extensions/length"] = 195.0
	case classNavigation:
		extensions["http://id.tincanapi.com/extension/ending-point"] = course.randomNavLocation()
	}

	ctx := map[string]interface{}{"extensions": extensions}
	if kind.class != classCourse {
		ctx["contextActivities"] = map[string]interface{}{
			"parent": []map[string]interface{}{
				{
					"id":         course.CourseURL,
					"objectType": "Activity",
					"definition": map[string]interface{}{
						"name": map[string]string{"en-US": "Demonstration Course"},
						"type": "http://adlnet.gov/expapi/activities/course",
					},
				},
			},
		}
	}
	return ctx
}

func statementResult(kind statementKind, course *Course) map[string]interface{} {
	switch kind.class {
	case classVideo:
		return map[string]interface{}{
			"extensions": map[string]interface{}{
				"https://w3id.org/xapi/video/extensions/time": 0.033,
			},
		}
	case classProblem:
		score := rand.Float64()
		return map[string]interface{}{
			"success": score > 0.5,
			"score": map[string]interface{}{
				"min": 0, "max": 1.0, "raw": score, "scaled": score,
			},
		}
	case classCourse:
		if kind.name == "course_grade_calculated" {
			grade := rand.Float64()
			return map[string]interface{}{
				"score": map[string]interface{}{
					"min": 0, "max": 100.0, "raw": grade * 100, "scaled": grade,
				},
			}
		}
	}
	return nil
}

func randomChoice(ids []string, fallback string) string {
	if len(ids) == 0 {
		return fallback
	}
	return ids[rand.Intn(len(ids))]
}
