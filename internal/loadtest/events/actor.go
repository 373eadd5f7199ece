package events

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
)

var (
	genders          = []string{"", "m", "f", "o"}
	educationLevels  = []string{"", "p", "m", "b", "none", "other"}
	profileCountries = []string{"", "US", "CO", "AU", "IN", "PK"}
)

// Actor is one fake learner: the external id used in xAPI statements plus the
// profile fields the event sink mirrors from the LMS. Most profile fields are
// sparsely populated in real deployments, so plausible values are randomized
// only for the handful operators actually fill in.
type Actor struct {
	UserID           int
	ExternalID       string
	Username         string
	Name             string
	YearOfBirth      int
	Gender           string
	LevelOfEducation string
	Country          string
}

func newActor(userID int) Actor {
	return Actor{
		UserID:           userID,
		ExternalID:       uuid.NewString(),
		Username:         fmt.Sprintf("actor_%d", userID),
		Name:             fmt.Sprintf("Actor %d", userID),
		YearOfBirth:      1900 + rand.Intn(111),
		Gender:           genders[rand.Intn(len(genders))],
		LevelOfEducation: educationLevels[rand.Intn(len(educationLevels))],
		Country:          profileCountries[rand.Intn(len(profileCountries))],
	}
}

// ExternalIDRecord is one row for the external id mapping table.
type ExternalIDRecord struct {
	ExternalID     string
	ExternalIDType string
	Username       string
	UserID         int
}

// ProfileRecord is one row for the user profile table. Profile churn produces
// multiple rows per user id with increasing row ids.
type ProfileRecord struct {
	ID               int
	UserID           int
	Name             string
	Username         string
	YearOfBirth      int
	Gender           string
	LevelOfEducation string
	Country          string
}
