package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompletionIsZeroWithNoUnits(t *testing.T) {
	tracker := NewTracker("empty")
	assert.Equal(t, 0.0, tracker.Completion())
	assert.False(t, tracker.Finished())
}

func TestCompletionTracksCounts(t *testing.T) {
	tracker := NewTracker("batches")
	tracker.AddTotal(37)

	last := 0.0
	for _, chunk := range []int64{10, 10, 10, 7} {
		tracker.AddCompleted(chunk)
		current := tracker.Completion()
		assert.Greater(t, current, last)
		last = current
	}

	assert.Equal(t, 1.0, tracker.Completion())
	assert.Equal(t, int64(37), tracker.TotalUnits())
	assert.Equal(t, int64(37), tracker.CompletedUnits())
	assert.False(t, tracker.Finished(), "completion alone must not set the finished latch")
}

func TestTransientOverrunSelfCorrects(t *testing.T) {
	tracker := NewTracker("overrun")
	tracker.AddTotal(1)
	tracker.AddCompleted(2)
	assert.Greater(t, tracker.Completion(), 1.0)

	tracker.AddTotal(1)
	assert.Equal(t, 1.0, tracker.Completion())
}

func TestFinishPinsCompletion(t *testing.T) {
	tracker := NewTracker("partial")
	tracker.AddTotal(3)
	tracker.AddCompleted(2)

	tracker.Finish()
	assert.Equal(t, 1.0, tracker.Completion())
	assert.True(t, tracker.Finished())

	// Late counter updates must not move a finished task off 1.0 until a
	// fresh update recomputes, which only a Reset should trigger in practice.
	assert.True(t, tracker.Finished())
}

func TestResetMakesTrackerReusable(t *testing.T) {
	tracker := NewTracker("reused")
	tracker.AddTotal(5)
	tracker.AddCompleted(5)
	tracker.Finish()

	tracker.Reset()
	assert.Equal(t, 0.0, tracker.Completion())
	assert.Equal(t, int64(0), tracker.TotalUnits())
	assert.Equal(t, int64(0), tracker.CompletedUnits())
	assert.False(t, tracker.Finished())

	tracker.AddTotal(2)
	tracker.AddCompleted(1)
	assert.Equal(t, 0.5, tracker.Completion())
}
