package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mondayRule(start, end int) AvailabilityRule {
	return AvailabilityRule{StaffID: "staff-1", DayOfWeek: 1, StartMinute: start, EndMinute: end}
}

// minuteSet maps slot instants back to minute-of-day offsets for readable
// assertions.
func minuteSet(t *testing.T, slots []time.Time, day time.Time, loc *time.Location) map[int]bool {
	t.Helper()
	out := make(map[int]bool, len(slots))
	for _, s := range slots {
		assert.Equal(t, 0, s.Second())
		out[MinuteOfDay(s, loc)] = true
	}
	return out
}

func TestCandidateSlots_WindowBounds(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, time.March, 2, 0, 0, 0, 0, loc) // a Monday
	require.Equal(t, time.Monday, day.Weekday())

	// Rule 09:00-17:00, 30 minute service, 15 minute step:
	// first start 540, last start 990 (16:30), one every 15 minutes.
	slots := candidateSlots(mondayRule(540, 1020), day, loc, 30, 15, nil, day)

	require.Len(t, slots, 31)
	assert.Equal(t, day.Add(9*time.Hour), slots[0])
	assert.Equal(t, day.Add(16*time.Hour+30*time.Minute), slots[len(slots)-1])

	for i := 1; i < len(slots); i++ {
		assert.Equal(t, 15*time.Minute, slots[i].Sub(slots[i-1]))
	}
}

func TestCandidateSlots_BusyIntervalRemovesOverlapping(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, time.March, 2, 0, 0, 0, 0, loc)

	// An appointment 10:00-10:30 removes every candidate whose 30 minute
	// span would intersect it: 09:45, 10:00 and 10:15. Neighbors survive.
	busy := []Interval{{Start: day.Add(10 * time.Hour), End: day.Add(10*time.Hour + 30*time.Minute)}}
	slots := candidateSlots(mondayRule(540, 1020), day, loc, 30, 15, busy, day)

	minutes := minuteSet(t, slots, day, loc)
	assert.False(t, minutes[585])
	assert.False(t, minutes[600])
	assert.False(t, minutes[615])
	assert.True(t, minutes[570])
	assert.True(t, minutes[630])
}

func TestCandidateSlots_SkipsPastStarts(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, time.March, 2, 0, 0, 0, 0, loc)

	// At 10:31, everything up to and including 10:30 is gone; 10:45 stands.
	now := day.Add(10*time.Hour + 31*time.Minute)
	slots := candidateSlots(mondayRule(540, 1020), day, loc, 30, 15, nil, now)

	require.NotEmpty(t, slots)
	assert.Equal(t, day.Add(10*time.Hour+45*time.Minute), slots[0])
}

func TestCandidateSlots_WindowShorterThanService(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, time.March, 2, 0, 0, 0, 0, loc)

	slots := candidateSlots(mondayRule(540, 560), day, loc, 30, 15, nil, day)
	assert.Empty(t, slots)
}

func TestCandidateSlots_ExactFitWindow(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, time.March, 2, 0, 0, 0, 0, loc)

	// A 30 minute window admits exactly one 30 minute slot.
	slots := candidateSlots(mondayRule(540, 570), day, loc, 30, 15, nil, day)
	require.Len(t, slots, 1)
	assert.Equal(t, day.Add(9*time.Hour), slots[0])
}

func TestFitsRule(t *testing.T) {
	rule := mondayRule(540, 1020)

	assert.True(t, fitsRule(rule, 540, 30, 15))  // window start
	assert.True(t, fitsRule(rule, 990, 30, 15))  // last slot that still fits
	assert.False(t, fitsRule(rule, 991, 30, 15)) // spills one minute past close
	assert.False(t, fitsRule(rule, 1005, 30, 15))
	assert.False(t, fitsRule(rule, 539, 30, 15)) // before open
	assert.False(t, fitsRule(rule, 550, 30, 15)) // off the 15 minute grid
	assert.True(t, fitsRule(rule, 550, 30, 10))  // same start, 10 minute grid
}
