package booking

import "time"

const minutesPerDay = 1440

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. Back-to-back intervals (aEnd == bStart) do not
// overlap, so appointments may touch without conflicting.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// DayOfWeek returns the weekday of t in loc, 0 = Sunday .. 6 = Saturday.
func DayOfWeek(t time.Time, loc *time.Location) int {
	return int(t.In(loc).Weekday())
}

// MinuteOfDay returns the minute offset of t within its calendar day in loc,
// in [0, 1439].
func MinuteOfDay(t time.Time, loc *time.Location) int {
	local := t.In(loc)
	return local.Hour()*60 + local.Minute()
}

// StartOfDay truncates t to midnight of its calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// MinuteOnDay returns the instant at the given wall-clock minute on the
// calendar day containing day (interpreted in loc). Built from the clock
// face rather than an offset from midnight, so minute 540 is 09:00 local
// even on days with a DST transition, matching MinuteOfDay on the way back.
func MinuteOnDay(day time.Time, minute int, loc *time.Location) time.Time {
	local := day.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), minute/60, minute%60, 0, 0, loc)
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// wholeMinute reports whether t has no sub-minute component.
func wholeMinute(t time.Time) bool {
	return t.Second() == 0 && t.Nanosecond() == 0
}
