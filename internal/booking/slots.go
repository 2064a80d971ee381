package booking

import "time"

// DefaultGranularityMinutes is the slot step used when a business does not
// declare its own.
const DefaultGranularityMinutes = 15

// candidateSlots generates start instants for a service of durationMin
// minutes within the rule's window on the calendar day containing day
// (interpreted in loc), stepping by stepMin minutes. Candidates overlapping
// a busy interval are dropped, as are starts strictly before now. All
// window arithmetic is integer minutes.
func candidateSlots(rule AvailabilityRule, day time.Time, loc *time.Location, durationMin, stepMin int, busy []Interval, now time.Time) []time.Time {
	if durationMin <= 0 || stepMin <= 0 {
		return nil
	}
	// A window shorter than the service yields no slots.
	if rule.EndMinute-rule.StartMinute < durationMin {
		return nil
	}

	var slots []time.Time
	for m := rule.StartMinute; m+durationMin <= rule.EndMinute; m += stepMin {
		start := MinuteOnDay(day, m, loc)
		if start.Before(now) {
			continue
		}
		end := start.Add(time.Duration(durationMin) * time.Minute)
		if overlapsAny(start, end, busy) {
			continue
		}
		slots = append(slots, start)
	}
	return slots
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if Overlaps(start, end, b.Start, b.End) {
			return true
		}
	}
	return false
}

// fitsRule reports whether a booking of durationMin minutes starting at the
// given minute offset lies inside the rule's window on a step boundary.
// Admission re-derives candidate membership instead of trusting the caller.
func fitsRule(rule AvailabilityRule, startMinute, durationMin, stepMin int) bool {
	if startMinute < rule.StartMinute || startMinute+durationMin > rule.EndMinute {
		return false
	}
	return (startMinute-rule.StartMinute)%stepMin == 0
}
