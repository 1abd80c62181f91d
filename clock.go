package scheduler

import "time"

// HourStart truncates t to the start of the hour containing it.
func HourStart(t time.Time) time.Time {
	return t.Truncate(time.Hour)
}

// Frontier returns the start of the most recently fully elapsed hour
// relative to now. It is the only hour eligible for a fresh completion.
func Frontier(now time.Time) time.Time {
	return HourStart(now).Add(-time.Hour)
}

// isHourAligned reports whether t has no minute, second or sub-second part.
func isHourAligned(t time.Time) bool {
	return t.Equal(HourStart(t))
}
