// Package timeutil provides calendar helpers for a configurable chat timezone.
// Day boundaries for streaks, daily counters and time-of-day achievements are
// always computed in the chat's local time, never in UTC.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// DefaultTimezone is the timezone used when none is configured.
const DefaultTimezone = "Europe/Kyiv"

// LoadLocation resolves a timezone name, falling back to UTC for an empty name.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timeutil: unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

// In converts t into loc. A nil location leaves t unchanged.
func In(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		return t
	}
	return t.In(loc)
}

// StartOfDay returns local midnight of the day containing t in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := In(t, loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
}

// DateOf returns the calendar date of t (in t's own location) as UTC midnight.
// The result compares equal to a DATE column read back from PostgreSQL.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// LocalDate returns the calendar date of t in loc as UTC midnight.
func LocalDate(t time.Time, loc *time.Location) time.Time {
	return DateOf(In(t, loc))
}

// DaysBetween returns the signed number of calendar days from d1 to d2.
// Both arguments are expected to be dates produced by DateOf or LocalDate.
func DaysBetween(d1, d2 time.Time) int {
	a := DateOf(d1)
	b := DateOf(d2)
	return int(b.Sub(a).Hours() / 24)
}

// IsSameDay checks if two times fall on the same calendar day in loc.
func IsSameDay(t1, t2 time.Time, loc *time.Location) bool {
	return LocalDate(t1, loc).Equal(LocalDate(t2, loc))
}

// IsConsecutiveDay checks if t2 falls on the calendar day after t1 in loc.
func IsConsecutiveDay(t1, t2 time.Time, loc *time.Location) bool {
	return DaysBetween(LocalDate(t1, loc), LocalDate(t2, loc)) == 1
}

// IsWeekend checks if t falls on Saturday or Sunday in loc.
func IsWeekend(t time.Time, loc *time.Location) bool {
	weekday := In(t, loc).Weekday()
	return weekday == time.Saturday || weekday == time.Sunday
}

// HourIn returns the local hour of t in loc.
func HourIn(t time.Time, loc *time.Location) int {
	return In(t, loc).Hour()
}

// HourInRange reports whether hour lies in [from, to). A range with
// from > to wraps around midnight, so 22..4 covers 22:00 to 03:59.
func HourInRange(hour, from, to int) bool {
	if from == to {
		return false
	}
	if from < to {
		return hour >= from && hour < to
	}
	return hour >= from || hour < to
}

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
)

// FormatDateStr formats a date as YYYY-MM-DD.
func FormatDateStr(t time.Time) string {
	return t.Format(FormatDate)
}
