// Package timeutil provides timezone-aware calendar helpers. Learners are
// spread across timezones, so every "day" computation takes an explicit
// location; quota windows roll over at local midnight, not UTC midnight.
// No external dependencies - uses only standard library.
package timeutil

import "time"

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatTime is the standard time format (HH:MM).
	FormatTime = "15:04"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
	// FormatDateTimeSeconds includes seconds.
	FormatDateTimeSeconds = "2006-01-02 15:04:05"
)

// LoadLocation resolves an IANA zone name, falling back to UTC when the
// name is empty or unknown. Learner timezone records are free-form input,
// so a bad value must not break quota accounting.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// StartOfDay returns the start of the day (00:00:00) in the given location.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay returns the end of the day (23:59:59.999999999) in the given location.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 999999999, loc)
}

// NextMidnight returns the first instant of the next calendar day in the
// given location. Quota counters reset at this boundary.
func NextMidnight(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, 1)
}

// UntilMidnight returns how long remains until the local day rolls over.
func UntilMidnight(t time.Time, loc *time.Location) time.Duration {
	return NextMidnight(t, loc).Sub(t)
}

// IsSameDay checks if two times fall on the same calendar day in the
// given location.
func IsSameDay(t1, t2 time.Time, loc *time.Location) bool {
	l1, l2 := t1.In(loc), t2.In(loc)
	return l1.Year() == l2.Year() && l1.YearDay() == l2.YearDay()
}

// DaysBetween calculates the number of calendar days between two times in
// the given location.
func DaysBetween(t1, t2 time.Time, loc *time.Location) int {
	d1 := StartOfDay(t1, loc)
	d2 := StartOfDay(t2, loc)
	days := int(d2.Sub(d1).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// FormatDateStr formats a time as a date string (YYYY-MM-DD) in the given location.
func FormatDateStr(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(FormatDate)
}

// ParseDate parses a date string (YYYY-MM-DD) in the given location.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(FormatDate, value, loc)
}
