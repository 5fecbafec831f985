package util

import (
	"strconv"
	"time"
)

// DayKeyLayout is the layout of UTC day keys used by persisted records.
const DayKeyLayout = "2006-01-02"

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// Align truncates t to a multiple of d in UTC. Non-positive d returns t unchanged.
func Align(t time.Time, d time.Duration) time.Time {
	if d <= 0 {
		return t
	}
	return t.UTC().Truncate(d)
}

// DayStart returns 00:00 UTC of t's day.
func DayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WeekStart returns Monday 00:00 UTC of t's week.
func WeekStart(t time.Time) time.Time {
	day := DayStart(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// DayKey formats t as a UTC YYYY-MM-DD key.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayKeyLayout)
}
