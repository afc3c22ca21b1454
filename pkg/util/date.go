package util

import "time"

// DateLayout is the wire format for calendar dates (YYYY-MM-DD).
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date. Returns (t, true) if it worked.
func ParseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// ParseDateDefault parses a date or returns default if empty/invalid.
func ParseDateDefault(s string, def time.Time) time.Time {
	if t, ok := ParseDate(s); ok {
		return t
	}
	return def
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// EndOfMonth returns the last day of t's month at midnight UTC.
func EndOfMonth(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	// day 0 of the next month normalizes to the last day of this month
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC)
}

// AddCalendarMonths returns the end-of-month date n whole months after
// anchor's month. The day is always clamped to the last valid day of the
// target month (Jan 31 + 1 month = end of February). Horizons are forward
// only; n <= 0 yields anchor's own end of month.
func AddCalendarMonths(anchor time.Time, n int) time.Time {
	y, m, _ := anchor.UTC().Date()
	if n < 0 {
		n = 0
	}
	return time.Date(y, m+time.Month(n)+1, 0, 0, 0, 0, 0, time.UTC)
}

// MonthsBetween returns the whole-month span from a's month to b's month.
func MonthsBetween(a, b time.Time) int {
	ay, am, _ := a.UTC().Date()
	by, bm, _ := b.UTC().Date()
	return (by-ay)*12 + int(bm) - int(am)
}

// PickAxisTicks selects an evenly spaced subsequence of ~target dates for
// axis labeling. The first and last date are always included. Input must be
// sorted ascending; the call is deterministic and idempotent. If the input
// already fits the target, it is returned unchanged (copied).
func PickAxisTicks(dates []time.Time, target int) []time.Time {
	if target < 2 {
		target = 8
	}
	if len(dates) <= target {
		out := make([]time.Time, len(dates))
		copy(out, dates)
		return out
	}

	span := MonthsBetween(dates[0], dates[len(dates)-1])
	interval := (span + (target-1)/2) / (target - 1)
	if interval < 1 {
		interval = 1
	}

	out := make([]time.Time, 0, target+1)
	next := 0
	for _, d := range dates {
		if MonthsBetween(dates[0], d) >= next {
			out = append(out, d)
			next += interval
		}
	}
	last := dates[len(dates)-1]
	if !out[len(out)-1].Equal(last) {
		out = append(out, last)
	}
	return out
}
