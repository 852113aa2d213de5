// Package reconcile filters collected contacts to the rolling weekly window
// and shapes them into the exported reconciliation tables.
package reconcile

import (
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Window is the open date interval (Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow computes the window for a run on today:
//
//	start = today - daysSinceMonday - lookback - 1
//	end   = start + 7*multiplier + 1
//
// With lookback 7 and multiplier 1 the open interval is last week's Monday
// through Sunday.
func NewWindow(today time.Time, lookbackDays, weeklyMultiplier int) Window {
	day := civil(today)
	sinceMonday := (int(day.Weekday()) + 6) % 7
	start := day.AddDate(0, 0, -sinceMonday-lookbackDays-1)
	return Window{Start: start, End: start.AddDate(0, 0, 7*weeklyMultiplier+1)}
}

// Contains reports whether d lies strictly between Start and End.
func (w Window) Contains(d time.Time) bool {
	d = civil(d)
	return d.After(w.Start) && d.Before(w.End)
}

// String renders the window as "<start>_<end>".
func (w Window) String() string {
	return w.Start.Format(dateLayout) + "_" + w.End.Format(dateLayout)
}

// ParseDate reads the calendar date of an API timestamp such as
// "2024-01-09", "2024-01-09 10:15:00" or "2024-01-09T10:15:00-05:00".
// The time part is discarded, not converted.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "T "); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return time.Time{}, false
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// civil truncates t to midnight UTC of its own calendar date.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
