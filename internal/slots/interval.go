package slots

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func NewInterval(start time.Time, d time.Duration) Interval {
	return Interval{Start: start, End: start.Add(d)}
}

// Overlaps reports whether the two half-open intervals intersect.
// Touching intervals (one ends exactly when the other starts) do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

func (i Interval) Duration() time.Duration { return i.End.Sub(i.Start) }

func (i Interval) String() string {
	return fmt.Sprintf("[%s, %s)", i.Start.Format(time.RFC3339), i.End.Format(time.RFC3339))
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (civil.Date, error) {
	d, err := civil.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return d, nil
}

// ParseClock parses a wall-clock time given as HH:MM or HH:MM:SS.
func ParseClock(s string) (civil.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) == 5 && strings.Count(s, ":") == 1 {
		s += ":00"
	}
	t, err := civil.ParseTime(s)
	if err != nil {
		return civil.Time{}, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	return t, nil
}

// At places a wall-clock time on a calendar date in loc.
func At(d civil.Date, clock civil.Time, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, clock.Hour, clock.Minute, clock.Second, clock.Nanosecond, loc)
}

// DateOf returns the calendar date of t as observed in loc.
func DateOf(t time.Time, loc *time.Location) civil.Date {
	return civil.DateOf(t.In(loc))
}

// FormatClock renders the wall-clock part of t as HH:MM.
func FormatClock(t time.Time) string { return t.Format("15:04") }
