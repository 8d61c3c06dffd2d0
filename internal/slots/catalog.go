// Package slots produces the canonical bookable start times for a service day.
package slots

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"
)

// ServiceWindow is a span of the day during which parties may be seated.
// Start times are generated in [Open, Close).
type ServiceWindow struct {
	Name  string
	Open  civil.Time
	Close civil.Time
	// Weekdays limits the window to certain days; empty means every day.
	Weekdays []time.Weekday
}

func (w ServiceWindow) appliesTo(day time.Weekday) bool {
	if len(w.Weekdays) == 0 {
		return true
	}
	for _, d := range w.Weekdays {
		if d == day {
			return true
		}
	}
	return false
}

type Catalog struct {
	Windows  []ServiceWindow
	Interval time.Duration
	Location *time.Location
	Closed   []time.Weekday
}

// DefaultWindows is lunch 11:30-14:30 and dinner 17:00-22:00, every day.
func DefaultWindows() []ServiceWindow {
	return []ServiceWindow{
		{Name: "lunch", Open: civil.Time{Hour: 11, Minute: 30}, Close: civil.Time{Hour: 14, Minute: 30}},
		{Name: "dinner", Open: civil.Time{Hour: 17}, Close: civil.Time{Hour: 22}},
	}
}

func (c Catalog) Validate() error {
	if c.Interval < time.Minute {
		return errors.New("slot interval must be at least one minute")
	}
	if c.Location == nil {
		return errors.New("slot catalog needs a location")
	}
	for _, w := range c.Windows {
		if !w.Open.IsValid() || !w.Close.IsValid() {
			return fmt.Errorf("window %q: invalid clock time", w.Name)
		}
		if minuteOfDay(w.Close) <= minuteOfDay(w.Open) {
			return fmt.Errorf("window %q: close must be after open", w.Name)
		}
	}
	return nil
}

func (c Catalog) isClosed(day time.Weekday) bool {
	for _, d := range c.Closed {
		if d == day {
			return true
		}
	}
	return false
}

// StartTimes returns the ordered, de-duplicated slot start times for d.
// Steps are taken on the wall clock so DST transitions do not shift the grid.
func (c Catalog) StartTimes(d civil.Date) []time.Time {
	if c.Interval <= 0 || c.Location == nil {
		return nil
	}
	day := d.In(c.Location).Weekday()
	if c.isClosed(day) {
		return nil
	}

	step := int(c.Interval / time.Minute)
	seen := make(map[int]struct{})
	var minutes []int
	for _, w := range c.Windows {
		if !w.appliesTo(day) {
			continue
		}
		for m := minuteOfDay(w.Open); m < minuteOfDay(w.Close); m += step {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			minutes = append(minutes, m)
		}
	}
	sort.Ints(minutes)

	out := make([]time.Time, 0, len(minutes))
	for _, m := range minutes {
		out = append(out, At(d, civil.Time{Hour: m / 60, Minute: m % 60}, c.Location))
	}
	return out
}

// Contains reports whether t is one of the canonical start times of its day.
func (c Catalog) Contains(t time.Time) bool {
	if c.Location == nil {
		return false
	}
	for _, s := range c.StartTimes(DateOf(t, c.Location)) {
		if s.Equal(t) {
			return true
		}
	}
	return false
}

func minuteOfDay(t civil.Time) int { return t.Hour*60 + t.Minute }
