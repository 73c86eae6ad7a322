package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/thebtf/dwell/pkg/models"
)

// WindowKind is the closed set of report window selectors.
type WindowKind string

const (
	WindowDay   WindowKind = "day"
	WindowWeek  WindowKind = "week"
	WindowMonth WindowKind = "month"
	WindowYear  WindowKind = "year"
	WindowAll   WindowKind = "all"
)

// allTimeYears is how far back the all-time window reaches.
const allTimeYears = 10

// Window is a resolved selector: a kind plus the reference date components
// that kind needs. Zero components fall back to "now" at resolution time.
type Window struct {
	Kind    WindowKind
	Year    int
	Month   time.Month
	Day     int
	ISOWeek int
}

// ParseSelector parses a period/date pair from the report API into a Window.
// Accepted date formats: "2006-01-02" (day), "2006-W02" (week), "2006-01"
// (month), "2006" (year). An empty date selects the current period.
func ParseSelector(period, date string, now time.Time) (Window, error) {
	kind := WindowKind(period)
	if period == "" {
		kind = WindowDay
	}

	w := Window{Kind: kind}
	switch kind {
	case WindowDay:
		if date == "" {
			w.Year, w.Month, w.Day = now.Date()
			return w, nil
		}
		t, err := time.ParseInLocation(models.DateLayout, date, now.Location())
		if err != nil {
			return Window{}, fmt.Errorf("parse day selector %q: %w", date, err)
		}
		w.Year, w.Month, w.Day = t.Date()
	case WindowWeek:
		if date == "" {
			w.Year, w.ISOWeek = now.ISOWeek()
			return w, nil
		}
		parts := strings.SplitN(date, "-W", 2)
		if len(parts) != 2 {
			return Window{}, fmt.Errorf("parse week selector %q: expected YYYY-Www", date)
		}
		year, err := strconv.Atoi(parts[0])
		if err != nil {
			return Window{}, fmt.Errorf("parse week selector %q: %w", date, err)
		}
		week, err := strconv.Atoi(parts[1])
		if err != nil || week < 1 || week > 53 {
			return Window{}, fmt.Errorf("parse week selector %q: invalid week number", date)
		}
		w.Year, w.ISOWeek = year, week
	case WindowMonth:
		if date == "" {
			w.Year, w.Month, _ = now.Date()
			return w, nil
		}
		t, err := time.ParseInLocation("2006-01", date, now.Location())
		if err != nil {
			return Window{}, fmt.Errorf("parse month selector %q: %w", date, err)
		}
		w.Year, w.Month, _ = t.Date()
	case WindowYear:
		if date == "" {
			w.Year = now.Year()
			return w, nil
		}
		year, err := strconv.Atoi(date)
		if err != nil {
			return Window{}, fmt.Errorf("parse year selector %q: %w", date, err)
		}
		w.Year = year
	case WindowAll:
		// No reference date.
	default:
		return Window{}, fmt.Errorf("unknown period %q", period)
	}
	return w, nil
}

// Resolve turns the window into concrete [start, end) bounds and a label
// suitable as a cache key. End is clamped to now when the window extends into
// the future.
func (w Window) Resolve(now time.Time) (start, end time.Time, label string) {
	loc := now.Location()

	switch w.Kind {
	case WindowDay:
		start = time.Date(w.Year, w.Month, w.Day, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 0, 1)
		label = start.Format(models.DateLayout)
	case WindowWeek:
		start = isoWeekStart(w.Year, w.ISOWeek, loc)
		end = start.AddDate(0, 0, 7)
		label = fmt.Sprintf("%04d-W%02d", w.Year, w.ISOWeek)
	case WindowMonth:
		start = time.Date(w.Year, w.Month, 1, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 1, 0)
		label = start.Format("2006-01")
	case WindowYear:
		start = time.Date(w.Year, time.January, 1, 0, 0, 0, 0, loc)
		end = start.AddDate(1, 0, 0)
		label = start.Format("2006")
	case WindowAll:
		start = time.Date(now.Year()-allTimeYears, time.January, 1, 0, 0, 0, 0, loc)
		end = now
		label = "all-time"
	}

	if end.After(now) {
		end = now
	}
	return start, end, label
}

// isoWeekStart returns the Monday starting ISO week w of year y.
// ISO 8601: January 4th is always in week 1.
func isoWeekStart(year, week int, loc *time.Location) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, loc)
	// Days since Monday of week 1.
	offset := (int(jan4.Weekday()) + 6) % 7
	week1Monday := jan4.AddDate(0, 0, -offset)
	return week1Monday.AddDate(0, 0, (week-1)*7)
}
