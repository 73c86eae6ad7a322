package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.August, 28, 15, 30, 0, 0, time.Local)

func TestParseSelectorDay(t *testing.T) {
	w, err := ParseSelector("day", "2026-08-10", testNow)
	require.NoError(t, err)

	start, end, label := w.Resolve(testNow)
	assert.Equal(t, time.Date(2026, time.August, 10, 0, 0, 0, 0, time.Local), start)
	assert.Equal(t, time.Date(2026, time.August, 11, 0, 0, 0, 0, time.Local), end)
	assert.Equal(t, "2026-08-10", label)
}

func TestParseSelectorDayDefaultsToToday(t *testing.T) {
	w, err := ParseSelector("day", "", testNow)
	require.NoError(t, err)

	start, end, label := w.Resolve(testNow)
	assert.Equal(t, time.Date(2026, time.August, 28, 0, 0, 0, 0, time.Local), start)
	// End clamps to now because today is still in progress.
	assert.Equal(t, testNow, end)
	assert.Equal(t, "2026-08-28", label)
}

func TestParseSelectorWeek(t *testing.T) {
	// Jan 4 2026 is a Sunday, so ISO week 1 of 2026 starts Mon Dec 29 2025.
	w, err := ParseSelector("week", "2026-W01", testNow)
	require.NoError(t, err)

	start, end, label := w.Resolve(testNow)
	assert.Equal(t, time.Date(2025, time.December, 29, 0, 0, 0, 0, time.Local), start)
	assert.Equal(t, time.Date(2026, time.January, 5, 0, 0, 0, 0, time.Local), end)
	assert.Equal(t, "2026-W01", label)
}

func TestParseSelectorMonth(t *testing.T) {
	w, err := ParseSelector("month", "2026-07", testNow)
	require.NoError(t, err)

	start, end, label := w.Resolve(testNow)
	assert.Equal(t, time.Date(2026, time.July, 1, 0, 0, 0, 0, time.Local), start)
	assert.Equal(t, time.Date(2026, time.August, 1, 0, 0, 0, 0, time.Local), end)
	assert.Equal(t, "2026-07", label)
}

func TestParseSelectorYearClampsToNow(t *testing.T) {
	w, err := ParseSelector("year", "2026", testNow)
	require.NoError(t, err)

	start, end, label := w.Resolve(testNow)
	assert.Equal(t, time.Date(2026, time.January, 1, 0, 0, 0, 0, time.Local), start)
	assert.Equal(t, testNow, end)
	assert.Equal(t, "2026", label)
}

func TestParseSelectorAllTime(t *testing.T) {
	w, err := ParseSelector("all", "", testNow)
	require.NoError(t, err)

	start, end, label := w.Resolve(testNow)
	assert.Equal(t, time.Date(2016, time.January, 1, 0, 0, 0, 0, time.Local), start)
	assert.Equal(t, testNow, end)
	assert.Equal(t, "all-time", label)
}

func TestParseSelectorEmptyPeriodIsDay(t *testing.T) {
	w, err := ParseSelector("", "", testNow)
	require.NoError(t, err)
	assert.Equal(t, WindowDay, w.Kind)
}

func TestParseSelectorErrors(t *testing.T) {
	tests := []struct {
		name   string
		period string
		date   string
	}{
		{"unknown period", "quarter", ""},
		{"bad day", "day", "08/10/2026"},
		{"bad week format", "week", "2026-35"},
		{"week out of range", "week", "2026-W54"},
		{"bad month", "month", "2026/07"},
		{"bad year", "year", "twenty-six"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSelector(tt.period, tt.date, testNow)
			assert.Error(t, err)
		})
	}
}

func TestResolveBoundsAreHalfOpen(t *testing.T) {
	w, err := ParseSelector("day", "2026-08-10", testNow)
	require.NoError(t, err)

	start, end, _ := w.Resolve(testNow)
	assert.True(t, start.Before(end))
	// 24h window, midnight to midnight.
	assert.Equal(t, 24*time.Hour, end.Sub(start))
}
