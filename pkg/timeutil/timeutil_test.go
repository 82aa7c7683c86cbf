package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartOfDay_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	// 01:30 local on Jan 2 is still 20:30 UTC on Jan 1.
	local := time.Date(2026, 1, 2, 1, 30, 0, 0, loc)

	got := StartOfDay(local)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestNextDay(t *testing.T) {
	at := time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), NextDay(at))
}

func TestSameDay(t *testing.T) {
	a := time.Date(2026, 3, 10, 0, 0, 1, 0, time.UTC)
	b := time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)
	c := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)

	assert.True(t, SameDay(a, b))
	assert.False(t, SameDay(b, c))
}

func TestDaysBack(t *testing.T) {
	at := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), DaysBack(at, 0))
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), DaysBack(at, 3))
}

func TestOverlapWithin(t *testing.T) {
	day := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	next := day.AddDate(0, 0, 1)

	// Session spans midnight: 23:00 to 01:00 next day.
	from := day.Add(23 * time.Hour)
	to := next.Add(time.Hour)

	assert.Equal(t, time.Hour, OverlapWithin(from, to, day, next))
	assert.Equal(t, time.Hour, OverlapWithin(from, to, next, next.AddDate(0, 0, 1)))

	// Entirely outside the bucket.
	assert.Equal(t, time.Duration(0), OverlapWithin(from, to, day.AddDate(0, 0, -1), day))
}

func TestWholeMinutes(t *testing.T) {
	assert.Equal(t, 0, WholeMinutes(59*time.Second))
	assert.Equal(t, 1, WholeMinutes(60*time.Second))
	assert.Equal(t, 2, WholeMinutes(2*time.Minute+59*time.Second))
	assert.Equal(t, 0, WholeMinutes(-time.Minute))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0 seconds", FormatDuration(0))
	assert.Equal(t, "less than a second", FormatDuration(500*time.Millisecond))
	assert.Equal(t, "1 second", FormatDuration(time.Second))
	assert.Equal(t, "5 minutes", FormatDuration(5*time.Minute))
	assert.Equal(t, "2 hours, 5 minutes", FormatDuration(2*time.Hour+5*time.Minute+30*time.Second))
	assert.Equal(t, "1 day, 1 hour", FormatDuration(25*time.Hour))
}
