// Package timeutil provides day-boundary helpers and human-readable
// duration formatting. All day arithmetic uses midnight UTC boundaries:
// activity-by-day buckets must be reproducible regardless of where the
// process or the user happens to be located.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// StartOfDay returns midnight UTC of the day containing t.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// NextDay returns midnight UTC of the day after the one containing t.
func NextDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1)
}

// SameDay checks whether two times fall on the same UTC day.
func SameDay(a, b time.Time) bool {
	return StartOfDay(a).Equal(StartOfDay(b))
}

// DaysBack returns midnight UTC n days before the day containing t.
// DaysBack(t, 0) == StartOfDay(t).
func DaysBack(t time.Time, n int) time.Time {
	return StartOfDay(t).AddDate(0, 0, -n)
}

// OverlapWithin returns how much of the [from, to) interval falls inside
// the [bucketStart, bucketEnd) window. Used to split sessions that span
// midnight across day buckets.
func OverlapWithin(from, to, bucketStart, bucketEnd time.Time) time.Duration {
	if from.Before(bucketStart) {
		from = bucketStart
	}
	if to.After(bucketEnd) {
		to = bucketEnd
	}
	if !to.After(from) {
		return 0
	}
	return to.Sub(from)
}

// WholeMinutes returns the number of complete minutes in d. Fractional
// minutes are truncated, never rounded up.
func WholeMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / time.Minute)
}

// FormatDuration renders a duration as a human string such as
// "2 hours, 5 minutes". Zero or negative input yields "0 seconds";
// sub-second durations yield "less than a second". At most the two most
// significant units are shown.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "0 seconds"
	}
	if d < time.Second {
		return "less than a second"
	}

	type unit struct {
		name  string
		value int64
	}

	total := int64(d / time.Second)
	units := []unit{
		{"day", total / 86400},
		{"hour", (total % 86400) / 3600},
		{"minute", (total % 3600) / 60},
		{"second", total % 60},
	}

	parts := make([]string, 0, 2)
	for _, u := range units {
		if u.value == 0 {
			continue
		}
		parts = append(parts, pluralize(u.value, u.name))
		if len(parts) == 2 {
			break
		}
	}

	return strings.Join(parts, ", ")
}

func pluralize(n int64, name string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", name)
	}
	return fmt.Sprintf("%d %ss", n, name)
}
