package ingest

import (
	"fmt"
	"strings"
	"time"
)

// timestampFormats is the fixed ordered ladder of accepted layouts. Full
// date-times first; bare times are anchored to the target day.
var timestampFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"01/02/2006 3:04:05 PM",
	"01/02/2006 3:04 PM",
	"01/02/2006 15:04",
	"1/2/2006 15:04",
}

var bareTimeFormats = []string{
	"15:04:05",
	"15:04",
	"3:04:05 PM",
	"3:04 PM",
	"3:04PM",
}

// ParseTimestamp walks the format ladder; day anchors bare clock times.
func ParseTimestamp(s string, day time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	for _, layout := range timestampFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	upper := strings.ToUpper(s)
	for _, layout := range bareTimeFormats {
		if t, err := time.Parse(layout, upper); err == nil {
			return time.Date(
				day.Year(), day.Month(), day.Day(),
				t.Hour(), t.Minute(), t.Second(), 0, time.UTC,
			), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// ParseDate accepts the engine's canonical YYYY-MM-DD date form.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t.UTC(), nil
}

// SameDay reports whether two instants fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// withinOneDay reports whether t falls on the day before, of, or after day.
func withinOneDay(t, day time.Time) bool {
	return SameDay(t, day.AddDate(0, 0, -1)) || SameDay(t, day) || SameDay(t, day.AddDate(0, 0, 1))
}
