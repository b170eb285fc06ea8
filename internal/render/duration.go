package render

import (
	"fmt"
	"time"
)

const day = 24 * time.Hour

// DateUnavailable replaces both duration forms when an event's date or time
// cannot be parsed.
const DateUnavailable = "Date unavailable"

// Span formats the absolute distance d as whole days and whole remaining
// hours: "2d 3h", "5h", "1d 0h", or "<1h" when both are zero.
func Span(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	days := int(d / day)
	hours := int((d % day) / time.Hour)

	switch {
	case days == 0 && hours == 0:
		return "<1h"
	case days == 0:
		return fmt.Sprintf("%dh", hours)
	default:
		return fmt.Sprintf("%dd %dh", days, hours)
	}
}

// Until describes start relative to now in the two forms a card shows.
// The event counts as passed once start is not after now.
func Until(now, start time.Time) (short, full string, passed bool) {
	diff := start.Sub(now)
	span := Span(diff)
	if diff > 0 {
		return "(" + span + ")", "In: " + span, false
	}
	return "(passed)", "Passed: " + span + " ago", true
}
