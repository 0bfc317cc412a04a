package types

import (
	"fmt"
	"strings"
	"time"
)

// TimePeriodLayout is the layout of time period bounds and of event times
// stored by the events API.
const TimePeriodLayout = "2006-01-02 15:04:05"

var eventTimeLayouts = []string{
	TimePeriodLayout,
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// ParseEventTime parses an upstream event time. Values without a zone are
// taken as UTC.
func ParseEventTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range eventTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

// FormatEventTime formats t in TimePeriodLayout, in UTC.
func FormatEventTime(t time.Time) string {
	return t.UTC().Format(TimePeriodLayout)
}
