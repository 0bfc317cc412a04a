package types

import (
	"testing"
	"time"
)

func TestParseEventTime(t *testing.T) {
	want := time.Date(2021, time.March, 4, 5, 6, 7, 0, time.UTC)
	for _, s := range []string{
		"2021-03-04 05:06:07",
		" 2021-03-04T05:06:07Z ",
		"2021-03-04T06:06:07+01:00",
		"2021-03-04T05:06:07",
	} {
		got, err := ParseEventTime(s)
		if err != nil {
			t.Fatalf("ParseEventTime(%q) failed: %v", s, err)
		}
		if !got.Equal(want) {
			t.Errorf("ParseEventTime(%q) = %v, want %v", s, got, want)
		}
	}

	if _, err := ParseEventTime("04/03/2021"); err == nil {
		t.Error("expected error for unsupported layout")
	}
}

func TestFormatEventTime(t *testing.T) {
	ts := time.Date(2021, time.March, 4, 6, 6, 7, 0, time.FixedZone("CET", 3600))
	if got := FormatEventTime(ts); got != "2021-03-04 05:06:07" {
		t.Errorf("FormatEventTime = %q", got)
	}
}
