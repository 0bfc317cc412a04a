// Package holiday provides the official holiday calendar used by the date dimension.
package holiday

import (
	"sort"
	"time"
)

// Calendar reports whether a calendar date is an official holiday.
type Calendar interface {
	IsHoliday(date time.Time) bool
}

// Holiday is an observed holiday on a specific date.
type Holiday struct {
	Name string
	Date time.Time
}

// rule computes the actual (unobserved) date of a holiday in a year.
type rule struct {
	name  string
	since int // first year the holiday applies, 0 for always
	date  func(year int) time.Time
	// shift moves a weekend date to the nearest workday
	shift bool
}

// USFederal is the United States federal holiday calendar with
// nearest-workday observance for fixed-date holidays.
type USFederal struct{}

var usFederalRules = []rule{
	{name: "New Year's Day", date: fixed(time.January, 1), shift: true},
	{name: "Birthday of Martin Luther King, Jr.", since: 1986, date: nthWeekday(time.January, time.Monday, 3)},
	{name: "Washington's Birthday", date: nthWeekday(time.February, time.Monday, 3)},
	{name: "Memorial Day", date: lastWeekday(time.May, time.Monday)},
	{name: "Juneteenth National Independence Day", since: 2021, date: fixed(time.June, 19), shift: true},
	{name: "Independence Day", date: fixed(time.July, 4), shift: true},
	{name: "Labor Day", date: nthWeekday(time.September, time.Monday, 1)},
	{name: "Columbus Day", date: nthWeekday(time.October, time.Monday, 2)},
	{name: "Veterans Day", date: fixed(time.November, 11), shift: true},
	{name: "Thanksgiving Day", date: nthWeekday(time.November, time.Thursday, 4)},
	{name: "Christmas Day", date: fixed(time.December, 25), shift: true},
}

// Holidays returns the observed holidays generated by the rules of a year,
// sorted by date. An observed date may fall in the previous year
// (New Year's Day on a Saturday is observed on December 31).
func (USFederal) Holidays(year int) []Holiday {
	out := make([]Holiday, 0, len(usFederalRules))
	for _, r := range usFederalRules {
		if r.since != 0 && year < r.since {
			continue
		}
		d := r.date(year)
		if r.shift {
			d = nearestWorkday(d)
		}
		out = append(out, Holiday{Name: r.name, Date: d})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Lookup returns the holiday observed on date, if any. Only the calendar
// date matters; time of day and location are ignored.
func (c USFederal) Lookup(date time.Time) (Holiday, bool) {
	day := civil(date)
	for _, year := range []int{day.Year(), day.Year() + 1} {
		for _, h := range c.Holidays(year) {
			if h.Date.Equal(day) {
				return h, true
			}
		}
	}
	return Holiday{}, false
}

// IsHoliday reports whether date is an observed federal holiday.
func (c USFederal) IsHoliday(date time.Time) bool {
	_, ok := c.Lookup(date)
	return ok
}

func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func fixed(month time.Month, day int) func(int) time.Time {
	return func(year int) time.Time {
		return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	}
}

func nthWeekday(month time.Month, wd time.Weekday, n int) func(int) time.Time {
	return func(year int) time.Time {
		first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		offset := (int(wd) - int(first.Weekday()) + 7) % 7
		return first.AddDate(0, 0, offset+7*(n-1))
	}
}

func lastWeekday(month time.Month, wd time.Weekday) func(int) time.Time {
	return func(year int) time.Time {
		last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
		offset := (int(last.Weekday()) - int(wd) + 7) % 7
		return last.AddDate(0, 0, -offset)
	}
}

func nearestWorkday(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	default:
		return d
	}
}
