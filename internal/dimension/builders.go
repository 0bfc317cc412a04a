package dimension

import (
	"fmt"
	"time"

	"github.com/eventstar/eventstar/internal/cleaner"
	"github.com/eventstar/eventstar/pkg/types"
)

// DeviceKey is the natural key of the device dimension.
type DeviceKey struct {
	Browser string
	OS      string
}

// DeviceKeyOf returns the device natural key of an event. Both browser and
// OS must be present.
func DeviceKeyOf(ev types.ReconciledEvent) (DeviceKey, bool) {
	if !ev.Browser.Present() || !ev.OS.Present() {
		return DeviceKey{}, false
	}
	return DeviceKey{Browser: ev.Browser.Value, OS: ev.OS.Value}, true
}

// UserKeyOf returns the user natural key of an event.
func UserKeyOf(ev types.ReconciledEvent) (string, bool) {
	if !ev.UserID.Present() {
		return "", false
	}
	return ev.UserID.Value, true
}

// LocationKeyOf returns the location natural key of an event.
func LocationKeyOf(ev types.ReconciledEvent) (string, bool) {
	if ev.Country == "" {
		return "", false
	}
	return ev.Country, true
}

// DateKeyOf returns the date natural key of an event: its full timestamp in UTC.
func DateKeyOf(ev types.ReconciledEvent) (time.Time, bool) {
	if ev.Time.IsZero() {
		return time.Time{}, false
	}
	return ev.Time.UTC(), true
}

// BuildDevices builds the device dimension.
func BuildDevices(rows []types.ReconciledEvent) ([]types.DeviceRow, Mapping[DeviceKey]) {
	return Assign(rows, DeviceKeyOf, func(id int64, k DeviceKey, _ types.ReconciledEvent) types.DeviceRow {
		return types.DeviceRow{
			Key:        id,
			Browser:    k.Browser,
			OS:         k.OS,
			DeviceType: cleaner.ClassifyDevice(types.Some(k.Browser), types.Some(k.OS)),
		}
	})
}

// BuildUsers builds the user dimension.
func BuildUsers(rows []types.ReconciledEvent) ([]types.UserRow, Mapping[string]) {
	return Assign(rows, UserKeyOf, func(id int64, k string, _ types.ReconciledEvent) types.UserRow {
		return types.UserRow{Key: id, UserID: k}
	})
}

// BuildLocations builds the location dimension. Country names missing from
// the lookup table keep their name as official name and get no continent.
func (b *Builder) BuildLocations(rows []types.ReconciledEvent) ([]types.LocationRow, Mapping[string]) {
	return Assign(rows, LocationKeyOf, func(id int64, k string, _ types.ReconciledEvent) types.LocationRow {
		loc := types.LocationRow{Key: id, Country: k, OfficialCountryName: k}
		if c, ok := b.countries.Lookup(k); ok {
			loc.OfficialCountryName = c.Official()
			loc.Continent = c.Continent
		}
		return loc
	})
}

// BuildDates builds the date dimension, one row per distinct event timestamp.
func (b *Builder) BuildDates(rows []types.ReconciledEvent) ([]types.DateRow, Mapping[time.Time]) {
	return Assign(rows, DateKeyOf, func(id int64, k time.Time, _ types.ReconciledEvent) types.DateRow {
		return types.DateRow{
			Key:       id,
			Time:      k,
			Month:     k.Month().String(),
			Year:      k.Year(),
			Date:      k.Format("2006-01-02"),
			Day:       k.Weekday().String(),
			Quarter:   QuarterLabel(k),
			IsHoliday: b.calendar.IsHoliday(k),
		}
	})
}

// QuarterLabel formats the calendar quarter of t, e.g. "2021Q1".
func QuarterLabel(t time.Time) string {
	return fmt.Sprintf("%dQ%d", t.Year(), (int(t.Month())-1)/3+1)
}
