package dimension

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventstar/eventstar/pkg/types"
)

var ts = time.Date(2021, time.January, 18, 10, 0, 0, 0, time.UTC) // MLK day

func event(user, browser, os, country string, at time.Time) types.ReconciledEvent {
	ev := types.ReconciledEvent{Event: "view", Time: at, VisitorID: "v", Country: country}
	if user != "" {
		ev.UserID = types.Some(user)
	}
	if browser != "" {
		ev.Browser = types.Some(browser)
	}
	if os != "" {
		ev.OS = types.Some(os)
	}
	return ev
}

func TestAssign_FirstSeenOrder(t *testing.T) {
	rows := []types.ReconciledEvent{
		event("b", "", "", "", ts),
		event("a", "", "", "", ts),
		event("b", "", "", "", ts),
		event("", "", "", "", ts),
		event("c", "", "", "", ts),
	}

	users, mapping := BuildUsers(rows)

	require.Len(t, users, 3)
	assert.Equal(t, types.UserRow{Key: 1, UserID: "b"}, users[0])
	assert.Equal(t, types.UserRow{Key: 2, UserID: "a"}, users[1])
	assert.Equal(t, types.UserRow{Key: 3, UserID: "c"}, users[2])

	key, ok := mapping.Lookup("a")
	assert.True(t, ok)
	assert.Equal(t, int64(2), key)
	_, ok = mapping.Lookup("")
	assert.False(t, ok)
}

func TestBuildDevices_RequiresBrowserAndOS(t *testing.T) {
	rows := []types.ReconciledEvent{
		event("", "Chrome", "Windows", "", ts),
		event("", "Chrome", "", "", ts),
		event("", "", "android", "", ts),
		event("", "Mobile Safari", "iOS", "", ts),
		event("", "Chrome", "Windows", "", ts),
	}

	devices, mapping := BuildDevices(rows)

	require.Len(t, devices, 2)
	assert.Equal(t, types.DeviceRow{Key: 1, Browser: "Chrome", OS: "Windows", DeviceType: types.DeviceDesktop}, devices[0])
	assert.Equal(t, types.DeviceRow{Key: 2, Browser: "Mobile Safari", OS: "iOS", DeviceType: types.DeviceMobile}, devices[1])
	assert.Len(t, mapping, 2)
}

func TestBuildDevices_WhitespaceIsAbsent(t *testing.T) {
	rows := []types.ReconciledEvent{
		event("", "  ", " ", "", ts),
		event("", "Chrome", "\t", "", ts),
	}

	devices, mapping := BuildDevices(rows)

	assert.Empty(t, devices)
	assert.Empty(t, mapping)
	_, ok := DeviceKeyOf(rows[0])
	assert.False(t, ok)

	users, _ := BuildUsers([]types.ReconciledEvent{event(" ", "", "", "", ts)})
	assert.Empty(t, users)
}

func TestBuildLocations_AddsGeoAttributes(t *testing.T) {
	rows := []types.ReconciledEvent{
		event("", "", "", "Netherlands", ts),
		event("", "", "", "Netherlands", ts),
		event("", "", "", "Canada", ts),
	}

	locations, _ := NewBuilder().BuildLocations(rows)

	require.Len(t, locations, 2)
	assert.Equal(t, types.LocationRow{
		Key: 1, Country: "Netherlands", OfficialCountryName: "Kingdom of the Netherlands", Continent: "Europe",
	}, locations[0])
	assert.Equal(t, "Canada", locations[1].OfficialCountryName)
	assert.Equal(t, "North America", locations[1].Continent)
}

func TestBuildDates_CalendarAttributes(t *testing.T) {
	later := ts.Add(time.Hour)
	rows := []types.ReconciledEvent{
		event("", "", "", "", ts),
		event("", "", "", "", ts),
		event("", "", "", "", later.In(time.FixedZone("CET", 3600))),
		event("", "", "", "", time.Time{}),
	}

	dates, mapping := NewBuilder().BuildDates(rows)

	require.Len(t, dates, 2)
	assert.Equal(t, types.DateRow{
		Key:       1,
		Time:      ts,
		Month:     "January",
		Year:      2021,
		Date:      "2021-01-18",
		Day:       "Monday",
		Quarter:   "2021Q1",
		IsHoliday: true,
	}, dates[0])
	key, ok := mapping.Lookup(later)
	require.True(t, ok)
	assert.Equal(t, int64(2), key)
}

func TestQuarterLabel(t *testing.T) {
	tests := map[time.Month]string{
		time.January:   "2022Q1",
		time.March:     "2022Q1",
		time.April:     "2022Q2",
		time.September: "2022Q3",
		time.December:  "2022Q4",
	}
	for month, want := range tests {
		assert.Equal(t, want, QuarterLabel(time.Date(2022, month, 10, 0, 0, 0, 0, time.UTC)))
	}
}

func TestBuildAll(t *testing.T) {
	rows := []types.ReconciledEvent{
		event("42", "Chrome", "Windows", "Netherlands", ts),
		event("42", "Chrome", "Windows", "Netherlands", ts.Add(time.Minute)),
	}

	tables, err := NewBuilder().BuildAll(context.Background(), rows)
	require.NoError(t, err)

	assert.Len(t, tables.Devices, 1)
	assert.Len(t, tables.Users, 1)
	assert.Len(t, tables.Locations, 1)
	assert.Len(t, tables.Dates, 2)
	assert.Equal(t, int64(1), tables.LocationKeys["Netherlands"])
}

func TestBuildAll_Empty(t *testing.T) {
	tables, err := NewBuilder().BuildAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, tables.Devices)
	assert.Empty(t, tables.Users)
	assert.Empty(t, tables.Locations)
	assert.Empty(t, tables.Dates)
}

func TestBuildAll_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBuilder().BuildAll(ctx, []types.ReconciledEvent{event("1", "", "", "", ts)})
	assert.ErrorIs(t, err, context.Canceled)
}
