package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	pipelineerrors "github.com/eventstar/eventstar/internal/errors"
	"github.com/eventstar/eventstar/internal/observability"
	"github.com/eventstar/eventstar/pkg/types"
)

var t1 = time.Date(2021, time.February, 2, 15, 4, 5, 0, time.UTC)

func TestRun_NetherlandsEndToEnd(t *testing.T) {
	raw := []types.RawEvent{
		{Event: "page_view", Time: t1, VisitorID: "abc",
			Browser: types.Some("Chrome"), OS: types.Some("Windows"), CountryCode: "NL"},
		{Event: "search", Time: t1.Add(time.Minute), VisitorID: "abc",
			UserID: types.Some("42"), CountryCode: "NL"},
	}

	res, err := New().Run(context.Background(), raw)
	require.NoError(t, err)

	require.Len(t, res.Cleaned, 2)
	for _, row := range res.Cleaned {
		assert.Equal(t, types.Some("Chrome"), row.Browser)
		assert.Equal(t, types.Some("Windows"), row.OS)
		assert.Equal(t, types.Some("42"), row.UserID)
		assert.Equal(t, "Netherlands", row.Country)
	}

	require.Len(t, res.Tables.Locations, 1)
	assert.Equal(t, types.LocationRow{
		Key: 1, Country: "Netherlands", OfficialCountryName: "Kingdom of the Netherlands", Continent: "Europe",
	}, res.Tables.Locations[0])
	require.Len(t, res.Tables.Users, 1)
	assert.Equal(t, "42", res.Tables.Users[0].UserID)

	require.Len(t, res.Facts, 2)
	for _, f := range res.Facts {
		assert.Equal(t, types.Int64Of(1), f.LocationKey)
		assert.Equal(t, types.Int64Of(res.Tables.Users[0].Key), f.UserKey)
		assert.Equal(t, types.Int64Of(1), f.DeviceKey)
	}
	assert.NotEmpty(t, res.RunID)
}

func TestRun_ConflictScenario(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	raw := []types.RawEvent{
		{Event: "a", Time: t1, VisitorID: "v1", UserID: types.Some("101"), CountryCode: "US"},
		{Event: "b", Time: t1.Add(time.Hour), VisitorID: "v1", UserID: types.Some("102"), CountryCode: "US"},
		{Event: "c", Time: t1.Add(2 * time.Hour), VisitorID: "v1", UserID: types.Some("101"), CountryCode: "US"},
	}

	res, err := New(WithLogger(zap.New(core))).Run(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Diagnostics.DeletedRows)
	require.Len(t, res.Reconciled, 2)
	for _, ev := range res.Reconciled {
		assert.Equal(t, "101", ev.UserID.Value)
	}
	assert.Len(t, res.Facts, 2)
	assert.Equal(t, 1, logs.FilterMessage("identity: deleted rows with conflicting user ids").Len())
}

func TestRun_UnresolvableCountryFails(t *testing.T) {
	raw := []types.RawEvent{{Event: "a", Time: t1, VisitorID: "v1", CountryCode: "ZZ"}}

	res, err := New().Run(context.Background(), raw)

	assert.Nil(t, res)
	assert.Equal(t, pipelineerrors.CodeUnresolvableCountryCode, pipelineerrors.GetCode(err))
}

func TestRun_EmptyBatch(t *testing.T) {
	res, err := New().Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Cleaned)
	assert.Empty(t, res.Facts)
	assert.Empty(t, res.Tables.Devices)
	assert.Empty(t, res.Tables.Dates)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPreprocessThenBuildMatchesRun(t *testing.T) {
	raw := []types.RawEvent{
		{Event: "a", Time: t1, VisitorID: "v1", UserID: types.Some("u-5"),
			Browser: types.Some("Firefox"), OS: types.Some("Linux"), CountryCode: "DEU"},
		{Event: "b", Time: t1, VisitorID: "v2", CountryCode: "fr"},
	}
	e := New()

	full, err := e.Run(context.Background(), raw)
	require.NoError(t, err)

	pre, err := e.Preprocess(context.Background(), raw)
	require.NoError(t, err)
	assert.Nil(t, pre.Tables)

	built, err := e.Build(context.Background(), pre.Reconciled)
	require.NoError(t, err)

	assert.Equal(t, full.Tables, built.Tables)
	assert.Equal(t, full.Facts, built.Facts)
}

func TestRun_RecordsPhaseStats(t *testing.T) {
	stats := observability.NewPhaseStats(0)
	e := New(WithStats(stats))
	raw := []types.RawEvent{{Event: "a", Time: t1, VisitorID: "v1", CountryCode: "NL"}}

	_, err := e.Run(context.Background(), raw)
	require.NoError(t, err)
	_, err = e.Run(context.Background(), []types.RawEvent{{Event: "a", Time: t1, VisitorID: "v1", CountryCode: "ZZ"}})
	require.Error(t, err)

	clean, ok := stats.Get("clean")
	require.True(t, ok)
	assert.Equal(t, int64(2), clean.Runs)
	assert.Equal(t, int64(1), clean.Failures)

	facts, ok := stats.Get("facts")
	require.True(t, ok)
	assert.Equal(t, int64(1), facts.Runs)
	assert.Equal(t, int64(1), facts.Rows)
}
