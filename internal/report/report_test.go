package report

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventstar/eventstar/internal/pipeline"
	"github.com/eventstar/eventstar/internal/warehouse"
	"github.com/eventstar/eventstar/pkg/types"
)

var t0 = time.Date(2021, time.March, 1, 9, 0, 0, 0, time.UTC)

func loadedWarehouse(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, d, err := warehouse.Open(ctx, warehouse.DriverSQLite, filepath.Join(t.TempDir(), "warehouse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sink := warehouse.NewSQLSink(db, d)
	require.NoError(t, sink.InitSchema(ctx))

	raw := []types.RawEvent{
		{Event: "a", Time: t0, VisitorID: "v1", UserID: types.Some("1"), CountryCode: "DE"},
		{Event: "b", Time: t0.Add(time.Minute), VisitorID: "v1", CountryCode: "DE"},
		{Event: "c", Time: t0.Add(2 * time.Minute), VisitorID: "v2", CountryCode: "US"},
		{Event: "d", Time: t0.Add(3 * time.Minute), VisitorID: "v3", CountryCode: "USA"},
		{Event: "e", Time: t0.Add(4 * time.Minute), VisitorID: "v4", CountryCode: "NL"},
		{Event: "f", Time: t0.Add(5 * time.Minute), VisitorID: "v4", CountryCode: "NL"},
	}
	res, err := pipeline.New().Run(ctx, raw)
	require.NoError(t, err)
	_, err = warehouse.NewLoader(sink, nil).Load(ctx, res.Tables, res.Facts)
	require.NoError(t, err)
	return db
}

func TestEventsPerCountry(t *testing.T) {
	r := New(loadedWarehouse(t), nil)
	s, err := r.EventsPerCountry(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SectionEventsPerCountry, s.Title)
	assert.Equal(t, []Count{
		{Label: "Germany", NEvents: 2},
		{Label: "Netherlands", NEvents: 2},
		{Label: "United States", NEvents: 2},
	}, s.Rows)
}

func TestEventsByUserType(t *testing.T) {
	r := New(loadedWarehouse(t), nil)
	s, err := r.EventsByUserType(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []Count{
		{Label: Unauthenticated, NEvents: 4},
		{Label: Authenticated, NEvents: 2},
	}, s.Rows)
}

func TestEmptyWarehouse(t *testing.T) {
	ctx := context.Background()
	db, d, err := warehouse.Open(ctx, warehouse.DriverSQLite, filepath.Join(t.TempDir(), "w.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, warehouse.NewSQLSink(db, d).InitSchema(ctx))

	sections, err := New(db, nil).All(ctx)
	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Empty(t, sections[0].Rows)
	assert.Empty(t, sections[1].Rows)
}

func TestWriteCSV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	sections, err := New(loadedWarehouse(t), nil).All(context.Background())
	require.NoError(t, err)

	path, err := WriteCSV(dir, DefaultName, sections)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultName+".csv"), path)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Events Per Country\n"+
		"country,nevents\n"+
		"Germany,2\n"+
		"Netherlands,2\n"+
		"United States,2\n"+
		"\n"+
		"Events by User Type\n"+
		"user_type,nevents\n"+
		"Unauthenticated,4\n"+
		"Authenticated,2\n", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
