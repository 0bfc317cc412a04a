package warehouse

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *SQLSink {
	t.Helper()
	db, d, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "warehouse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sink := NewSQLSink(db, d)
	require.NoError(t, sink.InitSchema(context.Background()))
	return sink
}

func count(t *testing.T, sink *SQLSink, table string) int {
	t.Helper()
	var n int
	require.NoError(t, sink.DB().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestSQLite_InitSchemaIsIdempotent(t *testing.T) {
	sink := openSQLite(t)
	require.NoError(t, sink.InitSchema(context.Background()))

	for _, s := range Schemas() {
		assert.Zero(t, count(t, sink, s.Name), s.Name)
	}
}

func TestSQLite_LoadReplacesPreviousBatch(t *testing.T) {
	sink := openSQLite(t)
	loader := NewLoader(sink, nil)
	tables, facts := sampleTables()
	ctx := context.Background()

	_, err := loader.Load(ctx, tables, facts)
	require.NoError(t, err)
	_, err = loader.Load(ctx, tables, facts)
	require.NoError(t, err)

	assert.Equal(t, 1, count(t, sink, TableDevices))
	assert.Equal(t, 1, count(t, sink, TableUsers))
	assert.Equal(t, 1, count(t, sink, TableLocations))
	assert.Equal(t, 1, count(t, sink, TableDates))
	assert.Equal(t, 2, count(t, sink, TableEvents))

	var userKeys int
	require.NoError(t, sink.DB().QueryRow("SELECT COUNT(*) FROM events WHERE user_key IS NULL").Scan(&userKeys))
	assert.Equal(t, 1, userKeys)

	var holiday bool
	require.NoError(t, sink.DB().QueryRow("SELECT is_holiday FROM event_date WHERE id = 1").Scan(&holiday))
	assert.True(t, holiday)
}

func TestSQLite_FailedLoadLeavesPreviousContents(t *testing.T) {
	sink := openSQLite(t)
	loader := NewLoader(sink, nil)
	tables, facts := sampleTables()
	ctx := context.Background()

	_, err := loader.Load(ctx, tables, facts)
	require.NoError(t, err)

	// Duplicate primary keys make the second load fail midway.
	tables.Users = append(tables.Users, tables.Users[0])
	_, err = loader.Load(ctx, tables, facts)
	require.Error(t, err)

	assert.Equal(t, 1, count(t, sink, TableUsers))
	assert.Equal(t, 2, count(t, sink, TableEvents))
}

func TestCreateTableSQL(t *testing.T) {
	stmts, err := CreateTableSQL(Postgres{}, EventsSchema)
	require.NoError(t, err)
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[0], "id BIGINT PRIMARY KEY")
	assert.Contains(t, stmts[0], "device_key BIGINT REFERENCES device_details(id)")
	assert.Equal(t, "CREATE INDEX IF NOT EXISTS idx_events_location ON events(location_key)", stmts[1])

	stmts, err = CreateTableSQL(SQLite{}, EventDateSchema)
	require.NoError(t, err)
	assert.Contains(t, stmts[0], "is_holiday INTEGER NOT NULL")
	assert.Contains(t, stmts[0], "time TIMESTAMP NOT NULL")
}

func TestDialectFor(t *testing.T) {
	d, err := DialectFor("postgres")
	require.NoError(t, err)
	assert.Equal(t, "$3", d.Placeholder(3))

	_, err = DialectFor("snowflake")
	assert.Error(t, err)
}
