package warehouse

import "github.com/eventstar/eventstar/pkg/types"

// Table names of the star schema.
const (
	TableDevices   = "device_details"
	TableUsers     = "users"
	TableLocations = "locations"
	TableDates     = "event_date"
	TableEvents    = "events"
)

// SchemaVersion is the version of the star schema layout.
const SchemaVersion = 1

var (
	DeviceDetailsSchema = types.Schema{
		Name:    TableDevices,
		Version: SchemaVersion,
		Columns: []types.ColumnDef{
			{Name: "id", Type: "INTEGER", PrimaryKey: true},
			{Name: "browser", Type: "TEXT"},
			{Name: "os", Type: "TEXT"},
			{Name: "device_type", Type: "TEXT"},
		},
	}

	UsersSchema = types.Schema{
		Name:    TableUsers,
		Version: SchemaVersion,
		Columns: []types.ColumnDef{
			{Name: "id", Type: "INTEGER", PrimaryKey: true},
			{Name: "user_id", Type: "TEXT"},
		},
	}

	LocationsSchema = types.Schema{
		Name:    TableLocations,
		Version: SchemaVersion,
		Columns: []types.ColumnDef{
			{Name: "id", Type: "INTEGER", PrimaryKey: true},
			{Name: "country", Type: "TEXT"},
			{Name: "official_country_name", Type: "TEXT"},
			{Name: "continent", Type: "TEXT", Nullable: true},
		},
	}

	EventDateSchema = types.Schema{
		Name:    TableDates,
		Version: SchemaVersion,
		Columns: []types.ColumnDef{
			{Name: "id", Type: "INTEGER", PrimaryKey: true},
			{Name: "time", Type: "TIMESTAMP"},
			{Name: "month", Type: "TEXT"},
			{Name: "year", Type: "INTEGER"},
			{Name: "date", Type: "TEXT"},
			{Name: "day", Type: "TEXT"},
			{Name: "quarter", Type: "TEXT"},
			{Name: "is_holiday", Type: "BOOLEAN"},
		},
	}

	EventsSchema = types.Schema{
		Name:    TableEvents,
		Version: SchemaVersion,
		Columns: []types.ColumnDef{
			{Name: "id", Type: "INTEGER", PrimaryKey: true},
			{Name: "event", Type: "TEXT"},
			{Name: "device_key", Type: "INTEGER", Nullable: true, References: TableDevices},
			{Name: "user_key", Type: "INTEGER", Nullable: true, References: TableUsers},
			{Name: "location_key", Type: "INTEGER", Nullable: true, References: TableLocations},
			{Name: "event_date_key", Type: "INTEGER", Nullable: true, References: TableDates},
		},
		Indexes: []types.IndexDef{
			{Name: "idx_events_location", Columns: []string{"location_key"}},
			{Name: "idx_events_user", Columns: []string{"user_key"}},
		},
	}
)

// Schemas returns the star schema tables in load order: dimensions before
// the fact table that references them.
func Schemas() []types.Schema {
	return []types.Schema{
		DeviceDetailsSchema,
		UsersSchema,
		LocationsSchema,
		EventDateSchema,
		EventsSchema,
	}
}

// validIdentifier reports whether name is safe to splice into SQL as a
// table or column name.
func validIdentifier(name string) bool {
	if len(name) == 0 || len(name) > 63 {
		return false
	}
	first := name[0]
	if (first < 'a' || first > 'z') && (first < 'A' || first > 'Z') && first != '_' {
		return false
	}
	for i := 1; i < len(name); i++ {
		c := name[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') && c != '_' {
			return false
		}
	}
	return true
}
