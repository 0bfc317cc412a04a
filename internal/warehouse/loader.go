package warehouse

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eventstar/eventstar/internal/dimension"
	pipelineerrors "github.com/eventstar/eventstar/internal/errors"
	"github.com/eventstar/eventstar/pkg/types"
)

// LoadStats reports the rows written per table.
type LoadStats struct {
	Rows     map[string]int
	Duration time.Duration
}

// Loader writes a built star schema to a Sink.
type Loader struct {
	sink   Sink
	logger *zap.Logger
}

// NewLoader creates a Loader.
func NewLoader(sink Sink, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{sink: sink, logger: logger}
}

// Load replaces the contents of the star schema with tables and facts in one
// transaction. Surrogate keys are regenerated on every run, so previous rows
// are deleted first. Dimensions are inserted before the facts that reference
// them. Any failure rolls the whole batch back and returns
// SINK/TRANSACTION_FAILED.
func (l *Loader) Load(ctx context.Context, tables *dimension.Tables, facts []types.FactEvent) (*LoadStats, error) {
	start := time.Now()
	if tables == nil {
		tables = &dimension.Tables{}
	}

	tx, err := l.sink.Begin(ctx)
	if err != nil {
		return nil, txFailed("begin", err)
	}

	stats := &LoadStats{Rows: make(map[string]int)}
	if err := l.write(ctx, tx, tables, facts, stats); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			l.logger.Error("warehouse: rollback failed", zap.Error(rbErr))
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, txFailed("commit", err)
	}

	stats.Duration = time.Since(start)
	l.logger.Info("warehouse: batch loaded",
		zap.Int("devices", stats.Rows[TableDevices]),
		zap.Int("users", stats.Rows[TableUsers]),
		zap.Int("locations", stats.Rows[TableLocations]),
		zap.Int("dates", stats.Rows[TableDates]),
		zap.Int("events", stats.Rows[TableEvents]),
		zap.Duration("duration", stats.Duration),
	)
	return stats, nil
}

func (l *Loader) write(ctx context.Context, tx Tx, tables *dimension.Tables, facts []types.FactEvent, stats *LoadStats) error {
	// Fact rows reference dimensions, so clear them first.
	schemas := Schemas()
	for i := len(schemas) - 1; i >= 0; i-- {
		if err := tx.DeleteAll(ctx, schemas[i].Name); err != nil {
			return txFailed("clear "+schemas[i].Name, err)
		}
	}

	inserts := []struct {
		schema types.Schema
		rows   [][]any
	}{
		{DeviceDetailsSchema, deviceRows(tables.Devices)},
		{UsersSchema, userRows(tables.Users)},
		{LocationsSchema, locationRows(tables.Locations)},
		{EventDateSchema, dateRows(tables.Dates)},
		{EventsSchema, factRows(facts)},
	}
	for _, ins := range inserts {
		if err := tx.BulkInsert(ctx, ins.schema.Name, ins.schema.ColumnNames(), ins.rows); err != nil {
			return txFailed("insert "+ins.schema.Name, err)
		}
		stats.Rows[ins.schema.Name] = len(ins.rows)
	}
	return nil
}

func txFailed(step string, cause error) error {
	return pipelineerrors.NewSinkError(pipelineerrors.CodeTransactionFailed,
		fmt.Sprintf("load transaction failed at %s", step), cause)
}

func deviceRows(in []types.DeviceRow) [][]any {
	out := make([][]any, len(in))
	for i, r := range in {
		out[i] = []any{r.Key, r.Browser, r.OS, string(r.DeviceType)}
	}
	return out
}

func userRows(in []types.UserRow) [][]any {
	out := make([][]any, len(in))
	for i, r := range in {
		out[i] = []any{r.Key, r.UserID}
	}
	return out
}

func locationRows(in []types.LocationRow) [][]any {
	out := make([][]any, len(in))
	for i, r := range in {
		var continent any
		if r.Continent != "" {
			continent = r.Continent
		}
		out[i] = []any{r.Key, r.Country, r.OfficialCountryName, continent}
	}
	return out
}

func dateRows(in []types.DateRow) [][]any {
	out := make([][]any, len(in))
	for i, r := range in {
		out[i] = []any{r.Key, r.Time, r.Month, r.Year, r.Date, r.Day, r.Quarter, r.IsHoliday}
	}
	return out
}

// factRows numbers facts 1..N in order.
func factRows(in []types.FactEvent) [][]any {
	out := make([][]any, len(in))
	for i, f := range in {
		out[i] = []any{
			int64(i + 1),
			f.Event,
			f.DeviceKey.Value(),
			f.UserKey.Value(),
			f.LocationKey.Value(),
			f.DateKey.Value(),
		}
	}
	return out
}
