package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/eventstar/eventstar/pkg/types"
)

// column moves one named field of T in and out of a column block.
type column[T any] struct {
	name   string
	encode func(rows []T) ([]byte, error)
	decode func(data []byte, rows []T) error
}

// valueColumn builds a column whose values JSON-encode as a plain array.
func valueColumn[T, V any](name string, field func(*T) *V) column[T] {
	return column[T]{
		name: name,
		encode: func(rows []T) ([]byte, error) {
			values := make([]V, len(rows))
			for i := range rows {
				values[i] = *field(&rows[i])
			}
			return json.Marshal(values)
		},
		decode: func(data []byte, rows []T) error {
			var values []V
			if err := json.Unmarshal(data, &values); err != nil {
				return err
			}
			if len(values) != len(rows) {
				return fmt.Errorf("column %s has %d values, want %d", name, len(values), len(rows))
			}
			for i := range rows {
				*field(&rows[i]) = values[i]
			}
			return nil
		},
	}
}

var rawColumns = []column[types.RawEvent]{
	valueColumn("event", func(r *types.RawEvent) *string { return &r.Event }),
	valueColumn("time", func(r *types.RawEvent) *time.Time { return &r.Time }),
	valueColumn("unique_visitor_id", func(r *types.RawEvent) *string { return &r.VisitorID }),
	valueColumn("ha_user_id", func(r *types.RawEvent) *types.NullString { return &r.UserID }),
	valueColumn("browser", func(r *types.RawEvent) *types.NullString { return &r.Browser }),
	valueColumn("os", func(r *types.RawEvent) *types.NullString { return &r.OS }),
	valueColumn("country_code", func(r *types.RawEvent) *string { return &r.CountryCode }),
}

var preprocessColumns = []column[types.ReconciledEvent]{
	valueColumn("event", func(r *types.ReconciledEvent) *string { return &r.Event }),
	valueColumn("time", func(r *types.ReconciledEvent) *time.Time { return &r.Time }),
	valueColumn("unique_visitor_id", func(r *types.ReconciledEvent) *string { return &r.VisitorID }),
	valueColumn("ha_user_id", func(r *types.ReconciledEvent) *types.NullString { return &r.UserID }),
	valueColumn("browser", func(r *types.ReconciledEvent) *types.NullString { return &r.Browser }),
	valueColumn("os", func(r *types.ReconciledEvent) *types.NullString { return &r.OS }),
	valueColumn("country", func(r *types.ReconciledEvent) *string { return &r.Country }),
	valueColumn("device_type", func(r *types.ReconciledEvent) *types.DeviceType { return &r.DeviceType }),
}
