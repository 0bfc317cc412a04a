// Package dimension builds the star schema dimension tables from reconciled
// events. Each dimension assigns dense surrogate keys in first-seen order, so
// the same input always yields the same tables.
package dimension

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eventstar/eventstar/internal/geo"
	"github.com/eventstar/eventstar/internal/holiday"
	"github.com/eventstar/eventstar/pkg/types"
)

// Tables holds the four dimension tables and their key mappings.
type Tables struct {
	Devices   []types.DeviceRow
	Users     []types.UserRow
	Locations []types.LocationRow
	Dates     []types.DateRow

	DeviceKeys   Mapping[DeviceKey]
	UserKeys     Mapping[string]
	LocationKeys Mapping[string]
	DateKeys     Mapping[time.Time]
}

// Builder builds dimension tables.
type Builder struct {
	countries *geo.Table
	calendar  holiday.Calendar
	logger    *zap.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithCountries overrides the country table used for location attributes.
func WithCountries(t *geo.Table) Option {
	return func(b *Builder) { b.countries = t }
}

// WithCalendar overrides the holiday calendar used for the date dimension.
func WithCalendar(c holiday.Calendar) Option {
	return func(b *Builder) { b.calendar = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBuilder creates a Builder with the built-in country table and the US
// federal holiday calendar.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		countries: geo.Default(),
		calendar:  holiday.USFederal{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildAll runs the four dimension builders concurrently over the same
// read-only rows and returns once all of them have finished. Each builder
// writes only its own fields of Tables.
func (b *Builder) BuildAll(ctx context.Context, rows []types.ReconciledEvent) (*Tables, error) {
	t := &Tables{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		t.Devices, t.DeviceKeys = BuildDevices(rows)
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		t.Users, t.UserKeys = BuildUsers(rows)
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		t.Locations, t.LocationKeys = b.BuildLocations(rows)
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		t.Dates, t.DateKeys = b.BuildDates(rows)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("dimension: build aborted: %w", err)
	}

	b.logger.Debug("dimension: tables built",
		zap.Int("devices", len(t.Devices)),
		zap.Int("users", len(t.Users)),
		zap.Int("locations", len(t.Locations)),
		zap.Int("dates", len(t.Dates)),
	)
	return t, nil
}
