// Package cleaner normalizes raw events: canonical country names, per-visitor
// device and user backfill, and device classification.
package cleaner

import (
	"fmt"

	"go.uber.org/zap"

	pipelineerrors "github.com/eventstar/eventstar/internal/errors"
	"github.com/eventstar/eventstar/internal/geo"
	"github.com/eventstar/eventstar/pkg/types"
)

// Report holds diagnostic counts from a cleaning pass.
type Report struct {
	Rows             int
	DevicesFilled    int
	UserIDsFilled    int
	UserIDsDiscarded int
}

// Cleaner turns raw events into cleaned events. It never drops rows and
// never mutates its input.
type Cleaner struct {
	countries *geo.Table
	logger    *zap.Logger
}

// Option configures a Cleaner.
type Option func(*Cleaner)

// WithCountries overrides the country lookup table.
func WithCountries(t *geo.Table) Option {
	return func(c *Cleaner) { c.countries = t }
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cleaner) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Cleaner using the built-in country table.
func New(opts ...Option) *Cleaner {
	c := &Cleaner{
		countries: geo.Default(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type devicePair struct {
	browser types.NullString
	os      types.NullString
}

// Clean normalizes a batch. An unresolvable country identifier fails the
// whole batch since the location dimension depends on every row resolving.
func (c *Cleaner) Clean(raw []types.RawEvent) ([]types.CleanedEvent, Report, error) {
	report := Report{Rows: len(raw)}
	out := make([]types.CleanedEvent, len(raw))

	for i, r := range raw {
		country, ok := c.countries.Lookup(r.CountryCode)
		if !ok {
			return nil, report, fmt.Errorf("cleaner: %w", pipelineerrors.UnresolvableCountry(i, r.CountryCode))
		}
		userID := NormalizeUserID(r.UserID)
		if r.UserID.Valid && !userID.Valid {
			report.UserIDsDiscarded++
		}
		out[i] = types.CleanedEvent{
			Event:     r.Event,
			Time:      r.Time,
			VisitorID: r.VisitorID,
			UserID:    userID,
			Browser:   r.Browser,
			OS:        r.OS,
			Country:   country.Name,
		}
	}

	report.DevicesFilled = backfillDevices(out)
	report.UserIDsFilled = backfillUserIDs(out)

	for i := range out {
		out[i].DeviceType = ClassifyDevice(out[i].Browser, out[i].OS)
	}

	c.logger.Debug("cleaner: batch cleaned",
		zap.Int("rows", report.Rows),
		zap.Int("devices_filled", report.DevicesFilled),
		zap.Int("user_ids_filled", report.UserIDsFilled),
		zap.Int("user_ids_discarded", report.UserIDsDiscarded),
	)
	return out, report, nil
}

// backfillDevices fills rows missing both browser and OS with the first
// complete pair seen for the same visitor. Rows with only one of the two
// fields neither donate nor receive, nor do rows without a visitor id.
func backfillDevices(rows []types.CleanedEvent) int {
	known := make(map[string]devicePair)
	for _, r := range rows {
		if !r.HasVisitor() || !r.Browser.Present() || !r.OS.Present() {
			continue
		}
		if _, seen := known[r.VisitorID]; !seen {
			known[r.VisitorID] = devicePair{browser: r.Browser, os: r.OS}
		}
	}

	filled := 0
	for i := range rows {
		if !rows[i].HasVisitor() || rows[i].Browser.Present() || rows[i].OS.Present() {
			continue
		}
		if p, ok := known[rows[i].VisitorID]; ok {
			rows[i].Browser = p.browser
			rows[i].OS = p.os
			filled++
		}
	}
	return filled
}

// backfillUserIDs fills rows without a user id with the first user id seen
// for the same visitor. Consistency is left to the identity reconciler.
func backfillUserIDs(rows []types.CleanedEvent) int {
	known := make(map[string]types.NullString)
	for _, r := range rows {
		if !r.HasVisitor() || !r.UserID.Present() {
			continue
		}
		if _, seen := known[r.VisitorID]; !seen {
			known[r.VisitorID] = r.UserID
		}
	}

	filled := 0
	for i := range rows {
		if !rows[i].HasVisitor() || rows[i].UserID.Present() {
			continue
		}
		if id, ok := known[rows[i].VisitorID]; ok {
			rows[i].UserID = id
			filled++
		}
	}
	return filled
}

// NormalizeUserID keeps the first run of ASCII digits of a user id.
// A user id without digits becomes absent.
func NormalizeUserID(id types.NullString) types.NullString {
	if !id.Valid {
		return id
	}
	s := id.Value
	start := -1
	for i := 0; i < len(s); i++ {
		isDigit := s[i] >= '0' && s[i] <= '9'
		if isDigit && start < 0 {
			start = i
		}
		if !isDigit && start >= 0 {
			return types.Some(s[start:i])
		}
	}
	if start < 0 {
		return types.Absent()
	}
	return types.Some(s[start:])
}
