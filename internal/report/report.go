// Package report computes summary reports over the loaded warehouse.
package report

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

// User types reported by EventsByUserType.
const (
	Authenticated   = "Authenticated"
	Unauthenticated = "Unauthenticated"
)

// Default report and section names.
const (
	DefaultName             = "eventstar_report"
	SectionEventsPerCountry = "Events Per Country"
	SectionEventsByUserType = "Events by User Type"
)

// Count is one grouped row of a report.
type Count struct {
	Label   string
	NEvents int64
}

// Section is a titled table of counts.
type Section struct {
	Title  string
	Header [2]string
	Rows   []Count
}

// Reporter runs report queries against a warehouse database.
type Reporter struct {
	db     *sql.DB
	logger *zap.Logger
}

// New creates a Reporter. A nil logger disables logging.
func New(db *sql.DB, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{db: db, logger: logger}
}

const eventsPerCountrySQL = `
SELECT l.country, COUNT(*) AS nevents
FROM events e
LEFT JOIN locations l ON e.location_key = l.id
GROUP BY l.country
ORDER BY nevents DESC, l.country ASC`

const eventsByUserTypeSQL = `
SELECT CASE WHEN u.user_id IS NOT NULL AND u.user_id <> '' THEN 'Authenticated' ELSE 'Unauthenticated' END AS user_type,
       COUNT(*) AS nevents
FROM events e
LEFT JOIN users u ON e.user_key = u.id
GROUP BY user_type
ORDER BY nevents DESC, user_type ASC`

// EventsPerCountry counts events per location country, most events first.
// Events without a location are reported under an empty label.
func (r *Reporter) EventsPerCountry(ctx context.Context) (Section, error) {
	rows, err := r.counts(ctx, eventsPerCountrySQL)
	if err != nil {
		return Section{}, fmt.Errorf("report: events per country: %w", err)
	}
	return Section{Title: SectionEventsPerCountry, Header: [2]string{"country", "nevents"}, Rows: rows}, nil
}

// EventsByUserType counts events of authenticated and unauthenticated users.
func (r *Reporter) EventsByUserType(ctx context.Context) (Section, error) {
	rows, err := r.counts(ctx, eventsByUserTypeSQL)
	if err != nil {
		return Section{}, fmt.Errorf("report: events by user type: %w", err)
	}
	return Section{Title: SectionEventsByUserType, Header: [2]string{"user_type", "nevents"}, Rows: rows}, nil
}

// All returns every report section in presentation order.
func (r *Reporter) All(ctx context.Context) ([]Section, error) {
	byCountry, err := r.EventsPerCountry(ctx)
	if err != nil {
		return nil, err
	}
	byUserType, err := r.EventsByUserType(ctx)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("report: sections computed",
		zap.Int("countries", len(byCountry.Rows)),
		zap.Int("user_types", len(byUserType.Rows)),
	)
	return []Section{byCountry, byUserType}, nil
}

func (r *Reporter) counts(ctx context.Context, query string) ([]Count, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Count
	for rows.Next() {
		var label sql.NullString
		var c Count
		if err := rows.Scan(&label, &c.NEvents); err != nil {
			return nil, err
		}
		c.Label = label.String
		out = append(out, c)
	}
	return out, rows.Err()
}

func (c Count) record() []string {
	return []string{c.Label, strconv.FormatInt(c.NEvents, 10)}
}
