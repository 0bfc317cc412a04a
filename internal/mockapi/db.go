package mockapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/eventstar/eventstar/pkg/types"
)

const schemaSQL = `
DROP TABLE IF EXISTS raw_events;
CREATE TABLE raw_events (
	event TEXT NOT NULL,
	time TEXT NOT NULL,
	unique_visitor_id TEXT,
	ha_user_id TEXT,
	browser TEXT,
	os TEXT,
	country_code TEXT
);
CREATE INDEX idx_raw_events_time ON raw_events(time);
`

type seedEvent struct {
	Event      string `json:"event"`
	Properties struct {
		Time        json.RawMessage  `json:"time"`
		VisitorID   types.NullString `json:"unique_visitor_id"`
		UserID      types.NullString `json:"ha_user_id"`
		Browser     types.NullString `json:"browser"`
		OS          types.NullString `json:"os"`
		CountryCode types.NullString `json:"country_code"`
	} `json:"properties"`
}

// InitDB recreates raw_events and loads the JSON list of events read from r
// in a single transaction. Event times are stored in TimePeriodLayout so that
// lexical BETWEEN comparisons order them correctly. It returns the number of
// rows loaded.
func InitDB(ctx context.Context, db *sql.DB, r io.Reader) (int, error) {
	var events []seedEvent
	if err := json.NewDecoder(r).Decode(&events); err != nil {
		return 0, fmt.Errorf("mockapi: decode seed events: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mockapi: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return 0, fmt.Errorf("mockapi: create schema: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO raw_events(event, time, unique_visitor_id, ha_user_id, browser, os, country_code)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("mockapi: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range events {
		ts, err := seedTime(e.Properties.Time)
		if err != nil {
			return 0, fmt.Errorf("mockapi: event %d: %w", i, err)
		}
		p := e.Properties
		if _, err := stmt.ExecContext(ctx, e.Event, ts,
			p.VisitorID.Ptr(), p.UserID.Ptr(), p.Browser.Ptr(), p.OS.Ptr(), p.CountryCode.Ptr()); err != nil {
			return 0, fmt.Errorf("mockapi: insert event %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mockapi: commit: %w", err)
	}
	return len(events), nil
}

func seedTime(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		t, err := types.ParseEventTime(s)
		if err != nil {
			return "", err
		}
		return types.FormatEventTime(t), nil
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return "", fmt.Errorf("unsupported time %s", raw)
	}
	return types.FormatEventTime(time.UnixMilli(ms)), nil
}
