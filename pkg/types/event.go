// Package types provides the core data types shared by the eventstar pipeline.
package types

import (
	"strings"
	"time"
)

// DeviceType classifies the device an event was emitted from.
type DeviceType string

const (
	DeviceMobile  DeviceType = "mobile"
	DeviceDesktop DeviceType = "desktop"
	DeviceUnknown DeviceType = "unknown"
)

// RawEvent is a single tracked action as emitted upstream.
type RawEvent struct {
	// Event is the action name (e.g., "page_view", "search")
	Event string `json:"event"`

	// Time is when the event occurred
	Time time.Time `json:"time"`

	// VisitorID is the client-assigned anonymous session identifier
	VisitorID string `json:"unique_visitor_id"`

	// UserID identifies the authenticated account, absent for anonymous events
	UserID NullString `json:"ha_user_id"`

	Browser NullString `json:"browser"`
	OS      NullString `json:"os"`

	// CountryCode is the upstream country identifier (alpha-2, alpha-3 or name)
	CountryCode string `json:"country_code"`
}

// CleanedEvent is a RawEvent after country normalization, backfill and device classification.
type CleanedEvent struct {
	Event      string     `json:"event"`
	Time       time.Time  `json:"time"`
	VisitorID  string     `json:"unique_visitor_id"`
	UserID     NullString `json:"ha_user_id"`
	Browser    NullString `json:"browser"`
	OS         NullString `json:"os"`
	Country    string     `json:"country"`
	DeviceType DeviceType `json:"device_type"`
}

// HasVisitor reports whether the event carries a non-blank visitor id. Rows
// without one belong to no visitor and are never grouped together.
func (e CleanedEvent) HasVisitor() bool {
	return strings.TrimSpace(e.VisitorID) != ""
}

// ReconciledEvent is a CleanedEvent that survived identity reconciliation:
// every visitor maps to at most one user id across the reconciled set.
type ReconciledEvent CleanedEvent

// FactEvent is a row of the events fact table. Keys reference dimension rows
// by value; a null key means the natural key had no dimension member.
type FactEvent struct {
	Event       string    `json:"event"`
	DeviceKey   NullInt64 `json:"device_key"`
	UserKey     NullInt64 `json:"ha_user_key"`
	LocationKey NullInt64 `json:"location_key"`
	DateKey     NullInt64 `json:"event_date_key"`
}
