package snapshot

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/eventstar/eventstar/internal/bloom"
)

// visitorFPR is the target false positive rate of the visitor filter.
const visitorFPR = 0.01

// Meta is the .meta.json sidecar written next to every snapshot. It can be
// read without downloading the snapshot itself.
type Meta struct {
	Stage         string         `json:"stage"`
	ExecutionID   string         `json:"execution_id"`
	SchemaVersion int            `json:"schema_version"`
	RowCount      int            `json:"row_count"`
	SizeBytes     int64          `json:"size_bytes"`
	MinEventTime  *int64         `json:"min_event_time,omitempty"`
	MaxEventTime  *int64         `json:"max_event_time,omitempty"`
	Visitors      *bloom.Encoded `json:"visitors,omitempty"`
	CreatedAt     int64          `json:"created_at"`
}

// buildMeta computes the sidecar of a batch. Event times are Unix seconds.
func (c Codec[T]) buildMeta(executionID string, rows []T, size int64, createdAt int64) (*Meta, error) {
	m := &Meta{
		Stage:         c.stage.Name(),
		ExecutionID:   executionID,
		SchemaVersion: c.stage.Schema().Version,
		RowCount:      len(rows),
		SizeBytes:     size,
		CreatedAt:     createdAt,
	}
	if len(rows) == 0 {
		return m, nil
	}

	filter := bloom.NewWithEstimates(len(rows), visitorFPR)
	minT, maxT := c.timeOf(rows[0]).Unix(), c.timeOf(rows[0]).Unix()
	for _, r := range rows {
		filter.AddString(c.visitorOf(r))
		ts := c.timeOf(r).Unix()
		minT = min(minT, ts)
		maxT = max(maxT, ts)
	}
	m.MinEventTime = &minT
	m.MaxEventTime = &maxT

	enc, err := filter.Encode()
	if err != nil {
		return nil, fmt.Errorf("meta: failed to encode visitor filter: %w", err)
	}
	m.Visitors = enc
	return m, nil
}

// MayContainVisitor reports whether the batch may hold events of visitorID.
// A sidecar without a usable filter answers true.
func (m *Meta) MayContainVisitor(visitorID string) bool {
	if m.RowCount == 0 {
		return false
	}
	if m.Visitors == nil {
		return true
	}
	f, err := bloom.Decode(m.Visitors)
	if err != nil {
		return true
	}
	return f.ContainsString(visitorID)
}

// WriteToFile writes the sidecar as indented JSON.
func (m *Meta) WriteToFile(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("meta: failed to marshal sidecar: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("meta: failed to write sidecar file: %w", err)
	}
	return nil
}

// ReadMetaFromFile reads a sidecar written by WriteToFile.
func ReadMetaFromFile(path string) (*Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("meta: failed to read sidecar file: %w", err)
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("meta: failed to parse sidecar file: %w", err)
	}
	return &m, nil
}
