package types

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// NullString is a string that may be absent. Absent and empty are different states
// at ingestion; stages that treat them alike call Or("").
type NullString struct {
	Value string
	Valid bool
}

// Some returns a present NullString.
func Some(s string) NullString {
	return NullString{Value: s, Valid: true}
}

// Absent returns an absent NullString.
func Absent() NullString {
	return NullString{}
}

// Or returns the value when present and def otherwise.
func (n NullString) Or(def string) string {
	if !n.Valid {
		return def
	}
	return n.Value
}

// Present reports whether the value is present and non-blank. A value made
// only of whitespace is blank.
func (n NullString) Present() bool {
	return n.Valid && strings.TrimSpace(n.Value) != ""
}

// Ptr returns a pointer to the value, or nil when absent.
func (n NullString) Ptr() *string {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}

// MarshalJSON encodes absent values as null.
func (n NullString) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// UnmarshalJSON decodes null as absent. Numbers are accepted and kept in
// their textual form since upstream user ids are not always quoted.
func (n *NullString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = NullString{}
		return nil
	}
	if len(data) > 0 && data[0] != '"' {
		var num json.Number
		if err := json.Unmarshal(data, &num); err != nil {
			return err
		}
		*n = Some(num.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*n = Some(s)
	return nil
}

// NullInt64 is an int64 that may be null (used for fact foreign keys).
type NullInt64 struct {
	Int64 int64
	Valid bool
}

// Int64Of returns a present NullInt64.
func Int64Of(v int64) NullInt64 {
	return NullInt64{Int64: v, Valid: true}
}

// Value returns the value as an interface suitable for database/sql arguments.
func (n NullInt64) Value() any {
	if !n.Valid {
		return nil
	}
	return n.Int64
}

// String renders the value, or "NULL" when null.
func (n NullInt64) String() string {
	if !n.Valid {
		return "NULL"
	}
	return strconv.FormatInt(n.Int64, 10)
}

// MarshalJSON encodes null values as null.
func (n NullInt64) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(n.Int64, 10)), nil
}
