package main

import (
	"bytes"
	"context"
	"database/sql"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventstar/eventstar/internal/mockapi"
)

const seed = `[
 {"event":"page_view","properties":{"time":"2021-01-18 10:00:00","unique_visitor_id":"abc","ha_user_id":null,"browser":"Chrome","os":"Windows","country_code":"NL"}},
 {"event":"search","properties":{"time":"2021-01-18 10:05:00","unique_visitor_id":"abc","ha_user_id":"42","browser":null,"os":null,"country_code":"NL"}}
]`

func startAPI(t *testing.T) string {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = mockapi.InitDB(context.Background(), db, strings.NewReader(seed))
	require.NoError(t, err)

	srv := httptest.NewServer(mockapi.NewServer(db, nil).Routes())
	t.Cleanup(srv.Close)
	return srv.URL
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestCommandsInSequence(t *testing.T) {
	base := []string{"-data-dir", t.TempDir(), "-source-url", startAPI(t)}

	out, _, err := runCLI(t, append(base, "raw", "2021-01-18 00:00:00", "2021-01-19 00:00:00")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 2 fetched events to raw/raw__")

	out, _, err = runCLI(t, append(base, "preprocess")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 2 preprocessed events")

	_, _, err = runCLI(t, append(base, "initdb")...)
	require.NoError(t, err)

	out, _, err = runCLI(t, append(base, "importdb")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 events")

	out, _, err = runCLI(t, append(base, "report")...)
	require.NoError(t, err)
	assert.Contains(t, out, "eventstar_report.csv")

	out, _, err = runCLI(t, append(base, "lookup", "raw", "abc")...)
	require.NoError(t, err)
	assert.Contains(t, out, "raw/raw__")
	assert.Contains(t, out, "1 raw snapshot(s) may hold visitor abc")

	out, _, err = runCLI(t, append(base, "truncate", "raw")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 1 raw snapshot(s)")
}

func TestRawEmptyPeriod(t *testing.T) {
	out, _, err := runCLI(t, "-data-dir", t.TempDir(), "-source-url", startAPI(t),
		"raw", "2022-01-01 00:00:00", "2022-01-02 00:00:00")
	require.NoError(t, err)
	assert.Contains(t, out, "Found no new events")
}

func TestUsageErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no command", []string{"-data-dir", dir}, "Commands:"},
		{"unknown command", []string{"-data-dir", dir, "explode"}, `unknown command "explode"`},
		{"wrong arity", []string{"-data-dir", dir, "raw", "2021-01-18 00:00:00"}, "raw expects 2 argument(s), got 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, err := runCLI(t, tt.args...)
			assert.ErrorIs(t, err, errUsage)
			assert.Contains(t, stderr, tt.want)
		})
	}
}

func TestInvalidArguments(t *testing.T) {
	dir := t.TempDir()
	_, _, err := runCLI(t, "-data-dir", dir, "raw", "yesterday", "2021-01-19 00:00:00")
	assert.ErrorContains(t, err, "invalid start time")

	_, _, err = runCLI(t, "-data-dir", dir, "truncate", "facts")
	assert.ErrorContains(t, err, "unknown stage")

	_, _, err = runCLI(t, "-data-dir", dir, "lookup", "facts", "abc")
	assert.ErrorContains(t, err, "unknown stage")
}

func TestVersion(t *testing.T) {
	out, _, err := runCLI(t, "-version")
	require.NoError(t, err)
	assert.Contains(t, out, "eventstar version dev")
}
