package mockapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/eventstar/eventstar/internal/source"
)

const seed = `[
 {"event":"page_view","properties":{"time":"2021-01-18 10:00:00","unique_visitor_id":"abc","ha_user_id":null,"browser":"Chrome","os":"Windows","country_code":"NL"}},
 {"event":"search","properties":{"time":"2021-01-18T11:30:00Z","unique_visitor_id":"abc","ha_user_id":"42","browser":null,"os":null,"country_code":"NL"}},
 {"event":"page_view","properties":{"time":1611057600000,"unique_visitor_id":"xyz","ha_user_id":7,"browser":"Safari","os":"iOS","country_code":"US"}}
]`

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	n, err := InitDB(context.Background(), db, strings.NewReader(seed))
	require.NoError(t, err)
	require.Equal(t, 3, n)
	return db
}

func get(t *testing.T, h http.Handler, target string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestIndex(t *testing.T) {
	h := NewServer(newTestDB(t), nil).Routes()
	code, body := get(t, h, "/")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, indexMessage, body["message"])
}

func TestEventsAll(t *testing.T) {
	h := NewServer(newTestDB(t), nil).Routes()
	code, body := get(t, h, "/v1/events/")
	require.Equal(t, http.StatusOK, code)

	data := body["data"].([]any)
	require.Len(t, data, 3)
	first := data[0].(map[string]any)
	assert.Equal(t, "page_view", first["event"])
	props := first["properties"].(map[string]any)
	assert.Equal(t, "2021-01-18 10:00:00", props["time"])
	assert.Nil(t, props["ha_user_id"])
	assert.Equal(t, "Chrome", props["browser"])

	third := data[2].(map[string]any)["properties"].(map[string]any)
	assert.Equal(t, "2021-01-19 12:00:00", third["time"])
	assert.Equal(t, "7", third["ha_user_id"])
}

func TestEventsFilters(t *testing.T) {
	h := NewServer(newTestDB(t), nil).Routes()

	_, body := get(t, h, "/v1/events/?event_id=page_view")
	assert.Len(t, body["data"], 2)

	_, body = get(t, h, "/v1/events/?timeperiod=2021-01-18+00:00:00::2021-01-18+23:59:59")
	assert.Len(t, body["data"], 2)

	_, body = get(t, h, "/v1/events/?event_id=page_view&timeperiod=2021-01-18+00:00:00::2021-01-18+23:59:59")
	assert.Len(t, body["data"], 1)

	_, body = get(t, h, "/v1/events/?event_id=signup")
	assert.Len(t, body["data"], 0)
}

func TestEventsInjectionIsInert(t *testing.T) {
	h := NewServer(newTestDB(t), nil).Routes()
	_, body := get(t, h, "/v1/events/?event_id=x'+OR+'1'='1")
	assert.Len(t, body["data"], 0)
}

func TestEventsInvalidBoundLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := NewServer(newTestDB(t), zap.New(core)).Routes()

	code, body := get(t, h, "/v1/events/?timeperiod=yesterday::2021-01-18+10:30:00")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["data"], 1)
	assert.Equal(t, 1, logs.FilterMessage("mockapi: invalid start date in timeperiod parameter").Len())
}

func TestServesSourceClient(t *testing.T) {
	srv := httptest.NewServer(NewServer(newTestDB(t), nil).Routes())
	defer srv.Close()

	c := source.NewClient(source.Config{BaseURL: srv.URL})
	events, err := c.Fetch(context.Background(),
		time.Date(2021, 1, 18, 0, 0, 0, 0, time.UTC),
		time.Date(2021, 1, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, time.Date(2021, 1, 18, 11, 30, 0, 0, time.UTC), events[1].Time)
	assert.Equal(t, "42", events[1].UserID.Value)
	assert.Equal(t, "US", events[2].CountryCode)
}

func TestInitDBRejectsBadTime(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = InitDB(context.Background(), db,
		strings.NewReader(`[{"event":"a","properties":{"time":"soon"}}]`))
	assert.Error(t, err)
}
