// Package mockapi serves raw events from a SQLite database over the same
// HTTP contract as the production events API, for local runs and tests.
package mockapi

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/eventstar/eventstar/pkg/types"
)

const indexMessage = "Mock API. Only supports /v1/events/ endpoint."

// Server answers event queries against raw_events.
type Server struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewServer creates a server over db. A nil logger disables logging.
func NewServer(db *sql.DB, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{db: db, logger: logger}
}

// Routes returns the HTTP handler for the API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleIndex)
	r.Get("/v1/events", s.handleEvents)
	r.Get("/v1/events/", s.handleEvents)
	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": indexMessage})
}

type eventRecord struct {
	Event      string          `json:"event"`
	Properties eventProperties `json:"properties"`
}

type eventProperties struct {
	Time        string           `json:"time"`
	VisitorID   types.NullString `json:"unique_visitor_id"`
	UserID      types.NullString `json:"ha_user_id"`
	Browser     types.NullString `json:"browser"`
	OS          types.NullString `json:"os"`
	CountryCode types.NullString `json:"country_code"`
}

// handleEvents serves GET /v1/events/?event_id=<name>&timeperiod=<start>::<end>.
// Both parameters are optional. A bound that does not parse is logged and
// left out of the filter.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("event_id")
	timeperiod := r.URL.Query().Get("timeperiod")

	var where []string
	var args []any
	if eventID != "" {
		where = append(where, "event = ?")
		args = append(args, eventID)
	}
	if timeperiod != "" {
		start, end, _ := strings.Cut(timeperiod, "::")
		if bound, ok := s.parseBound(start, "start", timeperiod); ok {
			where = append(where, "time >= ?")
			args = append(args, bound)
		}
		if bound, ok := s.parseBound(end, "end", timeperiod); ok {
			where = append(where, "time <= ?")
			args = append(args, bound)
		}
	}

	query := "SELECT event, time, unique_visitor_id, ha_user_id, browser, os, country_code FROM raw_events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY rowid"

	rows, err := s.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		s.logger.Error("mockapi: query failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	defer rows.Close()

	data := make([]eventRecord, 0)
	for rows.Next() {
		var rec eventRecord
		var visitor, user, browser, os, country sql.NullString
		if err := rows.Scan(&rec.Event, &rec.Properties.Time, &visitor, &user, &browser, &os, &country); err != nil {
			s.logger.Error("mockapi: scan failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "query failed")
			return
		}
		rec.Properties.VisitorID = nullString(visitor)
		rec.Properties.UserID = nullString(user)
		rec.Properties.Browser = nullString(browser)
		rec.Properties.OS = nullString(os)
		rec.Properties.CountryCode = nullString(country)
		data = append(data, rec)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("mockapi: query failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"data": data})
}

func (s *Server) parseBound(value, which, timeperiod string) (string, bool) {
	t, err := time.Parse(types.TimePeriodLayout, value)
	if err != nil {
		s.logger.Error("mockapi: invalid "+which+" date in timeperiod parameter",
			zap.String("timeperiod", timeperiod))
		return "", false
	}
	return t.Format(types.TimePeriodLayout), true
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("mockapi: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func nullString(ns sql.NullString) types.NullString {
	if !ns.Valid {
		return types.Absent()
	}
	return types.Some(ns.String)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
