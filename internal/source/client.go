// Package source fetches raw events from the events API.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	pipelineerrors "github.com/eventstar/eventstar/internal/errors"
	"github.com/eventstar/eventstar/pkg/types"
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// Query selects events by time period and, optionally, event name.
type Query struct {
	Start time.Time
	End   time.Time
	Event string
}

// Client is the events API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client (useful for testing).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithBackoff sets the base delay between retries.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates an events API client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: max(cfg.MaxRetries, 0),
		backoff:    200 * time.Millisecond,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type response struct {
	Data []struct {
		Event      string     `json:"event"`
		Properties properties `json:"properties"`
	} `json:"data"`
}

type properties struct {
	Time        json.RawMessage  `json:"time"`
	VisitorID   types.NullString `json:"unique_visitor_id"`
	UserID      types.NullString `json:"ha_user_id"`
	Browser     types.NullString `json:"browser"`
	OS          types.NullString `json:"os"`
	CountryCode types.NullString `json:"country_code"`
}

// Fetch returns the events with start <= time <= end, in API order.
func (c *Client) Fetch(ctx context.Context, start, end time.Time) ([]types.RawEvent, error) {
	return c.FetchQuery(ctx, Query{Start: start, End: end})
}

// FetchQuery returns the events matching q. Transport failures and non-2xx
// responses are retried with exponential backoff; an undecodable body or
// event time is not.
func (c *Client) FetchQuery(ctx context.Context, q Query) ([]types.RawEvent, error) {
	reqURL := c.url(q)

	var body []byte
	err := c.retryWithBackoff(ctx, func() error {
		var err error
		body, err = c.get(ctx, reqURL)
		return err
	})
	if err != nil {
		return nil, err
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, pipelineerrors.NewSourceError(pipelineerrors.CodeInvalidResponse, "events response is not valid JSON", err)
	}

	events := make([]types.RawEvent, len(resp.Data))
	for i, d := range resp.Data {
		ts, err := parseTime(d.Properties.Time)
		if err != nil {
			return nil, pipelineerrors.MalformedTimestamp(i, string(d.Properties.Time), err)
		}
		events[i] = types.RawEvent{
			Event:       d.Event,
			Time:        ts,
			VisitorID:   d.Properties.VisitorID.Or(""),
			UserID:      d.Properties.UserID,
			Browser:     d.Properties.Browser,
			OS:          d.Properties.OS,
			CountryCode: d.Properties.CountryCode.Or(""),
		}
	}

	c.logger.Info("source: events fetched",
		zap.Int("events", len(events)),
		zap.Time("start", q.Start),
		zap.Time("end", q.End),
	)
	return events, nil
}

func (c *Client) url(q Query) string {
	params := url.Values{}
	if q.Event != "" {
		params.Set("event_id", q.Event)
	}
	if !q.Start.IsZero() || !q.End.IsZero() {
		params.Set("timeperiod", types.FormatEventTime(q.Start)+"::"+types.FormatEventTime(q.End))
	}
	u := c.baseURL + "/v1/events/"
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pipelineerrors.NewSourceError(pipelineerrors.CodeFetchFailed, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pipelineerrors.NewSourceError(pipelineerrors.CodeFetchFailed, "failed to read response body", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, pipelineerrors.NewSourceError(pipelineerrors.CodeFetchFailed,
			fmt.Sprintf("events API returned status %d: %s", resp.StatusCode, truncate(body, 200)), nil)
	}
	return body, nil
}

// retryWithBackoff executes the operation with exponential backoff retry.
func (c *Client) retryWithBackoff(ctx context.Context, operation func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if !pipelineerrors.IsRetryable(lastErr) || errors.Is(lastErr, context.Canceled) {
			return lastErr
		}

		if attempt < c.maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * c.backoff
			c.logger.Warn("source: fetch failed, retrying",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}

// parseTime accepts a time string in any supported layout or a number of
// Unix milliseconds.
func parseTime(raw json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return types.ParseEventTime(s)
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("time is neither a string nor epoch milliseconds")
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
