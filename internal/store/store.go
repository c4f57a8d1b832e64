// Package store implements the gateway to the remote data store.
//
// The store speaks a PostgREST-style wire format: collections are
// addressed by name, filters ride in the query string as
// field=operator.value pairs, and mutations return the affected rows
// when asked to. The gateway is a typed request/response wrapper only;
// it holds no business logic and makes exactly one attempt per call.
// Retry policy belongs to callers, because logging a transaction is
// not idempotent.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/averko/moneypenny/internal/httpkit"
)

// Collection names in the remote store.
const (
	TableExpenses      = "expenses"
	TableIncome        = "income"
	TableSubscriptions = "subscriptions"
	TableSavingsGoals  = "savings_goals"
	TableProfiles      = "financial_profile"
	TableChatHistory   = "chat_history"
)

// Record is one row from the store, keyed by column name.
type Record map[string]any

// Str returns the named field as a string, or "" when absent.
func (r Record) Str(key string) string {
	s, _ := r[key].(string)
	return s
}

// Int64 returns the named field as an int64, tolerating the float64
// values JSON decoding produces.
func (r Record) Int64(key string) int64 {
	switch n := r[key].(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case string:
		v, _ := strconv.ParseInt(n, 10, 64)
		return v
	default:
		return 0
	}
}

// Bool returns the named field as a bool, or false when absent.
func (r Record) Bool(key string) bool {
	b, _ := r[key].(bool)
	return b
}

// Time parses the named field as an RFC 3339 timestamp, with a
// date-only fallback. Returns the zero time when absent or malformed.
func (r Record) Time(key string) time.Time {
	s := r.Str(key)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t
	}
	return time.Time{}
}

// Error is a non-2xx reply from the store. Callers branch on Status;
// the gateway never panics or retries.
type Error struct {
	Status int
	Body   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: status %d: %s", e.Status, e.Body)
}

// Query accumulates PostgREST query-string clauses. The zero value
// selects everything.
type Query struct {
	clauses url.Values
}

// NewQuery returns an empty query.
func NewQuery() *Query {
	return &Query{clauses: url.Values{}}
}

// Eq adds an equality filter on field.
func (q *Query) Eq(field string, value any) *Query {
	q.clauses.Add(field, fmt.Sprintf("eq.%v", value))
	return q
}

// Gte adds a greater-or-equal filter on field.
func (q *Query) Gte(field string, value any) *Query {
	q.clauses.Add(field, fmt.Sprintf("gte.%v", value))
	return q
}

// Lte adds a less-or-equal filter on field.
func (q *Query) Lte(field string, value any) *Query {
	q.clauses.Add(field, fmt.Sprintf("lte.%v", value))
	return q
}

// Lt adds a strictly-less filter on field. Period windows are
// half-open [start, end), so end bounds use Lt rather than Lte.
func (q *Query) Lt(field string, value any) *Query {
	q.clauses.Add(field, fmt.Sprintf("lt.%v", value))
	return q
}

// OrderAsc sorts results by field, oldest first.
func (q *Query) OrderAsc(field string) *Query {
	q.clauses.Set("order", field+".asc")
	return q
}

// OrderDesc sorts results by field, newest first.
func (q *Query) OrderDesc(field string) *Query {
	q.clauses.Set("order", field+".desc")
	return q
}

// Limit caps the number of returned rows.
func (q *Query) Limit(n int) *Query {
	q.clauses.Set("limit", strconv.Itoa(n))
	return q
}

// Select restricts the returned columns.
func (q *Query) Select(cols string) *Query {
	q.clauses.Set("select", cols)
	return q
}

// Encode renders the query string (without leading "?").
func (q *Query) Encode() string {
	if q == nil || len(q.clauses) == 0 {
		return ""
	}
	return q.clauses.Encode()
}

// Client is the store gateway.
type Client struct {
	baseURL string
	key     string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a gateway for the store rooted at baseURL,
// authenticating every request with key.
func NewClient(baseURL, key string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		logger:  logger.With("component", "store"),
		http:    httpkit.NewClient(httpkit.WithTimeout(15 * time.Second)),
	}
}

// SetHTTPClient replaces the underlying HTTP client. Used by tests to
// point the gateway at a fake server with short timeouts.
func (c *Client) SetHTTPClient(h *http.Client) { c.http = h }

// Select fetches rows from resource matching q.
func (c *Client) Select(ctx context.Context, resource string, q *Query) ([]Record, error) {
	return c.do(ctx, http.MethodGet, resource, q, nil)
}

// Insert creates one row in resource and returns it as stored.
func (c *Client) Insert(ctx context.Context, resource string, body any) ([]Record, error) {
	return c.do(ctx, http.MethodPost, resource, nil, body)
}

// Update patches the rows in resource matching q and returns them.
func (c *Client) Update(ctx context.Context, resource string, q *Query, patch any) ([]Record, error) {
	return c.do(ctx, http.MethodPatch, resource, q, patch)
}

// Count returns the number of rows in resource matching q without
// fetching them. The store reports the total in the Content-Range
// header when asked with Prefer: count=exact.
func (c *Client) Count(ctx context.Context, resource string, q *Query) (int64, error) {
	u := c.baseURL + "/" + resource
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return 0, fmt.Errorf("store: create request: %w", err)
	}
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Prefer", "count=exact")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("store: count %s: %w", resource, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &Error{Status: resp.StatusCode, Body: httpkit.ReadErrorBody(resp.Body, 4096)}
	}

	// Content-Range looks like "0-24/3573"; the total follows the slash.
	cr := resp.Header.Get("Content-Range")
	idx := strings.LastIndex(cr, "/")
	if idx < 0 || idx == len(cr)-1 {
		return 0, fmt.Errorf("store: count %s: missing Content-Range", resource)
	}
	n, err := strconv.ParseInt(cr[idx+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("store: count %s: bad Content-Range %q", resource, cr)
	}
	return n, nil
}

// do issues a single request. Non-2xx statuses become *Error; there
// are no retries.
func (c *Client) do(ctx context.Context, method, resource string, q *Query, body any) ([]Record, error) {
	reqID := uuid.NewString()[:8]

	u := c.baseURL + "/" + resource
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("store: marshal body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("store: create request: %w", err)
	}
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Content-Type", "application/json")
	if method == http.MethodPost || method == http.MethodPatch {
		// Ask the store to echo the affected rows back.
		req.Header.Set("Prefer", "return=representation")
	}

	c.logger.Debug("store request", "id", reqID, "method", method, "resource", resource, "query", q.Encode())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("store: %s %s: %w", method, resource, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &Error{Status: resp.StatusCode, Body: httpkit.ReadErrorBody(resp.Body, 4096)}
		c.logger.Warn("store error", "id", reqID, "resource", resource, "status", serr.Status)
		return nil, serr
	}

	var records []Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		// 204-style empty bodies are fine for mutations.
		if method != http.MethodGet {
			return nil, nil
		}
		return nil, fmt.Errorf("store: decode response: %w", err)
	}

	c.logger.Debug("store response", "id", reqID, "resource", resource, "rows", len(records))
	return records, nil
}
