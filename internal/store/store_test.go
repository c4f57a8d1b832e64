package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "test-key", nil)
	c.SetHTTPClient(srv.Client())
	return c, srv
}

func TestSelectBuildsPostgRESTQuery(t *testing.T) {
	var gotPath, gotQuery string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode([]Record{{"id": 1, "label": "Coffee"}})
	})

	q := NewQuery().
		Gte("created_at", "2026-09-01").
		Lt("created_at", "2026-10-01").
		OrderAsc("created_at").
		Limit(10)

	records, err := c.Select(context.Background(), TableExpenses, q)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	if gotPath != "/expenses" {
		t.Errorf("path = %q, want /expenses", gotPath)
	}
	for _, want := range []string{
		"created_at=gte.2026-09-01",
		"created_at=lt.2026-10-01",
		"order=created_at.asc",
		"limit=10",
	} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing clause %q", gotQuery, want)
		}
	}
	if len(records) != 1 || records[0].Str("label") != "Coffee" {
		t.Errorf("records = %v, want one Coffee row", records)
	}
}

func TestSelectSendsAuthHeaders(t *testing.T) {
	var apikey, auth string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		apikey = r.Header.Get("apikey")
		auth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode([]Record{})
	})

	if _, err := c.Select(context.Background(), TableIncome, nil); err != nil {
		t.Fatalf("Select: %v", err)
	}

	if apikey != "test-key" {
		t.Errorf("apikey header = %q", apikey)
	}
	if auth != "Bearer test-key" {
		t.Errorf("Authorization header = %q", auth)
	}
}

func TestInsertAsksForRepresentation(t *testing.T) {
	var prefer string
	var gotBody map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		prefer = r.Header.Get("Prefer")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode([]Record{{"id": 7, "label": "Coffee"}})
	})

	records, err := c.Insert(context.Background(), TableExpenses, map[string]any{"label": "Coffee", "amount": 50})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if prefer != "return=representation" {
		t.Errorf("Prefer header = %q", prefer)
	}
	if gotBody["label"] != "Coffee" {
		t.Errorf("body = %v", gotBody)
	}
	if len(records) != 1 || records[0].Int64("id") != 7 {
		t.Errorf("records = %v, want inserted row back", records)
	}
}

func TestUpdatePatchesByFilter(t *testing.T) {
	var method, query string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		query = r.URL.RawQuery
		json.NewEncoder(w).Encode([]Record{{"id": 3, "active": false}})
	})

	q := NewQuery().Eq("name", "Netflix")
	records, err := c.Update(context.Background(), TableSubscriptions, q, map[string]any{"active": false})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if method != http.MethodPatch {
		t.Errorf("method = %q, want PATCH", method)
	}
	if !strings.Contains(query, "name=eq.Netflix") {
		t.Errorf("query = %q, want name=eq.Netflix", query)
	}
	if len(records) != 1 || records[0].Bool("active") {
		t.Errorf("records = %v, want patched row", records)
	}
}

func TestCountParsesContentRange(t *testing.T) {
	var gotMethod, gotPrefer string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPrefer = r.Header.Get("Prefer")
		w.Header().Set("Content-Range", "0-9/42")
		w.WriteHeader(http.StatusOK)
	})

	n, err := c.Count(context.Background(), TableExpenses, NewQuery().Eq("category", "Food"))
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 42 {
		t.Errorf("count = %d, want 42", n)
	}
	if gotMethod != http.MethodHead {
		t.Errorf("method = %s, want HEAD", gotMethod)
	}
	if gotPrefer != "count=exact" {
		t.Errorf("Prefer = %q, want count=exact", gotPrefer)
	}
}

func TestCountMissingHeaderIsAnError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if _, err := c.Count(context.Background(), TableExpenses, nil); err == nil {
		t.Fatal("expected error for missing Content-Range")
	}
}

func TestErrorStatusBecomesTypedError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid api key"}`))
	})

	_, err := c.Select(context.Background(), TableExpenses, nil)
	if err == nil {
		t.Fatal("expected error for 401")
	}

	serr, ok := err.(*Error)
	if !ok {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if serr.Status != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", serr.Status)
	}
	if !strings.Contains(serr.Body, "invalid api key") {
		t.Errorf("Body = %q", serr.Body)
	}
}

func TestRecordAccessors(t *testing.T) {
	r := Record{
		"id":         float64(12),
		"label":      "Coffee",
		"active":     true,
		"created_at": "2026-09-01T10:30:00Z",
	}

	if r.Int64("id") != 12 {
		t.Errorf("Int64(id) = %d", r.Int64("id"))
	}
	if r.Str("label") != "Coffee" {
		t.Errorf("Str(label) = %q", r.Str("label"))
	}
	if !r.Bool("active") {
		t.Error("Bool(active) = false")
	}
	ts := r.Time("created_at")
	if ts.IsZero() || ts.Day() != 1 {
		t.Errorf("Time(created_at) = %v", ts)
	}
	if !r.Time("missing").IsZero() {
		t.Error("Time(missing) should be zero")
	}

	dateOnly := Record{"created_at": "2026-09-01"}
	if dateOnly.Time("created_at").IsZero() {
		t.Error("date-only timestamp should parse")
	}
}
