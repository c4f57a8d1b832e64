package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/averko/moneypenny/internal/agent"
	"github.com/averko/moneypenny/internal/categorize"
	"github.com/averko/moneypenny/internal/ledger"
	"github.com/averko/moneypenny/internal/report"
	"github.com/averko/moneypenny/internal/store"
	"github.com/averko/moneypenny/internal/tools"
)

type fakeStore struct {
	rows    map[string][]store.Record
	inserts map[string]int
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rows:    make(map[string][]store.Record),
		inserts: make(map[string]int),
	}
}

func (f *fakeStore) Select(_ context.Context, resource string, _ *store.Query) ([]store.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[resource], nil
}

func (f *fakeStore) Insert(_ context.Context, resource string, body any) ([]store.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inserts[resource]++
	rec := store.Record{}
	for k, v := range body.(map[string]any) {
		rec[k] = v
	}
	f.rows[resource] = append(f.rows[resource], rec)
	return []store.Record{rec}, nil
}

func (f *fakeStore) Update(_ context.Context, resource string, _ *store.Query, patch any) ([]store.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	var updated []store.Record
	for i, rec := range f.rows[resource] {
		for k, v := range patch.(map[string]any) {
			rec[k] = v
		}
		f.rows[resource][i] = rec
		updated = append(updated, rec)
	}
	return updated, nil
}

type fixedClassifier struct{ cat ledger.Category }

func (f fixedClassifier) Classify(context.Context, string) ledger.Category { return f.cat }

var _ categorize.Classifier = fixedClassifier{}

type recordingSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (r *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	r.sent = append(r.sent, c)
	return tgbotapi.Message{}, r.err
}

func newTestServer(t *testing.T, st *fakeStore, sender TelegramSender, secret string) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reporter := report.NewReporter(st, logger)
	registry := tools.NewRegistry(st, fixedClassifier{cat: ledger.CategoryFood}, reporter, logger)
	loop := agent.NewLoop(st, registry, agent.RuleResolver{}, logger)

	var bridge *TelegramBridge
	if sender != nil {
		bridge = NewTelegramBridge(sender, logger)
	}
	return NewServer("127.0.0.1", 0, loop, reporter, bridge, secret, logger)
}

func postJSON(t *testing.T, handler http.Handler, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func telegramUpdate(userID, chatID int64, text string) map[string]any {
	return map[string]any{
		"update_id": 1,
		"message": map[string]any{
			"message_id": 10,
			"from":       map[string]any{"id": userID},
			"chat":       map[string]any{"id": chatID},
			"text":       text,
		},
	}
}

func TestWebhookQuickEntry(t *testing.T) {
	st := newFakeStore()
	sender := &recordingSender{}
	srv := newTestServer(t, st, sender, "")

	w := postJSON(t, srv.Handler(), "/webhook/telegram", telegramUpdate(42, 99, "50 Coffee"), nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if st.inserts[store.TableExpenses] != 1 {
		t.Errorf("expense inserts = %d, want 1", st.inserts[store.TableExpenses])
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	msg, ok := sender.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("sent %T, want MessageConfig", sender.sent[0])
	}
	if msg.ChatID != 99 {
		t.Errorf("reply chat = %d, want 99", msg.ChatID)
	}
	if msg.Text == "" {
		t.Error("reply text empty")
	}
}

func TestWebhookStartCommandListsCapabilities(t *testing.T) {
	st := newFakeStore()
	sender := &recordingSender{}
	srv := newTestServer(t, st, sender, "")

	update := map[string]any{
		"update_id": 3,
		"message": map[string]any{
			"message_id": 11,
			"from":       map[string]any{"id": int64(42)},
			"chat":       map[string]any{"id": int64(99)},
			"text":       "/start",
			"entities": []map[string]any{
				{"type": "bot_command", "offset": 0, "length": 6},
			},
		},
	}
	w := postJSON(t, srv.Handler(), "/webhook/telegram", update, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	msg := sender.sent[0].(tgbotapi.MessageConfig)
	if !strings.Contains(msg.Text, "I can:") {
		t.Errorf("reply = %q, want capability list", msg.Text)
	}
	if len(st.rows[store.TableChatHistory]) != 0 {
		t.Errorf("command replies must not persist turns, got %d", len(st.rows[store.TableChatHistory]))
	}
}

func TestWebhookSecretEnforced(t *testing.T) {
	st := newFakeStore()
	srv := newTestServer(t, st, nil, "s3cret")

	w := postJSON(t, srv.Handler(), "/webhook/telegram", telegramUpdate(42, 99, "50 Coffee"), nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status without secret = %d, want 401", w.Code)
	}
	if st.inserts[store.TableExpenses] != 0 {
		t.Error("rejected webhook must not process the update")
	}

	w = postJSON(t, srv.Handler(), "/webhook/telegram", telegramUpdate(42, 99, "50 Coffee"),
		map[string]string{"X-Telegram-Bot-Api-Secret-Token": "s3cret"})
	if w.Code != http.StatusOK {
		t.Fatalf("status with secret = %d, want 200", w.Code)
	}
}

func TestWebhookIgnoresNonMessageUpdates(t *testing.T) {
	st := newFakeStore()
	sender := &recordingSender{}
	srv := newTestServer(t, st, sender, "")

	w := postJSON(t, srv.Handler(), "/webhook/telegram", map[string]any{"update_id": 2}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 so Telegram stops retrying", w.Code)
	}
	if len(sender.sent) != 0 {
		t.Errorf("sent %d messages, want 0", len(sender.sent))
	}
}

func TestChatEndpoint(t *testing.T) {
	st := newFakeStore()
	srv := newTestServer(t, st, nil, "")

	w := postJSON(t, srv.Handler(), "/api/chat",
		map[string]any{"user_id": 7, "message": "120 Groceries"}, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp chatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Reply == "" {
		t.Error("empty reply")
	}
	if st.inserts[store.TableExpenses] != 1 {
		t.Errorf("expense inserts = %d, want 1", st.inserts[store.TableExpenses])
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), nil, "")

	w := postJSON(t, srv.Handler(), "/api/chat", map[string]any{"user_id": 7}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestDashboardEndpoint(t *testing.T) {
	st := newFakeStore()
	st.rows[store.TableExpenses] = []store.Record{
		{"amount": "120", "label": "Groceries", "category": "Food", "created_at": "2026-03-09T10:00:00Z"},
	}
	srv := newTestServer(t, st, nil, "")

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard?period=this_month&user_id=7", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var dash report.Dashboard
	if err := json.Unmarshal(w.Body.Bytes(), &dash); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestDashboardRejectsUnknownPeriod(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), nil, "")

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard?period=fortnight", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), nil, "")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}
