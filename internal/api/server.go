// Package api implements the HTTP surface: the Telegram webhook and a
// small JSON API for chat and the dashboard.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/averko/moneypenny/internal/agent"
	"github.com/averko/moneypenny/internal/buildinfo"
	"github.com/averko/moneypenny/internal/report"
)

// writeJSON encodes v to w, logging any errors at debug level. Errors
// here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string, logger *slog.Logger) {
	writeJSON(w, status, map[string]string{"error": msg}, logger)
}

// Server is the HTTP server.
type Server struct {
	address       string
	port          int
	loop          *agent.Loop
	reporter      *report.Reporter
	telegram      *TelegramBridge
	webhookSecret string
	logger        *slog.Logger
	server        *http.Server
}

// NewServer wires the HTTP surface. telegram may be nil when no bot
// token is configured; the webhook route still accepts updates and
// processes them, it just cannot reply.
func NewServer(address string, port int, loop *agent.Loop, reporter *report.Reporter, telegram *TelegramBridge, webhookSecret string, logger *slog.Logger) *Server {
	return &Server{
		address:       address,
		port:          port,
		loop:          loop,
		reporter:      reporter,
		telegram:      telegram,
		webhookSecret: webhookSecret,
		logger:        logger.With("component", "api"),
	}
}

// Handler builds the route table. Split from Start so tests can drive
// it with httptest.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/webhook/telegram", s.handleTelegramWebhook).Methods(http.MethodPost)
	r.HandleFunc("/api/chat", s.handleChat).Methods(http.MethodPost)
	r.HandleFunc("/api/dashboard", s.handleDashboard).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	r.Use(s.logging)
	return r
}

// Start runs the server until it fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	s.logger.Info("starting HTTP server", "address", s.address, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

type chatRequest struct {
	UserID  int64  `json:"user_id"`
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

// handleChat runs one conversation turn for a direct API client.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", s.logger)
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required", s.logger)
		return
	}

	reply := s.loop.ProcessMessage(r.Context(), req.UserID, req.Message)
	writeJSON(w, http.StatusOK, chatResponse{Reply: reply}, s.logger)
}

// handleDashboard serves the aggregate view used by the web dashboard.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	period, err := report.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), s.logger)
		return
	}

	var userID int64
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "user_id must be an integer", s.logger)
			return
		}
		userID = id
	}

	dashboard, err := s.reporter.Snapshot(r.Context(), userID, period)
	if err != nil {
		s.logger.Error("dashboard snapshot failed", "error", err)
		writeError(w, http.StatusBadGateway, "store unavailable", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, dashboard, s.logger)
}

// handleHealth reports liveness plus build identity.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": buildinfo.Version,
		"uptime":  buildinfo.Uptime().Round(time.Second).String(),
	}, s.logger)
}
