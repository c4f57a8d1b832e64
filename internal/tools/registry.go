// Package tools defines the financial operations available to the agent.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/averko/moneypenny/internal/categorize"
	"github.com/averko/moneypenny/internal/report"
	"github.com/averko/moneypenny/internal/store"
)

// Result is the JSON-serializable outcome of one tool execution.
// Failures are values, not errors: the dispatcher feeds them back to
// the model so it can narrate an apology.
type Result struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// failf builds a failure result.
func failf(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// JSON renders the result for a tool message.
func (r Result) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"error":"result serialization failed"}`
	}
	return string(b)
}

// Store is the slice of the gateway the tools need.
type Store interface {
	Select(ctx context.Context, resource string, q *store.Query) ([]store.Record, error)
	Insert(ctx context.Context, resource string, body any) ([]store.Record, error)
	Update(ctx context.Context, resource string, q *store.Query, patch any) ([]store.Record, error)
}

// Tool is one callable operation.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema
	Handler     func(ctx context.Context, args map[string]any) Result
}

// Registry holds the available tools.
type Registry struct {
	tools      map[string]*Tool
	order      []string
	store      Store
	classifier categorize.Classifier
	reporter   *report.Reporter
	logger     *slog.Logger
	now        func() time.Time
}

// NewRegistry creates a registry wired to the store, the categorizer,
// and the reporter.
func NewRegistry(st Store, classifier categorize.Classifier, reporter *report.Reporter, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		tools:      make(map[string]*Tool),
		store:      st,
		classifier: classifier,
		reporter:   reporter,
		logger:     logger.With("component", "tools"),
		now:        time.Now,
	}
	r.registerBuiltins()
	return r
}

// SetNow overrides the clock for tests.
func (r *Registry) SetNow(now func() time.Time) { r.now = now }

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Get retrieves a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Schemas returns the declarative tool list for the model, in
// registration order.
func (r *Registry) Schemas() []map[string]any {
	result := make([]map[string]any, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Execute runs a tool by name with string-encoded arguments. Every
// failure mode (unknown tool, malformed arguments, handler trouble)
// comes back as a Result with Success=false; Execute never returns a
// Go error.
func (r *Registry) Execute(ctx context.Context, name string, argsJSON string) Result {
	tool := r.tools[name]
	if tool == nil {
		r.logger.Warn("unknown tool requested", "tool", name)
		return failf("unknown tool %q", name)
	}

	args := map[string]any{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			r.logger.Warn("malformed tool arguments", "tool", name, "error", err)
			return failf("invalid arguments for %q: %v", name, err)
		}
	}

	started := r.now()
	result := tool.Handler(ctx, args)
	r.logger.Info("tool executed",
		"tool", name,
		"success", result.Success,
		"duration", time.Since(started),
	)
	return result
}
