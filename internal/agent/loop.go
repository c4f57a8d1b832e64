package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/averko/moneypenny/internal/ledger"
	"github.com/averko/moneypenny/internal/llm"
	"github.com/averko/moneypenny/internal/prompts"
	"github.com/averko/moneypenny/internal/store"
	"github.com/averko/moneypenny/internal/tools"
)

// historyLimit caps how many prior turns are replayed into the model
// context.
const historyLimit = 10

// Store is the slice of the store client the loop needs.
type Store interface {
	Select(ctx context.Context, table string, q *store.Query) ([]store.Record, error)
	Insert(ctx context.Context, table string, body any) ([]store.Record, error)
}

// Loop drives one conversation turn at a time: context assembly,
// intent resolution, at most one tool round-trip, narration, and turn
// persistence.
type Loop struct {
	store    Store
	registry *tools.Registry
	resolver Resolver
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewLoop wires the loop. The resolver decides how intents are
// planned; the registry executes whatever the plan asks for.
func NewLoop(st Store, registry *tools.Registry, resolver Resolver, logger *slog.Logger) *Loop {
	return &Loop{
		store:    st,
		registry: registry,
		resolver: resolver,
		logger:   logger.With("component", "agent"),
		now:      time.Now,
		locks:    map[int64]*sync.Mutex{},
	}
}

// SetNow overrides the clock, for tests.
func (l *Loop) SetNow(now func() time.Time) { l.now = now }

// userLock returns the mutex serializing turns for one user.
// Different users proceed concurrently.
func (l *Loop) userLock(userID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk, ok := l.locks[userID]
	if !ok {
		lk = &sync.Mutex{}
		l.locks[userID] = lk
	}
	return lk
}

// ProcessMessage runs one full turn and returns the reply text. It
// never returns an error: every failure mode maps to a user-visible
// message, and the caller always has something to send back.
func (l *Loop) ProcessMessage(ctx context.Context, userID int64, text string) string {
	lk := l.userLock(userID)
	lk.Lock()
	defer lk.Unlock()

	turnID := uuid.NewString()[:8]
	log := l.logger.With("turn_id", turnID, "user_id", userID)
	log.Debug("processing message", "length", len(text))

	profile := l.fetchProfile(ctx, userID)
	history := l.fetchHistory(ctx, userID)

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{
		Role:    "system",
		Content: prompts.System(profile, l.now()),
	})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: text})

	plan, planErr := l.plan(ctx, messages, text)
	if planErr != nil {
		log.Error("planning failed", "error", planErr)
		return prompts.PlanningFailed
	}

	l.saveTurn(ctx, userID, ledger.ConversationTurn{Role: "user", Content: text})

	if len(plan.ToolCalls) == 0 {
		reply := plan.Content
		if reply == "" {
			reply = prompts.NotUnderstood
		}
		l.saveTurn(ctx, userID, ledger.ConversationTurn{Role: "assistant", Content: reply})
		return reply
	}

	messages = append(messages, llm.Message{
		Role:      "assistant",
		Content:   plan.Content,
		ToolCalls: plan.ToolCalls,
	})

	names := make([]string, 0, len(plan.ToolCalls))
	results := make([]tools.Result, 0, len(plan.ToolCalls))
	for _, call := range plan.ToolCalls {
		log.Info("executing tool", "tool", call.Function.Name)
		result := l.registry.Execute(ctx, call.Function.Name, call.Function.Arguments)
		names = append(names, call.Function.Name)
		results = append(results, result)
		messages = append(messages, llm.Message{
			Role:       "tool",
			Content:    result.JSON(),
			ToolCallID: call.ID,
		})
	}

	reply := l.narrate(ctx, messages)
	l.saveTurn(ctx, userID, assistantTurn(reply, names, results))
	return reply
}

// plan resolves the user's intent. Messages that look like the
// "<amount> <item>" shorthand are parsed directly and never reach the
// resolver: a well-formed entry becomes a canned log_transaction call,
// a malformed one is rejected here, before anything is written.
func (l *Loop) plan(ctx context.Context, messages []llm.Message, text string) (*Plan, error) {
	if LooksLikeQuickEntry(text) {
		amount, label, err := ParseQuickEntry(text)
		if err != nil {
			return &Plan{Content: prompts.FormatErrorHint}, nil
		}
		args, _ := json.Marshal(map[string]any{
			"kind":   "expense",
			"amount": amount,
			"label":  label,
		})
		return &Plan{
			ToolCalls: []llm.ToolCall{{
				ID:   "quick-1",
				Type: "function",
				Function: llm.FunctionCall{
					Name:      "log_transaction",
					Arguments: string(args),
				},
			}},
		}, nil
	}
	return l.resolver.Resolve(ctx, messages, l.registry.Schemas())
}

// narrate asks the resolver for a tool-free completion over the
// executed results.
func (l *Loop) narrate(ctx context.Context, messages []llm.Message) string {
	plan, err := l.resolver.Resolve(ctx, messages, nil)
	if err != nil {
		l.logger.Error("narration failed", "error", err)
		return prompts.NarrationFailed
	}
	if plan.Content == "" {
		return prompts.NotUnderstood
	}
	return plan.Content
}

// fetchProfile loads the user's financial profile, falling back to
// defaults when the row is missing or the store is unreachable.
func (l *Loop) fetchProfile(ctx context.Context, userID int64) ledger.FinancialProfile {
	records, err := l.store.Select(ctx, store.TableProfiles,
		store.NewQuery().Eq("user_id", userID).Limit(1))
	if err != nil || len(records) == 0 {
		if err != nil {
			l.logger.Warn("profile lookup failed, using defaults", "error", err)
		}
		return ledger.DefaultProfile(userID)
	}
	r := records[0]
	return ledger.FinancialProfile{
		UserID: r.Int64("user_id"),
		Budget: ledger.AmountFromAny(r["budget"]),
		Goals:  r.Str("goals"),
	}
}

// fetchHistory returns the user's most recent turns in chronological
// order, ready to splice into the model context. Tool-role rows are
// skipped: their content lives on the assistant turns.
func (l *Loop) fetchHistory(ctx context.Context, userID int64) []llm.Message {
	records, err := l.store.Select(ctx, store.TableChatHistory,
		store.NewQuery().
			Eq("user_id", userID).
			OrderDesc("created_at").
			Limit(historyLimit))
	if err != nil {
		l.logger.Warn("history lookup failed, starting fresh", "error", err)
		return nil
	}

	messages := make([]llm.Message, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		role := r.Str("role")
		if role != "user" && role != "assistant" {
			continue
		}
		messages = append(messages, llm.Message{
			Role:    role,
			Content: r.Str("content"),
		})
	}
	return messages
}

// saveTurn records one turn in chat history. A failed write is logged
// and swallowed: losing an audit row must not lose the reply.
func (l *Loop) saveTurn(ctx context.Context, userID int64, turn ledger.ConversationTurn) {
	body := map[string]any{
		"user_id":    userID,
		"role":       turn.Role,
		"content":    turn.Content,
		"created_at": l.now().UTC().Format(time.RFC3339),
	}
	if turn.ToolCalls != "" {
		body["tool_calls"] = turn.ToolCalls
	}
	if turn.ToolResults != "" {
		body["tool_results"] = turn.ToolResults
	}
	if _, err := l.store.Insert(ctx, store.TableChatHistory, body); err != nil {
		l.logger.Warn("failed to persist turn", "role", turn.Role, "error", err)
	}
}

// assistantTurn packages a narrated reply with the tool audit trail.
func assistantTurn(reply string, names []string, results []tools.Result) ledger.ConversationTurn {
	turn := ledger.ConversationTurn{Role: "assistant", Content: reply}
	if len(names) > 0 {
		calls, _ := json.Marshal(names)
		raw, _ := json.Marshal(results)
		turn.ToolCalls = string(calls)
		turn.ToolResults = string(raw)
	}
	return turn
}
