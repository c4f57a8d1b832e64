package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/averko/moneypenny/internal/llm"
	"github.com/averko/moneypenny/internal/prompts"
	"github.com/averko/moneypenny/internal/tools"
)

// Plan is the typed command produced by intent resolution: either
// direct reply content, or one or more tool calls to execute.
type Plan struct {
	Content   string
	ToolCalls []llm.ToolCall
}

// Resolver turns the assembled message list into a Plan. The model is
// one strategy; a deterministic rule table is another. Swapping the
// strategy swaps the resolution policy without touching the loop.
//
// A second call with toolSchemas == nil asks the resolver to narrate:
// the message list then ends with the executed tool results.
type Resolver interface {
	Resolve(ctx context.Context, messages []llm.Message, toolSchemas []map[string]any) (*Plan, error)
}

// ModelResolver delegates resolution to the language model with
// automatic tool selection.
type ModelResolver struct {
	client llm.Client
	model  string
}

// NewModelResolver builds the model-driven strategy.
func NewModelResolver(client llm.Client, model string) *ModelResolver {
	return &ModelResolver{client: client, model: model}
}

// Resolve implements Resolver.
func (m *ModelResolver) Resolve(ctx context.Context, messages []llm.Message, toolSchemas []map[string]any) (*Plan, error) {
	resp, err := m.client.Chat(ctx, m.model, messages, toolSchemas)
	if err != nil {
		return nil, fmt.Errorf("model call: %w", err)
	}
	return &Plan{
		Content:   resp.Message.Content,
		ToolCalls: resp.Message.ToolCalls,
	}, nil
}

// RuleResolver is the deterministic strategy: every message is treated
// as a quick expense entry in "<amount> <item>" form. It needs no
// network and doubles as the offline policy when no model is
// configured.
type RuleResolver struct{}

// Resolve implements Resolver. In the narration phase (toolSchemas ==
// nil with trailing tool messages) it composes the reply from the tool
// results directly.
func (RuleResolver) Resolve(_ context.Context, messages []llm.Message, toolSchemas []map[string]any) (*Plan, error) {
	if toolSchemas == nil {
		if plan := narrateFromResults(messages); plan != nil {
			return plan, nil
		}
	}

	text := lastUserMessage(messages)
	amount, label, err := ParseQuickEntry(text)
	if err != nil {
		return &Plan{Content: err.Error()}, nil
	}

	args, _ := json.Marshal(map[string]any{
		"kind":   "expense",
		"amount": amount,
		"label":  label,
	})
	return &Plan{
		ToolCalls: []llm.ToolCall{{
			ID:   "rule-1",
			Type: "function",
			Function: llm.FunctionCall{
				Name:      "log_transaction",
				Arguments: string(args),
			},
		}},
	}, nil
}

// narrateFromResults builds a reply from the trailing tool messages,
// or nil when there are none.
func narrateFromResults(messages []llm.Message) *Plan {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != "tool" {
			if m.Role == "assistant" && len(m.ToolCalls) > 0 {
				continue
			}
			break
		}

		var result tools.Result
		if err := json.Unmarshal([]byte(m.Content), &result); err != nil {
			return &Plan{Content: prompts.NotUnderstood}
		}
		if !result.Success {
			return &Plan{Content: "That didn't work: " + result.Error}
		}
		return &Plan{Content: result.Message + " " + prompts.Quip(len(result.Message))}
	}
	return nil
}

// lastUserMessage returns the content of the most recent user turn.
func lastUserMessage(messages []llm.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

// quickEntryError is a user-visible format complaint. It satisfies the
// error interface so ParseQuickEntry callers can branch, but its text
// is safe to show directly.
type quickEntryError string

func (e quickEntryError) Error() string { return string(e) }

// ParseQuickEntry parses the "<amount> <item>" shorthand. It returns a
// format error for anything that does not parse as an entry; nothing
// has been written by then.
func ParseQuickEntry(text string) (amount decimal.Decimal, label string, err error) {
	parts := strings.Fields(strings.TrimSpace(text))
	if len(parts) < 2 {
		return decimal.Zero, "", quickEntryError("Wrong format! Use: [Amount] [Item]\nExample: 50 Coffee")
	}

	amount, perr := decimal.NewFromString(parts[0])
	if perr != nil || amount.IsNegative() {
		return decimal.Zero, "", quickEntryError("Invalid amount. Use numbers only.\nExample: 50 Coffee")
	}

	return amount, strings.Join(parts[1:], " "), nil
}

// LooksLikeQuickEntry reports whether text plausibly starts with an
// amount. The loop uses this to shortcut past the model for obvious
// "50 Coffee" entries while leaving prose to the resolver.
func LooksLikeQuickEntry(text string) bool {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) < 2 {
		return false
	}
	r := rune(fields[0][0])
	return unicode.IsDigit(r)
}
