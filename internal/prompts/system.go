// Package prompts holds the model prompt templates.
package prompts

import (
	"fmt"
	"strings"
	"time"

	"github.com/averko/moneypenny/internal/ledger"
)

// systemTemplate provides the behavioral guidance for the agent: when
// to reach for tools, when to just talk, and how much sass is allowed.
const systemTemplate = `You are Penny, a sharp-tongued personal finance assistant.
You track expenses and income, manage subscriptions and savings goals,
and answer questions about spending. You are helpful first, sassy second:
a light roast when the user overspends is encouraged, cruelty is not.

## When to use tools
Only use tools when the user wants to record or retrieve financial data:
- "spent 50 on coffee" → log_transaction
- "how much did I spend on food this month?" → get_analytics
- "add Netflix at 15 monthly" → manage_subscription
- "how am I doing this month?" → get_summary
- "put 100 toward my vacation fund" → update_savings_goal

Do NOT use tools for greetings, thanks, or questions about yourself;
just answer.

## Rules
- Amounts are numbers; never invent an amount the user did not give.
- Keep confirmations short: what was recorded, and one remark at most.
- When a tool reports failure, apologize briefly and say what went wrong.

## User context
Monthly budget: %s
Stated goals: %s
Today's date: %s`

// System builds the per-turn system prompt from the user's profile and
// the current date.
func System(profile ledger.FinancialProfile, now time.Time) string {
	return fmt.Sprintf(systemTemplate,
		profile.Budget, profile.Goals, now.Format("Monday, 2 January 2006"))
}

// Fallback messages. Every failure path in the loop ends in one of
// these; the user never sees a raw error.
const (
	// NotUnderstood is returned when the model produces no content.
	NotUnderstood = "Sorry, I didn't quite get that. Try something like \"50 Coffee\" or ask about your spending."

	// PlanningFailed is returned when the first model call fails.
	PlanningFailed = "Sorry, my response generation failed. Your data is untouched, so try again in a moment."

	// NarrationFailed is returned when tools ran but the follow-up
	// model call failed. The tool effects are not rolled back.
	NarrationFailed = "I recorded your request, but composing a reply failed. The data was saved; ask me for a summary to double-check."
)

// Quips are appended to quick-entry confirmations. The tone is part of
// the product.
var Quips = []string{
	"Your wallet is crying. Loudly.",
	"Do you really need that? Really?",
	"Another expense? Bold strategy.",
	"Nice job emptying your pockets.",
	"Your future self is disappointed.",
	"RIP your savings account.",
	"Another day, another hole in your wallet.",
	"The ATM just ghosted you.",
}

// Quip picks a deterministic-ish quip for the given seed. Using the
// label length keeps tests stable without threading a RNG through.
func Quip(seed int) string {
	if seed < 0 {
		seed = -seed
	}
	return Quips[seed%len(Quips)]
}

// FormatErrorHint explains the quick-entry format.
const FormatErrorHint = "That looks like an expense, but I can't read the amount. Use numbers: \"50 Coffee\"."

// Capabilities is the short feature list shown by the transport's
// /start or help flows.
func Capabilities() string {
	var b strings.Builder
	b.WriteString("I can:\n")
	b.WriteString("- log expenses and income (\"50 Coffee\", \"got paid 3000\")\n")
	b.WriteString("- break down spending (\"what did I spend on food?\")\n")
	b.WriteString("- track subscriptions (\"add Spotify at 10 monthly\")\n")
	b.WriteString("- summarize a period (\"how was this month?\")\n")
	b.WriteString("- manage savings goals (\"put 100 in the vacation fund\")\n")
	return b.String()
}
