// Package ledger defines the domain entities for the expense tracker.
package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category is a fixed expense classification.
type Category string

// The closed category set. Every stored expense carries exactly one of
// these; free-text categories never reach the store.
const (
	CategoryFood          Category = "Food"
	CategoryTransport     Category = "Transport"
	CategoryTech          Category = "Tech"
	CategoryUtilities     Category = "Utilities"
	CategoryEntertainment Category = "Entertainment"
	CategoryHealth        Category = "Health"
	CategoryMisc          Category = "Misc"
)

// Categories lists the full category set in display order.
func Categories() []Category {
	return []Category{
		CategoryFood,
		CategoryTransport,
		CategoryTech,
		CategoryUtilities,
		CategoryEntertainment,
		CategoryHealth,
		CategoryMisc,
	}
}

// ParseCategory matches s against the category set, case-insensitively.
// The match is by substring in either direction, so a model reply like
// "That would be Food." still resolves. Returns false when nothing
// matches.
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	for _, c := range Categories() {
		name := strings.ToLower(string(c))
		if s == name || strings.Contains(s, name) || strings.Contains(name, s) {
			return c, true
		}
	}
	return "", false
}

// TransactionKind distinguishes money in from money out.
type TransactionKind string

const (
	KindExpense TransactionKind = "expense"
	KindIncome  TransactionKind = "income"
)

// BillingCycle is a subscription's recurrence.
type BillingCycle string

const (
	CycleWeekly  BillingCycle = "weekly"
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

// ParseBillingCycle normalizes s to a known cycle, defaulting to monthly.
func ParseBillingCycle(s string) BillingCycle {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "weekly":
		return CycleWeekly
	case "yearly", "annual", "annually":
		return CycleYearly
	default:
		return CycleMonthly
	}
}

// Transaction is a single logged expense or income entry. Immutable
// once created; there is no update or delete path.
type Transaction struct {
	ID        int64           `json:"id,omitempty"`
	Kind      TransactionKind `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Label     string          `json:"label"`
	Category  Category        `json:"category,omitempty"` // expenses only
	CreatedAt time.Time       `json:"created_at"`
}

// Subscription is a recurring charge. Cancelling sets Active=false;
// rows are never removed so history stays queryable.
type Subscription struct {
	ID           int64           `json:"id,omitempty"`
	Name         string          `json:"name"`
	Amount       decimal.Decimal `json:"amount"`
	BillingCycle BillingCycle    `json:"billing_cycle"`
	Active       bool            `json:"active"`
}

// SavingsGoal tracks progress toward a named target. Name is the
// lookup key for upserts.
type SavingsGoal struct {
	ID            int64           `json:"id,omitempty"`
	Name          string          `json:"name"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	Active        bool            `json:"active"`
}

// FinancialProfile personalizes the agent's system prompt. One row per
// user; the core reads it but never writes it.
type FinancialProfile struct {
	UserID int64           `json:"user_id"`
	Budget decimal.Decimal `json:"budget"`
	Goals  string          `json:"goals"`
}

// DefaultProfile is used when a user has no stored profile.
func DefaultProfile(userID int64) FinancialProfile {
	return FinancialProfile{
		UserID: userID,
		Budget: decimal.NewFromInt(5000),
		Goals:  "Save money",
	}
}

// ConversationTurn is one role-tagged message in the append-only chat
// log. ToolCalls and ToolResults hold raw JSON for audit.
type ConversationTurn struct {
	ID          int64     `json:"id,omitempty"`
	UserID      int64     `json:"user_id"`
	Role        string    `json:"role"` // user, assistant, tool
	Content     string    `json:"content"`
	ToolCalls   string    `json:"tool_calls,omitempty"`
	ToolResults string    `json:"tool_results,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AmountFromAny coerces a store record's amount field to a decimal.
// Absent or unparseable values count as zero, so one malformed row
// never poisons a sum.
func AmountFromAny(v any) decimal.Decimal {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n)
	case int64:
		return decimal.NewFromInt(n)
	case int:
		return decimal.NewFromInt(int64(n))
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		if err != nil {
			return decimal.Zero
		}
		return d
	case decimal.Decimal:
		return n
	default:
		return decimal.Zero
	}
}
