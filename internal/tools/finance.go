package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/averko/moneypenny/internal/ledger"
	"github.com/averko/moneypenny/internal/report"
	"github.com/averko/moneypenny/internal/store"
)

func (r *Registry) registerBuiltins() {
	r.Register(&Tool{
		Name:        "log_transaction",
		Description: "Record an expense or income entry. Use when the user mentions spending or receiving money.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"kind": map[string]any{
					"type":        "string",
					"enum":        []string{"expense", "income"},
					"description": "Whether money went out (expense) or came in (income)",
				},
				"amount": map[string]any{
					"type":        "number",
					"description": "The amount, a non-negative number",
				},
				"label": map[string]any{
					"type":        "string",
					"description": "What the money was for (e.g. Coffee, Salary)",
				},
				"category": map[string]any{
					"type":        "string",
					"description": "Expense category. Omit to auto-categorize.",
				},
			},
			"required": []string{"kind", "amount", "label"},
		},
		Handler: r.handleLogTransaction,
	})

	r.Register(&Tool{
		Name:        "get_analytics",
		Description: "Query logged transactions with optional text, category, and date filters. Returns matching records, their count, and the sum of amounts.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"table": map[string]any{
					"type": "string",
					"enum": []string{"expenses", "income"},
				},
				"filter_item": map[string]any{
					"type":        "string",
					"description": "Case-insensitive substring to match against labels",
				},
				"category": map[string]any{
					"type":        "string",
					"description": "Exact category filter (expenses only)",
				},
				"start_date": map[string]any{
					"type":        "string",
					"description": "Inclusive lower bound, YYYY-MM-DD",
				},
				"end_date": map[string]any{
					"type":        "string",
					"description": "Inclusive upper bound, YYYY-MM-DD",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum records to return (default 10)",
				},
			},
			"required": []string{"table"},
		},
		Handler: r.handleGetAnalytics,
	})

	r.Register(&Tool{
		Name:        "manage_subscription",
		Description: "Add, update, or cancel a recurring subscription by name. Cancelling keeps the record but marks it inactive.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action": map[string]any{
					"type": "string",
					"enum": []string{"add", "update", "cancel"},
				},
				"name": map[string]any{
					"type":        "string",
					"description": "Subscription name, the lookup key",
				},
				"amount": map[string]any{
					"type":        "number",
					"description": "Cost per billing cycle",
				},
				"billing_cycle": map[string]any{
					"type":        "string",
					"enum":        []string{"weekly", "monthly", "yearly"},
					"description": "Defaults to monthly",
				},
			},
			"required": []string{"action", "name"},
		},
		Handler: r.handleManageSubscription,
	})

	r.Register(&Tool{
		Name:        "get_summary",
		Description: "Summarize finances for a period: expense and income totals, net, top spending categories, active subscriptions, and savings goals.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"period": map[string]any{
					"type": "string",
					"enum": []string{"today", "this_week", "this_month", "last_month", "this_year", "all_time"},
				},
			},
			"required": []string{"period"},
		},
		Handler: r.handleGetSummary,
	})

	r.Register(&Tool{
		Name:        "update_savings_goal",
		Description: "Create or update a savings goal by name. Use action 'add' to add to the saved amount, 'set_target' to change the target, or 'create' to start a new goal.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"goal_name": map[string]any{
					"type":        "string",
					"description": "Goal name, the lookup key",
				},
				"amount": map[string]any{
					"type": "number",
				},
				"action": map[string]any{
					"type": "string",
					"enum": []string{"add", "set_target", "create"},
				},
			},
			"required": []string{"goal_name", "action"},
		},
		Handler: r.handleUpdateSavingsGoal,
	})
}

// Argument helpers. Model-provided arguments arrive as JSON-decoded
// values, so numbers are float64 and types cannot be assumed.

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

func argAmount(args map[string]any, key string) (decimal.Decimal, bool) {
	v, present := args[key]
	if !present || v == nil {
		return decimal.Zero, false
	}
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}

func argInt(args map[string]any, key string, def int) int {
	if n, ok := args[key].(float64); ok && n > 0 {
		return int(n)
	}
	return def
}

// handleLogTransaction writes one immutable transaction row. Expenses
// without a usable category get one from the classifier; the stored
// category is always a member of the fixed set.
func (r *Registry) handleLogTransaction(ctx context.Context, args map[string]any) Result {
	kind := ledger.TransactionKind(argString(args, "kind"))
	if kind != ledger.KindExpense && kind != ledger.KindIncome {
		return failf("kind must be expense or income, got %q", argString(args, "kind"))
	}

	amount, ok := argAmount(args, "amount")
	if !ok {
		return failf("amount is required and must be a number")
	}
	if amount.IsNegative() {
		return failf("amount must not be negative")
	}

	label := argString(args, "label")
	if label == "" {
		return failf("label is required")
	}

	body := map[string]any{
		"amount":     amount,
		"label":      label,
		"created_at": r.now().UTC().Format(time.RFC3339),
	}

	table := store.TableIncome
	if kind == ledger.KindExpense {
		table = store.TableExpenses
		category, valid := ledger.ParseCategory(argString(args, "category"))
		if !valid {
			category = r.classifier.Classify(ctx, label)
		}
		body["category"] = category
	}

	if _, err := r.store.Insert(ctx, table, body); err != nil {
		r.logger.Warn("transaction insert failed", "table", table, "error", err)
		return failf("could not save the %s: %v", kind, err)
	}

	msg := fmt.Sprintf("Recorded %s of %s for %s.", kind, amount, label)
	if c, ok := body["category"]; ok {
		msg = fmt.Sprintf("Recorded %s of %s for %s (%s).", kind, amount, label, c)
	}
	return Result{Success: true, Message: msg}
}

// handleGetAnalytics queries one transaction table. Date bounds are
// applied server-side; the label substring and category filters run
// client-side because the store's filter syntax has no partial text
// search.
func (r *Registry) handleGetAnalytics(ctx context.Context, args map[string]any) Result {
	table := argString(args, "table")
	if table != store.TableExpenses && table != store.TableIncome {
		return failf("table must be expenses or income, got %q", table)
	}

	q := store.NewQuery().OrderDesc("created_at")
	if start := argString(args, "start_date"); start != "" {
		q.Gte("created_at", start)
	}
	if end := argString(args, "end_date"); end != "" {
		q.Lte("created_at", end)
	}

	records, err := r.store.Select(ctx, table, q)
	if err != nil {
		return failf("query failed: %v", err)
	}

	filterItem := strings.ToLower(argString(args, "filter_item"))
	categoryFilter := argString(args, "category")
	limit := argInt(args, "limit", 10)

	var matched []store.Record
	total := decimal.Zero
	for _, rec := range records {
		if filterItem != "" && !strings.Contains(strings.ToLower(rec.Str("label")), filterItem) {
			continue
		}
		if categoryFilter != "" && !strings.EqualFold(rec.Str("category"), categoryFilter) {
			continue
		}
		matched = append(matched, rec)
		total = total.Add(ledger.AmountFromAny(rec["amount"]))
	}

	count := len(matched)
	if len(matched) > limit {
		matched = matched[:limit]
	}

	return Result{
		Success: true,
		Message: fmt.Sprintf("Found %d matching records totalling %s.", count, total),
		Data: map[string]any{
			"records": matched,
			"count":   count,
			"total":   total,
		},
	}
}

// handleManageSubscription adds, patches, or soft-cancels by name.
func (r *Registry) handleManageSubscription(ctx context.Context, args map[string]any) Result {
	name := argString(args, "name")
	if name == "" {
		return failf("name is required")
	}

	switch argString(args, "action") {
	case "add":
		amount, ok := argAmount(args, "amount")
		if !ok || amount.IsNegative() {
			return failf("a non-negative amount is required to add a subscription")
		}
		cycle := ledger.ParseBillingCycle(argString(args, "billing_cycle"))
		_, err := r.store.Insert(ctx, store.TableSubscriptions, map[string]any{
			"name":          name,
			"amount":        amount,
			"billing_cycle": cycle,
			"active":        true,
		})
		if err != nil {
			return failf("could not add subscription: %v", err)
		}
		return Result{Success: true, Message: fmt.Sprintf("Subscription %s added at %s %s.", name, amount, cycle)}

	case "update":
		patch := map[string]any{}
		if amount, ok := argAmount(args, "amount"); ok {
			if amount.IsNegative() {
				return failf("amount must not be negative")
			}
			patch["amount"] = amount
		}
		if cycle := argString(args, "billing_cycle"); cycle != "" {
			patch["billing_cycle"] = ledger.ParseBillingCycle(cycle)
		}
		if len(patch) == 0 {
			return failf("nothing to update: provide amount or billing_cycle")
		}
		updated, err := r.store.Update(ctx, store.TableSubscriptions, store.NewQuery().Eq("name", name), patch)
		if err != nil {
			return failf("could not update subscription: %v", err)
		}
		if len(updated) == 0 {
			return failf("no subscription named %q", name)
		}
		return Result{Success: true, Message: fmt.Sprintf("Subscription %s updated.", name)}

	case "cancel":
		// Soft delete: history stays queryable.
		updated, err := r.store.Update(ctx, store.TableSubscriptions,
			store.NewQuery().Eq("name", name), map[string]any{"active": false})
		if err != nil {
			return failf("could not cancel subscription: %v", err)
		}
		if len(updated) == 0 {
			return failf("no subscription named %q", name)
		}
		return Result{Success: true, Message: fmt.Sprintf("Subscription %s cancelled.", name)}

	default:
		return failf("action must be add, update, or cancel")
	}
}

// handleGetSummary delegates the aggregation to the reporter.
func (r *Registry) handleGetSummary(ctx context.Context, args map[string]any) Result {
	period, err := report.ParsePeriod(argString(args, "period"))
	if err != nil {
		return failf("%v", err)
	}

	summary, err := r.reporter.Summary(ctx, period)
	if err != nil {
		return failf("could not compute summary: %v", err)
	}

	return Result{
		Success: true,
		Message: fmt.Sprintf("Spent %s, received %s, net %s for %s.",
			summary.ExpenseTotal, summary.IncomeTotal, summary.Net, period),
		Data: map[string]any{"summary": summary},
	}
}

// handleUpdateSavingsGoal upserts a goal by name. Referencing a goal
// that does not exist is not an error: it is created on first use.
func (r *Registry) handleUpdateSavingsGoal(ctx context.Context, args map[string]any) Result {
	name := argString(args, "goal_name")
	if name == "" {
		return failf("goal_name is required")
	}
	action := argString(args, "action")
	amount, hasAmount := argAmount(args, "amount")
	if hasAmount && amount.IsNegative() {
		return failf("amount must not be negative")
	}

	existing, err := r.store.Select(ctx, store.TableSavingsGoals,
		store.NewQuery().Eq("name", name).Limit(1))
	if err != nil {
		return failf("could not look up goal: %v", err)
	}

	if len(existing) == 0 {
		target := decimal.NewFromInt(1000)
		current := decimal.Zero
		switch action {
		case "set_target":
			if hasAmount {
				target = amount
			}
		case "add":
			if hasAmount {
				current = amount
			}
		}
		_, err := r.store.Insert(ctx, store.TableSavingsGoals, map[string]any{
			"name":           name,
			"target_amount":  target,
			"current_amount": current,
			"active":         true,
		})
		if err != nil {
			return failf("could not create goal: %v", err)
		}
		return Result{Success: true, Message: goalProgress(name, current, target)}
	}

	rec := existing[0]
	current := ledger.AmountFromAny(rec["current_amount"])
	target := ledger.AmountFromAny(rec["target_amount"])

	switch action {
	case "add":
		if !hasAmount {
			return failf("amount is required to add to a goal")
		}
		current = current.Add(amount)
	case "set_target":
		if !hasAmount {
			return failf("amount is required to set a target")
		}
		target = amount
	default:
		if !hasAmount {
			return failf("amount is required")
		}
		current = amount
	}

	_, err = r.store.Update(ctx, store.TableSavingsGoals,
		store.NewQuery().Eq("name", name),
		map[string]any{"current_amount": current, "target_amount": target})
	if err != nil {
		return failf("could not update goal: %v", err)
	}

	return Result{Success: true, Message: goalProgress(name, current, target)}
}

func goalProgress(name string, current, target decimal.Decimal) string {
	if target.IsPositive() {
		pct := current.Div(target).Mul(decimal.NewFromInt(100)).Round(1)
		return fmt.Sprintf("Goal %s: %s of %s saved (%s%%).", name, current, target, pct)
	}
	return fmt.Sprintf("Goal %s: %s saved.", name, current)
}
