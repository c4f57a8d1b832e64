// Package report computes period-bounded summaries and dashboard
// statistics by scanning store records. It is independent of the agent
// loop and never calls the model.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/averko/moneypenny/internal/ledger"
	"github.com/averko/moneypenny/internal/store"
)

// Store is the slice of the gateway the reporter needs.
type Store interface {
	Select(ctx context.Context, resource string, q *store.Query) ([]store.Record, error)
}

// CategoryTotal is one slice of the spending breakdown.
type CategoryTotal struct {
	Category ledger.Category `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

// GoalProgress pairs a savings goal with its completion percentage.
type GoalProgress struct {
	Name    string          `json:"name"`
	Current decimal.Decimal `json:"current"`
	Target  decimal.Decimal `json:"target"`
	Percent float64         `json:"percent"`
}

// Summary is the aggregate the get_summary tool narrates.
type Summary struct {
	Period            Period                `json:"period"`
	ExpenseTotal      decimal.Decimal       `json:"expense_total"`
	IncomeTotal       decimal.Decimal       `json:"income_total"`
	Net               decimal.Decimal       `json:"net"`
	TopCategories     []CategoryTotal       `json:"top_categories"`
	Subscriptions     []ledger.Subscription `json:"subscriptions"`
	SubscriptionTotal decimal.Decimal       `json:"subscription_total"`
	Goals             []GoalProgress        `json:"goals"`
}

// HistoryItem is one dashboard history row, truncated to day granularity.
type HistoryItem struct {
	Date     string          `json:"date"` // 2006-01-02
	Kind     string          `json:"kind"`
	Label    string          `json:"label"`
	Amount   decimal.Decimal `json:"amount"`
	Category ledger.Category `json:"category,omitempty"`
}

// Dashboard is the snapshot the dashboard collaborator consumes.
type Dashboard struct {
	Period            Period                `json:"period"`
	Income            decimal.Decimal       `json:"income"`
	Expenses          decimal.Decimal       `json:"expenses"`
	Net               decimal.Decimal       `json:"net"`
	Categories        []CategoryTotal       `json:"categories"` // all-time, for the pie breakdown
	History           []HistoryItem         `json:"history"`
	Subscriptions     []ledger.Subscription `json:"subscriptions"`
	SubscriptionTotal decimal.Decimal       `json:"subscription_total"`
	Goals             []GoalProgress        `json:"goals"`
	Budget            decimal.Decimal       `json:"budget"`
}

// Reporter scans store records and aggregates them. All sums follow
// one rule: coerce the amount field, count unparseable values as zero,
// then add.
type Reporter struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewReporter builds a reporter over the given store.
func NewReporter(st Store, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		store:  st,
		logger: logger.With("component", "report"),
		now:    time.Now,
	}
}

// SetNow overrides the clock. Used by tests to pin period boundaries.
func (r *Reporter) SetNow(now func() time.Time) { r.now = now }

// periodQuery builds the server-side date filter for a period.
func periodQuery(p Period, now time.Time) *store.Query {
	start, end, bounded := p.Range(now)
	q := store.NewQuery()
	if bounded {
		q.Gte("created_at", start.Format(time.RFC3339)).
			Lt("created_at", end.Format(time.RFC3339))
	}
	return q
}

// sumAmounts applies the decimal accumulation rule over records.
func sumAmounts(records []store.Record) decimal.Decimal {
	total := decimal.Zero
	for _, rec := range records {
		total = total.Add(ledger.AmountFromAny(rec["amount"]))
	}
	return total
}

// Summary aggregates one period: totals, net, top-3 spend categories,
// active subscriptions, active goals.
func (r *Reporter) Summary(ctx context.Context, period Period) (*Summary, error) {
	now := r.now()

	expenses, err := r.store.Select(ctx, store.TableExpenses, periodQuery(period, now))
	if err != nil {
		return nil, fmt.Errorf("fetch expenses: %w", err)
	}
	income, err := r.store.Select(ctx, store.TableIncome, periodQuery(period, now))
	if err != nil {
		return nil, fmt.Errorf("fetch income: %w", err)
	}

	s := &Summary{
		Period:       period,
		ExpenseTotal: sumAmounts(expenses),
		IncomeTotal:  sumAmounts(income),
	}
	s.Net = s.IncomeTotal.Sub(s.ExpenseTotal)

	byCategory := categoryTotals(expenses)
	if len(byCategory) > 3 {
		byCategory = byCategory[:3]
	}
	s.TopCategories = byCategory

	s.Subscriptions, s.SubscriptionTotal, err = r.activeSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	s.Goals, err = r.activeGoals(ctx)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Snapshot computes the dashboard view: period totals plus all-time
// category breakdown, recent history, subscriptions, goals, budget.
func (r *Reporter) Snapshot(ctx context.Context, userID int64, period Period) (*Dashboard, error) {
	now := r.now()

	expenses, err := r.store.Select(ctx, store.TableExpenses, periodQuery(period, now))
	if err != nil {
		return nil, fmt.Errorf("fetch expenses: %w", err)
	}
	income, err := r.store.Select(ctx, store.TableIncome, periodQuery(period, now))
	if err != nil {
		return nil, fmt.Errorf("fetch income: %w", err)
	}

	d := &Dashboard{
		Period:   period,
		Expenses: sumAmounts(expenses),
		Income:   sumAmounts(income),
	}
	d.Net = d.Income.Sub(d.Expenses)

	// The pie breakdown is always all-time, regardless of the period.
	allExpenses, err := r.store.Select(ctx, store.TableExpenses, store.NewQuery())
	if err != nil {
		return nil, fmt.Errorf("fetch all expenses: %w", err)
	}
	d.Categories = categoryTotals(allExpenses)

	d.History, err = r.history(ctx)
	if err != nil {
		return nil, err
	}

	d.Subscriptions, d.SubscriptionTotal, err = r.activeSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	d.Goals, err = r.activeGoals(ctx)
	if err != nil {
		return nil, err
	}

	profile, err := r.profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	d.Budget = profile.Budget

	return d, nil
}

// history returns the last ten transactions across both tables,
// newest first, dates truncated to day granularity.
func (r *Reporter) history(ctx context.Context) ([]HistoryItem, error) {
	var items []HistoryItem

	for _, src := range []struct {
		table string
		kind  ledger.TransactionKind
	}{
		{store.TableExpenses, ledger.KindExpense},
		{store.TableIncome, ledger.KindIncome},
	} {
		records, err := r.store.Select(ctx, src.table,
			store.NewQuery().OrderDesc("created_at").Limit(10))
		if err != nil {
			return nil, fmt.Errorf("fetch %s history: %w", src.table, err)
		}
		for _, rec := range records {
			item := HistoryItem{
				Date:   rec.Time("created_at").Format("2006-01-02"),
				Kind:   string(src.kind),
				Label:  rec.Str("label"),
				Amount: ledger.AmountFromAny(rec["amount"]),
			}
			if src.kind == ledger.KindExpense {
				if c, ok := ledger.ParseCategory(rec.Str("category")); ok {
					item.Category = c
				}
			}
			items = append(items, item)
		}
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Date > items[j].Date })
	if len(items) > 10 {
		items = items[:10]
	}
	return items, nil
}

// activeSubscriptions returns subscriptions with active=true and their
// aggregate amount. Soft-deleted rows stay in the store but never show
// up here.
func (r *Reporter) activeSubscriptions(ctx context.Context) ([]ledger.Subscription, decimal.Decimal, error) {
	records, err := r.store.Select(ctx, store.TableSubscriptions,
		store.NewQuery().Eq("active", true))
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("fetch subscriptions: %w", err)
	}

	subs := make([]ledger.Subscription, 0, len(records))
	total := decimal.Zero
	for _, rec := range records {
		amount := ledger.AmountFromAny(rec["amount"])
		subs = append(subs, ledger.Subscription{
			ID:           rec.Int64("id"),
			Name:         rec.Str("name"),
			Amount:       amount,
			BillingCycle: ledger.ParseBillingCycle(rec.Str("billing_cycle")),
			Active:       true,
		})
		total = total.Add(amount)
	}
	return subs, total, nil
}

// activeGoals returns active savings goals with progress percentages.
func (r *Reporter) activeGoals(ctx context.Context) ([]GoalProgress, error) {
	records, err := r.store.Select(ctx, store.TableSavingsGoals,
		store.NewQuery().Eq("active", true))
	if err != nil {
		return nil, fmt.Errorf("fetch goals: %w", err)
	}

	goals := make([]GoalProgress, 0, len(records))
	for _, rec := range records {
		g := GoalProgress{
			Name:    rec.Str("name"),
			Current: ledger.AmountFromAny(rec["current_amount"]),
			Target:  ledger.AmountFromAny(rec["target_amount"]),
		}
		if g.Target.IsPositive() {
			pct, _ := g.Current.Div(g.Target).Mul(decimal.NewFromInt(100)).Float64()
			g.Percent = pct
		}
		goals = append(goals, g)
	}
	return goals, nil
}

// profile fetches the user's financial profile, falling back to the
// defaults when no row exists or the store errors.
func (r *Reporter) profile(ctx context.Context, userID int64) (ledger.FinancialProfile, error) {
	records, err := r.store.Select(ctx, store.TableProfiles,
		store.NewQuery().Eq("user_id", userID).Limit(1))
	if err != nil || len(records) == 0 {
		if err != nil {
			r.logger.Warn("profile fetch failed, using defaults", "user", userID, "error", err)
		}
		return ledger.DefaultProfile(userID), nil
	}

	rec := records[0]
	p := ledger.FinancialProfile{
		UserID: userID,
		Budget: ledger.AmountFromAny(rec["budget"]),
		Goals:  rec.Str("goals"),
	}
	if p.Goals == "" {
		p.Goals = "Save money"
	}
	return p, nil
}

// categoryTotals groups expense records by category, descending by
// spend. Records with no recognizable category count as Misc.
func categoryTotals(records []store.Record) []CategoryTotal {
	byCat := make(map[ledger.Category]decimal.Decimal)
	for _, rec := range records {
		c, ok := ledger.ParseCategory(rec.Str("category"))
		if !ok {
			c = ledger.CategoryMisc
		}
		byCat[c] = byCat[c].Add(ledger.AmountFromAny(rec["amount"]))
	}

	totals := make([]CategoryTotal, 0, len(byCat))
	for c, t := range byCat {
		totals = append(totals, CategoryTotal{Category: c, Total: t})
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Total.Equal(totals[j].Total) {
			return totals[i].Category < totals[j].Category
		}
		return totals[i].Total.GreaterThan(totals[j].Total)
	})
	return totals
}
