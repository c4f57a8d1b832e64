package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/averko/moneypenny/internal/ledger"
	"github.com/averko/moneypenny/internal/store"
)

// fakeStore serves canned rows per table and records the queries it saw.
type fakeStore struct {
	tables  map[string][]store.Record
	queries map[string][]string
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tables:  make(map[string][]store.Record),
		queries: make(map[string][]string),
	}
}

func (f *fakeStore) Select(_ context.Context, resource string, q *store.Query) ([]store.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.queries[resource] = append(f.queries[resource], q.Encode())
	return f.tables[resource], nil
}

func TestPeriodRange(t *testing.T) {
	// Wednesday, 2026-09-16 15:30 UTC.
	now := time.Date(2026, 9, 16, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		period    Period
		wantStart time.Time
		wantEnd   time.Time
		bounded   bool
	}{
		{PeriodToday,
			time.Date(2026, 9, 16, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 9, 17, 0, 0, 0, 0, time.UTC), true},
		{PeriodThisWeek, // most recent Monday
			time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 9, 21, 0, 0, 0, 0, time.UTC), true},
		{PeriodThisMonth,
			time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), true},
		{PeriodLastMonth,
			time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), true},
		{PeriodThisYear,
			time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{PeriodAllTime, time.Time{}, time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			start, end, bounded := tt.period.Range(now)
			if bounded != tt.bounded {
				t.Fatalf("bounded = %v, want %v", bounded, tt.bounded)
			}
			if bounded && (!start.Equal(tt.wantStart) || !end.Equal(tt.wantEnd)) {
				t.Errorf("Range = [%v, %v), want [%v, %v)", start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestPeriodRangeWeekOnMonday(t *testing.T) {
	// A Monday morning: this_week starts today, not a week ago.
	now := time.Date(2026, 9, 14, 8, 0, 0, 0, time.UTC)
	start, _, _ := PeriodThisWeek.Range(now)
	want := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	if !start.Equal(want) {
		t.Errorf("week start = %v, want %v", start, want)
	}
}

func TestPeriodRangeSunday(t *testing.T) {
	// Sunday belongs to the week that started six days earlier.
	now := time.Date(2026, 9, 20, 12, 0, 0, 0, time.UTC)
	start, _, _ := PeriodThisWeek.Range(now)
	want := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	if !start.Equal(want) {
		t.Errorf("week start = %v, want %v", start, want)
	}
}

func TestParsePeriod(t *testing.T) {
	if p, err := ParsePeriod("This_Month"); err != nil || p != PeriodThisMonth {
		t.Errorf("ParsePeriod(This_Month) = %q, %v", p, err)
	}
	if p, err := ParsePeriod(""); err != nil || p != PeriodThisMonth {
		t.Errorf("ParsePeriod(empty) = %q, %v", p, err)
	}
	if _, err := ParsePeriod("fortnight"); err == nil {
		t.Error("expected error for unknown period")
	}
}

func TestSummaryNet(t *testing.T) {
	fs := newFakeStore()
	fs.tables[store.TableExpenses] = []store.Record{
		{"amount": float64(50), "label": "Coffee", "category": "Food", "created_at": "2026-09-10T09:00:00Z"},
	}
	fs.tables[store.TableIncome] = []store.Record{
		{"amount": float64(200), "label": "Refund", "created_at": "2026-09-11T09:00:00Z"},
	}

	r := NewReporter(fs, nil)
	r.SetNow(func() time.Time { return time.Date(2026, 9, 16, 12, 0, 0, 0, time.UTC) })

	s, err := r.Summary(context.Background(), PeriodThisMonth)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}

	if !s.Net.Equal(decimal.NewFromInt(150)) {
		t.Errorf("Net = %s, want 150", s.Net)
	}
	if !s.ExpenseTotal.Equal(decimal.NewFromInt(50)) || !s.IncomeTotal.Equal(decimal.NewFromInt(200)) {
		t.Errorf("totals = %s / %s", s.ExpenseTotal, s.IncomeTotal)
	}

	// The server-side query must carry the month window.
	queries := fs.queries[store.TableExpenses]
	if len(queries) == 0 || queries[0] == "" {
		t.Error("expected a date-bounded expense query")
	}
}

func TestSummaryTopCategoriesCapped(t *testing.T) {
	fs := newFakeStore()
	fs.tables[store.TableExpenses] = []store.Record{
		{"amount": float64(10), "category": "Food"},
		{"amount": float64(40), "category": "Transport"},
		{"amount": float64(30), "category": "Tech"},
		{"amount": float64(20), "category": "Health"},
	}

	r := NewReporter(fs, nil)
	s, err := r.Summary(context.Background(), PeriodAllTime)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}

	if len(s.TopCategories) != 3 {
		t.Fatalf("TopCategories len = %d, want 3", len(s.TopCategories))
	}
	if s.TopCategories[0].Category != ledger.CategoryTransport {
		t.Errorf("top category = %q, want Transport", s.TopCategories[0].Category)
	}
}

func TestSummaryUnparseableAmountsCountAsZero(t *testing.T) {
	fs := newFakeStore()
	fs.tables[store.TableExpenses] = []store.Record{
		{"amount": float64(25), "category": "Food"},
		{"amount": "garbage", "category": "Food"},
		{"category": "Food"}, // absent amount
	}

	r := NewReporter(fs, nil)
	s, err := r.Summary(context.Background(), PeriodAllTime)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if !s.ExpenseTotal.Equal(decimal.NewFromInt(25)) {
		t.Errorf("ExpenseTotal = %s, want 25", s.ExpenseTotal)
	}
}

func TestSnapshot(t *testing.T) {
	fs := newFakeStore()
	fs.tables[store.TableExpenses] = []store.Record{
		{"amount": float64(120), "label": "Groceries", "category": "Food", "created_at": "2026-09-02T10:00:00Z"},
		{"amount": float64(60), "label": "Uber", "category": "Transport", "created_at": "2026-09-05T10:00:00Z"},
	}
	fs.tables[store.TableIncome] = []store.Record{
		{"amount": float64(3000), "label": "Salary", "created_at": "2026-09-01T08:00:00Z"},
	}
	fs.tables[store.TableSubscriptions] = []store.Record{
		{"id": float64(1), "name": "Netflix", "amount": float64(15), "billing_cycle": "monthly", "active": true},
	}
	fs.tables[store.TableSavingsGoals] = []store.Record{
		{"name": "Vacation", "current_amount": float64(250), "target_amount": float64(1000), "active": true},
	}
	fs.tables[store.TableProfiles] = []store.Record{
		{"user_id": float64(42), "budget": float64(4000), "goals": "Pay off loan"},
	}

	r := NewReporter(fs, nil)
	r.SetNow(func() time.Time { return time.Date(2026, 9, 16, 12, 0, 0, 0, time.UTC) })

	d, err := r.Snapshot(context.Background(), 42, PeriodThisMonth)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if !d.Net.Equal(decimal.NewFromInt(2820)) {
		t.Errorf("Net = %s, want 2820", d.Net)
	}
	if !d.Budget.Equal(decimal.NewFromInt(4000)) {
		t.Errorf("Budget = %s, want 4000", d.Budget)
	}
	if len(d.Categories) != 2 || d.Categories[0].Category != ledger.CategoryFood {
		t.Errorf("Categories = %+v", d.Categories)
	}
	if len(d.History) != 3 {
		t.Errorf("History len = %d, want 3", len(d.History))
	}
	if d.History[0].Date != "2026-09-05" {
		t.Errorf("History[0].Date = %q, want newest first at day granularity", d.History[0].Date)
	}
	if !d.SubscriptionTotal.Equal(decimal.NewFromInt(15)) {
		t.Errorf("SubscriptionTotal = %s", d.SubscriptionTotal)
	}
	if len(d.Goals) != 1 || d.Goals[0].Percent != 25 {
		t.Errorf("Goals = %+v", d.Goals)
	}
}

func TestSnapshotDefaultProfile(t *testing.T) {
	fs := newFakeStore()

	r := NewReporter(fs, nil)
	d, err := r.Snapshot(context.Background(), 7, PeriodThisMonth)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !d.Budget.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("Budget = %s, want default 5000", d.Budget)
	}
}

func TestSummaryStoreError(t *testing.T) {
	fs := newFakeStore()
	fs.err = errors.New("store down")

	r := NewReporter(fs, nil)
	if _, err := r.Summary(context.Background(), PeriodThisMonth); err == nil {
		t.Fatal("expected error when store fails")
	}
}
