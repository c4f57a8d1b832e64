package report

import (
	"fmt"
	"strings"
	"time"
)

// Period names a reporting window anchored on the caller's current time.
type Period string

// Supported periods.
const (
	PeriodToday     Period = "today"
	PeriodThisWeek  Period = "this_week"
	PeriodThisMonth Period = "this_month"
	PeriodLastMonth Period = "last_month"
	PeriodThisYear  Period = "this_year"
	PeriodAllTime   Period = "all_time"
)

// ParsePeriod normalizes s to a known period.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PeriodToday, PeriodThisWeek, PeriodThisMonth, PeriodLastMonth, PeriodThisYear, PeriodAllTime:
		return p, nil
	case "":
		return PeriodThisMonth, nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// Range maps the period to a half-open [start, end) window anchored at
// now. Weeks start on the most recent Monday 00:00; last_month is the
// full previous calendar month. bounded is false for all_time, meaning
// no date filter applies.
func (p Period) Range(now time.Time) (start, end time.Time, bounded bool) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch p {
	case PeriodToday:
		return midnight, midnight.AddDate(0, 0, 1), true
	case PeriodThisWeek:
		// time.Weekday has Sunday=0; shift so Monday opens the week.
		offset := (int(now.Weekday()) + 6) % 7
		start = midnight.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7), true
	case PeriodThisMonth:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return start, start.AddDate(0, 1, 0), true
	case PeriodLastMonth:
		end = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return end.AddDate(0, -1, 0), end, true
	case PeriodThisYear:
		start = time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
		return start, start.AddDate(1, 0, 0), true
	default:
		return time.Time{}, time.Time{}, false
	}
}
