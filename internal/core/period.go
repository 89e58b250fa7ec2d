package core

import (
	"fmt"
	"time"
)

// Lookback periods accepted by the dashboard and insights.
const (
	PeriodMonth   = "month"
	PeriodQuarter = "quarter"
	PeriodYear    = "year"
)

// WindowResolver computes the spending window of a budget period that
// contains a reference day.
type WindowResolver interface {
	Window(ref Date) DateRange
}

// MonthlyWindow spans the calendar month of the reference day.
type MonthlyWindow struct{}

func (MonthlyWindow) Window(ref Date) DateRange {
	start := NewDate(ref.Year(), int(ref.Month()), 1)
	end := NewDate(ref.Year(), int(ref.Month())+1, 0)
	return NewDateRange(start, end)
}

// YearlyWindow spans the calendar year of the reference day.
type YearlyWindow struct{}

func (YearlyWindow) Window(ref Date) DateRange {
	return NewDateRange(NewDate(ref.Year(), 1, 1), NewDate(ref.Year(), 12, 31))
}

var windowStrategies = map[BudgetPeriod]WindowResolver{
	Monthly: MonthlyWindow{},
	Yearly:  YearlyWindow{},
}

// BudgetWindow returns the inclusive window of period that contains ref.
func BudgetWindow(period BudgetPeriod, ref Date) (DateRange, error) {
	w, ok := windowStrategies[period]
	if !ok {
		return DateRange{}, fmt.Errorf("unknown budget period: %s", period)
	}
	return w.Window(ref), nil
}

// lookbackMonths maps dashboard periods to how far back they reach.
var lookbackMonths = map[string]int{
	PeriodMonth:   1,
	PeriodQuarter: 3,
	PeriodYear:    12,
}

// NormalizePeriod maps unknown or empty values to PeriodMonth.
func NormalizePeriod(period string) string {
	if _, ok := lookbackMonths[period]; ok {
		return period
	}
	return PeriodMonth
}

// PeriodRange returns the inclusive range from the same day n months before
// now up to today, where n is 1, 3 or 12.
func PeriodRange(period string, now time.Time) DateRange {
	months := lookbackMonths[NormalizePeriod(period)]
	today := DateOf(now.UTC())
	return NewDateRange(Date{Time: today.AddDate(0, -months, 0)}, today)
}

// Days is the number of calendar days covered by a closed range, at least 1.
func (r DateRange) Days() int {
	if r.Start == nil || r.End == nil {
		return 1
	}
	n := int(r.End.Sub(r.Start.Time).Hours()/24) + 1
	if n < 1 {
		return 1
	}
	return n
}

// Intersect clips r to other. Open ends on either side take the other's bound.
func (r DateRange) Intersect(other DateRange) DateRange {
	out := r
	if other.Start != nil && (out.Start == nil || other.Start.After(out.Start.Time)) {
		out.Start = other.Start
	}
	if other.End != nil && (out.End == nil || other.End.Before(out.End.Time)) {
		out.End = other.End
	}
	return out
}

// MonthRange returns the inclusive range of a calendar month.
func MonthRange(year, month int) DateRange {
	return MonthlyWindow{}.Window(NewDate(year, month, 1))
}

// YearRange returns the inclusive range of a calendar year.
func YearRange(year int) DateRange {
	return YearlyWindow{}.Window(NewDate(year, 1, 1))
}
