package core

import (
	"testing"
	"time"
)

func TestBudgetWindow(t *testing.T) {
	tests := []struct {
		name      string
		period    BudgetPeriod
		ref       Date
		wantStart string
		wantEnd   string
		wantErr   bool
	}{
		{"monthly mid month", Monthly, NewDate(2024, 2, 14), "2024-02-01", "2024-02-29", false},
		{"monthly december", Monthly, NewDate(2023, 12, 31), "2023-12-01", "2023-12-31", false},
		{"yearly", Yearly, NewDate(2024, 7, 4), "2024-01-01", "2024-12-31", false},
		{"unknown", BudgetPeriod("weekly"), NewDate(2024, 1, 1), "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BudgetWindow(tt.period, tt.ref)
			if (err != nil) != tt.wantErr {
				t.Fatalf("BudgetWindow() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Start.String() != tt.wantStart || got.End.String() != tt.wantEnd {
				t.Errorf("BudgetWindow() = %s..%s, want %s..%s", got.Start, got.End, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestPeriodRange(t *testing.T) {
	now := time.Date(2024, 5, 15, 18, 30, 0, 0, time.UTC)

	tests := []struct {
		period    string
		wantStart string
	}{
		{PeriodMonth, "2024-04-15"},
		{PeriodQuarter, "2024-02-15"},
		{PeriodYear, "2023-05-15"},
		{"", "2024-04-15"},
		{"decade", "2024-04-15"},
	}

	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			got := PeriodRange(tt.period, now)
			if got.Start.String() != tt.wantStart {
				t.Errorf("start = %s, want %s", got.Start, tt.wantStart)
			}
			if got.End.String() != "2024-05-15" {
				t.Errorf("end = %s, want 2024-05-15", got.End)
			}
		})
	}
}

func TestDateRangeHelpers(t *testing.T) {
	feb := MonthRange(2024, 2)
	if feb.Days() != 29 {
		t.Errorf("Days() = %d, want 29", feb.Days())
	}
	if (DateRange{}).Days() != 1 {
		t.Error("open range should count as one day")
	}

	start := NewDate(2024, 2, 10)
	clipped := feb.Intersect(DateRange{Start: &start})
	if clipped.Start.String() != "2024-02-10" || clipped.End.String() != "2024-02-29" {
		t.Errorf("Intersect() = %s..%s", clipped.Start, clipped.End)
	}

	y := YearRange(2023)
	if y.Start.String() != "2023-01-01" || y.End.String() != "2023-12-31" {
		t.Errorf("YearRange() = %s..%s", y.Start, y.End)
	}
}
