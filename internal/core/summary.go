package core

const (
	StatusGood    BudgetStatus = "good"
	StatusWarning BudgetStatus = "warning"
	StatusOver    BudgetStatus = "over"

	// warningThreshold is the spent percentage above which a budget warns.
	warningThreshold = 80.0
)

type BudgetStatus string

// DateRange is an inclusive range of calendar days. Either end may be open.
type DateRange struct {
	Start *Date
	End   *Date
}

// NewDateRange builds a closed range.
func NewDateRange(start, end Date) DateRange {
	return DateRange{Start: &start, End: &end}
}

// Totals aggregates income and expenses over a range.
type Totals struct {
	Income       Money `json:"total_income"`
	Expenses     Money `json:"total_expenses"`
	Net          Money `json:"net_income"`
	IncomeCount  int64 `json:"income_count"`
	ExpenseCount int64 `json:"expense_count"`
}

// WithNet fills in Net from Income and Expenses.
func (t Totals) WithNet() Totals {
	t.Net = Money{Cents: t.Income.Cents - t.Expenses.Cents}
	return t
}

// CategoryTotal is a per-category aggregate. CategoryID is nil for
// transactions without a category.
type CategoryTotal struct {
	CategoryID *int64 `json:"category_id"`
	Name       string `json:"name"`
	Color      string `json:"color"`
	Icon       string `json:"icon"`
	Total      Money  `json:"total_amount"`
	Count      int64  `json:"transaction_count"`
	Average    Money  `json:"average_amount"`
	Max        Money  `json:"max_amount"`
	Min        Money  `json:"min_amount"`
}

// DisplayName falls back to "Uncategorized".
func (c CategoryTotal) DisplayName() string {
	if c.Name == "" {
		return UncategorizedName
	}
	return c.Name
}

// DisplayColor falls back to the default category color.
func (c CategoryTotal) DisplayColor() string {
	if c.Color == "" {
		return DefaultCategoryColor
	}
	return c.Color
}

// BucketTotal is an income/expense aggregate for one time bucket (a day,
// ISO-ish week, month, year or weekday depending on the query).
type BucketTotal struct {
	Bucket       string `json:"period"`
	Income       Money  `json:"income"`
	Expenses     Money  `json:"expenses"`
	Net          Money  `json:"net_income"`
	IncomeCount  int64  `json:"income_count"`
	ExpenseCount int64  `json:"expense_count"`
}

// BudgetProgress is a budget plus its spending over the budget window.
type BudgetProgress struct {
	Budget
	WindowStart      Date         `json:"window_start"`
	WindowEnd        Date         `json:"window_end"`
	ActualSpending   Money        `json:"actual_spending"`
	Remaining        Money        `json:"remaining"`
	Percentage       float64      `json:"percentage"`
	TransactionCount int64        `json:"transaction_count"`
	Status           BudgetStatus `json:"status"`
}

// ComputeBudgetStatus returns the spent percentage (two decimals) and the
// resulting status: over when actual exceeds the budget, warning above 80%.
func ComputeBudgetStatus(budget, actual Money) (float64, BudgetStatus) {
	pct := Percent(actual.Cents, budget.Cents)
	switch {
	case actual.Cents > budget.Cents:
		return pct, StatusOver
	case pct > warningThreshold:
		return pct, StatusWarning
	default:
		return pct, StatusGood
	}
}

// NewBudgetProgress combines a budget with the spending found in its window.
func NewBudgetProgress(b Budget, window DateRange, spent Money, count int64) BudgetProgress {
	pct, status := ComputeBudgetStatus(b.Amount, spent)
	p := BudgetProgress{
		Budget:           b,
		ActualSpending:   spent,
		Remaining:        Money{Cents: b.Amount.Cents - spent.Cents},
		Percentage:       pct,
		TransactionCount: count,
		Status:           status,
	}
	if window.Start != nil {
		p.WindowStart = *window.Start
	}
	if window.End != nil {
		p.WindowEnd = *window.End
	}
	return p
}
