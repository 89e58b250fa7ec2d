package services

import (
	"fmt"
	"strconv"
	"time"

	"fintrack/internal/core"
)

// Chart colors, shared with the dashboard page.
const (
	incomeRGB  = "16, 185, 129"
	expenseRGB = "239, 68, 68"
	netRGB     = "59, 130, 246"
)

var weekdayNames = [...]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

type Summary struct {
	Summary            core.Totals          `json:"summary"`
	TopCategories      []core.CategoryTotal `json:"top_categories"`
	RecentTransactions []core.Transaction   `json:"recent_transactions"`
}

type MonthlySummary struct {
	Year          int                `json:"year"`
	Month         int                `json:"month"`
	TotalIncome   core.Money         `json:"total_income"`
	TotalExpenses core.Money         `json:"total_expenses"`
	NetIncome     core.Money         `json:"net_income"`
	DailyData     []core.BucketTotal `json:"daily_data"`
}

type YearlySummary struct {
	Year        int                `json:"year"`
	Totals      core.Totals        `json:"totals"`
	MonthlyData []core.BucketTotal `json:"monthly_data"`
}

// Dataset is one series in the chart.js data format.
type Dataset struct {
	Label           string       `json:"label,omitempty"`
	Data            []core.Money `json:"data"`
	BackgroundColor any          `json:"backgroundColor"`
	BorderColor     any          `json:"borderColor"`
	BorderWidth     int          `json:"borderWidth"`
	Type            string       `json:"type,omitempty"`
	Fill            *bool        `json:"fill,omitempty"`
}

// ChartData is the payload of every /charts endpoint.
type ChartData struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
	RawData  any       `json:"raw_data"`
}

// CategoryShare is a category total with its share of all expenses.
type CategoryShare struct {
	core.CategoryTotal
	Percentage float64 `json:"percentage"`
}

type DashboardSummary struct {
	core.Totals
	TotalTransactions int64 `json:"total_transactions"`
}

type Dashboard struct {
	Period             string               `json:"period"`
	StartDate          core.Date            `json:"start_date"`
	EndDate            core.Date            `json:"end_date"`
	Summary            DashboardSummary     `json:"summary"`
	CategoryBreakdown  []core.CategoryTotal `json:"category_breakdown"`
	TopCategories      []core.CategoryTotal `json:"top_categories"`
	RecentTransactions []core.Transaction   `json:"recent_transactions"`
}

type InsightsSummary struct {
	TotalSpending      core.Money `json:"total_spending"`
	TotalTransactions  int64      `json:"total_transactions"`
	AverageTransaction core.Money `json:"average_transaction"`
	TotalIncome        core.Money `json:"total_income"`
	SavingsRate        float64    `json:"savings_rate"`
}

// TrendPoint is one month of expense totals, labelled like "Jan 2024".
type TrendPoint struct {
	Month string     `json:"month"`
	Total core.Money `json:"total"`
}

type InsightFigures struct {
	TopSpendingCategory  string  `json:"top_spending_category"`
	AverageDailySpending float64 `json:"average_daily_spending"`
	BudgetUtilization    float64 `json:"budget_utilization"`
	OverBudgetCount      int     `json:"over_budget_count"`
}

type Insights struct {
	Period               string                `json:"period"`
	StartDate            core.Date             `json:"start_date"`
	EndDate              core.Date             `json:"end_date"`
	Summary              InsightsSummary       `json:"summary"`
	SpendingInsights     []core.CategoryTotal  `json:"spending_insights"`
	BudgetComparison     []core.BudgetProgress `json:"budget_comparison"`
	TrendData            []TrendPoint          `json:"trend_data"`
	TopCategory          *core.CategoryTotal   `json:"top_category"`
	OverBudgetCategories int                   `json:"over_budget_categories"`
	Insights             InsightFigures        `json:"insights"`
}

func rgba(rgb string, alpha float64) string {
	return fmt.Sprintf("rgba(%s, %s)", rgb, strconv.FormatFloat(alpha, 'f', -1, 64))
}

func series(label, rgb string, alpha float64, width int, data []core.Money) Dataset {
	return Dataset{
		Label:           label,
		Data:            data,
		BackgroundColor: rgba(rgb, alpha),
		BorderColor:     rgba(rgb, 1),
		BorderWidth:     width,
	}
}

func noFill() *bool {
	f := false
	return &f
}

// spendingChart builds the doughnut data. Percentages are of totalExpenses,
// which may exceed the sum of rows when a limit is applied.
func spendingChart(rows []core.CategoryTotal, totalExpenses core.Money) ChartData {
	labels := make([]string, len(rows))
	data := make([]core.Money, len(rows))
	colors := make([]string, len(rows))
	shares := make([]CategoryShare, len(rows))
	for i, row := range rows {
		labels[i] = row.DisplayName()
		data[i] = row.Total
		colors[i] = row.DisplayColor()
		shares[i] = CategoryShare{CategoryTotal: row, Percentage: core.Percent(row.Total.Cents, totalExpenses.Cents)}
	}
	return ChartData{
		Labels: labels,
		Datasets: []Dataset{{
			Data:            data,
			BackgroundColor: colors,
			BorderColor:     colors,
			BorderWidth:     1,
		}},
		RawData: shares,
	}
}

func incomeExpenseSeries(rows []core.BucketTotal) (income, expenses, net []core.Money) {
	income = make([]core.Money, len(rows))
	expenses = make([]core.Money, len(rows))
	net = make([]core.Money, len(rows))
	for i, row := range rows {
		income[i] = row.Income
		expenses[i] = row.Expenses
		net[i] = row.Net
	}
	return income, expenses, net
}

func incomeVsExpensesChart(rows []core.BucketTotal) ChartData {
	labels := make([]string, len(rows))
	for i, row := range rows {
		labels[i] = row.Bucket
	}
	income, expenses, _ := incomeExpenseSeries(rows)

	in := series("Income", incomeRGB, 0.2, 2, income)
	in.Fill = noFill()
	out := series("Expenses", expenseRGB, 0.2, 2, expenses)
	out.Fill = noFill()

	return ChartData{Labels: labels, Datasets: []Dataset{in, out}, RawData: rows}
}

// monthlyTrendChart expects buckets formatted YYYY-MM.
func monthlyTrendChart(rows []core.BucketTotal) ChartData {
	labels := make([]string, len(rows))
	for i, row := range rows {
		labels[i] = row.Bucket
		if t, err := time.Parse(monthLayout, row.Bucket); err == nil {
			labels[i] = t.Month().String()
		}
	}
	income, expenses, net := incomeExpenseSeries(rows)

	netLine := series("Net Income", netRGB, 0.8, 2, net)
	netLine.Type = "line"
	netLine.Fill = noFill()

	return ChartData{
		Labels: labels,
		Datasets: []Dataset{
			series("Income", incomeRGB, 0.8, 1, income),
			series("Expenses", expenseRGB, 0.8, 1, expenses),
			netLine,
		},
		RawData: rows,
	}
}

// dailyPatternChart expects buckets "0".."6" as produced by strftime('%w').
func dailyPatternChart(rows []core.BucketTotal) ChartData {
	labels := make([]string, len(rows))
	for i, row := range rows {
		labels[i] = row.Bucket
		if n, err := strconv.Atoi(row.Bucket); err == nil && n >= 0 && n < len(weekdayNames) {
			labels[i] = weekdayNames[n]
		}
	}
	income, expenses, _ := incomeExpenseSeries(rows)

	return ChartData{
		Labels: labels,
		Datasets: []Dataset{
			series("Income", incomeRGB, 0.8, 1, income),
			series("Expenses", expenseRGB, 0.8, 1, expenses),
		},
		RawData: rows,
	}
}
