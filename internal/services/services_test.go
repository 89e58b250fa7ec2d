package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/storage"
)

var fixedNow = time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

type fakePublisher struct {
	mu     sync.Mutex
	events []amqp.Event
	err    error
}

func (p *fakePublisher) PublishChange(_ context.Context, ev amqp.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) published() []amqp.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]amqp.Event(nil), p.events...)
}

type fixture struct {
	repo         *storage.SQLiteRepository
	publisher    *fakePublisher
	reports      *ReportService
	categories   *CategoryService
	transactions *TransactionService
	budgets      *BudgetService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "services.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	pub := &fakePublisher{}
	reports := NewReportService(repo, time.Minute)
	reports.now = func() time.Time { return fixedNow }
	budgets := NewBudgetService(repo, pub, reports)
	budgets.now = func() time.Time { return fixedNow }

	return &fixture{
		repo:         repo,
		publisher:    pub,
		reports:      reports,
		categories:   NewCategoryService(repo, pub, reports),
		transactions: NewTransactionService(repo, pub, reports),
		budgets:      budgets,
	}
}

func (f *fixture) category(t *testing.T, name string, typ core.TransactionType) core.Category {
	t.Helper()
	c, err := f.categories.Create(context.Background(), CategoryInput{Name: name, Type: typ})
	require.NoError(t, err)
	return c
}

func (f *fixture) transaction(t *testing.T, desc string, cents int64, typ core.TransactionType, cat *int64, date core.Date) core.Transaction {
	t.Helper()
	tx, err := f.transactions.Create(context.Background(), TransactionInput{
		Description: desc,
		Amount:      core.Cents(cents),
		Type:        typ,
		CategoryID:  cat,
		Date:        date,
	})
	require.NoError(t, err)
	return tx
}

// seed loads the data set shared by the budget and report tests.
func (f *fixture) seed(t *testing.T) (food, rent core.Category) {
	t.Helper()
	salary := f.category(t, "Salary", core.Income)
	food = f.category(t, "Food", core.Expense)
	rent = f.category(t, "Rent", core.Expense)

	f.transaction(t, "May salary", 200000, core.Income, &salary.ID, core.NewDate(2024, 5, 1))
	f.transaction(t, "Groceries", 5000, core.Expense, &food.ID, core.NewDate(2024, 5, 3))
	f.transaction(t, "Dinner", 3000, core.Expense, &food.ID, core.NewDate(2024, 5, 20))
	f.transaction(t, "Market", 4000, core.Expense, &food.ID, core.NewDate(2024, 4, 10))
	f.transaction(t, "Christmas lunch", 1000, core.Expense, &food.ID, core.NewDate(2023, 12, 10))
	f.transaction(t, "February rent", 6000, core.Expense, &rent.ID, core.NewDate(2024, 2, 1))
	f.transaction(t, "May rent", 5000, core.Expense, &rent.ID, core.NewDate(2024, 5, 1))
	f.transaction(t, "Parking", 700, core.Expense, nil, core.NewDate(2024, 4, 20))
	return food, rent
}

func TestCategoryService(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.categories.Create(ctx, CategoryInput{Name: "  Travel ", Type: core.Expense})
	require.NoError(t, err)
	assert.Equal(t, "Travel", created.Name)
	assert.Equal(t, core.DefaultCategoryColor, created.Color)

	events := f.publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, amqp.EntityCategory, events[0].Entity)
	assert.Equal(t, amqp.ActionCreated, events[0].Action)
	assert.Equal(t, created.ID, events[0].EntityID)

	_, err = f.categories.Create(ctx, CategoryInput{Name: "travel", Type: core.Expense})
	assert.ErrorIs(t, err, core.ErrConflict)

	_, err = f.categories.List(ctx, core.TransactionType("transfer"))
	assert.True(t, core.IsValidation(err))

	t.Run("type change refused while in use", func(t *testing.T) {
		f.transaction(t, "Flight", 30000, core.Expense, &created.ID, core.NewDate(2024, 3, 1))

		_, err := f.categories.Update(ctx, created.ID, CategoryInput{Name: "Travel", Type: core.Income})
		assert.True(t, core.IsValidation(err))

		updated, err := f.categories.Update(ctx, created.ID, CategoryInput{Name: "Trips", Type: core.Expense, Color: "#112233"})
		require.NoError(t, err)
		assert.Equal(t, "Trips", updated.Name)
		assert.Equal(t, "#112233", updated.Color)
	})

	t.Run("delete in use", func(t *testing.T) {
		err := f.categories.Delete(ctx, created.ID)
		assert.ErrorIs(t, err, core.ErrCategoryInUse)
	})

	t.Run("delete missing", func(t *testing.T) {
		err := f.categories.Delete(ctx, 9999)
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
}

func TestTransactionService_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	salary := f.category(t, "Salary", core.Income)
	missing := int64(4242)

	tests := []struct {
		name  string
		input TransactionInput
	}{
		{"missing description", TransactionInput{Amount: core.Cents(100), Type: core.Expense, Date: core.NewDate(2024, 1, 1)}},
		{"zero amount", TransactionInput{Description: "x", Type: core.Expense, Date: core.NewDate(2024, 1, 1)}},
		{"bad type", TransactionInput{Description: "x", Amount: core.Cents(100), Type: "gift", Date: core.NewDate(2024, 1, 1)}},
		{"missing date", TransactionInput{Description: "x", Amount: core.Cents(100), Type: core.Expense}},
		{"unknown category", TransactionInput{Description: "x", Amount: core.Cents(100), Type: core.Expense, CategoryID: &missing, Date: core.NewDate(2024, 1, 1)}},
		{"category type mismatch", TransactionInput{Description: "x", Amount: core.Cents(100), Type: core.Expense, CategoryID: &salary.ID, Date: core.NewDate(2024, 1, 1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.transactions.Create(ctx, tt.input)
			require.Error(t, err)
			assert.True(t, core.IsValidation(err), "got %v", err)
		})
	}

	// Only the category create was published.
	assert.Len(t, f.publisher.published(), 1)
}

func TestTransactionService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	food := f.category(t, "Food", core.Expense)

	tx := f.transaction(t, "Lunch", 1250, core.Expense, &food.ID, core.NewDate(2024, 5, 2))
	assert.Equal(t, int64(1), tx.Version)

	updated, err := f.transactions.Update(ctx, tx.ID, TransactionInput{
		Description: "Team lunch",
		Amount:      core.Cents(3000),
		Type:        core.Expense,
		Date:        core.NewDate(2024, 5, 2),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Nil(t, updated.CategoryID, "PUT without category_id clears it")

	require.NoError(t, f.transactions.Delete(ctx, tx.ID))
	_, err = f.transactions.Get(ctx, tx.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.transactions.Update(ctx, tx.ID, TransactionInput{Description: "x", Amount: core.Cents(1), Type: core.Expense, Date: core.NewDate(2024, 1, 1)})
	assert.ErrorIs(t, err, core.ErrNotFound)

	events := f.publisher.published()
	require.Len(t, events, 4)
	assert.Equal(t, amqp.ActionCreated, events[1].Action)
	assert.Equal(t, amqp.ActionUpdated, events[2].Action)
	assert.Equal(t, int64(2), events[2].Version)
	assert.Equal(t, amqp.ActionDeleted, events[3].Action)
	assert.Equal(t, amqp.EntityTransaction, events[3].Entity)
}

func TestTransactionService_PublishFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")

	tx := f.transaction(t, "Coffee", 250, core.Expense, nil, core.NewDate(2024, 5, 2))
	assert.NotZero(t, tx.ID)
}

func TestTransactionService_List(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 1; i <= 7; i++ {
		f.transaction(t, "Item", int64(i*100), core.Expense, nil, core.NewDate(2024, 5, i))
	}

	page, err := f.transactions.List(ctx, storage.TransactionFilter{Limit: 3, Offset: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(7), page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Transactions, 3)
	assert.Equal(t, "2024-05-04", page.Transactions[0].Date.String())

	page, err = f.transactions.List(ctx, storage.TransactionFilter{Limit: 10000})
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, page.Limit)

	page, err = f.transactions.List(ctx, storage.TransactionFilter{})
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, page.Limit)
	assert.Equal(t, 1, page.TotalPages)

	start, end := core.NewDate(2024, 5, 5), core.NewDate(2024, 5, 1)
	_, err = f.transactions.List(ctx, storage.TransactionFilter{Range: core.DateRange{Start: &start, End: &end}})
	assert.True(t, core.IsValidation(err))
}

func TestBudgetService_Create(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	salary := f.category(t, "Salary", core.Income)
	food := f.category(t, "Food", core.Expense)

	_, err := f.budgets.Create(ctx, BudgetInput{CategoryID: 9999, Amount: core.Cents(100), Period: core.Monthly})
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.budgets.Create(ctx, BudgetInput{CategoryID: salary.ID, Amount: core.Cents(100), Period: core.Monthly})
	assert.True(t, core.IsValidation(err))

	_, err = f.budgets.Create(ctx, BudgetInput{CategoryID: food.ID, Amount: core.Cents(100), Period: "weekly"})
	assert.True(t, core.IsValidation(err))

	b, err := f.budgets.Create(ctx, BudgetInput{CategoryID: food.ID, Amount: core.Cents(50000), Period: core.Monthly})
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", b.StartDate.String(), "start defaults to the first of the current month")
	assert.True(t, b.IsActive)

	_, err = f.budgets.Create(ctx, BudgetInput{CategoryID: food.ID, Amount: core.Cents(100), Period: core.Yearly})
	assert.True(t, core.IsValidation(err), "second active budget for the same category")

	require.NoError(t, f.budgets.Deactivate(ctx, b.ID))
	require.NoError(t, f.budgets.Deactivate(ctx, b.ID))

	again, err := f.budgets.Create(ctx, BudgetInput{CategoryID: food.ID, Amount: core.Cents(100), Period: core.Yearly})
	require.NoError(t, err)

	inactive := false
	_, err = f.budgets.Update(ctx, again.ID, BudgetInput{Amount: core.Cents(200), Period: core.Yearly, IsActive: &inactive})
	require.NoError(t, err)

	_, err = f.budgets.Update(ctx, b.ID, BudgetInput{Amount: core.Cents(200), Period: core.Monthly})
	require.NoError(t, err, "reactivating is allowed once the other budget is inactive")

	_, err = f.budgets.Update(ctx, again.ID, BudgetInput{Amount: core.Cents(200), Period: core.Yearly})
	assert.True(t, core.IsValidation(err), "reactivating while another budget is active")
}

func TestBudgetService_ListWithSpending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	food, rent := f.seed(t)

	jan := core.NewDate(2024, 1, 1)
	_, err := f.budgets.Create(ctx, BudgetInput{CategoryID: food.ID, Amount: core.Cents(10000), Period: core.Monthly, StartDate: &jan})
	require.NoError(t, err)
	_, err = f.budgets.Create(ctx, BudgetInput{CategoryID: rent.ID, Amount: core.Cents(10000), Period: core.Yearly, StartDate: &jan})
	require.NoError(t, err)

	month, err := f.budgets.ParseMonth("2024-05")
	require.NoError(t, err)

	list, err := f.budgets.ListWithSpending(ctx, month)
	require.NoError(t, err)
	require.Len(t, list, 2)

	foodProgress := list[0]
	assert.Equal(t, food.ID, foodProgress.CategoryID)
	assert.Equal(t, int64(8000), foodProgress.ActualSpending.Cents)
	assert.Equal(t, int64(2), foodProgress.TransactionCount)
	assert.Equal(t, 80.0, foodProgress.Percentage)
	assert.Equal(t, core.StatusGood, foodProgress.Status)
	assert.Equal(t, "2024-05-31", foodProgress.WindowEnd.String())

	rentProgress := list[1]
	assert.Equal(t, int64(11000), rentProgress.ActualSpending.Cents)
	assert.Equal(t, int64(-1000), rentProgress.Remaining.Cents)
	assert.Equal(t, core.StatusOver, rentProgress.Status)
	assert.Equal(t, "2024-01-01", rentProgress.WindowStart.String())

	_, err = f.budgets.ParseMonth("May 2024")
	assert.True(t, core.IsValidation(err))

	current, err := f.budgets.ParseMonth("")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", current.String())
}

func TestReportService_Summaries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)

	summary, err := f.reports.Summary(ctx, core.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, int64(200000), summary.Summary.Income.Cents)
	assert.Equal(t, int64(24700), summary.Summary.Expenses.Cents)
	assert.Equal(t, int64(175300), summary.Summary.Net.Cents)
	require.Len(t, summary.TopCategories, 3)
	assert.Equal(t, "Food", summary.TopCategories[0].Name)
	assert.Equal(t, int64(13000), summary.TopCategories[0].Total.Cents)
	assert.Equal(t, core.UncategorizedName, summary.TopCategories[2].DisplayName())
	assert.Len(t, summary.RecentTransactions, 8)

	monthly, err := f.reports.MonthlySummary(ctx, 2024, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(200000), monthly.TotalIncome.Cents)
	assert.Equal(t, int64(13000), monthly.TotalExpenses.Cents)
	assert.Equal(t, int64(187000), monthly.NetIncome.Cents)
	require.Len(t, monthly.DailyData, 3)
	assert.Equal(t, "2024-05-01", monthly.DailyData[0].Bucket)

	yearly, err := f.reports.YearlySummary(ctx, 2024)
	require.NoError(t, err)
	assert.Equal(t, int64(23700), yearly.Totals.Expenses.Cents)
	require.Len(t, yearly.MonthlyData, 3)
	assert.Equal(t, "2024-02", yearly.MonthlyData[0].Bucket)

	_, err = f.reports.MonthlySummary(ctx, 2024, 13)
	assert.True(t, core.IsValidation(err))
	_, err = f.reports.YearlySummary(ctx, 24)
	assert.True(t, core.IsValidation(err))
}

func TestReportService_Charts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)

	spending, err := f.reports.SpendingByCategory(ctx, core.DateRange{}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Food", "Rent"}, spending.Labels)
	require.Len(t, spending.Datasets, 1)
	assert.Equal(t, []string{core.DefaultCategoryColor, core.DefaultCategoryColor}, spending.Datasets[0].BackgroundColor)
	shares := spending.RawData.([]CategoryShare)
	assert.Equal(t, 52.63, shares[0].Percentage)
	assert.Equal(t, 44.53, shares[1].Percentage)

	yearly, err := f.reports.IncomeVsExpenses(ctx, core.DateRange{}, "year")
	require.NoError(t, err)
	assert.Equal(t, []string{"2023", "2024"}, yearly.Labels)
	require.Len(t, yearly.Datasets, 2)
	assert.Equal(t, "rgba(16, 185, 129, 0.2)", yearly.Datasets[0].BackgroundColor)
	require.NotNil(t, yearly.Datasets[1].Fill)
	assert.False(t, *yearly.Datasets[1].Fill)

	byMonth, err := f.reports.IncomeVsExpenses(ctx, core.DateRange{}, "month")
	require.NoError(t, err)
	for _, groupBy := range []string{"", "weekday", "hour"} {
		fallback, err := f.reports.IncomeVsExpenses(ctx, core.DateRange{}, groupBy)
		require.NoError(t, err, groupBy)
		assert.Equal(t, byMonth.Labels, fallback.Labels, groupBy)
	}

	trend, err := f.reports.MonthlyTrend(ctx, 2024)
	require.NoError(t, err)
	assert.Equal(t, []string{"February", "April", "May"}, trend.Labels)
	require.Len(t, trend.Datasets, 3)
	assert.Equal(t, "Net Income", trend.Datasets[2].Label)
	assert.Equal(t, "line", trend.Datasets[2].Type)
	assert.Equal(t, int64(187000), trend.Datasets[2].Data[2].Cents)

	pattern, err := f.reports.DailyPattern(ctx, core.DateRange{})
	require.NoError(t, err)
	assert.NotEmpty(t, pattern.Labels)
	assert.Subset(t, weekdayNames[:], pattern.Labels)
}

func TestReportService_DashboardAndInsights(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	food, rent := f.seed(t)

	jan := core.NewDate(2024, 1, 1)
	_, err := f.budgets.Create(ctx, BudgetInput{CategoryID: food.ID, Amount: core.Cents(10000), Period: core.Monthly, StartDate: &jan})
	require.NoError(t, err)
	_, err = f.budgets.Create(ctx, BudgetInput{CategoryID: rent.ID, Amount: core.Cents(10000), Period: core.Yearly, StartDate: &jan})
	require.NoError(t, err)

	dash, err := f.reports.Dashboard(ctx, "bogus")
	require.NoError(t, err)
	assert.Equal(t, core.PeriodMonth, dash.Period)
	assert.Equal(t, "2024-04-15", dash.StartDate.String())
	assert.Equal(t, int64(200000), dash.Summary.Income.Cents)
	assert.Equal(t, int64(10700), dash.Summary.Expenses.Cents)
	assert.Equal(t, int64(4), dash.Summary.TotalTransactions)
	assert.Len(t, dash.CategoryBreakdown, 3)
	assert.Len(t, dash.TopCategories, 3)
	assert.Len(t, dash.RecentTransactions, 8)

	in, err := f.reports.Insights(ctx, core.PeriodMonth)
	require.NoError(t, err)
	assert.Equal(t, int64(10700), in.Summary.TotalSpending.Cents)
	assert.Equal(t, int64(3), in.Summary.TotalTransactions)
	assert.Equal(t, int64(3567), in.Summary.AverageTransaction.Cents)
	assert.Equal(t, 94.65, in.Summary.SavingsRate)
	assert.Equal(t, "Food", in.Insights.TopSpendingCategory)
	assert.Equal(t, 3.57, in.Insights.AverageDailySpending)
	assert.Equal(t, 50.0, in.Insights.BudgetUtilization)
	assert.Equal(t, 0, in.Insights.OverBudgetCount)
	require.Len(t, in.BudgetComparison, 2)

	require.Len(t, in.TrendData, 6)
	assert.Equal(t, "Dec 2023", in.TrendData[0].Month)
	assert.Equal(t, int64(1000), in.TrendData[0].Total.Cents)
	assert.Equal(t, int64(0), in.TrendData[1].Total.Cents)
	assert.Equal(t, int64(4700), in.TrendData[4].Total.Cents)
	assert.Equal(t, "May 2024", in.TrendData[5].Month)
	assert.Equal(t, int64(13000), in.TrendData[5].Total.Cents)
}

func TestReportService_CacheInvalidatedByWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.transaction(t, "Books", 1500, core.Expense, nil, core.NewDate(2024, 5, 2))

	first, err := f.reports.Summary(ctx, core.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), first.Summary.Expenses.Cents)

	// A write that bypasses the services leaves the cached report in place.
	_, err = f.repo.CreateTransaction(ctx, core.Transaction{
		Description: "Direct", Amount: core.Cents(500), Type: core.Expense, Date: core.NewDate(2024, 5, 3),
	})
	require.NoError(t, err)
	cached, err := f.reports.Summary(ctx, core.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), cached.Summary.Expenses.Cents)

	f.transaction(t, "Pens", 200, core.Expense, nil, core.NewDate(2024, 5, 4))
	fresh, err := f.reports.Summary(ctx, core.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, int64(2200), fresh.Summary.Expenses.Cents)

	hits, misses := f.reports.Cache().Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(2), misses)
}
