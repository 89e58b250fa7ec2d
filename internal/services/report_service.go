package services

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/storage"
)

const (
	reportCacheSize  = 256
	topCategoryCount = 5
	recentCount      = 10
	trendMonths      = 6
	spendingLimit    = 10
)

// ReportService builds summaries, chart data, the dashboard and insights.
// Results are cached until the TTL runs out or a write calls Invalidate.
type ReportService struct {
	store ReportStore
	cache *cache.LRUCache[any]
	now   func() time.Time

	// generation is bumped by Invalidate. A result built under an older
	// generation is returned but not stored.
	mu         sync.Mutex
	generation atomic.Uint64
}

func NewReportService(store ReportStore, ttl time.Duration) *ReportService {
	return &ReportService{
		store: store,
		cache: cache.NewLRUCache[any](reportCacheSize, ttl),
		now:   time.Now,
	}
}

// Invalidate drops every cached report.
func (s *ReportService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation.Add(1)
	s.cache.Purge()
}

// Cache exposes the report cache so it can be registered for cleanup.
func (s *ReportService) Cache() *cache.LRUCache[any] {
	return s.cache
}

// cached returns the value stored under key or builds and stores it.
func cached[T any](s *ReportService, key string, build func() (T, error)) (T, error) {
	if v, ok := s.cache.Get(key); ok {
		if hit, ok := v.(T); ok {
			return hit, nil
		}
	}
	gen := s.generation.Load()
	v, err := build()
	if err != nil {
		return v, err
	}

	s.mu.Lock()
	if s.generation.Load() == gen {
		s.cache.Set(key, v)
	}
	s.mu.Unlock()
	return v, nil
}

func rangeKey(rng core.DateRange) string {
	var start, end string
	if rng.Start != nil {
		start = rng.Start.String()
	}
	if rng.End != nil {
		end = rng.End.String()
	}
	return start + ".." + end
}

func checkRange(rng core.DateRange) error {
	if rng.Start != nil && rng.End != nil && rng.End.Before(rng.Start.Time) {
		return core.Invalid("end_date", "must not be before start_date")
	}
	return nil
}

func checkYear(year int) error {
	if year < 1900 || year > 9999 {
		return core.Invalid("year", "must be a four digit year")
	}
	return nil
}

// Summary returns the totals, the top expense categories and the most recent
// transactions within rng.
func (s *ReportService) Summary(ctx context.Context, rng core.DateRange) (Summary, error) {
	if err := checkRange(rng); err != nil {
		return Summary{}, err
	}
	return cached(s, "summary:"+rangeKey(rng), func() (Summary, error) {
		totals, err := s.store.Totals(ctx, rng)
		if err != nil {
			return Summary{}, err
		}
		top, err := s.store.CategoryTotals(ctx, core.Expense, rng, topCategoryCount)
		if err != nil {
			return Summary{}, err
		}
		recent, _, err := s.store.ListTransactions(ctx, storage.TransactionFilter{Range: rng, Limit: recentCount})
		if err != nil {
			return Summary{}, err
		}
		return Summary{Summary: totals, TopCategories: top, RecentTransactions: recent}, nil
	})
}

func (s *ReportService) MonthlySummary(ctx context.Context, year, month int) (MonthlySummary, error) {
	if err := checkYear(year); err != nil {
		return MonthlySummary{}, err
	}
	if month < 1 || month > 12 {
		return MonthlySummary{}, core.Invalid("month", "must be between 1 and 12")
	}

	key := fmt.Sprintf("monthly:%04d-%02d", year, month)
	return cached(s, key, func() (MonthlySummary, error) {
		days, err := s.store.BucketTotals(ctx, core.MonthRange(year, month), storage.BucketDay)
		if err != nil {
			return MonthlySummary{}, err
		}
		out := MonthlySummary{Year: year, Month: month, DailyData: days}
		for _, d := range days {
			out.TotalIncome.Cents += d.Income.Cents
			out.TotalExpenses.Cents += d.Expenses.Cents
		}
		out.NetIncome = core.Cents(out.TotalIncome.Cents - out.TotalExpenses.Cents)
		return out, nil
	})
}

func (s *ReportService) YearlySummary(ctx context.Context, year int) (YearlySummary, error) {
	if err := checkYear(year); err != nil {
		return YearlySummary{}, err
	}

	return cached(s, fmt.Sprintf("yearly:%04d", year), func() (YearlySummary, error) {
		rng := core.YearRange(year)
		totals, err := s.store.Totals(ctx, rng)
		if err != nil {
			return YearlySummary{}, err
		}
		months, err := s.store.BucketTotals(ctx, rng, storage.BucketMonth)
		if err != nil {
			return YearlySummary{}, err
		}
		return YearlySummary{Year: year, Totals: totals, MonthlyData: months}, nil
	})
}

// SpendingByCategory charts the largest expense categories. limit <= 0 means
// the default of 10.
func (s *ReportService) SpendingByCategory(ctx context.Context, rng core.DateRange, limit int) (ChartData, error) {
	if err := checkRange(rng); err != nil {
		return ChartData{}, err
	}
	if limit <= 0 {
		limit = spendingLimit
	}

	key := fmt.Sprintf("chart:spending:%s:%d", rangeKey(rng), limit)
	return cached(s, key, func() (ChartData, error) {
		rows, err := s.store.CategoryTotals(ctx, core.Expense, rng, limit)
		if err != nil {
			return ChartData{}, err
		}
		totals, err := s.store.Totals(ctx, rng)
		if err != nil {
			return ChartData{}, err
		}
		return spendingChart(rows, totals.Expenses), nil
	})
}

// IncomeVsExpenses groups by day, week, month or year. Any other groupBy,
// including empty, means month.
func (s *ReportService) IncomeVsExpenses(ctx context.Context, rng core.DateRange, groupBy string) (ChartData, error) {
	if err := checkRange(rng); err != nil {
		return ChartData{}, err
	}
	bucket := storage.Bucket(groupBy)
	if !bucket.Valid() || bucket == storage.BucketWeekday {
		bucket = storage.BucketMonth
	}

	key := fmt.Sprintf("chart:income-expenses:%s:%s", rangeKey(rng), bucket)
	return cached(s, key, func() (ChartData, error) {
		rows, err := s.store.BucketTotals(ctx, rng, bucket)
		if err != nil {
			return ChartData{}, err
		}
		return incomeVsExpensesChart(rows), nil
	})
}

func (s *ReportService) MonthlyTrend(ctx context.Context, year int) (ChartData, error) {
	if err := checkYear(year); err != nil {
		return ChartData{}, err
	}

	return cached(s, fmt.Sprintf("chart:monthly-trend:%04d", year), func() (ChartData, error) {
		rows, err := s.store.BucketTotals(ctx, core.YearRange(year), storage.BucketMonth)
		if err != nil {
			return ChartData{}, err
		}
		return monthlyTrendChart(rows), nil
	})
}

func (s *ReportService) DailyPattern(ctx context.Context, rng core.DateRange) (ChartData, error) {
	if err := checkRange(rng); err != nil {
		return ChartData{}, err
	}

	return cached(s, "chart:daily-pattern:"+rangeKey(rng), func() (ChartData, error) {
		rows, err := s.store.BucketTotals(ctx, rng, storage.BucketWeekday)
		if err != nil {
			return ChartData{}, err
		}
		return dailyPatternChart(rows), nil
	})
}

// Dashboard summarises the lookback period. The three queries run
// concurrently; recent transactions are the latest overall, not only those
// inside the period.
func (s *ReportService) Dashboard(ctx context.Context, period string) (Dashboard, error) {
	period = core.NormalizePeriod(period)
	rng := core.PeriodRange(period, s.now())

	return cached(s, "dashboard:"+period+":"+rangeKey(rng), func() (Dashboard, error) {
		var (
			totals    core.Totals
			breakdown []core.CategoryTotal
			recent    []core.Transaction
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			totals, err = s.store.Totals(gctx, rng)
			return err
		})
		g.Go(func() error {
			var err error
			breakdown, err = s.store.CategoryTotals(gctx, core.Expense, rng, 0)
			return err
		})
		g.Go(func() error {
			var err error
			recent, _, err = s.store.ListTransactions(gctx, storage.TransactionFilter{Limit: recentCount})
			return err
		})
		if err := g.Wait(); err != nil {
			return Dashboard{}, fmt.Errorf("dashboard: %w", err)
		}

		top := breakdown
		if len(top) > topCategoryCount {
			top = top[:topCategoryCount]
		}
		return Dashboard{
			Period:    period,
			StartDate: *rng.Start,
			EndDate:   *rng.End,
			Summary: DashboardSummary{
				Totals:            totals,
				TotalTransactions: totals.IncomeCount + totals.ExpenseCount,
			},
			CategoryBreakdown:  breakdown,
			TopCategories:      top,
			RecentTransactions: recent,
		}, nil
	})
}

// Insights analyses spending over the lookback period: per-category stats,
// budget use over the same period, a six month expense trend and derived
// rates.
func (s *ReportService) Insights(ctx context.Context, period string) (Insights, error) {
	period = core.NormalizePeriod(period)
	now := s.now()
	rng := core.PeriodRange(period, now)

	return cached(s, "insights:"+period+":"+rangeKey(rng), func() (Insights, error) {
		var (
			categories []core.CategoryTotal
			totals     core.Totals
			comparison []core.BudgetProgress
			trend      []TrendPoint
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			categories, err = s.store.CategoryTotals(gctx, core.Expense, rng, 0)
			return err
		})
		g.Go(func() error {
			var err error
			totals, err = s.store.Totals(gctx, rng)
			return err
		})
		g.Go(func() error {
			var err error
			comparison, err = s.budgetComparison(gctx, rng)
			return err
		})
		g.Go(func() error {
			var err error
			trend, err = s.expenseTrend(gctx, core.DateOf(now.UTC()))
			return err
		})
		if err := g.Wait(); err != nil {
			return Insights{}, fmt.Errorf("insights: %w", err)
		}

		return buildInsights(period, rng, categories, totals, comparison, trend), nil
	})
}

func buildInsights(period string, rng core.DateRange, categories []core.CategoryTotal, totals core.Totals,
	comparison []core.BudgetProgress, trend []TrendPoint) Insights {
	var spent, count int64
	for _, c := range categories {
		spent += c.Total.Cents
		count += c.Count
	}

	summary := InsightsSummary{
		TotalSpending:     core.Cents(spent),
		TotalTransactions: count,
		TotalIncome:       totals.Income,
	}
	if count > 0 {
		summary.AverageTransaction = core.Cents(int64(math.Round(float64(spent) / float64(count))))
	}
	if totals.Income.Cents > 0 {
		summary.SavingsRate = core.Percent(totals.Income.Cents-spent, totals.Income.Cents)
	}

	over := 0
	var pctSum float64
	for _, b := range comparison {
		pctSum += b.Percentage
		if b.Status == core.StatusOver {
			over++
		}
	}

	figures := InsightFigures{
		TopSpendingCategory:  "None",
		AverageDailySpending: core.Round2(core.Cents(spent).Float() / float64(spanDays(rng))),
		OverBudgetCount:      over,
	}
	if len(comparison) > 0 {
		figures.BudgetUtilization = core.Round2(pctSum / float64(len(comparison)))
	}

	var top *core.CategoryTotal
	if len(categories) > 0 {
		top = &categories[0]
		figures.TopSpendingCategory = top.DisplayName()
	}

	return Insights{
		Period:               period,
		StartDate:            *rng.Start,
		EndDate:              *rng.End,
		Summary:              summary,
		SpendingInsights:     categories,
		BudgetComparison:     comparison,
		TrendData:            trend,
		TopCategory:          top,
		OverBudgetCategories: over,
		Insights:             figures,
	}
}

// spanDays counts the days between the ends of rng, at least 1.
func spanDays(rng core.DateRange) int {
	if n := rng.Days() - 1; n > 0 {
		return n
	}
	return 1
}

// budgetComparison measures every active budget overlapping rng against the
// spending inside rng.
func (s *ReportService) budgetComparison(ctx context.Context, rng core.DateRange) ([]core.BudgetProgress, error) {
	budgets, err := s.store.ListBudgets(ctx, storage.BudgetFilter{ActiveOnly: true, Overlap: rng})
	if err != nil {
		return nil, err
	}

	out := make([]core.BudgetProgress, 0, len(budgets))
	for _, b := range budgets {
		spent, n, err := s.store.SpendingForCategory(ctx, b.CategoryID, rng)
		if err != nil {
			return nil, err
		}
		out = append(out, core.NewBudgetProgress(b, rng, spent, n))
	}
	return out, nil
}

// expenseTrend returns expense totals for the trendMonths calendar months
// ending with the month of today, oldest first. Empty months are zero.
func (s *ReportService) expenseTrend(ctx context.Context, today core.Date) ([]TrendPoint, error) {
	first := core.NewDate(today.Year(), int(today.Month())-(trendMonths-1), 1)
	last := *core.MonthRange(today.Year(), int(today.Month())).End

	rows, err := s.store.BucketTotals(ctx, core.NewDateRange(first, last), storage.BucketMonth)
	if err != nil {
		return nil, err
	}
	byMonth := make(map[string]core.Money, len(rows))
	for _, r := range rows {
		byMonth[r.Bucket] = r.Expenses
	}

	out := make([]TrendPoint, 0, trendMonths)
	for i := 0; i < trendMonths; i++ {
		m := first.AddDate(0, i, 0)
		out = append(out, TrendPoint{
			Month: m.Format("Jan 2006"),
			Total: byMonth[m.Format(monthLayout)],
		})
	}
	return out, nil
}
