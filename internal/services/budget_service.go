package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/storage"
)

const monthLayout = "2006-01"

// BudgetInput is the body of POST and PUT. On update CategoryID is ignored,
// a nil StartDate or EndDate keeps the stored value and a nil IsActive
// means active.
type BudgetInput struct {
	CategoryID int64             `json:"category_id"`
	Amount     core.Money        `json:"amount"`
	Period     core.BudgetPeriod `json:"period"`
	StartDate  *core.Date        `json:"start_date"`
	EndDate    *core.Date        `json:"end_date"`
	IsActive   *bool             `json:"is_active"`
}

type BudgetService struct {
	store  BudgetStore
	notify changeNotifier
	now    func() time.Time
}

func NewBudgetService(store BudgetStore, publisher EventPublisher, invalidator Invalidator) *BudgetService {
	return &BudgetService{
		store:  store,
		notify: changeNotifier{publisher: publisher, invalidator: invalidator},
		now:    time.Now,
	}
}

func (s *BudgetService) today() core.Date {
	return core.DateOf(s.now().UTC())
}

// ParseMonth reads YYYY-MM and returns the first day of that month. An empty
// value means the current month.
func (s *BudgetService) ParseMonth(value string) (core.Date, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		today := s.today()
		return core.NewDate(today.Year(), int(today.Month()), 1), nil
	}
	t, err := time.Parse(monthLayout, value)
	if err != nil {
		return core.Date{}, core.Invalid("month", "must be in YYYY-MM format")
	}
	return core.DateOf(t), nil
}

// List returns the active budgets overlapping the calendar month that starts
// at month.
func (s *BudgetService) List(ctx context.Context, month core.Date) ([]core.Budget, error) {
	return s.store.ListBudgets(ctx, storage.BudgetFilter{
		ActiveOnly: true,
		Overlap:    core.MonthRange(month.Year(), int(month.Month())),
	})
}

// ListWithSpending is List plus each budget's progress. Spending is summed
// over the budget's own period window containing month, clipped to the
// budget's start and end dates.
func (s *BudgetService) ListWithSpending(ctx context.Context, month core.Date) ([]core.BudgetProgress, error) {
	budgets, err := s.List(ctx, month)
	if err != nil {
		return nil, err
	}

	out := make([]core.BudgetProgress, 0, len(budgets))
	for _, b := range budgets {
		p, err := s.progress(ctx, b, month)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *BudgetService) progress(ctx context.Context, b core.Budget, ref core.Date) (core.BudgetProgress, error) {
	window, err := core.BudgetWindow(b.Period, ref)
	if err != nil {
		return core.BudgetProgress{}, err
	}
	window = window.Intersect(core.DateRange{Start: &b.StartDate, End: b.EndDate})

	spent, count, err := s.store.SpendingForCategory(ctx, b.CategoryID, window)
	if err != nil {
		return core.BudgetProgress{}, fmt.Errorf("budget %d spending: %w", b.ID, err)
	}
	return core.NewBudgetProgress(b, window, spent, count), nil
}

func (s *BudgetService) Get(ctx context.Context, id int64) (core.Budget, error) {
	return s.store.GetBudget(ctx, id)
}

// Create requires an existing expense category with no other active budget.
func (s *BudgetService) Create(ctx context.Context, in BudgetInput) (core.Budget, error) {
	if in.CategoryID <= 0 {
		return core.Budget{}, core.Invalid("category_id", "is required")
	}
	cat, err := s.store.GetCategory(ctx, in.CategoryID)
	if err != nil {
		return core.Budget{}, err
	}
	if cat.Type != core.Expense {
		return core.Budget{}, core.Invalid("category_id", "budgets can only be set for expense categories")
	}

	today := s.today()
	b := core.Budget{
		CategoryID: in.CategoryID,
		Amount:     in.Amount,
		Period:     in.Period,
		StartDate:  core.NewDate(today.Year(), int(today.Month()), 1),
		EndDate:    in.EndDate,
		IsActive:   true,
	}
	if in.StartDate != nil && !in.StartDate.IsZero() {
		b.StartDate = *in.StartDate
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}

	exists, err := s.store.HasActiveBudget(ctx, b.CategoryID, today, 0)
	if err != nil {
		return core.Budget{}, err
	}
	if exists {
		return core.Budget{}, core.Invalid("category_id", "an active budget already exists for this category")
	}

	created, err := s.store.CreateBudget(ctx, b)
	if err != nil {
		return core.Budget{}, err
	}

	applog.FromContext(ctx).WithComponent(applog.ComponentBudget).InfoContext(ctx, "Budget created",
		applog.FieldBudgetID, created.ID,
		applog.FieldCategoryID, created.CategoryID,
		applog.FieldAmountCents, created.Amount.Cents,
		"period", created.Period)
	s.notify.committed(ctx, amqp.EntityBudget, amqp.ActionCreated, created.ID, 1)
	return created, nil
}

// Update sets amount and period and, when given, the dates and active flag.
// Reactivating a budget is refused while another active one covers the
// category.
func (s *BudgetService) Update(ctx context.Context, id int64, in BudgetInput) (core.Budget, error) {
	b, err := s.store.GetBudget(ctx, id)
	if err != nil {
		return core.Budget{}, err
	}

	b.Amount = in.Amount
	b.Period = in.Period
	if in.StartDate != nil && !in.StartDate.IsZero() {
		b.StartDate = *in.StartDate
	}
	if in.EndDate != nil && !in.EndDate.IsZero() {
		b.EndDate = in.EndDate
	}
	wasActive := b.IsActive
	b.IsActive = true
	if in.IsActive != nil {
		b.IsActive = *in.IsActive
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}

	if b.IsActive && !wasActive {
		exists, err := s.store.HasActiveBudget(ctx, b.CategoryID, s.today(), b.ID)
		if err != nil {
			return core.Budget{}, err
		}
		if exists {
			return core.Budget{}, core.Invalid("is_active", "another active budget exists for this category")
		}
	}

	updated, err := s.store.UpdateBudget(ctx, b)
	if err != nil {
		return core.Budget{}, err
	}
	s.notify.committed(ctx, amqp.EntityBudget, amqp.ActionUpdated, id, 1)
	return updated, nil
}

// Deactivate soft-deletes the budget. Deactivating twice is not an error.
func (s *BudgetService) Deactivate(ctx context.Context, id int64) error {
	if err := s.store.DeactivateBudget(ctx, id); err != nil {
		return err
	}

	applog.FromContext(ctx).WithComponent(applog.ComponentBudget).InfoContext(ctx, "Budget deactivated",
		applog.FieldBudgetID, id)
	s.notify.committed(ctx, amqp.EntityBudget, amqp.ActionDeleted, id, 0)
	return nil
}
