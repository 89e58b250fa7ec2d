// Package services holds the business rules that sit between the HTTP layer
// and the SQLite repository: validation, cross-entity checks, report
// assembly, cache invalidation and change events.
package services

import (
	"context"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// CategoryStore is the persistence needed by CategoryService.
type CategoryStore interface {
	ListCategories(ctx context.Context, typ core.TransactionType) ([]core.Category, error)
	GetCategory(ctx context.Context, id int64) (core.Category, error)
	CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
	UpdateCategory(ctx context.Context, c core.Category) (core.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
	CountTransactionsForCategory(ctx context.Context, id int64) (int64, error)
}

// TransactionStore is the persistence needed by TransactionService.
type TransactionStore interface {
	GetCategory(ctx context.Context, id int64) (core.Category, error)
	ListTransactions(ctx context.Context, f storage.TransactionFilter) ([]core.Transaction, int64, error)
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id int64) error
}

// BudgetStore is the persistence needed by BudgetService.
type BudgetStore interface {
	GetCategory(ctx context.Context, id int64) (core.Category, error)
	ListBudgets(ctx context.Context, f storage.BudgetFilter) ([]core.Budget, error)
	GetBudget(ctx context.Context, id int64) (core.Budget, error)
	CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error)
	UpdateBudget(ctx context.Context, b core.Budget) (core.Budget, error)
	DeactivateBudget(ctx context.Context, id int64) error
	HasActiveBudget(ctx context.Context, categoryID int64, asOf core.Date, excludeID int64) (bool, error)
	SpendingForCategory(ctx context.Context, categoryID int64, rng core.DateRange) (core.Money, int64, error)
}

// ReportStore is the read-only aggregation surface used by ReportService.
type ReportStore interface {
	Totals(ctx context.Context, rng core.DateRange) (core.Totals, error)
	CategoryTotals(ctx context.Context, typ core.TransactionType, rng core.DateRange, limit int) ([]core.CategoryTotal, error)
	BucketTotals(ctx context.Context, rng core.DateRange, bucket storage.Bucket) ([]core.BucketTotal, error)
	ListTransactions(ctx context.Context, f storage.TransactionFilter) ([]core.Transaction, int64, error)
	ListBudgets(ctx context.Context, f storage.BudgetFilter) ([]core.Budget, error)
	SpendingForCategory(ctx context.Context, categoryID int64, rng core.DateRange) (core.Money, int64, error)
}

// EventPublisher announces committed changes. *amqp.Client implements it.
type EventPublisher interface {
	PublishChange(ctx context.Context, ev amqp.Event) error
}

// Invalidator drops derived data after a write. *ReportService implements it.
type Invalidator interface {
	Invalidate()
}
