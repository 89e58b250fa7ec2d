package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/storage"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// TransactionInput is the body of POST and PUT. A nil CategoryID leaves the
// transaction uncategorised.
type TransactionInput struct {
	Description string               `json:"description"`
	Amount      core.Money           `json:"amount"`
	Type        core.TransactionType `json:"type"`
	CategoryID  *int64               `json:"category_id"`
	Date        core.Date            `json:"date"`
	Notes       string               `json:"notes"`
}

func (in TransactionInput) transaction() core.Transaction {
	t := core.Transaction{
		Description: in.Description,
		Amount:      in.Amount,
		Type:        in.Type,
		CategoryID:  in.CategoryID,
		Date:        in.Date,
		Notes:       in.Notes,
	}
	t.Normalize()
	return t
}

// TransactionPage is one page of the transaction list.
type TransactionPage struct {
	Transactions []core.Transaction `json:"transactions"`
	Total        int64              `json:"total"`
	Limit        int                `json:"limit"`
	Offset       int                `json:"offset"`
	TotalPages   int                `json:"total_pages"`
}

type TransactionService struct {
	store  TransactionStore
	notify changeNotifier
}

func NewTransactionService(store TransactionStore, publisher EventPublisher, invalidator Invalidator) *TransactionService {
	return &TransactionService{
		store:  store,
		notify: changeNotifier{publisher: publisher, invalidator: invalidator},
	}
}

// List clamps the page size to [1, MaxPageSize], defaulting to DefaultPageSize.
func (s *TransactionService) List(ctx context.Context, f storage.TransactionFilter) (TransactionPage, error) {
	if f.Type != "" && !f.Type.Valid() {
		return TransactionPage{}, core.Invalid("type", "must be either income or expense")
	}
	if f.Range.Start != nil && f.Range.End != nil && f.Range.End.Before(f.Range.Start.Time) {
		return TransactionPage{}, core.Invalid("end_date", "must not be before start_date")
	}
	if f.Offset < 0 {
		return TransactionPage{}, core.Invalid("offset", "must not be negative")
	}
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultPageSize
	case f.Limit > MaxPageSize:
		f.Limit = MaxPageSize
	}

	items, total, err := s.store.ListTransactions(ctx, f)
	if err != nil {
		return TransactionPage{}, err
	}
	return TransactionPage{
		Transactions: items,
		Total:        total,
		Limit:        f.Limit,
		Offset:       f.Offset,
		TotalPages:   int(math.Ceil(float64(total) / float64(f.Limit))),
	}, nil
}

func (s *TransactionService) Get(ctx context.Context, id int64) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

func (s *TransactionService) Create(ctx context.Context, in TransactionInput) (core.Transaction, error) {
	t := in.transaction()
	if err := s.validate(ctx, t); err != nil {
		return core.Transaction{}, err
	}

	created, err := s.store.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, err
	}

	applog.NewStructuredLogger(applog.FromContext(ctx)).LogTransactionSaved(ctx, applog.OpCreate,
		created.ID, string(created.Type), created.Amount.Cents, created.Date.String())
	s.notify.committed(ctx, amqp.EntityTransaction, amqp.ActionCreated, created.ID, created.Version)
	return created, nil
}

// Update replaces every editable field of the transaction.
func (s *TransactionService) Update(ctx context.Context, id int64, in TransactionInput) (core.Transaction, error) {
	if _, err := s.store.GetTransaction(ctx, id); err != nil {
		return core.Transaction{}, err
	}

	t := in.transaction()
	t.ID = id
	if err := s.validate(ctx, t); err != nil {
		return core.Transaction{}, err
	}

	updated, err := s.store.UpdateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, err
	}

	applog.FromContext(ctx).WithComponent(applog.ComponentTransaction).InfoContext(ctx, "Transaction updated",
		applog.FieldTransactionID, updated.ID,
		applog.FieldVersion, updated.Version)
	s.notify.committed(ctx, amqp.EntityTransaction, amqp.ActionUpdated, updated.ID, updated.Version)
	return updated, nil
}

func (s *TransactionService) Delete(ctx context.Context, id int64) error {
	existing, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return err
	}

	applog.FromContext(ctx).WithComponent(applog.ComponentTransaction).InfoContext(ctx, "Transaction deleted",
		applog.FieldTransactionID, id)
	s.notify.committed(ctx, amqp.EntityTransaction, amqp.ActionDeleted, id, existing.Version)
	return nil
}

// validate runs the field checks and then the category checks: the category
// must exist and share the transaction's type.
func (s *TransactionService) validate(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.CategoryID == nil {
		return nil
	}

	cat, err := s.store.GetCategory(ctx, *t.CategoryID)
	if errors.Is(err, core.ErrNotFound) {
		return core.Invalid("category_id", "category %d does not exist", *t.CategoryID)
	}
	if err != nil {
		return fmt.Errorf("load category: %w", err)
	}
	if cat.Type != t.Type {
		return core.Invalid("category_id", "category %q is for %s, not %s", cat.Name, cat.Type, t.Type)
	}
	return nil
}
