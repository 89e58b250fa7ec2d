package services

import (
	"context"
	"fmt"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

// CategoryInput is the writable part of a category. PUT replaces all of it.
type CategoryInput struct {
	Name  string               `json:"name"`
	Type  core.TransactionType `json:"type"`
	Color string               `json:"color"`
	Icon  string               `json:"icon"`
}

func (in CategoryInput) category() core.Category {
	c := core.Category{Name: in.Name, Type: in.Type, Color: in.Color, Icon: in.Icon}
	c.Normalize()
	return c
}

type CategoryService struct {
	store  CategoryStore
	notify changeNotifier
}

func NewCategoryService(store CategoryStore, publisher EventPublisher, invalidator Invalidator) *CategoryService {
	return &CategoryService{
		store:  store,
		notify: changeNotifier{publisher: publisher, invalidator: invalidator},
	}
}

// List returns all categories, or only those of typ when it is non-empty.
func (s *CategoryService) List(ctx context.Context, typ core.TransactionType) ([]core.Category, error) {
	if typ != "" && !typ.Valid() {
		return nil, core.Invalid("type", "must be either income or expense")
	}
	return s.store.ListCategories(ctx, typ)
}

func (s *CategoryService) Get(ctx context.Context, id int64) (core.Category, error) {
	return s.store.GetCategory(ctx, id)
}

func (s *CategoryService) Create(ctx context.Context, in CategoryInput) (core.Category, error) {
	c := in.category()
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}

	created, err := s.store.CreateCategory(ctx, c)
	if err != nil {
		return core.Category{}, err
	}

	applog.FromContext(ctx).WithComponent(applog.ComponentCategory).InfoContext(ctx, "Category created",
		applog.FieldCategoryID, created.ID,
		"name", created.Name,
		applog.FieldType, created.Type)
	s.notify.committed(ctx, amqp.EntityCategory, amqp.ActionCreated, created.ID, 1)
	return created, nil
}

// Update replaces a category. Its type cannot change while transactions use
// it, since every transaction must match its category's type.
func (s *CategoryService) Update(ctx context.Context, id int64, in CategoryInput) (core.Category, error) {
	existing, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return core.Category{}, err
	}

	c := in.category()
	c.ID = id
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}

	if c.Type != existing.Type {
		used, err := s.store.CountTransactionsForCategory(ctx, id)
		if err != nil {
			return core.Category{}, err
		}
		if used > 0 {
			return core.Category{}, core.Invalid("type", "cannot change type of a category used by %d transactions", used)
		}
	}

	updated, err := s.store.UpdateCategory(ctx, c)
	if err != nil {
		return core.Category{}, err
	}
	s.notify.committed(ctx, amqp.EntityCategory, amqp.ActionUpdated, id, 1)
	return updated, nil
}

func (s *CategoryService) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}

	applog.FromContext(ctx).WithComponent(applog.ComponentCategory).InfoContext(ctx, "Category deleted",
		applog.FieldCategoryID, id)
	s.notify.committed(ctx, amqp.EntityCategory, amqp.ActionDeleted, id, 0)
	return nil
}
