package storage

import (
	"context"
	"database/sql"
	"fmt"

	"fintrack/internal/core"
)

const categoryColumns = `id, name, type, color, icon, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(row rowScanner) (core.Category, error) {
	var (
		c         core.Category
		typ       string
		createdAt string
	)
	if err := row.Scan(&c.ID, &c.Name, &typ, &c.Color, &c.Icon, &createdAt); err != nil {
		return core.Category{}, err
	}
	c.Type = core.TransactionType(typ)
	c.CreatedAt = parseTimestamp(createdAt)
	return c, nil
}

// ListCategories returns categories ordered by name, optionally of one type.
func (r *SQLiteRepository) ListCategories(ctx context.Context, typ core.TransactionType) ([]core.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories`
	var args []any
	if typ != "" {
		query += ` WHERE type = ?`
		args = append(args, string(typ))
	}
	query += ` ORDER BY name COLLATE NOCASE ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := make([]core.Category, 0)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)
	c, err := scanCategory(row)
	if err != nil {
		return core.Category{}, notFound(err, "category", id)
	}
	return c, nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	now := r.timestamp()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (name, type, color, icon, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.Name, string(c.Type), c.Color, c.Icon, now)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Category{}, fmt.Errorf("category %q already exists: %w", c.Name, core.ErrConflict)
		}
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Category{}, fmt.Errorf("category id: %w", err)
	}
	c.ID = id
	c.CreatedAt = parseTimestamp(now)
	return c, nil
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, type = ?, color = ?, icon = ? WHERE id = ?`,
		c.Name, string(c.Type), c.Color, c.Icon, c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Category{}, fmt.Errorf("category %q already exists: %w", c.Name, core.ErrConflict)
		}
		return core.Category{}, fmt.Errorf("update category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Category{}, fmt.Errorf("category %d: %w", c.ID, core.ErrNotFound)
	}
	return r.GetCategory(ctx, c.ID)
}

// DeleteCategory removes a category that no transaction references.
// Budgets on the category go with it.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete category: %w", err)
	}
	defer tx.Rollback()

	var used int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE category_id = ?`, id).Scan(&used); err != nil {
		return fmt.Errorf("count category usage: %w", err)
	}
	if used > 0 {
		return fmt.Errorf("category %d has %d transactions: %w", id, used, core.ErrCategoryInUse)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	return tx.Commit()
}

// CountTransactionsForCategory returns how many transactions use a category.
func (r *SQLiteRepository) CountTransactionsForCategory(ctx context.Context, id int64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE category_id = ?`, id).Scan(&n)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("count category usage: %w", err)
	}
	return n, nil
}
