package storage

import (
	"context"
	"database/sql"
	"fmt"

	"fintrack/internal/core"
)

// BudgetFilter narrows ListBudgets. A non-empty Overlap keeps budgets whose
// [start, end] intersects it.
type BudgetFilter struct {
	ActiveOnly bool
	CategoryID *int64
	Overlap    core.DateRange
}

const budgetSelect = `
SELECT b.id, b.category_id, b.amount_cents, b.period, b.start_date, b.end_date, b.is_active, b.created_at,
       c.name, c.type, c.color, c.icon
FROM budgets b
JOIN categories c ON c.id = b.category_id`

func scanBudget(row rowScanner) (core.Budget, error) {
	var (
		b         core.Budget
		period    string
		start     string
		end       sql.NullString
		active    int64
		createdAt string
		ref       core.CategoryRef
		catType   string
	)
	err := row.Scan(&b.ID, &b.CategoryID, &b.Amount.Cents, &period, &start, &end, &active, &createdAt,
		&ref.Name, &catType, &ref.Color, &ref.Icon)
	if err != nil {
		return core.Budget{}, err
	}
	b.Period = core.BudgetPeriod(period)
	b.StartDate = parseDateColumn(start)
	if end.Valid && end.String != "" {
		d := parseDateColumn(end.String)
		b.EndDate = &d
	}
	b.IsActive = active != 0
	b.CreatedAt = parseTimestamp(createdAt)
	ref.ID = b.CategoryID
	ref.Type = core.TransactionType(catType)
	b.Category = &ref
	return b, nil
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context, f BudgetFilter) ([]core.Budget, error) {
	var (
		conds []string
		args  []any
	)
	if f.ActiveOnly {
		conds = append(conds, "b.is_active = 1")
	}
	if f.CategoryID != nil {
		conds = append(conds, "b.category_id = ?")
		args = append(args, *f.CategoryID)
	}
	if f.Overlap.End != nil {
		conds = append(conds, "b.start_date <= ?")
		args = append(args, f.Overlap.End.String())
	}
	if f.Overlap.Start != nil {
		conds = append(conds, "(b.end_date IS NULL OR b.end_date >= ?)")
		args = append(args, f.Overlap.Start.String())
	}

	rows, err := r.db.QueryContext(ctx, budgetSelect+where(conds)+` ORDER BY c.name COLLATE NOCASE ASC, b.id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	out := make([]core.Budget, 0)
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetBudget(ctx context.Context, id int64) (core.Budget, error) {
	b, err := scanBudget(r.db.QueryRowContext(ctx, budgetSelect+` WHERE b.id = ?`, id))
	if err != nil {
		return core.Budget{}, notFound(err, "budget", id)
	}
	return b, nil
}

func (r *SQLiteRepository) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO budgets (category_id, amount_cents, period, start_date, end_date, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)`,
		b.CategoryID, b.Amount.Cents, string(b.Period), b.StartDate.String(), nullableDate(b.EndDate), r.timestamp())
	if err != nil {
		if isForeignKeyViolation(err) {
			return core.Budget{}, fmt.Errorf("category %d: %w", b.CategoryID, core.ErrNotFound)
		}
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Budget{}, fmt.Errorf("budget id: %w", err)
	}
	return r.GetBudget(ctx, id)
}

func (r *SQLiteRepository) UpdateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	active := 0
	if b.IsActive {
		active = 1
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE budgets SET amount_cents = ?, period = ?, start_date = ?, end_date = ?, is_active = ?
		WHERE id = ?`,
		b.Amount.Cents, string(b.Period), b.StartDate.String(), nullableDate(b.EndDate), active, b.ID)
	if err != nil {
		return core.Budget{}, fmt.Errorf("update budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Budget{}, fmt.Errorf("budget %d: %w", b.ID, core.ErrNotFound)
	}
	return r.GetBudget(ctx, b.ID)
}

// DeactivateBudget is the soft delete used by the API.
func (r *SQLiteRepository) DeactivateBudget(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE budgets SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("budget %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// HasActiveBudget reports whether the category has an active budget that has
// not ended before asOf. excludeID skips one budget (used by updates).
func (r *SQLiteRepository) HasActiveBudget(ctx context.Context, categoryID int64, asOf core.Date, excludeID int64) (bool, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM budgets
		WHERE category_id = ? AND is_active = 1 AND id != ?
		  AND (end_date IS NULL OR end_date >= ?)`,
		categoryID, excludeID, asOf.String()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check active budget: %w", err)
	}
	return n > 0, nil
}
