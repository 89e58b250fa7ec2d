package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"fintrack/internal/core"
)

// TransactionFilter narrows ListTransactions. Zero values mean "any".
type TransactionFilter struct {
	Type       core.TransactionType
	CategoryID *int64
	Range      core.DateRange
	Limit      int
	Offset     int
}

const transactionSelect = `
SELECT t.id, t.description, t.amount_cents, t.type, t.category_id, t.date, t.notes,
       t.version, t.created_at, t.updated_at,
       c.name, c.type, c.color, c.icon
FROM transactions t
LEFT JOIN categories c ON c.id = t.category_id`

const transactionOrder = ` ORDER BY t.date DESC, t.created_at DESC, t.id DESC`

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t          core.Transaction
		typ, date  string
		categoryID sql.NullInt64
		createdAt  string
		updatedAt  string
		catName    sql.NullString
		catType    sql.NullString
		catColor   sql.NullString
		catIcon    sql.NullString
	)
	err := row.Scan(&t.ID, &t.Description, &t.Amount.Cents, &typ, &categoryID, &date, &t.Notes,
		&t.Version, &createdAt, &updatedAt,
		&catName, &catType, &catColor, &catIcon)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.TransactionType(typ)
	t.Date = parseDateColumn(date)
	t.CreatedAt = parseTimestamp(createdAt)
	t.UpdatedAt = parseTimestamp(updatedAt)
	if categoryID.Valid {
		id := categoryID.Int64
		t.CategoryID = &id
		if catName.Valid {
			t.Category = &core.CategoryRef{
				ID:    id,
				Name:  catName.String,
				Type:  core.TransactionType(catType.String),
				Color: catColor.String,
				Icon:  catIcon.String,
			}
		}
	}
	return t, nil
}

func (f TransactionFilter) conditions() ([]string, []any) {
	conds, args := rangeClause("t.date", f.Range)
	if f.Type != "" {
		conds = append(conds, "t.type = ?")
		args = append(args, string(f.Type))
	}
	if f.CategoryID != nil {
		conds = append(conds, "t.category_id = ?")
		args = append(args, *f.CategoryID)
	}
	return conds, args
}

// ListTransactions returns one page of transactions, newest first, plus the
// total number of matches ignoring Limit and Offset.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, int64, error) {
	conds, args := f.conditions()
	clause := where(conds)

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions t`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	query := transactionSelect + clause + transactionOrder
	pageArgs := append([]any{}, args...)
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		pageArgs = append(pageArgs, f.Limit, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, total, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, transactionSelect+` WHERE t.id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, notFound(err, "transaction", id)
	}
	return t, nil
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	now := r.timestamp()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (description, amount_cents, type, category_id, date, notes, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		t.Description, t.Amount.Cents, string(t.Type), nullableInt(t.CategoryID), t.Date.String(), t.Notes, now, now)
	if err != nil {
		if isForeignKeyViolation(err) {
			return core.Transaction{}, core.Invalid("category_id", "category does not exist")
		}
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction id: %w", err)
	}

	slog.DebugContext(ctx, "Transaction inserted",
		"id", id,
		"type", t.Type,
		"amount_cents", t.Amount.Cents,
		"date", t.Date.String())

	return r.GetTransaction(ctx, id)
}

// UpdateTransaction replaces every editable field and bumps the version.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET description = ?, amount_cents = ?, type = ?, category_id = ?, date = ?, notes = ?,
		    version = version + 1, updated_at = ?
		WHERE id = ?`,
		t.Description, t.Amount.Cents, string(t.Type), nullableInt(t.CategoryID), t.Date.String(), t.Notes,
		r.timestamp(), t.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return core.Transaction{}, core.Invalid("category_id", "category does not exist")
		}
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", t.ID, core.ErrNotFound)
	}
	return r.GetTransaction(ctx, t.ID)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	return nil
}
