package storage

import (
	"context"
	"database/sql"
	"fmt"

	"fintrack/internal/core"
)

// Bucket selects how BucketTotals groups transactions by date.
type Bucket string

const (
	BucketDay     Bucket = "day"
	BucketWeek    Bucket = "week"
	BucketMonth   Bucket = "month"
	BucketYear    Bucket = "year"
	BucketWeekday Bucket = "weekday"
)

var bucketExpr = map[Bucket]string{
	BucketDay:     "date",
	BucketWeek:    "strftime('%Y-%W', date)",
	BucketMonth:   "strftime('%Y-%m', date)",
	BucketYear:    "strftime('%Y', date)",
	BucketWeekday: "strftime('%w', date)",
}

// Valid reports whether b is a known bucket.
func (b Bucket) Valid() bool {
	_, ok := bucketExpr[b]
	return ok
}

// Totals sums income and expenses over rng.
func (r *SQLiteRepository) Totals(ctx context.Context, rng core.DateRange) (core.Totals, error) {
	conds, args := rangeClause("date", rng)
	var t core.Totals
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN type = 'income' THEN amount_cents END), 0),
			COALESCE(SUM(CASE WHEN type = 'expense' THEN amount_cents END), 0),
			COUNT(CASE WHEN type = 'income' THEN 1 END),
			COUNT(CASE WHEN type = 'expense' THEN 1 END)
		FROM transactions`+where(conds), args...).
		Scan(&t.Income.Cents, &t.Expenses.Cents, &t.IncomeCount, &t.ExpenseCount)
	if err != nil {
		return core.Totals{}, fmt.Errorf("totals: %w", err)
	}
	return t.WithNet(), nil
}

// CategoryTotals groups transactions of one type by category, largest total
// first. Transactions without a category form a single group with a nil ID.
// limit <= 0 returns every group.
func (r *SQLiteRepository) CategoryTotals(ctx context.Context, typ core.TransactionType, rng core.DateRange, limit int) ([]core.CategoryTotal, error) {
	conds, args := rangeClause("t.date", rng)
	conds = append(conds, "t.type = ?")
	args = append(args, string(typ))

	query := `
		SELECT t.category_id,
		       COALESCE(c.name, ''), COALESCE(c.color, ''), COALESCE(c.icon, ''),
		       SUM(t.amount_cents), COUNT(t.id),
		       CAST(ROUND(AVG(t.amount_cents)) AS INTEGER),
		       MAX(t.amount_cents), MIN(t.amount_cents)
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id` + where(conds) + `
		GROUP BY t.category_id
		ORDER BY SUM(t.amount_cents) DESC, c.name ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("category totals: %w", err)
	}
	defer rows.Close()

	out := make([]core.CategoryTotal, 0)
	for rows.Next() {
		var (
			ct core.CategoryTotal
			id sql.NullInt64
		)
		if err := rows.Scan(&id, &ct.Name, &ct.Color, &ct.Icon,
			&ct.Total.Cents, &ct.Count, &ct.Average.Cents, &ct.Max.Cents, &ct.Min.Cents); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		if id.Valid {
			v := id.Int64
			ct.CategoryID = &v
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}

// BucketTotals groups income and expenses by the given date bucket, in
// ascending bucket order. Buckets without transactions are omitted.
func (r *SQLiteRepository) BucketTotals(ctx context.Context, rng core.DateRange, bucket Bucket) ([]core.BucketTotal, error) {
	expr, ok := bucketExpr[bucket]
	if !ok {
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
	conds, args := rangeClause("date", rng)

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+expr+` AS bucket,
			COALESCE(SUM(CASE WHEN type = 'income' THEN amount_cents END), 0),
			COALESCE(SUM(CASE WHEN type = 'expense' THEN amount_cents END), 0),
			COUNT(CASE WHEN type = 'income' THEN 1 END),
			COUNT(CASE WHEN type = 'expense' THEN 1 END)
		FROM transactions`+where(conds)+`
		GROUP BY bucket
		ORDER BY bucket ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("bucket totals: %w", err)
	}
	defer rows.Close()

	out := make([]core.BucketTotal, 0)
	for rows.Next() {
		var b core.BucketTotal
		if err := rows.Scan(&b.Bucket, &b.Income.Cents, &b.Expenses.Cents, &b.IncomeCount, &b.ExpenseCount); err != nil {
			return nil, fmt.Errorf("scan bucket total: %w", err)
		}
		b.Net = core.Money{Cents: b.Income.Cents - b.Expenses.Cents}
		out = append(out, b)
	}
	return out, rows.Err()
}

// SpendingForCategory sums the expenses booked on a category within rng.
func (r *SQLiteRepository) SpendingForCategory(ctx context.Context, categoryID int64, rng core.DateRange) (core.Money, int64, error) {
	conds, args := rangeClause("date", rng)
	conds = append(conds, "type = 'expense'", "category_id = ?")
	args = append(args, categoryID)

	var (
		total core.Money
		count int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0), COUNT(*) FROM transactions`+where(conds), args...).
		Scan(&total.Cents, &count)
	if err != nil {
		return core.Money{}, 0, fmt.Errorf("spending for category %d: %w", categoryID, err)
	}
	return total, count, nil
}
