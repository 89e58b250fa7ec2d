package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ExportState is the bookkeeping row for one exported transaction.
type ExportState struct {
	TransactionID int64
	Version       int64
	Ref           string
	Status        string
	Error         string
	Attempts      int64
}

// ExportStats summarizes export bookkeeping across all transactions.
type ExportStats struct {
	Synced  int64
	Errored int64
	Pending int64
}

// pendingExportCond matches transactions whose current version has not been
// exported successfully.
const pendingExportCond = `(e.transaction_id IS NULL OR e.status = 'error' OR e.version < t.version)`

// pendingExportOrder puts never-exported transactions first, then changed
// versions, then failed exports with the fewest attempts. A failing row
// moves behind the others after each attempt, so it cannot starve them.
const pendingExportOrder = `
	ORDER BY
		CASE
			WHEN e.transaction_id IS NULL THEN 0
			WHEN e.status = 'synced' THEN 1
			ELSE 2
		END,
		COALESCE(e.attempts, 0) ASC,
		COALESCE(e.updated_at, '') ASC,
		t.id ASC`

// PendingExports returns up to limit transactions that still need exporting.
func (r *SQLiteRepository) PendingExports(ctx context.Context, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id FROM transactions t
		LEFT JOIN transaction_exports e ON e.transaction_id = t.id
		WHERE `+pendingExportCond+pendingExportOrder+`
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("pending exports: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending export: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkExported records a successful export of the given version.
func (r *SQLiteRepository) MarkExported(ctx context.Context, id, version int64, ref string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transaction_exports (transaction_id, version, ref, status, error, attempts, updated_at)
		VALUES (?, ?, ?, 'synced', '', 1, ?)
		ON CONFLICT(transaction_id) DO UPDATE SET
			version = excluded.version,
			ref = excluded.ref,
			status = 'synced',
			error = '',
			attempts = transaction_exports.attempts + 1,
			updated_at = excluded.updated_at`,
		id, version, ref, r.timestamp())
	if err != nil {
		return fmt.Errorf("mark transaction %d exported: %w", id, err)
	}
	return nil
}

// MarkExportError records a failed export attempt. A previously stored ref is
// kept so a later retry can update the same row. Attempts restart at 1 when
// the failing version is newer than the recorded one.
func (r *SQLiteRepository) MarkExportError(ctx context.Context, id, version int64, exportErr error) error {
	msg := ""
	if exportErr != nil {
		msg = exportErr.Error()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transaction_exports (transaction_id, version, ref, status, error, attempts, updated_at)
		VALUES (?, ?, '', 'error', ?, 1, ?)
		ON CONFLICT(transaction_id) DO UPDATE SET
			version = excluded.version,
			status = 'error',
			error = excluded.error,
			attempts = CASE
				WHEN transaction_exports.version < excluded.version THEN 1
				ELSE transaction_exports.attempts + 1
			END,
			updated_at = excluded.updated_at`,
		id, version, msg, r.timestamp())
	if err != nil {
		return fmt.Errorf("mark transaction %d export error: %w", id, err)
	}
	return nil
}

// ExportStateFor returns the bookkeeping row for a transaction, or ok=false
// when it was never exported.
func (r *SQLiteRepository) ExportStateFor(ctx context.Context, id int64) (ExportState, bool, error) {
	var s ExportState
	err := r.db.QueryRowContext(ctx, `
		SELECT transaction_id, version, ref, status, error, attempts
		FROM transaction_exports WHERE transaction_id = ?`, id).
		Scan(&s.TransactionID, &s.Version, &s.Ref, &s.Status, &s.Error, &s.Attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return ExportState{}, false, nil
	}
	if err != nil {
		return ExportState{}, false, fmt.Errorf("export state %d: %w", id, err)
	}
	return s, true, nil
}

func (r *SQLiteRepository) ExportStats(ctx context.Context) (ExportStats, error) {
	var s ExportStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN e.status = 'synced' AND e.version >= t.version THEN 1 END),
			COUNT(CASE WHEN e.status = 'error' THEN 1 END),
			COUNT(CASE WHEN `+pendingExportCond+` THEN 1 END)
		FROM transactions t
		LEFT JOIN transaction_exports e ON e.transaction_id = t.id`).
		Scan(&s.Synced, &s.Errored, &s.Pending)
	if err != nil {
		return ExportStats{}, fmt.Errorf("export stats: %w", err)
	}
	return s, nil
}
