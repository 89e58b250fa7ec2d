package sheets

import (
	"context"

	"fintrack/internal/core"
)

// TransactionExporter mirrors a transaction to an external spreadsheet.
// Exporting the same transaction again updates its existing row; the
// returned ref identifies that row.
type TransactionExporter interface {
	Export(ctx context.Context, t core.Transaction) (ref string, err error)
}
