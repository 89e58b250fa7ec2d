package backend

import (
	"context"

	"fintrack/internal/sheets"
)

// CleanupFunc releases resources held by an exporter.
type CleanupFunc func() error

// BackendResult contains the exporter and an optional cleanup function.
// Exporter is nil for NoneBackend.
type BackendResult struct {
	Exporter sheets.TransactionExporter
	Cleanup  CleanupFunc
}

// Factory creates export backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Google Sheets specific
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

// BackendType is the kind of spreadsheet mirror transactions are exported to.
type BackendType string

const (
	NoneBackend   BackendType = "none"
	MemoryBackend BackendType = "memory"
	SheetsBackend BackendType = "sheets"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case NoneBackend, MemoryBackend, SheetsBackend:
		return true
	default:
		return false
	}
}
