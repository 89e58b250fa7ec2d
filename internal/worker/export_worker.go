package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/sheets"
	"fintrack/internal/storage"
)

// Store is the part of the repository the export worker reads and updates.
type Store interface {
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	PendingExports(ctx context.Context, limit int) ([]int64, error)
	ExportStateFor(ctx context.Context, id int64) (storage.ExportState, bool, error)
	MarkExported(ctx context.Context, id, version int64, ref string) error
	MarkExportError(ctx context.Context, id, version int64, exportErr error) error
}

var _ Store = (*storage.SQLiteRepository)(nil)

// ExportWorker mirrors transactions to a spreadsheet. Change events trigger
// an immediate export; a periodic sweep picks up anything the events missed.
type ExportWorker struct {
	store     Store
	exporter  sheets.TransactionExporter
	batchSize int
	interval  time.Duration
	logger    *applog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewExportWorker(store Store, exporter sheets.TransactionExporter, batchSize int, interval time.Duration) *ExportWorker {
	if batchSize <= 0 {
		batchSize = 50
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExportWorker{
		store:     store,
		exporter:  exporter,
		batchSize: batchSize,
		interval:  interval,
		logger:    applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentWorker),
	}
}

// WithLogger replaces the worker's logger.
func (w *ExportWorker) WithLogger(l *applog.Logger) *ExportWorker {
	if l != nil {
		w.logger = l.WithComponent(applog.ComponentWorker)
	}
	return w
}

// HandleEvent processes one change event. Only transaction creates and
// updates lead to an export; every other event is acknowledged as is.
// Export failures are recorded and left for the sweep, so they do not
// requeue the delivery.
func (w *ExportWorker) HandleEvent(ctx context.Context, ev *amqp.Event) error {
	if ev == nil || ev.Entity != amqp.EntityTransaction {
		return nil
	}

	switch ev.Action {
	case amqp.ActionCreated, amqp.ActionUpdated:
	case amqp.ActionDeleted:
		w.logger.InfoContext(ctx, "Transaction deleted, spreadsheet row left in place",
			applog.FieldTransactionID, ev.EntityID)
		return nil
	default:
		w.logger.WarnContext(ctx, "Ignoring unknown transaction action",
			"action", ev.Action,
			applog.FieldTransactionID, ev.EntityID)
		return nil
	}

	w.logger.DebugContext(ctx, "Processing change event",
		"event_id", ev.ID,
		applog.FieldTransactionID, ev.EntityID,
		applog.FieldVersion, ev.Version)

	t, err := w.store.GetTransaction(ctx, ev.EntityID)
	if errors.Is(err, core.ErrNotFound) {
		w.logger.InfoContext(ctx, "Transaction no longer exists, skipping export",
			applog.FieldTransactionID, ev.EntityID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction %d: %w", ev.EntityID, err)
	}

	state, ok, err := w.store.ExportStateFor(ctx, t.ID)
	if err != nil {
		return err
	}
	if ok && state.Status == "synced" && state.Version >= t.Version {
		w.logger.DebugContext(ctx, "Transaction already exported",
			applog.FieldTransactionID, t.ID,
			applog.FieldVersion, t.Version)
		return nil
	}

	if err := w.export(ctx, t); err != nil {
		w.logger.ErrorContext(ctx, "Export failed, will retry on next sweep",
			applog.FieldTransactionID, t.ID,
			applog.FieldError, err)
	}
	return nil
}

// ProcessPending exports one batch of transactions whose current version has
// not been exported. It returns how many were exported successfully.
func (w *ExportWorker) ProcessPending(ctx context.Context) (int, error) {
	return w.processPending(ctx, w.batchSize)
}

// StartupSyncCheck exports a larger batch of pending transactions, to
// recover from events missed while the worker was down.
func (w *ExportWorker) StartupSyncCheck(ctx context.Context) error {
	exported, err := w.processPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	w.logger.InfoContext(ctx, "Startup sync completed", "exported", exported)
	return nil
}

func (w *ExportWorker) processPending(ctx context.Context, limit int) (int, error) {
	ids, err := w.store.PendingExports(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("get pending exports: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	w.logger.InfoContext(ctx, "Processing pending exports", "count", len(ids))

	exported, failed := 0, 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return exported, ctx.Err()
		}
		t, err := w.store.GetTransaction(ctx, id)
		if err != nil {
			w.logger.ErrorContext(ctx, "Failed to load transaction for export",
				applog.FieldTransactionID, id,
				applog.FieldError, err)
			failed++
			continue
		}
		if err := w.export(ctx, t); err != nil {
			w.logger.ErrorContext(ctx, "Failed to export transaction",
				applog.FieldTransactionID, id,
				applog.FieldError, err)
			failed++
			continue
		}
		exported++
	}

	if failed > 0 {
		w.logger.WarnContext(ctx, "Some exports failed",
			"total", len(ids),
			"exported", exported,
			"errors", failed)
	}
	return exported, nil
}

// export writes t and records the outcome against its version.
func (w *ExportWorker) export(ctx context.Context, t core.Transaction) error {
	ref, err := w.exporter.Export(ctx, t)
	if err != nil {
		if markErr := w.store.MarkExportError(ctx, t.ID, t.Version, err); markErr != nil {
			w.logger.ErrorContext(ctx, "Failed to record export error",
				applog.FieldTransactionID, t.ID,
				applog.FieldError, markErr)
		}
		return fmt.Errorf("export transaction %d: %w", t.ID, err)
	}

	if err := w.store.MarkExported(ctx, t.ID, t.Version, ref); err != nil {
		// The row was written; the next sweep will export it again.
		w.logger.ErrorContext(ctx, "Failed to mark transaction exported",
			applog.FieldTransactionID, t.ID,
			applog.FieldError, err)
	}

	w.logger.InfoContext(ctx, "Transaction exported",
		applog.FieldTransactionID, t.ID,
		applog.FieldVersion, t.Version,
		applog.FieldExportRef, ref)
	return nil
}

// Start begins the periodic sweep. Returns an error if already running.
func (w *ExportWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("export worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	go w.runLoop(ctx, stopCh, doneCh)

	w.logger.InfoContext(ctx, "Export sweep started",
		"interval", w.interval,
		"batch_size", w.batchSize)
	return nil
}

// Stop ends the sweep and waits for the current batch to finish.
func (w *ExportWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.running = false
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		w.logger.InfoContext(ctx, "Export sweep stopped")
		return nil
	case <-ctx.Done():
		w.logger.WarnContext(ctx, "Export sweep stop timed out")
		return ctx.Err()
	}
}

func (w *ExportWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *ExportWorker) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ProcessPending(ctx); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "Export sweep failed", applog.FieldError, err)
			}
		}
	}
}
