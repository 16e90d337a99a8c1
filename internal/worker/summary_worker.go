package worker

import (
	"context"
	"fmt"
	"time"

	"kas/internal/amqp"
	"kas/internal/ledger"
	"kas/internal/log"
	"kas/internal/sheets"
)

// SummarySource computes an owner's monthly summary for the window starting
// at now. *ledger.Service satisfies it.
type SummarySource interface {
	MonthlySummary(ctx context.Context, ownerID string, now time.Time) ([]ledger.MonthSummary, error)
}

// OwnerLister enumerates owners for the startup export.
type OwnerLister interface {
	ListOwners(ctx context.Context) ([]string, error)
}

// SummaryWorker exports owners' monthly summaries to a spreadsheet whenever
// their ledger changes.
type SummaryWorker struct {
	source   SummarySource
	exporter sheets.SummaryExporter
	owners   OwnerLister
	now      func() time.Time
	logger   *log.Logger
	events   *log.StructuredLogger
}

func NewSummaryWorker(source SummarySource, exporter sheets.SummaryExporter, owners OwnerLister, logger *log.Logger) *SummaryWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &SummaryWorker{
		source:   source,
		exporter: exporter,
		owners:   owners,
		now:      time.Now,
		logger:   logger.WithComponent(log.ComponentWorker),
		events:   log.NewStructuredLogger(logger),
	}
}

// HandleLedgerChanged processes a single ledger event from AMQP. Events for
// months outside the current window still trigger an export, since the
// summary is always rewritten whole.
func (w *SummaryWorker) HandleLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	w.logger.InfoContext(ctx, "Processing ledger event",
		log.FieldOwnerID, msg.OwnerID,
		log.FieldYear, msg.Year,
		log.FieldMonth, msg.Month,
		log.FieldReason, msg.Reason)

	if err := w.export(ctx, msg.OwnerID); err != nil {
		w.events.LogError(ctx, "Summary export failed", err, log.ComponentWorker, log.OpSync,
			log.NewFields().WithOwner(msg.OwnerID).WithPeriod(msg.Year, msg.Month))
		return fmt.Errorf("export summary: %w", err)
	}
	return nil
}

// StartupSyncCheck exports every owner once so the spreadsheet catches up
// with events missed while the worker was down.
func (w *SummaryWorker) StartupSyncCheck(ctx context.Context) error {
	if w.owners == nil {
		return nil
	}
	owners, err := w.owners.ListOwners(ctx)
	if err != nil {
		return fmt.Errorf("list owners for startup export: %w", err)
	}
	if len(owners) == 0 {
		w.logger.InfoContext(ctx, "No owners found on startup")
		return nil
	}

	successCount := 0
	errorCount := 0
	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.export(ctx, owner); err != nil {
			w.logger.ErrorContext(ctx, "Failed to export summary during startup",
				log.FieldOwnerID, owner, log.FieldError, err)
			errorCount++
			continue
		}
		successCount++
	}

	w.logger.InfoContext(ctx, "Startup export completed",
		"total", len(owners),
		"exported", successCount,
		"errors", errorCount)
	return nil
}

func (w *SummaryWorker) export(ctx context.Context, ownerID string) error {
	months, err := w.source.MonthlySummary(ctx, ownerID, w.now())
	if err != nil {
		return fmt.Errorf("read summary: %w", err)
	}
	if err := w.exporter.ExportSummary(ctx, ownerID, months); err != nil {
		return err
	}
	w.logger.InfoContext(ctx, "Successfully exported summary",
		log.FieldOwnerID, ownerID,
		"months", len(months))
	return nil
}
