package sheets

import (
	"context"

	"kas/internal/ledger"
)

// Ports for outbound adapters.
type (
	// SummaryExporter publishes an owner's monthly summary to an external
	// spreadsheet. An export replaces whatever the previous one wrote.
	SummaryExporter interface {
		ExportSummary(ctx context.Context, ownerID string, months []ledger.MonthSummary) error
	}
)
