package memory

import (
	"context"
	"errors"
	"sync"

	"kas/internal/ledger"
	ports "kas/internal/sheets"
)

// Exporter keeps the latest exported summary of each owner in memory. It is
// used when no spreadsheet is configured and in tests.
type Exporter struct {
	mu      sync.Mutex
	latest  map[string][]ledger.MonthSummary
	exports int
}

var _ ports.SummaryExporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{latest: make(map[string][]ledger.MonthSummary)}
}

// ExportSummary replaces the stored summary of ownerID.
func (e *Exporter) ExportSummary(_ context.Context, ownerID string, months []ledger.MonthSummary) error {
	if ownerID == "" {
		return errors.New("owner id is required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.latest[ownerID] = append([]ledger.MonthSummary(nil), months...)
	e.exports++
	return nil
}

// Latest returns the last summary exported for ownerID.
func (e *Exporter) Latest(ownerID string) ([]ledger.MonthSummary, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.latest[ownerID]
	return append([]ledger.MonthSummary(nil), m...), ok
}

// Exports returns how many exports have been recorded.
func (e *Exporter) Exports() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exports
}
