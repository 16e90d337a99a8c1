package memory

import (
	"context"
	"testing"

	"kas/internal/ledger"
)

func TestExporter_KeepsLatestPerOwner(t *testing.T) {
	e := New()
	ctx := context.Background()

	first := []ledger.MonthSummary{{MonthIndex: 3, Year: 2025}}
	second := []ledger.MonthSummary{{MonthIndex: 4, Year: 2025}, {MonthIndex: 5, Year: 2025}}

	if err := e.ExportSummary(ctx, "owner-1", first); err != nil {
		t.Fatalf("export: %v", err)
	}
	if err := e.ExportSummary(ctx, "owner-1", second); err != nil {
		t.Fatalf("export: %v", err)
	}
	if err := e.ExportSummary(ctx, "owner-2", first); err != nil {
		t.Fatalf("export: %v", err)
	}

	got, ok := e.Latest("owner-1")
	if !ok || len(got) != 2 || got[0].MonthIndex != 4 {
		t.Errorf("Latest(owner-1) = %v, %v", got, ok)
	}
	if _, ok := e.Latest("owner-3"); ok {
		t.Error("unknown owner reported an export")
	}
	if e.Exports() != 3 {
		t.Errorf("Exports() = %d, want 3", e.Exports())
	}
}

func TestExporter_RequiresOwner(t *testing.T) {
	if err := New().ExportSummary(context.Background(), "", nil); err == nil {
		t.Fatal("expected error for empty owner")
	}
}
