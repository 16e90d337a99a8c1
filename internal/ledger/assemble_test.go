package ledger_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"kas/internal/core"
	"kas/internal/ledger"
	"kas/internal/storage/memory"
)

func TestMonthlySummaryCountsUnmatchedTransactions(t *testing.T) {
	store := memory.New()
	seedStudents(t, store, "u1", "Ayu")
	ctx := context.Background()
	for _, tx := range []core.Transaction{
		{OwnerID: "u1", StudentName: "Stranger", Amount: decimal.NewFromInt(100), OccurredOn: core.NewDate(2025, 3, 5), Kind: core.Income},
		{OwnerID: "u1", StudentName: "Rent", Amount: decimal.NewFromInt(40), OccurredOn: core.NewDate(2025, 3, 20), Kind: core.Expense},
	} {
		if _, err := store.CreateTransaction(ctx, tx); err != nil {
			t.Fatal(err)
		}
	}
	svc := ledger.NewService(store, store)

	summary, err := svc.MonthlySummary(ctx, "u1", march2025)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(summary) != 12 {
		t.Fatalf("expected 12 months, got %d", len(summary))
	}
	m := summary[0]
	if m.MonthIndex != 3 || m.Year != 2025 || len(m.Transactions) != 2 {
		t.Fatalf("unexpected March entry %+v", m)
	}
	if m.TotalIncome.String() != "100" || m.TotalExpense.String() != "40" || m.ClosingBalance.String() != "60" {
		t.Fatalf("unexpected totals %s/%s/%s", m.TotalIncome, m.TotalExpense, m.ClosingBalance)
	}
	if n := len(allTransactions(t, store, "u1")); n != 2 {
		t.Fatalf("summary must not write, store holds %d rows", n)
	}

	view, err := svc.RollingByStudent(ctx, "u1", march2025)
	if err != nil {
		t.Fatalf("rolling view: %v", err)
	}
	for _, line := range view.Months[0].Lines {
		if line.StudentName == "Stranger" || line.StudentName == "Rent" {
			t.Fatalf("unmatched transaction leaked into by-student view: %+v", line)
		}
	}
	if len(view.Months[0].Lines) != 1 {
		t.Fatalf("expected one line in March, got %d", len(view.Months[0].Lines))
	}
}

func TestOwnerIsolation(t *testing.T) {
	store := memory.New()
	seedStudents(t, store, "alice", "Ayu", "Budi")
	seedStudents(t, store, "bob", "Ayu")
	ctx := context.Background()
	bobTx, err := store.CreateTransaction(ctx, core.Transaction{
		OwnerID: "bob", StudentName: "Ayu", Amount: decimal.NewFromInt(9), OccurredOn: core.NewDate(2025, 3, 1), Kind: core.Income,
	})
	if err != nil {
		t.Fatal(err)
	}
	svc := ledger.NewService(store, store)

	view, err := svc.RollingByStudent(ctx, "alice", march2025)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range view.Months {
		for _, line := range m.Lines {
			if line.TransactionID == bobTx.ID {
				t.Fatalf("alice's view returned bob's transaction")
			}
		}
	}
	bobRows := allTransactions(t, store, "bob")
	if len(bobRows) != 1 || bobRows[0].ID != bobTx.ID {
		t.Fatalf("reconciling alice touched bob's rows: %+v", bobRows)
	}
	for _, tx := range allTransactions(t, store, "alice") {
		if tx.OwnerID != "alice" {
			t.Fatalf("foreign row under alice: %+v", tx)
		}
	}
}

func TestRollingViewJSONKeepsWindowOrder(t *testing.T) {
	store := memory.New()
	seedStudents(t, store, "u1", "Ayu")
	view, err := ledger.NewService(store, store).RollingByStudent(context.Background(), "u1", time.Date(2024, time.November, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(view)
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	if !strings.HasPrefix(s, `{"November":[`) {
		t.Fatalf("view should start with November: %s", s[:40])
	}
	if strings.Index(s, `"December"`) > strings.Index(s, `"January"`) {
		t.Fatal("December must come before January")
	}
	var decoded map[string][]map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("view is not a JSON object: %v", err)
	}
	if len(decoded) != 12 {
		t.Fatalf("expected 12 month keys, got %d", len(decoded))
	}
	line := decoded["November"][0]
	for _, key := range []string{"studentName", "transactionId", "amount", "date", "note", "settled", "kind", "phoneNumber"} {
		if _, ok := line[key]; !ok {
			t.Fatalf("line item missing %q: %v", key, line)
		}
	}
}

func TestServiceUsesConfiguredLocation(t *testing.T) {
	store := memory.New()
	jakarta := time.FixedZone("WIB", 7*3600)
	svc := ledger.NewService(store, store, ledger.WithLocation(jakarta))

	// 20:00 UTC on Jan 31 is already February in UTC+7.
	w := svc.Window(time.Date(2025, time.January, 31, 20, 0, 0, 0, time.UTC))
	if w[0] != (ledger.Period{Year: 2025, Month: 2}) {
		t.Fatalf("expected February, got %v", w[0])
	}
}

type unreadableStore struct {
	*memory.Store
	err error
}

func (s unreadableStore) FindTransactions(context.Context, string, core.Date, core.Date) ([]core.Transaction, error) {
	return nil, core.Storage("find transactions", s.err)
}

func TestReadFailureFailsTheWholeView(t *testing.T) {
	mem := memory.New()
	seedStudents(t, mem, "u1", "Ayu")
	if _, err := mem.CreateTransaction(context.Background(), core.Transaction{
		OwnerID: "u1", StudentName: "Ayu", Amount: decimal.NewFromInt(100), OccurredOn: core.NewDate(2025, 3, 5), Kind: core.Income,
	}); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("disk on fire")
	svc := ledger.NewService(unreadableStore{Store: mem, err: boom}, mem)

	summary, err := svc.MonthlySummary(context.Background(), "u1", march2025)
	if !errors.Is(err, boom) || summary != nil {
		t.Errorf("summary = %v, %v; want nil and the read error", summary, err)
	}
	view, err := svc.RollingByStudent(context.Background(), "u1", march2025)
	if !errors.Is(err, boom) || len(view.Months) != 0 {
		t.Errorf("rolling view = %d months, %v; want none and the read error", len(view.Months), err)
	}
	if n := len(allTransactions(t, mem, "u1")); n != 1 {
		t.Errorf("failed read wrote placeholders, store holds %d rows", n)
	}
}
