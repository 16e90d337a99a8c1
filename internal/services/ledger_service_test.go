package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"kas/internal/amqp"
	"kas/internal/cache"
	"kas/internal/core"
	"kas/internal/ledger"
	"kas/internal/storage/memory"
)

var march2025 = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*amqp.LedgerChangedMessage
	err  error
}

func (p *recordingPublisher) PublishLedgerChanged(_ context.Context, msg *amqp.LedgerChangedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

func (p *recordingPublisher) reasons() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.msgs))
	for i, m := range p.msgs {
		out[i] = m.Reason
	}
	return out
}

type fixture struct {
	store     *memory.Store
	svc       *LedgerService
	publisher *recordingPublisher
	summaries *cache.SummaryCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	pub := &recordingPublisher{}
	summaries := cache.NewSummaryCache(10, time.Minute)
	svc := NewLedgerService(ledger.NewService(store, store), store, store, LedgerServiceConfig{
		Summaries:   summaries,
		Revisions:   store,
		Publisher:   pub,
		PhoneRegion: "US",
		Now:         func() time.Time { return march2025 },
	})
	return &fixture{store: store, svc: svc, publisher: pub, summaries: summaries}
}

func TestLedgerService_CreateStudentNormalizesPhone(t *testing.T) {
	f := newFixture(t)

	st, err := f.svc.CreateStudent(context.Background(), "u1", core.Student{Name: "  Ayu ", PhoneNumber: "(650) 253-0000"})
	if err != nil {
		t.Fatalf("create student: %v", err)
	}
	if st.Name != "Ayu" || st.PhoneNumber != "+16502530000" || st.OwnerID != "u1" {
		t.Errorf("unexpected student %+v", st)
	}

	_, err = f.svc.CreateStudent(context.Background(), "u1", core.Student{Name: "Budi", PhoneNumber: "not a phone"})
	if !errors.Is(err, core.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if got := f.publisher.reasons(); len(got) != 1 || got[0] != amqp.ReasonStudentWritten {
		t.Errorf("events = %v", got)
	}
}

func TestLedgerService_RequiresOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.RollingByStudent(ctx, ""); !errors.Is(err, core.ErrUnauthenticated) {
		t.Errorf("RollingByStudent: %v", err)
	}
	if _, err := f.svc.MonthlySummary(ctx, ""); !errors.Is(err, core.ErrUnauthenticated) {
		t.Errorf("MonthlySummary: %v", err)
	}
	if _, err := f.svc.CreateTransaction(ctx, "", core.Transaction{}); !errors.Is(err, core.ErrUnauthenticated) {
		t.Errorf("CreateTransaction: %v", err)
	}
	if _, err := f.svc.ListStudents(ctx, ""); !errors.Is(err, core.ErrUnauthenticated) {
		t.Errorf("ListStudents: %v", err)
	}
}

func TestLedgerService_ReconcilePublishesPerMonth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.CreateStudent(ctx, "u1", core.Student{Name: "Ayu"}); err != nil {
		t.Fatal(err)
	}
	f.publisher.msgs = nil

	view, err := f.svc.RollingByStudent(ctx, "u1")
	if err != nil {
		t.Fatalf("rolling: %v", err)
	}
	if len(view.Months) != 12 {
		t.Fatalf("expected 12 months, got %d", len(view.Months))
	}
	if n := len(f.publisher.msgs); n != 12 {
		t.Fatalf("expected one event per month, got %d", n)
	}
	for _, m := range f.publisher.msgs {
		if m.Reason != amqp.ReasonReconciled || m.OwnerID != "u1" {
			t.Errorf("unexpected event %+v", m)
		}
	}

	f.publisher.msgs = nil
	if _, err := f.svc.Reconcile(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if len(f.publisher.msgs) != 0 {
		t.Errorf("idempotent pass published %d events", len(f.publisher.msgs))
	}
}

func TestLedgerService_SummaryCacheInvalidatedByWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st, err := f.svc.CreateStudent(ctx, "u1", core.Student{Name: "Ayu"})
	if err != nil {
		t.Fatal(err)
	}

	first, err := f.svc.MonthlySummary(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !first[0].TotalIncome.IsZero() {
		t.Fatalf("expected empty month, got %s", first[0].TotalIncome)
	}
	if f.summaries.Size() != 1 {
		t.Fatalf("summary not cached")
	}

	_, err = f.svc.CreateTransaction(ctx, "u1", core.Transaction{
		StudentID:  st.ID,
		Amount:     decimal.RequireFromString("100"),
		OccurredOn: core.NewDate(2025, 3, 5),
		Kind:       core.Income,
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if f.summaries.Size() != 0 {
		t.Fatal("write did not invalidate the cached summary")
	}

	second, err := f.svc.MonthlySummary(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !second[0].TotalIncome.Equal(decimal.RequireFromString("100")) {
		t.Errorf("expected fresh totals, got %s", second[0].TotalIncome)
	}
}

func TestLedgerService_SummaryCacheSeesWritesFromAnotherInstance(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	newInstance := func() *LedgerService {
		return NewLedgerService(ledger.NewService(store, store), store, store, LedgerServiceConfig{
			Summaries: cache.NewSummaryCache(10, time.Minute),
			Revisions: store,
			Now:       func() time.Time { return march2025 },
		})
	}
	reader, writer := newInstance(), newInstance()

	before, err := reader.MonthlySummary(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !before[0].TotalIncome.IsZero() {
		t.Fatalf("expected empty month, got %s", before[0].TotalIncome)
	}

	_, err = writer.CreateTransaction(ctx, "u1", core.Transaction{
		StudentName: "Ayu",
		Amount:      decimal.RequireFromString("100"),
		OccurredOn:  core.NewDate(2025, 3, 5),
		Kind:        core.Income,
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	after, err := reader.MonthlySummary(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !after[0].TotalIncome.Equal(decimal.RequireFromString("100")) {
		t.Errorf("reader served income %s, store holds 100", after[0].TotalIncome)
	}
}

func TestLedgerService_SummaryNotCachedWithoutRevisions(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	summaries := cache.NewSummaryCache(10, time.Minute)
	svc := NewLedgerService(ledger.NewService(store, store), store, store, LedgerServiceConfig{
		Summaries: summaries,
		Now:       func() time.Time { return march2025 },
	})

	if _, err := svc.MonthlySummary(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if summaries.Size() != 0 {
		t.Errorf("summary cached without a revision source")
	}
}

func TestLedgerService_CreateTransactionResolvesStudent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st, err := f.svc.CreateStudent(ctx, "u1", core.Student{Name: "Ayu"})
	if err != nil {
		t.Fatal(err)
	}
	other, err := f.svc.CreateStudent(ctx, "u2", core.Student{Name: "Zed"})
	if err != nil {
		t.Fatal(err)
	}

	tx, err := f.svc.CreateTransaction(ctx, "u1", core.Transaction{
		ID:          "ignored",
		OwnerID:     "u2",
		StudentID:   st.ID,
		StudentName: "whatever",
		Amount:      decimal.RequireFromString("25"),
		OccurredOn:  core.NewDate(2025, 3, 1),
		Kind:        core.Income,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tx.OwnerID != "u1" || tx.StudentName != "Ayu" || tx.ID == "ignored" {
		t.Errorf("unexpected transaction %+v", tx)
	}

	_, err = f.svc.CreateTransaction(ctx, "u1", core.Transaction{
		StudentID:  other.ID,
		Amount:     decimal.RequireFromString("25"),
		OccurredOn: core.NewDate(2025, 3, 1),
		Kind:       core.Income,
	})
	var verr *core.ValidationError
	if !errors.As(err, &verr) || verr.Fields["studentId"] == "" {
		t.Errorf("another owner's student must be rejected, got %v", err)
	}
}

func TestLedgerService_UpdateAndDeleteTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tx, err := f.svc.CreateTransaction(ctx, "u1", core.Transaction{
		StudentName: "Legacy",
		Amount:      decimal.RequireFromString("10"),
		OccurredOn:  core.NewDate(2025, 2, 1),
		Kind:        core.Expense,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.publisher.msgs = nil

	tx.OccurredOn = core.NewDate(2025, 3, 1)
	updated, err := f.svc.UpdateTransaction(ctx, "u1", tx.ID, tx)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.OccurredOn.Equal(core.NewDate(2025, 3, 1).Time) {
		t.Errorf("date not updated: %v", updated.OccurredOn)
	}
	if n := len(f.publisher.msgs); n != 2 {
		t.Errorf("moving a transaction across months should publish twice, got %d", n)
	}

	if _, err := f.svc.UpdateTransaction(ctx, "u2", tx.ID, tx); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("another owner updated the transaction: %v", err)
	}
	if err := f.svc.DeleteTransaction(ctx, "u2", tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("another owner deleted the transaction: %v", err)
	}
	if err := f.svc.DeleteTransaction(ctx, "u1", tx.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.GetTransaction(ctx, "u1", tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected not found after delete, got %v", err)
	}
}

func TestLedgerService_PublishFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")

	if _, err := f.svc.CreateStudent(context.Background(), "u1", core.Student{Name: "Ayu"}); err != nil {
		t.Fatalf("write failed because of the publisher: %v", err)
	}
}

func TestLedgerService_NoPublisher(t *testing.T) {
	store := memory.New()
	svc := NewLedgerService(ledger.NewService(store, store), store, store, LedgerServiceConfig{})

	if _, err := svc.CreateStudent(context.Background(), "u1", core.Student{Name: "Ayu"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.MonthlySummary(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
}
