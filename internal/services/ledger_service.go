package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kas/internal/amqp"
	"kas/internal/cache"
	"kas/internal/core"
	"kas/internal/ledger"
	"kas/internal/log"
)

// Publisher sends ledger change events. A nil Publisher disables events.
type Publisher interface {
	PublishLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error
}

// LedgerService orchestrates ledger reads and owner-scoped CRUD across the
// store, the summary cache and AMQP.
type LedgerService struct {
	ledger       *ledger.Service
	transactions ledger.TransactionStore
	students     ledger.StudentRegistry
	summaries    *cache.SummaryCache
	revisions    ledger.RevisionSource
	publisher    Publisher
	phoneRegion  string
	now          func() time.Time
	logger       *log.Logger
}

// LedgerServiceConfig wires the optional collaborators of a LedgerService.
// Summaries are only cached when Revisions is set too.
type LedgerServiceConfig struct {
	Summaries   *cache.SummaryCache
	Revisions   ledger.RevisionSource
	Publisher   Publisher
	PhoneRegion string
	Now         func() time.Time
	Logger      *log.Logger
}

func NewLedgerService(svc *ledger.Service, transactions ledger.TransactionStore, students ledger.StudentRegistry, cfg LedgerServiceConfig) *LedgerService {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &LedgerService{
		ledger:       svc,
		transactions: transactions,
		students:     students,
		summaries:    cfg.Summaries,
		revisions:    cfg.Revisions,
		publisher:    cfg.Publisher,
		phoneRegion:  cfg.PhoneRegion,
		now:          now,
		logger:       logger.WithComponent(log.ComponentLedger),
	}
}

// RollingByStudent reconciles ownerID's window and returns the by-student view.
func (s *LedgerService) RollingByStudent(ctx context.Context, ownerID string) (ledger.RollingView, error) {
	res, err := s.Reconcile(ctx, ownerID)
	if err != nil {
		return ledger.RollingView{}, err
	}
	return ledger.ViewOf(res), nil
}

// Reconcile materialises missing lines for ownerID's current window. When
// anything was created the owner's cached summaries are dropped and one
// event per touched month is published.
func (s *LedgerService) Reconcile(ctx context.Context, ownerID string) (ledger.Result, error) {
	res, err := s.ledger.Reconcile(ctx, ownerID, s.now())
	if err != nil {
		return res, err
	}
	if len(res.Created) == 0 {
		return res, nil
	}
	s.invalidate(ctx, ownerID)

	seen := make(map[ledger.Period]bool)
	for _, tx := range res.Created {
		p := ledger.PeriodOf(tx.OccurredOn)
		if seen[p] {
			continue
		}
		seen[p] = true
		s.publish(ctx, ownerID, p, amqp.ReasonReconciled)
	}
	return res, nil
}

// MonthlySummary returns the read-only summary. A cached copy is served only
// while the store still reports the revision it was computed at, so writes
// from other processes are never hidden.
func (s *LedgerService) MonthlySummary(ctx context.Context, ownerID string) ([]ledger.MonthSummary, error) {
	now := s.now()
	if s.summaries == nil || s.revisions == nil || ownerID == "" {
		return s.ledger.MonthlySummary(ctx, ownerID, now)
	}

	w := s.ledger.Window(now)
	rev, err := s.revisions.Revision(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if months, ok := s.summaries.Get(ownerID, w, rev); ok {
		s.logger.DebugContext(ctx, "Summary served from cache", log.FieldOwnerID, ownerID, "revision", rev)
		return months, nil
	}
	months, err := s.ledger.MonthlySummary(ctx, ownerID, now)
	if err != nil {
		return nil, err
	}
	// Stamped with the revision read before loading: a write racing the load
	// leaves an entry that the next read already treats as stale.
	s.summaries.Set(ownerID, w, rev, months)
	return months, nil
}

// CreateTransaction stores a transaction for ownerID. A StudentID must name
// one of the owner's students and fills in the student name.
func (s *LedgerService) CreateTransaction(ctx context.Context, ownerID string, tx core.Transaction) (core.Transaction, error) {
	if ownerID == "" {
		return core.Transaction{}, core.ErrUnauthenticated
	}
	tx.ID = ""
	tx.OwnerID = ownerID
	if err := s.resolveStudent(ctx, &tx); err != nil {
		return core.Transaction{}, err
	}
	created, err := s.transactions.CreateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	s.transactionWritten(ctx, ownerID, created.OccurredOn)
	return created, nil
}

func (s *LedgerService) GetTransaction(ctx context.Context, ownerID, id string) (core.Transaction, error) {
	if ownerID == "" {
		return core.Transaction{}, core.ErrUnauthenticated
	}
	return s.transactions.GetTransaction(ctx, ownerID, id)
}

func (s *LedgerService) ListTransactions(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	if ownerID == "" {
		return nil, core.ErrUnauthenticated
	}
	return s.transactions.ListTransactions(ctx, ownerID)
}

// UpdateTransaction replaces the editable fields of an existing transaction.
// Events are published for both the old and the new month when they differ.
func (s *LedgerService) UpdateTransaction(ctx context.Context, ownerID, id string, tx core.Transaction) (core.Transaction, error) {
	if ownerID == "" {
		return core.Transaction{}, core.ErrUnauthenticated
	}
	existing, err := s.transactions.GetTransaction(ctx, ownerID, id)
	if err != nil {
		return core.Transaction{}, err
	}
	tx.ID = existing.ID
	tx.OwnerID = ownerID
	if err := s.resolveStudent(ctx, &tx); err != nil {
		return core.Transaction{}, err
	}
	updated, err := s.transactions.UpdateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	s.transactionWritten(ctx, ownerID, updated.OccurredOn)
	if ledger.PeriodOf(existing.OccurredOn) != ledger.PeriodOf(updated.OccurredOn) {
		s.publish(ctx, ownerID, ledger.PeriodOf(existing.OccurredOn), amqp.ReasonTransactionWritten)
	}
	return updated, nil
}

func (s *LedgerService) DeleteTransaction(ctx context.Context, ownerID, id string) error {
	if ownerID == "" {
		return core.ErrUnauthenticated
	}
	existing, err := s.transactions.GetTransaction(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.transactions.DeleteTransaction(ctx, ownerID, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.transactionWritten(ctx, ownerID, existing.OccurredOn)
	return nil
}

// CreateStudent registers a student for ownerID with the phone number in
// E.164 form.
func (s *LedgerService) CreateStudent(ctx context.Context, ownerID string, st core.Student) (core.Student, error) {
	if ownerID == "" {
		return core.Student{}, core.ErrUnauthenticated
	}
	st.ID = ""
	st.OwnerID = ownerID
	if err := s.normalizeStudent(&st); err != nil {
		return core.Student{}, err
	}
	created, err := s.students.CreateStudent(ctx, st)
	if err != nil {
		return core.Student{}, fmt.Errorf("create student: %w", err)
	}
	s.studentWritten(ctx, ownerID)
	return created, nil
}

func (s *LedgerService) GetStudent(ctx context.Context, ownerID, id string) (core.Student, error) {
	if ownerID == "" {
		return core.Student{}, core.ErrUnauthenticated
	}
	return s.students.GetStudent(ctx, ownerID, id)
}

func (s *LedgerService) ListStudents(ctx context.Context, ownerID string) ([]core.Student, error) {
	if ownerID == "" {
		return nil, core.ErrUnauthenticated
	}
	return s.students.ListStudents(ctx, ownerID)
}

func (s *LedgerService) UpdateStudent(ctx context.Context, ownerID, id string, st core.Student) (core.Student, error) {
	if ownerID == "" {
		return core.Student{}, core.ErrUnauthenticated
	}
	st.ID = id
	st.OwnerID = ownerID
	if err := s.normalizeStudent(&st); err != nil {
		return core.Student{}, err
	}
	updated, err := s.students.UpdateStudent(ctx, st)
	if err != nil {
		return core.Student{}, fmt.Errorf("update student: %w", err)
	}
	s.studentWritten(ctx, ownerID)
	return updated, nil
}

// DeleteStudent removes the student. Their transactions stay in the ledger.
func (s *LedgerService) DeleteStudent(ctx context.Context, ownerID, id string) error {
	if ownerID == "" {
		return core.ErrUnauthenticated
	}
	if err := s.students.DeleteStudent(ctx, ownerID, id); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	s.studentWritten(ctx, ownerID)
	return nil
}

func (s *LedgerService) normalizeStudent(st *core.Student) error {
	st.Name = strings.TrimSpace(st.Name)
	phone, err := core.NormalizePhone(st.PhoneNumber, s.phoneRegion)
	if err != nil {
		return err
	}
	st.PhoneNumber = phone
	return nil
}

func (s *LedgerService) resolveStudent(ctx context.Context, tx *core.Transaction) error {
	tx.StudentName = strings.TrimSpace(tx.StudentName)
	if tx.StudentID == "" {
		return nil
	}
	st, err := s.students.GetStudent(ctx, tx.OwnerID, tx.StudentID)
	if errors.Is(err, core.ErrNotFound) {
		return &core.ValidationError{Fields: map[string]string{"studentId": "exists"}}
	}
	if err != nil {
		return err
	}
	tx.StudentName = st.Name
	return nil
}

func (s *LedgerService) transactionWritten(ctx context.Context, ownerID string, on core.Date) {
	s.invalidate(ctx, ownerID)
	s.publish(ctx, ownerID, ledger.PeriodOf(on), amqp.ReasonTransactionWritten)
}

func (s *LedgerService) studentWritten(ctx context.Context, ownerID string) {
	s.invalidate(ctx, ownerID)
	s.publish(ctx, ownerID, ledger.PeriodOf(core.DateOf(s.now())), amqp.ReasonStudentWritten)
}

func (s *LedgerService) invalidate(ctx context.Context, ownerID string) {
	if s.summaries == nil {
		return
	}
	if n := s.summaries.Invalidate(ownerID); n > 0 {
		s.logger.DebugContext(ctx, "Summary cache invalidated", log.FieldOwnerID, ownerID, "entries", n)
	}
}

// publish never fails the caller; the write already succeeded locally.
func (s *LedgerService) publish(ctx context.Context, ownerID string, p ledger.Period, reason string) {
	if s.publisher == nil {
		return
	}
	msg := amqp.NewLedgerChangedMessage(ownerID, p.Year, p.Month, reason)
	if err := s.publisher.PublishLedgerChanged(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish ledger event",
			log.FieldOwnerID, ownerID,
			log.FieldPeriod, p.String(),
			log.FieldReason, reason,
			log.FieldError, err)
	}
}
