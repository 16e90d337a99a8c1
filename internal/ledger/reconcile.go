package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"kas/internal/core"
	"kas/internal/log"
)

// LineItem is a transaction projected into a month of the by-student view.
type LineItem struct {
	StudentID     string          `json:"studentId"`
	StudentName   string          `json:"studentName"`
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	Date          core.Date       `json:"date"`
	Note          string          `json:"note"`
	Settled       bool            `json:"settled"`
	Kind          core.Kind       `json:"kind"`
	PhoneNumber   string          `json:"phoneNumber"`
}

// MonthBucket is one month of a reconciled window.
type MonthBucket struct {
	Period
	Lines []LineItem `json:"lines"`
	Totals
}

// Result is the outcome of a reconciliation pass.
type Result struct {
	OwnerID string
	Window  Window
	Buckets []MonthBucket
	// Created lists the placeholders this pass inserted.
	Created []core.Transaction
}

// Placeholder builds the zero income transaction that fills an empty slot.
func Placeholder(s core.Student, p Period) core.Transaction {
	return core.Transaction{
		OwnerID:     s.OwnerID,
		StudentID:   s.ID,
		StudentName: s.Name,
		Amount:      decimal.Zero,
		OccurredOn:  p.End(),
		Note:        "",
		Settled:     false,
		Kind:        core.Income,
	}
}

// Reconciler guarantees every student of an owner has exactly one
// transaction in every month of a window.
type Reconciler struct {
	transactions TransactionStore
	students     StudentRegistry
	locker       Locker
	logger       *log.Logger
}

// NewReconciler creates a reconciler. locker may be nil; the store's
// InsertIfAbsent alone keeps concurrent passes from duplicating a slot.
func NewReconciler(transactions TransactionStore, students StudentRegistry, locker Locker, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.Discard()
	}
	return &Reconciler{
		transactions: transactions,
		students:     students,
		locker:       locker,
		logger:       logger.WithComponent(log.ComponentLedger),
	}
}

// Reconcile walks the window in order and, for each student in registry
// order, inserts a placeholder where the month has no line for them. The
// first store error aborts the pass; placeholders already written stay and
// a retry will not duplicate them.
func (r *Reconciler) Reconcile(ctx context.Context, ownerID string, w Window) (Result, error) {
	if ownerID == "" {
		return Result{}, core.ErrUnauthenticated
	}
	if r.locker != nil {
		unlock, err := r.locker.Lock(ctx, "ledger:"+ownerID)
		if err != nil {
			return Result{}, fmt.Errorf("lock owner %s: %w", ownerID, err)
		}
		defer unlock()
	}

	students, txs, err := load(ctx, r.students, r.transactions, ownerID, w)
	if err != nil {
		return Result{}, err
	}

	res := Result{OwnerID: ownerID, Window: w, Buckets: make([]MonthBucket, 0, len(w))}
	for _, p := range w {
		month := InPeriod(txs, p)
		matches := Match(students, month, p)
		bucket := MonthBucket{Period: p, Lines: make([]LineItem, 0, len(students))}

		for _, s := range students {
			tx, ok := matches[s.ID]
			if !ok {
				stored, created, err := r.transactions.InsertIfAbsent(ctx, Placeholder(s, p), SlotFor(s, p))
				if err != nil {
					r.logger.ErrorContext(ctx, "Placeholder insert failed",
						log.FieldOwnerID, ownerID,
						log.FieldStudent, s.Name,
						log.FieldPeriod, p.String(),
						log.FieldError, err)
					return res, core.Storage("insert placeholder", err)
				}
				if created {
					res.Created = append(res.Created, stored)
				}
				month = append(month, stored)
				tx = stored
			}
			bucket.Lines = append(bucket.Lines, lineFor(tx, s))
		}

		bucket.Totals = Aggregate(month, p)
		res.Buckets = append(res.Buckets, bucket)
	}

	r.logger.DebugContext(ctx, "Reconciliation pass finished",
		log.FieldOwnerID, ownerID,
		log.FieldCreated, len(res.Created))
	return res, nil
}

func lineFor(tx core.Transaction, s core.Student) LineItem {
	return LineItem{
		StudentID:     s.ID,
		StudentName:   s.Name,
		TransactionID: tx.ID,
		Amount:        tx.Amount,
		Date:          tx.OccurredOn,
		Note:          tx.Note,
		Settled:       tx.Settled,
		Kind:          tx.Kind,
		PhoneNumber:   s.PhoneNumber,
	}
}

// load reads students and the window's transactions concurrently.
func load(ctx context.Context, reg StudentRegistry, store TransactionStore, ownerID string, w Window) ([]core.Student, []core.Transaction, error) {
	var (
		students []core.Student
		txs      []core.Transaction
	)
	from, to := w.Range()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		students, err = reg.ListStudents(gctx, ownerID)
		return core.Storage("list students", err)
	})
	g.Go(func() error {
		var err error
		txs, err = store.FindTransactions(gctx, ownerID, from, to)
		return core.Storage("find transactions", err)
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return students, txs, nil
}
