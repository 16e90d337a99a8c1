package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"kas/internal/core"
	"kas/internal/log"
)

// RollingMonth is one month of the by-student view.
type RollingMonth struct {
	Period
	Lines []LineItem
}

// RollingView is the by-student rolling view. It marshals to a JSON object
// keyed by month name whose keys keep window order.
type RollingView struct {
	Months []RollingMonth
}

// MarshalJSON writes {"March": [...], "April": [...]} in window order.
func (v RollingView) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range v.Months {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(m.Name())
		if err != nil {
			return nil, err
		}
		lines := m.Lines
		if lines == nil {
			lines = []LineItem{}
		}
		val, err := json.Marshal(lines)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MonthSummary is one entry of the read-only financial summary.
type MonthSummary struct {
	MonthIndex     int                `json:"monthIndex"`
	Year           int                `json:"year"`
	Name           string             `json:"name"`
	Transactions   []core.Transaction `json:"transactions"`
	TotalIncome    decimal.Decimal    `json:"totalIncome"`
	TotalExpense   decimal.Decimal    `json:"totalExpense"`
	ClosingBalance decimal.Decimal    `json:"closingBalance"`
}

// Service assembles the ledger views of an owner.
type Service struct {
	transactions TransactionStore
	reconciler   *Reconciler
	location     *time.Location
	logger       *log.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLocker serialises reconciliation passes per owner.
func WithLocker(l Locker) Option {
	return func(s *Service) {
		s.reconciler.locker = l
	}
}

// WithLocation sets the zone in which "the current month" is decided.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l.WithComponent(log.ComponentLedger)
			s.reconciler.logger = s.logger
		}
	}
}

// NewService builds a Service in UTC with no locker unless opts say otherwise.
func NewService(transactions TransactionStore, students StudentRegistry, opts ...Option) *Service {
	s := &Service{
		transactions: transactions,
		reconciler:   NewReconciler(transactions, students, nil, nil),
		location:     time.UTC,
		logger:       log.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Window returns the rolling window for now in the service's location.
func (s *Service) Window(now time.Time) Window {
	return BuildWindow(now.In(s.location))
}

// Reconcile materialises the missing monthly lines of ownerID for the window
// starting at now.
func (s *Service) Reconcile(ctx context.Context, ownerID string, now time.Time) (Result, error) {
	return s.reconciler.Reconcile(ctx, ownerID, s.Window(now))
}

// RollingByStudent reconciles and returns one line per student per month.
func (s *Service) RollingByStudent(ctx context.Context, ownerID string, now time.Time) (RollingView, error) {
	res, err := s.Reconcile(ctx, ownerID, now)
	if err != nil {
		return RollingView{}, err
	}
	return ViewOf(res), nil
}

// ViewOf projects a reconciliation result onto the by-student view.
func ViewOf(res Result) RollingView {
	view := RollingView{Months: make([]RollingMonth, len(res.Buckets))}
	for i, b := range res.Buckets {
		view.Months[i] = RollingMonth{Period: b.Period, Lines: b.Lines}
	}
	return view
}

// MonthlySummary returns totals and raw transactions for each month of the
// window. It never writes.
func (s *Service) MonthlySummary(ctx context.Context, ownerID string, now time.Time) ([]MonthSummary, error) {
	if ownerID == "" {
		return nil, core.ErrUnauthenticated
	}
	w := s.Window(now)
	from, to := w.Range()
	txs, err := s.transactions.FindTransactions(ctx, ownerID, from, to)
	if err != nil {
		s.logger.ErrorContext(ctx, "Summary read failed", log.FieldOwnerID, ownerID, log.FieldError, err)
		return nil, core.Storage("find transactions", err)
	}
	byMonth := make([][]core.Transaction, len(w))
	for i := range byMonth {
		byMonth[i] = make([]core.Transaction, 0)
	}
	for _, tx := range txs {
		if i := w.Index(tx.OccurredOn); i >= 0 {
			byMonth[i] = append(byMonth[i], tx)
		}
	}

	out := make([]MonthSummary, len(w))
	for i, p := range w {
		t := Aggregate(byMonth[i], p)
		out[i] = MonthSummary{
			MonthIndex:     p.Month,
			Year:           p.Year,
			Name:           p.Name(),
			Transactions:   byMonth[i],
			TotalIncome:    t.TotalIncome,
			TotalExpense:   t.TotalExpense,
			ClosingBalance: t.ClosingBalance,
		}
	}
	return out, nil
}
