package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"kas/internal/core"
	"kas/internal/ledger"
	"kas/internal/log"

	_ "modernc.org/sqlite"
)

// Fixed width so that text ordering equals time ordering.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *log.Logger
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time keeps read-your-writes trivial inside a pass.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  logger.WithComponent(log.ComponentStorage),
		now:     time.Now,
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.queries.Ping(ctx); err != nil {
		return core.Storage("ping", err)
	}
	return nil
}

func (r *SQLiteRepository) stamp() string {
	return r.now().UTC().Format(timestampLayout)
}

// ListStudents implements ledger.StudentRegistry
func (r *SQLiteRepository) ListStudents(ctx context.Context, ownerID string) ([]core.Student, error) {
	rows, err := r.queries.ListStudents(ctx, ownerID)
	if err != nil {
		return nil, core.Storage("list students", err)
	}
	out := make([]core.Student, len(rows))
	for i, row := range rows {
		out[i] = studentFromRow(row)
	}
	return out, nil
}

func (r *SQLiteRepository) GetStudent(ctx context.Context, ownerID, id string) (core.Student, error) {
	row, err := r.queries.GetStudent(ctx, ownerID, id)
	if err != nil {
		return core.Student{}, notFound("get student", err)
	}
	return studentFromRow(row), nil
}

func (r *SQLiteRepository) CreateStudent(ctx context.Context, s core.Student) (core.Student, error) {
	if err := s.Validate(); err != nil {
		return core.Student{}, err
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	row := studentToRow(s)
	row.CreatedAt = r.stamp()
	row.UpdatedAt = row.CreatedAt
	if err := r.queries.CreateStudent(ctx, row); err != nil {
		return core.Student{}, core.Storage("create student", err)
	}
	r.logger.DebugContext(ctx, "Student created", log.FieldOwnerID, s.OwnerID, log.FieldStudent, s.Name)
	return studentFromRow(row), nil
}

func (r *SQLiteRepository) UpdateStudent(ctx context.Context, s core.Student) (core.Student, error) {
	if err := s.Validate(); err != nil {
		return core.Student{}, err
	}
	row := studentToRow(s)
	row.UpdatedAt = r.stamp()
	n, err := r.queries.UpdateStudent(ctx, row)
	if err != nil {
		return core.Student{}, core.Storage("update student", err)
	}
	if n == 0 {
		return core.Student{}, core.ErrNotFound
	}
	return r.GetStudent(ctx, s.OwnerID, s.ID)
}

func (r *SQLiteRepository) DeleteStudent(ctx context.Context, ownerID, id string) error {
	n, err := r.queries.DeleteStudent(ctx, ownerID, id)
	if err != nil {
		return core.Storage("delete student", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ListOwners returns every owner with at least one student.
func (r *SQLiteRepository) ListOwners(ctx context.Context) ([]string, error) {
	owners, err := r.queries.ListOwners(ctx)
	if err != nil {
		return nil, core.Storage("list owners", err)
	}
	return owners, nil
}

// Revision implements ledger.RevisionSource. Triggers keep the counter, so
// writes from other processes on the same database file move it too.
func (r *SQLiteRepository) Revision(ctx context.Context, ownerID string) (int64, error) {
	rev, err := r.queries.GetRevision(ctx, ownerID)
	if err != nil {
		return 0, core.Storage("read revision", err)
	}
	return rev, nil
}

// FindTransactions implements ledger.TransactionStore
func (r *SQLiteRepository) FindTransactions(ctx context.Context, ownerID string, from, to core.Date) ([]core.Transaction, error) {
	rows, err := r.queries.FindTransactions(ctx, ownerID, from.String(), to.String())
	if err != nil {
		return nil, core.Storage("find transactions", err)
	}
	return transactionsFromRows(rows)
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactions(ctx, ownerID)
	if err != nil {
		return nil, core.Storage("list transactions", err)
	}
	return transactionsFromRows(rows)
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, ownerID, id string) (core.Transaction, error) {
	row, err := r.queries.GetTransaction(ctx, ownerID, id)
	if err != nil {
		return core.Transaction{}, notFound("get transaction", err)
	}
	return transactionFromRow(row)
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	row := r.newTransactionRow(tx)
	if err := r.queries.CreateTransaction(ctx, row); err != nil {
		return core.Transaction{}, core.Storage("create transaction", err)
	}
	return transactionFromRow(row)
}

// InsertIfAbsent implements ledger.TransactionStore with a single
// INSERT ... SELECT ... WHERE NOT EXISTS statement.
func (r *SQLiteRepository) InsertIfAbsent(ctx context.Context, tx core.Transaction, slot ledger.Slot) (core.Transaction, bool, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, false, err
	}
	row := r.newTransactionRow(tx)
	params := SlotParams{
		OwnerID:     slot.OwnerID,
		From:        slot.Period.Start().String(),
		To:          slot.Period.End().String(),
		StudentID:   slot.StudentID,
		StudentName: slot.StudentName,
	}
	n, err := r.queries.InsertTransactionIfAbsent(ctx, row, params)
	if err != nil {
		return core.Transaction{}, false, core.Storage("insert placeholder", err)
	}
	if n == 1 {
		r.logger.DebugContext(ctx, "Placeholder inserted",
			log.FieldOwnerID, slot.OwnerID,
			log.FieldStudent, slot.StudentName,
			log.FieldPeriod, slot.Period.String())
		stored, err := transactionFromRow(row)
		return stored, true, err
	}
	holder, err := r.queries.GetSlotHolder(ctx, params)
	if err != nil {
		return core.Transaction{}, false, core.Storage("read slot holder", err)
	}
	stored, err := transactionFromRow(holder)
	return stored, false, err
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	row := transactionToRow(tx)
	row.UpdatedAt = r.stamp()
	n, err := r.queries.UpdateTransaction(ctx, row)
	if err != nil {
		return core.Transaction{}, core.Storage("update transaction", err)
	}
	if n == 0 {
		return core.Transaction{}, core.ErrNotFound
	}
	return r.GetTransaction(ctx, tx.OwnerID, tx.ID)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, ownerID, id string) error {
	n, err := r.queries.DeleteTransaction(ctx, ownerID, id)
	if err != nil {
		return core.Storage("delete transaction", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) newTransactionRow(tx core.Transaction) Transaction {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	row := transactionToRow(tx)
	row.CreatedAt = r.stamp()
	row.UpdatedAt = row.CreatedAt
	return row
}

func notFound(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	return core.Storage(op, err)
}

func studentToRow(s core.Student) Student {
	return Student{
		ID:          s.ID,
		OwnerID:     s.OwnerID,
		Name:        s.Name,
		PhoneNumber: s.PhoneNumber,
	}
}

func studentFromRow(row Student) core.Student {
	return core.Student{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		Name:        row.Name,
		PhoneNumber: row.PhoneNumber,
		CreatedAt:   parseStamp(row.CreatedAt),
		UpdatedAt:   parseStamp(row.UpdatedAt),
	}
}

func transactionToRow(tx core.Transaction) Transaction {
	return Transaction{
		ID:          tx.ID,
		OwnerID:     tx.OwnerID,
		StudentID:   tx.StudentID,
		StudentName: tx.StudentName,
		Amount:      tx.Amount.String(),
		OccurredOn:  tx.OccurredOn.String(),
		Note:        tx.Note,
		Settled:     tx.Settled,
		Kind:        string(tx.Kind),
	}
}

func transactionFromRow(row Transaction) (core.Transaction, error) {
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return core.Transaction{}, core.Storage("decode amount", fmt.Errorf("transaction %s: %w", row.ID, err))
	}
	date, err := core.ParseDate(row.OccurredOn)
	if err != nil {
		return core.Transaction{}, core.Storage("decode date", fmt.Errorf("transaction %s: %w", row.ID, err))
	}
	return core.Transaction{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		StudentID:   row.StudentID,
		StudentName: row.StudentName,
		Amount:      amount,
		OccurredOn:  date,
		Note:        row.Note,
		Settled:     row.Settled,
		Kind:        core.Kind(row.Kind),
		CreatedAt:   parseStamp(row.CreatedAt),
		UpdatedAt:   parseStamp(row.UpdatedAt),
	}, nil
}

func transactionsFromRows(rows []Transaction) ([]core.Transaction, error) {
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		tx, err := transactionFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

func parseStamp(s string) time.Time {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

var (
	_ ledger.TransactionStore = (*SQLiteRepository)(nil)
	_ ledger.StudentRegistry  = (*SQLiteRepository)(nil)
	_ ledger.RevisionSource   = (*SQLiteRepository)(nil)
)
