package storage

import (
	"context"
	"database/sql"
)

const studentColumns = `id, owner_id, name, phone_number, created_at, updated_at`

const transactionColumns = `id, owner_id, student_id, student_name, amount, occurred_on, note, settled, kind, created_at, updated_at`

func scanStudent(row interface{ Scan(...interface{}) error }) (Student, error) {
	var s Student
	err := row.Scan(&s.ID, &s.OwnerID, &s.Name, &s.PhoneNumber, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func scanTransaction(row interface{ Scan(...interface{}) error }) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.OwnerID, &t.StudentID, &t.StudentName, &t.Amount,
		&t.OccurredOn, &t.Note, &t.Settled, &t.Kind, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

const listStudents = `SELECT ` + studentColumns + `
FROM students
WHERE owner_id = ?
ORDER BY created_at, rowid`

func (q *Queries) ListStudents(ctx context.Context, ownerID string) ([]Student, error) {
	rows, err := q.db.QueryContext(ctx, listStudents, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Student{}
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

const getStudent = `SELECT ` + studentColumns + `
FROM students
WHERE owner_id = ? AND id = ?`

func (q *Queries) GetStudent(ctx context.Context, ownerID, id string) (Student, error) {
	return scanStudent(q.db.QueryRowContext(ctx, getStudent, ownerID, id))
}

const createStudent = `INSERT INTO students (` + studentColumns + `)
VALUES (?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateStudent(ctx context.Context, s Student) error {
	_, err := q.db.ExecContext(ctx, createStudent,
		s.ID, s.OwnerID, s.Name, s.PhoneNumber, s.CreatedAt, s.UpdatedAt)
	return err
}

const updateStudent = `UPDATE students
SET name = ?, phone_number = ?, updated_at = ?
WHERE owner_id = ? AND id = ?`

func (q *Queries) UpdateStudent(ctx context.Context, s Student) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateStudent, s.Name, s.PhoneNumber, s.UpdatedAt, s.OwnerID, s.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteStudent = `DELETE FROM students WHERE owner_id = ? AND id = ?`

func (q *Queries) DeleteStudent(ctx context.Context, ownerID, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteStudent, ownerID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listOwners = `SELECT DISTINCT owner_id FROM students ORDER BY owner_id`

func (q *Queries) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listOwners)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []string{}
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, err
		}
		items = append(items, owner)
	}
	return items, rows.Err()
}

const findTransactions = `SELECT ` + transactionColumns + `
FROM transactions
WHERE owner_id = ? AND occurred_on BETWEEN ? AND ?
ORDER BY occurred_on, created_at, id`

func (q *Queries) FindTransactions(ctx context.Context, ownerID, from, to string) ([]Transaction, error) {
	return q.queryTransactions(ctx, findTransactions, ownerID, from, to)
}

const listTransactions = `SELECT ` + transactionColumns + `
FROM transactions
WHERE owner_id = ?
ORDER BY occurred_on, created_at, id`

func (q *Queries) ListTransactions(ctx context.Context, ownerID string) ([]Transaction, error) {
	return q.queryTransactions(ctx, listTransactions, ownerID)
}

func (q *Queries) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

const getTransaction = `SELECT ` + transactionColumns + `
FROM transactions
WHERE owner_id = ? AND id = ?`

func (q *Queries) GetTransaction(ctx context.Context, ownerID, id string) (Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getTransaction, ownerID, id))
}

const createTransaction = `INSERT INTO transactions (` + transactionColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateTransaction(ctx context.Context, t Transaction) error {
	_, err := q.db.ExecContext(ctx, createTransaction,
		t.ID, t.OwnerID, t.StudentID, t.StudentName, t.Amount, t.OccurredOn,
		t.Note, t.Settled, t.Kind, t.CreatedAt, t.UpdatedAt)
	return err
}

// The slot predicate mirrors ledger.Slot.Holds: rows with a student id match
// by id, legacy rows without one match by name.
const slotPredicate = `owner_id = ?
  AND occurred_on BETWEEN ? AND ?
  AND ((student_id <> '' AND student_id = ?) OR (student_id = '' AND student_name = ?))`

// SlotParams selects the rows holding one student's month.
type SlotParams struct {
	OwnerID     string
	From        string
	To          string
	StudentID   string
	StudentName string
}

func (p SlotParams) args() []interface{} {
	return []interface{}{p.OwnerID, p.From, p.To, p.StudentID, p.StudentName}
}

const insertTransactionIfAbsent = `INSERT INTO transactions (` + transactionColumns + `)
SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
WHERE NOT EXISTS (SELECT 1 FROM transactions WHERE ` + slotPredicate + `)`

// InsertTransactionIfAbsent inserts t in one statement unless a row already
// holds the slot. It returns the number of rows inserted.
func (q *Queries) InsertTransactionIfAbsent(ctx context.Context, t Transaction, slot SlotParams) (int64, error) {
	args := []interface{}{
		t.ID, t.OwnerID, t.StudentID, t.StudentName, t.Amount, t.OccurredOn,
		t.Note, t.Settled, t.Kind, t.CreatedAt, t.UpdatedAt,
	}
	res, err := q.db.ExecContext(ctx, insertTransactionIfAbsent, append(args, slot.args()...)...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getSlotHolder = `SELECT ` + transactionColumns + `
FROM transactions
WHERE ` + slotPredicate + `
ORDER BY occurred_on, created_at, id
LIMIT 1`

func (q *Queries) GetSlotHolder(ctx context.Context, slot SlotParams) (Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getSlotHolder, slot.args()...))
}

const updateTransaction = `UPDATE transactions
SET student_id = ?, student_name = ?, amount = ?, occurred_on = ?, note = ?, settled = ?, kind = ?, updated_at = ?
WHERE owner_id = ? AND id = ?`

func (q *Queries) UpdateTransaction(ctx context.Context, t Transaction) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateTransaction,
		t.StudentID, t.StudentName, t.Amount, t.OccurredOn, t.Note, t.Settled, t.Kind, t.UpdatedAt,
		t.OwnerID, t.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteTransaction = `DELETE FROM transactions WHERE owner_id = ? AND id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, ownerID, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTransaction, ownerID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getRevision = `SELECT COALESCE(
    (SELECT revision FROM ledger_revisions WHERE owner_id = ?), 0)`

func (q *Queries) GetRevision(ctx context.Context, ownerID string) (int64, error) {
	var rev int64
	err := q.db.QueryRowContext(ctx, getRevision, ownerID).Scan(&rev)
	return rev, err
}

// Ping checks the connection is usable.
func (q *Queries) Ping(ctx context.Context) error {
	var one int
	err := q.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one)
	if err == sql.ErrNoRows {
		return nil
	}
	return err
}
