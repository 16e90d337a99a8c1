package ledger

import (
	"context"

	"kas/internal/core"
)

// TransactionStore persists an owner's transactions. Every method is scoped
// by owner; implementations must never return another owner's rows.
//
// FindTransactions returns rows dated between from and to inclusive, ordered
// by date, creation time and id.
type TransactionStore interface {
	FindTransactions(ctx context.Context, ownerID string, from, to core.Date) ([]core.Transaction, error)
	CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	// InsertIfAbsent stores tx only when no transaction holds slot yet, as a
	// single atomic step. It returns the stored row and true, or the row
	// already holding the slot and false.
	InsertIfAbsent(ctx context.Context, tx core.Transaction, slot Slot) (core.Transaction, bool, error)
	GetTransaction(ctx context.Context, ownerID, id string) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, ownerID, id string) error
	ListTransactions(ctx context.Context, ownerID string) ([]core.Transaction, error)
}

// StudentRegistry persists an owner's students. ListStudents returns them
// in creation order.
type StudentRegistry interface {
	ListStudents(ctx context.Context, ownerID string) ([]core.Student, error)
	GetStudent(ctx context.Context, ownerID, id string) (core.Student, error)
	CreateStudent(ctx context.Context, s core.Student) (core.Student, error)
	UpdateStudent(ctx context.Context, s core.Student) (core.Student, error)
	DeleteStudent(ctx context.Context, ownerID, id string) error
}

// RevisionSource reports a counter that moves whenever any of an owner's
// students or transactions change, whichever process made the write. Two
// equal readings bracket an unchanged ledger.
type RevisionSource interface {
	Revision(ctx context.Context, ownerID string) (int64, error)
}

// Locker serialises work per key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}
