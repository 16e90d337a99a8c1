// Package memory keeps students and transactions in process memory. It is
// the DATA_BACKEND=memory store and the default store in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"kas/internal/core"
	"kas/internal/ledger"
)

type Store struct {
	mu       sync.Mutex
	students []core.Student
	txs      []core.Transaction
	revs     map[string]int64
	now      func() time.Time
	seq      int64
}

func New() *Store {
	return &Store{now: time.Now, revs: make(map[string]int64)}
}

// Revision implements ledger.RevisionSource.
func (s *Store) Revision(_ context.Context, ownerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revs[ownerID], nil
}

// touch must be called with mu held.
func (s *Store) touch(ownerID string) {
	s.revs[ownerID]++
}

// stamp returns strictly increasing timestamps so rows created in the same
// instant keep their insertion order.
func (s *Store) stamp() time.Time {
	s.seq++
	return s.now().UTC().Add(time.Duration(s.seq))
}

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// ListStudents implements ledger.StudentRegistry.
func (s *Store) ListStudents(_ context.Context, ownerID string) ([]core.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Student, 0)
	for _, st := range s.students {
		if st.OwnerID == ownerID {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *Store) GetStudent(_ context.Context, ownerID, id string) (core.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.studentIndex(ownerID, id); i >= 0 {
		return s.students[i], nil
	}
	return core.Student{}, core.ErrNotFound
}

func (s *Store) CreateStudent(_ context.Context, st core.Student) (core.Student, error) {
	if err := st.Validate(); err != nil {
		return core.Student{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	st.CreatedAt = s.stamp()
	st.UpdatedAt = st.CreatedAt
	s.students = append(s.students, st)
	s.touch(st.OwnerID)
	return st, nil
}

func (s *Store) UpdateStudent(_ context.Context, st core.Student) (core.Student, error) {
	if err := st.Validate(); err != nil {
		return core.Student{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.studentIndex(st.OwnerID, st.ID)
	if i < 0 {
		return core.Student{}, core.ErrNotFound
	}
	st.CreatedAt = s.students[i].CreatedAt
	st.UpdatedAt = s.stamp()
	s.students[i] = st
	s.touch(st.OwnerID)
	return st, nil
}

func (s *Store) DeleteStudent(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.studentIndex(ownerID, id)
	if i < 0 {
		return core.ErrNotFound
	}
	s.students = append(s.students[:i], s.students[i+1:]...)
	s.touch(ownerID)
	return nil
}

func (s *Store) studentIndex(ownerID, id string) int {
	for i, st := range s.students {
		if st.OwnerID == ownerID && st.ID == id {
			return i
		}
	}
	return -1
}

// FindTransactions implements ledger.TransactionStore.
func (s *Store) FindTransactions(_ context.Context, ownerID string, from, to core.Date) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0)
	for _, tx := range s.txs {
		if tx.OwnerID != ownerID {
			continue
		}
		if tx.OccurredOn.Before(from.Time) || tx.OccurredOn.After(to.Time) {
			continue
		}
		out = append(out, tx)
	}
	sortTransactions(out)
	return out, nil
}

func (s *Store) ListTransactions(_ context.Context, ownerID string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0)
	for _, tx := range s.txs {
		if tx.OwnerID == ownerID {
			out = append(out, tx)
		}
	}
	sortTransactions(out)
	return out, nil
}

func (s *Store) CreateTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(tx), nil
}

// InsertIfAbsent checks and appends under the same lock.
func (s *Store) InsertIfAbsent(_ context.Context, tx core.Transaction, slot ledger.Slot) (core.Transaction, bool, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var held []core.Transaction
	for _, existing := range s.txs {
		if slot.Holds(existing) {
			held = append(held, existing)
		}
	}
	if len(held) > 0 {
		sortTransactions(held)
		return held[0], false, nil
	}
	return s.insert(tx), true, nil
}

func (s *Store) insert(tx core.Transaction) core.Transaction {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	tx.CreatedAt = s.stamp()
	tx.UpdatedAt = tx.CreatedAt
	s.txs = append(s.txs, tx)
	s.touch(tx.OwnerID)
	return tx
}

func (s *Store) GetTransaction(_ context.Context, ownerID, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.txIndex(ownerID, id); i >= 0 {
		return s.txs[i], nil
	}
	return core.Transaction{}, core.ErrNotFound
}

func (s *Store) UpdateTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.txIndex(tx.OwnerID, tx.ID)
	if i < 0 {
		return core.Transaction{}, core.ErrNotFound
	}
	tx.CreatedAt = s.txs[i].CreatedAt
	tx.UpdatedAt = s.stamp()
	s.txs[i] = tx
	s.touch(tx.OwnerID)
	return tx, nil
}

func (s *Store) DeleteTransaction(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.txIndex(ownerID, id)
	if i < 0 {
		return core.ErrNotFound
	}
	s.txs = append(s.txs[:i], s.txs[i+1:]...)
	s.touch(ownerID)
	return nil
}

// ListOwners returns every owner that has at least one student.
func (s *Store) ListOwners(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	out := make([]string, 0)
	for _, st := range s.students {
		if _, ok := seen[st.OwnerID]; ok {
			continue
		}
		seen[st.OwnerID] = struct{}{}
		out = append(out, st.OwnerID)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) txIndex(ownerID, id string) int {
	for i, tx := range s.txs {
		if tx.OwnerID == ownerID && tx.ID == id {
			return i
		}
	}
	return -1
}

func sortTransactions(txs []core.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		if !a.OccurredOn.Equal(b.OccurredOn.Time) {
			return a.OccurredOn.Before(b.OccurredOn.Time)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

var (
	_ ledger.TransactionStore = (*Store)(nil)
	_ ledger.StudentRegistry  = (*Store)(nil)
	_ ledger.RevisionSource   = (*Store)(nil)
)
