package ledger

import "kas/internal/core"

// Slot identifies the single ledger line a student owns in a month.
type Slot struct {
	OwnerID     string
	StudentID   string
	StudentName string
	Period      Period
}

// SlotFor returns the slot of student s in period p.
func SlotFor(s core.Student, p Period) Slot {
	return Slot{OwnerID: s.OwnerID, StudentID: s.ID, StudentName: s.Name, Period: p}
}

// Holds reports whether tx occupies the slot. Rows carrying a student id
// are matched by id; legacy rows without one fall back to the name.
func (s Slot) Holds(tx core.Transaction) bool {
	if tx.OwnerID != s.OwnerID || !s.Period.Contains(tx.OccurredOn) {
		return false
	}
	if tx.StudentID != "" {
		return tx.StudentID == s.StudentID
	}
	return tx.StudentName == s.StudentName
}

// Belongs reports whether tx is paid by student s, ignoring dates.
func Belongs(tx core.Transaction, s core.Student) bool {
	if tx.OwnerID != s.OwnerID {
		return false
	}
	if tx.StudentID != "" {
		return tx.StudentID == s.ID
	}
	return tx.StudentName == s.Name
}

// Matches maps a student id to the transaction that is its line for a month.
type Matches map[string]core.Transaction

// Match associates transactions dated in p with students. The first
// transaction encountered for a student wins; later ones in the same month
// are left out of the per-student view but are not dropped from totals.
func Match(students []core.Student, txs []core.Transaction, p Period) Matches {
	m := make(Matches, len(students))
	for _, tx := range txs {
		if !p.Contains(tx.OccurredOn) {
			continue
		}
		for _, s := range students {
			if _, done := m[s.ID]; done {
				continue
			}
			if Belongs(tx, s) {
				m[s.ID] = tx
			}
		}
	}
	return m
}
