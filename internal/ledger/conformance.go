package ledger

import "kas/internal/core"

// Duplicate is a slot held by more than one transaction.
type Duplicate struct {
	Slot         Slot
	Transactions []core.Transaction
}

// FindDuplicateSlots reports every (student, month) of w held by more than
// one transaction. A store whose passes can leave duplicates behind does
// not insert placeholders atomically.
func FindDuplicateSlots(students []core.Student, txs []core.Transaction, w Window) []Duplicate {
	var dups []Duplicate
	for _, p := range w {
		for _, s := range students {
			slot := SlotFor(s, p)
			var held []core.Transaction
			for _, tx := range txs {
				if slot.Holds(tx) {
					held = append(held, tx)
				}
			}
			if len(held) > 1 {
				dups = append(dups, Duplicate{Slot: slot, Transactions: held})
			}
		}
	}
	return dups
}
