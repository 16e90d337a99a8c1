package ledger

import (
	"github.com/shopspring/decimal"

	"kas/internal/core"
)

// Totals are the income, expense and balance of one month. Balances do not
// carry over between months.
type Totals struct {
	TotalIncome    decimal.Decimal `json:"totalIncome"`
	TotalExpense   decimal.Decimal `json:"totalExpense"`
	ClosingBalance decimal.Decimal `json:"closingBalance"`
}

// Aggregate sums every transaction dated in p by kind, matched to a
// student or not.
func Aggregate(txs []core.Transaction, p Period) Totals {
	income, expense, balance := decimal.Zero, decimal.Zero, decimal.Zero
	for _, tx := range txs {
		if !p.Contains(tx.OccurredOn) {
			continue
		}
		switch tx.Kind {
		case core.Income:
			income = income.Add(tx.Amount)
		case core.Expense:
			expense = expense.Add(tx.Amount)
		default:
			continue
		}
		balance = balance.Add(tx.Signed())
	}
	return Totals{
		TotalIncome:    income,
		TotalExpense:   expense,
		ClosingBalance: balance,
	}
}

// InPeriod returns the transactions dated in p, keeping their order.
func InPeriod(txs []core.Transaction, p Period) []core.Transaction {
	out := make([]core.Transaction, 0)
	for _, tx := range txs {
		if p.Contains(tx.OccurredOn) {
			out = append(out, tx)
		}
	}
	return out
}
