package google

import (
	"fmt"
	"strings"

	"kas/internal/core"
	"kas/internal/ledger"
)

// maxTitleLen is the longest sheet title Google accepts.
const maxTitleLen = 100

var header = []any{"Year", "Month", "Name", "Transactions", "Total income", "Total expense", "Closing balance"}

// summaryRows lays out months under a header row. Amounts are written as
// fixed two-decimal strings so the sheet never sees float rounding.
func summaryRows(months []ledger.MonthSummary) [][]any {
	rows := make([][]any, 0, len(months)+1)
	rows = append(rows, header)
	for _, m := range months {
		rows = append(rows, []any{
			m.Year,
			m.MonthIndex,
			m.Name,
			len(m.Transactions),
			core.FormatAmount(m.TotalIncome),
			core.FormatAmount(m.TotalExpense),
			core.FormatAmount(m.ClosingBalance),
		})
	}
	return rows
}

// sheetTitle names the tab holding ownerID's summary.
func sheetTitle(base, ownerID string) string {
	title := strings.TrimSpace(base + " " + ownerID)
	title = strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', '*', '?', ':', '/', '\\':
			return '_'
		}
		return r
	}, title)
	if r := []rune(title); len(r) > maxTitleLen {
		title = string(r[:maxTitleLen])
	}
	return title
}

// a1Range quotes title for use in A1 notation.
func a1Range(title string, rows int) string {
	quoted := "'" + strings.ReplaceAll(title, "'", "''") + "'"
	return fmt.Sprintf("%s!A1:G%d", quoted, rows)
}
