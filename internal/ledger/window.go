// Package ledger builds the rolling twelve-month view of an owner's
// students and transactions, backfills the missing monthly lines and
// computes per-month totals.
package ledger

import (
	"fmt"
	"time"

	"kas/internal/core"
)

// WindowSize is the number of months in a rolling window.
const WindowSize = 12

var monthNames = [12]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// MonthName returns the English name of month m (1-12).
func MonthName(m int) string {
	if m < 1 || m > 12 {
		return ""
	}
	return monthNames[m-1]
}

// Period is one calendar month.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"monthIndex"`
}

// PeriodOf returns the period containing d.
func PeriodOf(d core.Date) Period {
	return Period{Year: d.Year(), Month: d.Month()}
}

// Start is the first day of the month.
func (p Period) Start() core.Date {
	return core.NewDate(p.Year, p.Month, 1)
}

// End is the last day of the month.
func (p Period) End() core.Date {
	return core.LastDayOfMonth(p.Year, p.Month)
}

// Name is the English month name, such as "March".
func (p Period) Name() string {
	return MonthName(p.Month)
}

// Contains reports whether d falls inside the month.
func (p Period) Contains(d core.Date) bool {
	return d.Year() == p.Year && d.Month() == p.Month
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Window is an ordered run of consecutive months.
type Window []Period

// BuildWindow returns the twelve months starting at now's month, wrapping
// into the following year. The month is taken in now's location.
func BuildWindow(now time.Time) Window {
	w := make(Window, WindowSize)
	month0 := int(now.Month()) - 1
	for i := range w {
		n := month0 + i
		w[i] = Period{Year: now.Year() + n/12, Month: n%12 + 1}
	}
	return w
}

// Range returns the first and last day covered by the window.
func (w Window) Range() (from, to core.Date) {
	if len(w) == 0 {
		return core.Date{}, core.Date{}
	}
	return w[0].Start(), w[len(w)-1].End()
}

// Index returns the position of the period containing d, or -1.
func (w Window) Index(d core.Date) int {
	for i, p := range w {
		if p.Contains(d) {
			return i
		}
	}
	return -1
}
