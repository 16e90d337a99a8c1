package http

import (
	"strings"
	"sync/atomic"
	"time"
)

// appMetrics counts application level events for /metrics.
type appMetrics struct {
	started            time.Time
	reconcileRequests  int64
	placeholderCreated int64
	writes             int64
}

func newAppMetrics() *appMetrics {
	return &appMetrics{started: time.Now()}
}

func (m *appMetrics) reconciled(created int) {
	atomic.AddInt64(&m.reconcileRequests, 1)
	atomic.AddInt64(&m.placeholderCreated, int64(created))
}

func (m *appMetrics) wrote() {
	atomic.AddInt64(&m.writes, 1)
}

// sanitizeInput strips control characters other than tab and newlines and
// trims surrounding whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
