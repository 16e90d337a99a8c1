package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, perMinute int) (*Limiter, *time.Time) {
	t.Helper()
	rl := NewLimiter(Config{RequestsPerMinute: perMinute})
	t.Cleanup(rl.Stop)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestLimiter_Allow(t *testing.T) {
	rl, now := newTestLimiter(t, 3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("1.2.3.4") {
		t.Fatal("fourth request within a minute should be limited")
	}
	if !rl.Allow("5.6.7.8") {
		t.Fatal("other clients are not affected")
	}
	if m := rl.GetMetrics(); m.TotalHits != 1 || m.ClientCount != 2 {
		t.Errorf("metrics = %+v", m)
	}

	*now = now.Add(2 * time.Minute)
	if !rl.Allow("1.2.3.4") {
		t.Error("counter should reset after a quiet minute")
	}
}

func TestLimiter_WindowResetsUnderSteadyTraffic(t *testing.T) {
	rl, now := newTestLimiter(t, 2)

	rl.Allow("1.2.3.4")
	*now = now.Add(20 * time.Second)
	rl.Allow("1.2.3.4")
	*now = now.Add(20 * time.Second)
	if rl.Allow("1.2.3.4") {
		t.Fatal("third request in the same window should be limited")
	}
	*now = now.Add(25 * time.Second)
	if !rl.Allow("1.2.3.4") {
		t.Error("a new window should open one minute after the first request")
	}
}

func TestLimiter_CleanupStaleEntries(t *testing.T) {
	rl, now := newTestLimiter(t, 3)
	rl.Allow("1.2.3.4")
	*now = now.Add(11 * time.Minute)
	rl.Allow("5.6.7.8")

	rl.cleanupStaleEntries()
	if rl.ActiveClients() != 1 {
		t.Errorf("ActiveClients() = %d, want 1", rl.ActiveClients())
	}
}

func TestLimiter_MiddlewareOnlyWrites(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)
	h := rl.Middleware(
		func(r *http.Request) string { return "1.2.3.4" },
		func(r *http.Request) bool { return IsWrite(r.Method) },
		nil,
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(method string) int {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(method, "/students", nil))
		return rr.Code
	}

	if got := do(http.MethodPost); got != http.StatusNoContent {
		t.Fatalf("first POST = %d", got)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/students", nil))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second POST = %d, want 429", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}
	for i := 0; i < 5; i++ {
		if got := do(http.MethodGet); got != http.StatusNoContent {
			t.Fatalf("GET must not be limited, got %d", got)
		}
	}
}
