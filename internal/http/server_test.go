package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kas/internal/auth"
	"kas/internal/cache"
	"kas/internal/core"
	"kas/internal/ledger"
	"kas/internal/services"
	"kas/internal/storage/memory"
)

var march2025 = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

type testServer struct {
	srv    *Server
	jwt    *auth.JWT
	store  *memory.Store
	tokens map[string]string
}

func newTestServer(t *testing.T, cfg ServerConfig) *testServer {
	t.Helper()
	store := memory.New()
	svc := services.NewLedgerService(ledger.NewService(store, store), store, store, services.LedgerServiceConfig{
		Summaries:   cache.NewSummaryCache(10, time.Minute),
		Revisions:   store,
		PhoneRegion: "US",
		Now:         func() time.Time { return march2025 },
	})
	jwt := auth.NewJWT("test-secret", time.Hour)
	if cfg.Store == nil {
		cfg.Store = store
	}
	srv, err := NewServer(cfg, svc, jwt)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { srv.rateLimiter.Stop() })
	return &testServer{srv: srv, jwt: jwt, store: store, tokens: map[string]string{}}
}

func (ts *testServer) token(t *testing.T, owner string) string {
	t.Helper()
	if tok, ok := ts.tokens[owner]; ok {
		return tok
	}
	tok, err := ts.jwt.Issue(owner)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	ts.tokens[owner] = tok
	return tok
}

func (ts *testServer) do(t *testing.T, owner, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if owner != "" {
		req.Header.Set("x-access-token", ts.token(t, owner))
	}
	rr := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t, ServerConfig{})

	rr := ts.do(t, "", http.MethodGet, "/students", "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("no token: status = %d, want 403", rr.Code)
	}
	if got := decode[messageBody](t, rr).Message; got != "No token provided!" {
		t.Errorf("no token message = %q", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/students", nil)
	req.Header.Set("x-access-token", "garbage")
	rr = httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d, want 401", rr.Code)
	}
	if got := decode[messageBody](t, rr).Message; got != "Unauthorized!" {
		t.Errorf("bad token message = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/students", nil)
	req.Header.Set("Authorization", "Bearer "+ts.token(t, "u1"))
	rr = httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("bearer token: status = %d, want 200", rr.Code)
	}
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("empty list body = %q", rr.Body.String())
	}
}

func TestStudentCRUD(t *testing.T) {
	ts := newTestServer(t, ServerConfig{})

	rr := ts.do(t, "u1", http.MethodPost, "/students", `{"name":" Ayu ","phoneNumber":"(650) 253-0000"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: status = %d body %s", rr.Code, rr.Body)
	}
	st := decode[core.Student](t, rr)
	if st.ID == "" || st.Name != "Ayu" || st.PhoneNumber != "+16502530000" {
		t.Fatalf("created student = %+v", st)
	}
	if got := rr.Header().Get("Location"); got != "/students/"+st.ID {
		t.Errorf("Location = %q", got)
	}

	if rr := ts.do(t, "u1", http.MethodGet, "/students/"+st.ID, ""); rr.Code != http.StatusOK {
		t.Errorf("get: status = %d", rr.Code)
	}

	rr = ts.do(t, "u2", http.MethodGet, "/students/"+st.ID, "")
	if rr.Code != http.StatusNotFound || decode[messageBody](t, rr).Message != studentNotFound {
		t.Errorf("other owner get: %d %s", rr.Code, rr.Body)
	}

	rr = ts.do(t, "u1", http.MethodPut, "/students/"+st.ID, `{"name":"Ayu Lestari"}`)
	if rr.Code != http.StatusOK || decode[core.Student](t, rr).Name != "Ayu Lestari" {
		t.Errorf("update: %d %s", rr.Code, rr.Body)
	}

	rr = ts.do(t, "u1", http.MethodPost, "/students", `{"name":"Budi","phoneNumber":"nope"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad phone: status = %d", rr.Code)
	}
	if got := decode[validationBody](t, rr).Fields["phoneNumber"]; got != "phone" {
		t.Errorf("bad phone fields = %s", rr.Body)
	}

	if rr := ts.do(t, "u1", http.MethodPost, "/students", `{"name":`); rr.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d", rr.Code)
	}

	if rr := ts.do(t, "u1", http.MethodDelete, "/students/"+st.ID, ""); rr.Code != http.StatusOK {
		t.Errorf("delete: status = %d", rr.Code)
	}
	if rr := ts.do(t, "u1", http.MethodDelete, "/students/"+st.ID, ""); rr.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d", rr.Code)
	}
}

func TestTransactionCRUD(t *testing.T) {
	ts := newTestServer(t, ServerConfig{})

	st := decode[core.Student](t, ts.do(t, "u1", http.MethodPost, "/students", `{"name":"Ayu"}`))

	rr := ts.do(t, "u1", http.MethodPost, "/transactions",
		`{"studentId":"`+st.ID+`","amount":"150000,5","date":"2025-03-05","kind":"income","settled":true}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: status = %d body %s", rr.Code, rr.Body)
	}
	tx := decode[core.Transaction](t, rr)
	if tx.StudentName != "Ayu" || tx.Amount.String() != "150000.5" || tx.OwnerID != "u1" {
		t.Fatalf("created transaction = %+v", tx)
	}
	if !strings.Contains(rr.Body.String(), `"amount":"150000.5"`) {
		t.Errorf("amount should be an exact decimal string: %s", rr.Body)
	}
	if got := rr.Header().Get("Location"); got != "/transactions/"+tx.ID {
		t.Errorf("Location = %q", got)
	}

	rr = ts.do(t, "u1", http.MethodPost, "/transactions", `{"studentName":"Rent","amount":40,"date":"2025-03-07","kind":"expense"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("numeric amount: status = %d body %s", rr.Code, rr.Body)
	}

	rr = ts.do(t, "u1", http.MethodPost, "/transactions", `{"studentName":"X","date":"2025-03-07","kind":"expense"}`)
	if rr.Code != http.StatusUnprocessableEntity || decode[validationBody](t, rr).Fields["amount"] != "required" {
		t.Errorf("missing amount: %d %s", rr.Code, rr.Body)
	}

	rr = ts.do(t, "u1", http.MethodPost, "/transactions", `{"studentName":"X","amount":"1","date":"2025-03-07","kind":"gift"}`)
	if rr.Code != http.StatusUnprocessableEntity || decode[validationBody](t, rr).Fields["kind"] != "oneof" {
		t.Errorf("bad kind: %d %s", rr.Code, rr.Body)
	}

	rr = ts.do(t, "u1", http.MethodPut, "/transactions/"+tx.ID,
		`{"studentId":"`+st.ID+`","amount":"200000","date":"2025-04-05","kind":"income"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update: status = %d body %s", rr.Code, rr.Body)
	}
	if got := decode[core.Transaction](t, rr); got.OccurredOn.String() != "2025-04-05" {
		t.Errorf("updated date = %s", got.OccurredOn)
	}

	rr = ts.do(t, "u2", http.MethodGet, "/transactions/"+tx.ID, "")
	if rr.Code != http.StatusNotFound || decode[messageBody](t, rr).Message != transactionNotFound {
		t.Errorf("other owner get: %d %s", rr.Code, rr.Body)
	}

	if got := decode[[]core.Transaction](t, ts.do(t, "u1", http.MethodGet, "/transactions", "")); len(got) != 2 {
		t.Errorf("list len = %d, want 2", len(got))
	}

	if rr := ts.do(t, "u1", http.MethodDelete, "/transactions/"+tx.ID, ""); rr.Code != http.StatusOK {
		t.Errorf("delete: status = %d", rr.Code)
	}
	if rr := ts.do(t, "u1", http.MethodGet, "/transactions/"+tx.ID, ""); rr.Code != http.StatusNotFound {
		t.Errorf("get after delete: status = %d", rr.Code)
	}
}

func TestRollingByStudent(t *testing.T) {
	ts := newTestServer(t, ServerConfig{})
	ts.do(t, "u1", http.MethodPost, "/students", `{"name":"Ayu"}`)

	rr := ts.do(t, "u1", http.MethodGet, "/ledger/rolling-by-student", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rr.Code, rr.Body)
	}
	body := rr.Body.String()
	if !strings.HasPrefix(body, `{"March":[`) {
		t.Errorf("view must start at the current month: %.60s", body)
	}
	if strings.Index(body, `"December"`) > strings.Index(body, `"January"`) {
		t.Error("months are not in window order")
	}

	view := decode[map[string][]ledger.LineItem](t, rr)
	if len(view) != 12 {
		t.Fatalf("months = %d, want 12", len(view))
	}
	feb := view["February"]
	if len(feb) != 1 || feb[0].StudentName != "Ayu" || !feb[0].Amount.IsZero() || feb[0].Date.String() != "2026-02-28" {
		t.Errorf("February line = %+v", feb)
	}
}

func TestReconcileAndSummary(t *testing.T) {
	ts := newTestServer(t, ServerConfig{})
	ts.do(t, "u1", http.MethodPost, "/students", `{"name":"Ayu"}`)
	ts.do(t, "u1", http.MethodPost, "/transactions", `{"studentName":"Rent","amount":"40","date":"2025-03-07","kind":"expense"}`)

	rr := ts.do(t, "u1", http.MethodPost, "/ledger/reconcile", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("reconcile: status = %d body %s", rr.Code, rr.Body)
	}
	res := decode[reconcileResponse](t, rr)
	if res.Created != 12 || len(res.Periods) != 12 || res.Periods[0] != (ledger.Period{Year: 2025, Month: 3}) {
		t.Fatalf("first pass = %+v", res)
	}

	res = decode[reconcileResponse](t, ts.do(t, "u1", http.MethodPost, "/ledger/reconcile", ""))
	if res.Created != 0 || len(res.Periods) != 0 {
		t.Errorf("second pass = %+v", res)
	}

	rr = ts.do(t, "u1", http.MethodGet, "/ledger/monthly-summary", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("summary: status = %d", rr.Code)
	}
	months := decode[[]ledger.MonthSummary](t, rr)
	if len(months) != 12 {
		t.Fatalf("summary months = %d", len(months))
	}
	if months[0].Name != "March" || months[0].TotalExpense.String() != "40" || months[0].ClosingBalance.String() != "-40" {
		t.Errorf("March summary = %+v", months[0])
	}

	if !strings.Contains(ts.do(t, "", http.MethodGet, "/metrics", "").Body.String(), "ledger_placeholders_created_total 12") {
		t.Error("metrics do not count created placeholders")
	}
}

type failingStore struct{}

func (failingStore) Ping(context.Context) error { return errors.New("disk gone") }

type unreadableStore struct {
	*memory.Store
}

func (unreadableStore) FindTransactions(context.Context, string, core.Date, core.Date) ([]core.Transaction, error) {
	return nil, core.Storage("find transactions", errors.New("disk on fire"))
}

func TestLedgerReadFailureIsServerError(t *testing.T) {
	mem := memory.New()
	store := unreadableStore{Store: mem}
	svc := services.NewLedgerService(ledger.NewService(store, mem), store, mem, services.LedgerServiceConfig{
		Summaries: cache.NewSummaryCache(10, time.Minute),
		Revisions: mem,
		Now:       func() time.Time { return march2025 },
	})
	jwt := auth.NewJWT("test-secret", time.Hour)
	srv, err := NewServer(ServerConfig{Store: mem}, svc, jwt)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { srv.rateLimiter.Stop() })
	ts := &testServer{srv: srv, jwt: jwt, store: mem, tokens: map[string]string{}}

	if rr := ts.do(t, "u1", http.MethodPost, "/students", `{"name":"Ayu"}`); rr.Code != http.StatusCreated {
		t.Fatalf("create student = %d", rr.Code)
	}
	for _, path := range []string{"/ledger/monthly-summary", "/ledger/rolling-by-student"} {
		rr := ts.do(t, "u1", http.MethodGet, path, "")
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("%s = %d, want 500", path, rr.Code)
			continue
		}
		if got := decode[messageBody](t, rr).Message; !strings.Contains(got, "disk on fire") {
			t.Errorf("%s message = %q", path, got)
		}
	}
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, ServerConfig{})

	if rr := ts.do(t, "", http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
		t.Errorf("healthz = %d", rr.Code)
	}
	rr := ts.do(t, "", http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusOK || decode[map[string]any](t, rr)["status"] != "ready" {
		t.Errorf("readyz = %d %s", rr.Code, rr.Body)
	}
	if rr.Header().Get("X-Request-ID") == "" || rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("middleware headers missing")
	}

	down := newTestServer(t, ServerConfig{Store: failingStore{}})
	rr = down.do(t, "", http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), "disk gone") {
		t.Errorf("readyz with failing store = %d %s", rr.Code, rr.Body)
	}
}

func TestWritesAreRateLimited(t *testing.T) {
	ts := newTestServer(t, ServerConfig{RateLimitPerMinute: 1})

	if rr := ts.do(t, "u1", http.MethodPost, "/students", `{"name":"Ayu"}`); rr.Code != http.StatusCreated {
		t.Fatalf("first write = %d", rr.Code)
	}
	rr := ts.do(t, "u1", http.MethodPost, "/students", `{"name":"Budi"}`)
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("second write = %d", rr.Code)
	}
	for i := 0; i < 3; i++ {
		if rr := ts.do(t, "u1", http.MethodGet, "/students", ""); rr.Code != http.StatusOK {
			t.Fatalf("reads must not be limited, got %d", rr.Code)
		}
	}
}

func TestNewServerRejectsBadProxy(t *testing.T) {
	store := memory.New()
	svc := services.NewLedgerService(ledger.NewService(store, store), store, store, services.LedgerServiceConfig{})
	if _, err := NewServer(ServerConfig{TrustedProxies: []string{"not-a-cidr"}}, svc, auth.NewJWT("s", 0)); err == nil {
		t.Fatal("expected error")
	}
}
