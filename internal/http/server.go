// Package http serves the ledger as a JSON API scoped to the owner named by
// the caller's token.
package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"kas/internal/auth"
	"kas/internal/core"
	"kas/internal/ledger"
	"kas/internal/log"
	"kas/internal/middleware/ratelimit"
	"kas/internal/middleware/security"
	"kas/internal/middleware/trace"
)

// Ledger is what the handlers need from the service layer.
type Ledger interface {
	RollingByStudent(ctx context.Context, ownerID string) (ledger.RollingView, error)
	MonthlySummary(ctx context.Context, ownerID string) ([]ledger.MonthSummary, error)
	Reconcile(ctx context.Context, ownerID string) (ledger.Result, error)

	CreateTransaction(ctx context.Context, ownerID string, tx core.Transaction) (core.Transaction, error)
	GetTransaction(ctx context.Context, ownerID, id string) (core.Transaction, error)
	ListTransactions(ctx context.Context, ownerID string) ([]core.Transaction, error)
	UpdateTransaction(ctx context.Context, ownerID, id string, tx core.Transaction) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, ownerID, id string) error

	CreateStudent(ctx context.Context, ownerID string, st core.Student) (core.Student, error)
	GetStudent(ctx context.Context, ownerID, id string) (core.Student, error)
	ListStudents(ctx context.Context, ownerID string) ([]core.Student, error)
	UpdateStudent(ctx context.Context, ownerID, id string, st core.Student) (core.Student, error)
	DeleteStudent(ctx context.Context, ownerID, id string) error
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Sizer reports the number of entries held by a cache.
type Sizer interface {
	Size() int
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr               string
	RateLimitPerMinute int
	TrustedProxies     []string
	Logger             *log.Logger
	// Store is pinged by /readyz. Nil reports not_configured.
	Store Pinger
	// Summaries, when set, is reported by /metrics.
	Summaries Sizer
}

// Server is the ledger HTTP API.
type Server struct {
	http.Server
	ledger   Ledger
	verifier auth.Verifier
	logger   *log.Logger
	store    Pinger
	cache    Sizer

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	headers          *security.HeadersMiddleware
	appMetrics       *appMetrics
}

// NewServer wires routes and middleware. It fails only on a malformed
// trusted proxy entry.
func NewServer(cfg ServerConfig, l Ledger, verifier auth.Verifier) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}

	detector := security.NewDetector()
	for _, p := range cfg.TrustedProxies {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if err := detector.AddTrustedProxy(p); err != nil {
			return nil, fmt.Errorf("trusted proxies: %w", err)
		}
	}

	s := &Server{
		ledger:           l,
		verifier:         verifier,
		logger:           logger.WithComponent(log.ComponentHTTP),
		store:            cfg.Store,
		cache:            cfg.Summaries,
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP, logger),
		headers:          security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		appMetrics:       newAppMetrics(),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.Handle("GET /ledger/rolling-by-student", s.requireOwner(s.handleRollingByStudent))
	mux.Handle("GET /ledger/monthly-summary", s.requireOwner(s.handleMonthlySummary))
	mux.Handle("POST /ledger/reconcile", s.requireOwner(s.handleReconcile))

	mux.Handle("POST /transactions", s.requireOwner(s.handleCreateTransaction))
	mux.Handle("GET /transactions", s.requireOwner(s.handleListTransactions))
	mux.Handle("GET /transactions/{id}", s.requireOwner(s.handleGetTransaction))
	mux.Handle("PUT /transactions/{id}", s.requireOwner(s.handleUpdateTransaction))
	mux.Handle("DELETE /transactions/{id}", s.requireOwner(s.handleDeleteTransaction))

	mux.Handle("POST /students", s.requireOwner(s.handleCreateStudent))
	mux.Handle("GET /students", s.requireOwner(s.handleListStudents))
	mux.Handle("GET /students/{id}", s.requireOwner(s.handleGetStudent))
	mux.Handle("PUT /students/{id}", s.requireOwner(s.handleUpdateStudent))
	mux.Handle("DELETE /students/{id}", s.requireOwner(s.handleDeleteStudent))

	limited := s.rateLimiter.Middleware(
		detector.ExtractClientIP,
		func(r *http.Request) bool { return ratelimit.IsWrite(r.Method) },
		func(w http.ResponseWriter, r *http.Request) {
			s.logger.WarnContext(r.Context(), "Rate limit exceeded",
				log.FieldClientIP, detector.ExtractClientIP(r),
				log.FieldPath, r.URL.Path)
			NewJSONResponse().
				Status(http.StatusTooManyRequests).
				JSON(messageBody{Message: "Too many requests"}).
				Write(w)
		},
	)

	var handler http.Handler = mux
	handler = limited(handler)
	handler = s.flagSuspicious(handler)
	handler = s.headers.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// flagSuspicious logs probes without blocking them.
func (s *Server) flagSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.securityDetector.DetectSuspiciousRequest(r) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				log.FieldComponent, log.ComponentSecurity,
				log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown stops accepting requests and releases background resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.Stop()
	return s.Server.Shutdown(ctx)
}
