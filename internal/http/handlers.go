package http

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"kas/internal/cache"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().JSON(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.started).String(),
	}).Write(w)
}

// handleReady checks that the store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	switch {
	case s.store == nil:
		checks["store"] = "not_configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	default:
		if err := s.store.Ping(ctx); err != nil {
			checks["store"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
	}

	if s.cache != nil {
		checks["summary_cache"] = map[string]any{"entries": s.cache.Size(), "status": "ok"}
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	NewJSONResponse().Status(httpStatus).JSON(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	w.WriteHeader(http.StatusOK)

	counter(w, "http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests)
	gauge(w, "http_response_time_avg_microseconds", "Average response time", traceMetrics.AverageResponseTime)
	counter(w, "ledger_reconcile_requests_total", "Reconciliation passes triggered over HTTP",
		atomic.LoadInt64(&s.appMetrics.reconcileRequests))
	counter(w, "ledger_placeholders_created_total", "Placeholder transactions created over HTTP",
		atomic.LoadInt64(&s.appMetrics.placeholderCreated))
	counter(w, "ledger_writes_total", "Successful create, update and delete requests",
		atomic.LoadInt64(&s.appMetrics.writes))
	if s.cache != nil {
		gauge(w, "summary_cache_entries", "Cached monthly summaries", int64(s.cache.Size()))
		if st, ok := s.cache.(interface{ Stats() cache.Stats }); ok {
			stats := st.Stats()
			counter(w, "summary_cache_hits_total", "Summary cache hits", stats.Hits)
			counter(w, "summary_cache_misses_total", "Summary cache misses", stats.Misses)
			counter(w, "summary_cache_evictions_total", "Entries evicted at capacity", stats.Evictions)
		}
	}
	counter(w, "rate_limit_hits_total", "Total rate limit hits", rateLimitMetrics.TotalHits)
	gauge(w, "active_rate_limit_clients", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	counter(w, "suspicious_requests_total", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	counter(w, "invalid_client_ip_total", "Forwarded client addresses that failed to parse", securityMetrics.InvalidIPAttempts)
	gauge(w, "uptime_seconds", "Application uptime in seconds", int64(time.Since(s.appMetrics.started).Seconds()))
}

func counter(w http.ResponseWriter, name, help string, v int64) {
	metric(w, name, help, "counter", v)
}

func gauge(w http.ResponseWriter, name, help string, v int64) {
	metric(w, name, help, "gauge", v)
}

func metric(w http.ResponseWriter, name, help, kind string, v int64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
	fmt.Fprintf(w, "%s %d\n\n", name, v)
}
