package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"quotesheet/internal/log"
)

// sheetStats counts sheet mutations seen by this server.
type sheetStats struct {
	editsAccepted int64
	editsRejected int64
	appends       int64
	sessions      int64
	started       time.Time
}

func newSheetStats() *sheetStats {
	return &sheetStats{started: time.Now()}
}

// handleHealth performs basic liveness check
func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleReady checks that templates are loaded and row storage answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	switch {
	case s.pinger == nil:
		checks["storage"] = "not_configured"
	default:
		if err := s.pinger.Ping(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed",
				log.FieldComponent, log.ComponentBackend,
				log.FieldError, err)
			checks["storage"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["storage"] = "ok"
		}
	}

	checks["sessions"] = map[string]interface{}{
		"active": s.registry.Len(),
		"status": "ok",
	}
	checks["rate_limiter"] = map[string]interface{}{
		"active_clients": s.limiter.ActiveClients(),
		"status":         "ok",
	}

	writeJSON(w, httpStatus, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	traceMetrics := s.tracer.GetMetrics()
	rateLimitMetrics := s.limiter.GetMetrics()
	securityMetrics := s.detector.GetMetrics()

	w.WriteHeader(http.StatusOK)

	counter := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s counter\n", name)
		fmt.Fprintf(w, "%s %d\n\n", name, v)
	}
	gauge := func(name, help string, v float64) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s gauge\n", name)
		fmt.Fprintf(w, "%s %g\n\n", name, v)
	}

	counter("http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests)
	counter("http_client_errors_total", "Responses with a 4xx status", traceMetrics.ClientErrors)
	counter("http_server_errors_total", "Responses with a 5xx status", traceMetrics.ServerErrors)
	gauge("http_request_duration_avg_seconds", "Mean request duration", traceMetrics.AverageLatency().Seconds())

	fmt.Fprintf(w, "# HELP sheet_edits_total Row edits by outcome\n")
	fmt.Fprintf(w, "# TYPE sheet_edits_total counter\n")
	fmt.Fprintf(w, "sheet_edits_total{result=\"accepted\"} %d\n", atomic.LoadInt64(&s.stats.editsAccepted))
	fmt.Fprintf(w, "sheet_edits_total{result=\"rejected\"} %d\n\n", atomic.LoadInt64(&s.stats.editsRejected))

	counter("sheet_appends_total", "Default rows appended", atomic.LoadInt64(&s.stats.appends))
	counter("sessions_created_total", "Sessions started", atomic.LoadInt64(&s.stats.sessions))
	gauge("sessions_active", "Live sessions", float64(s.registry.Len()))

	counter("rate_limit_rejections_total", "Requests refused by the rate limiter", rateLimitMetrics.Rejected)
	gauge("rate_limit_clients", "Currently tracked rate limit clients", float64(rateLimitMetrics.ClientCount))
	counter("suspicious_requests_total", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	counter("blocked_requests_total", "Requests refused for their method", securityMetrics.BlockedRequests)

	gauge("uptime_seconds", "Application uptime in seconds", time.Since(s.stats.started).Truncate(time.Second).Seconds())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
