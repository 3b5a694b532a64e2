package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"dompet/internal/ledger"
	"dompet/internal/log"
	"dompet/internal/sheets"
)

const (
	readyTimeout  = 5 * time.Second
	exportTimeout = 30 * time.Second
)

func (s *Server) countMutation()     { atomic.AddInt64(&s.appMetrics.mutations, 1) }
func (s *Server) countRejected()     { atomic.AddInt64(&s.appMetrics.rejected, 1) }
func (s *Server) countFlushFailure() { atomic.AddInt64(&s.appMetrics.flushFailures, 1) }

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	health := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(health)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	switch {
	case s.ready == nil:
		checks["backend"] = "not_configured"
	default:
		if err := s.ready(ctx); err != nil {
			checks["backend"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["backend"] = "ok"
		}
	}

	if s.exporter != nil {
		checks["sheets"] = "configured"
	} else {
		checks["sheets"] = "not_configured"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()
	state := s.ledger.Snapshot()

	w.WriteHeader(http.StatusOK)

	counter := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", name, help, name, name, v)
	}
	gauge := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n\n", name, help, name, name, v)
	}

	counter("http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests)
	counter("ledger_mutations_total", "Ledger operations committed", atomic.LoadInt64(&s.appMetrics.mutations))
	counter("ledger_rejections_total", "Ledger operations rejected", atomic.LoadInt64(&s.appMetrics.rejected))
	counter("ledger_flush_failures_total", "Committed operations not written to storage", atomic.LoadInt64(&s.appMetrics.flushFailures))
	counter("sheets_exports_total", "Successful ledger exports", atomic.LoadInt64(&s.appMetrics.exports))
	counter("rate_limit_hits_total", "Total rate limit hits", rateLimitMetrics.TotalHits)
	counter("suspicious_requests_total", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)

	fmt.Fprintf(w, "# HELP ledger_records Current records per collection\n")
	fmt.Fprintf(w, "# TYPE ledger_records gauge\n")
	fmt.Fprintf(w, "ledger_records{collection=\"wallets\"} %d\n", len(state.Wallets))
	fmt.Fprintf(w, "ledger_records{collection=\"transactions\"} %d\n", len(state.Transactions))
	fmt.Fprintf(w, "ledger_records{collection=\"categories\"} %d\n", len(state.Categories))
	fmt.Fprintf(w, "ledger_records{collection=\"goals\"} %d\n\n", len(state.Goals))

	gauge("active_rate_limit_clients", "Currently tracked rate limit clients", int64(s.rateLimiter.ActiveClients()))
	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n\n", time.Since(s.appMetrics.uptime).Seconds())
}

type snapshotResponse struct {
	ledger.State
	TotalBalance string `json:"totalBalance"`
}

// handleSnapshot returns the whole ledger as JSON.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	state := s.ledger.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	err := json.NewEncoder(w).Encode(snapshotResponse{
		State:        state,
		TotalBalance: ledger.TotalBalance(state.Wallets).String(),
	})
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Snapshot encoding failed", log.FieldError, err)
	}
}

// handleExport writes the ledger to the configured spreadsheet.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		NotFoundError("Sheets export is not configured").Write(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), exportTimeout)
	defer cancel()

	rows := sheets.Rows(s.ledger.Snapshot())
	ref, err := s.exporter.ExportLedger(ctx, rows)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Ledger export failed",
			log.FieldComponent, log.ComponentSheets,
			log.FieldOperation, log.OpExport,
			log.FieldErrorType, log.ErrorTypeNetwork,
			log.FieldError, err)
		ErrorResponse(http.StatusBadGateway, "Export failed").
			TriggerErrorNotification("Export to Google Sheets failed").
			Write(w)
		return
	}
	atomic.AddInt64(&s.appMetrics.exports, 1)

	log.FromContext(r.Context()).InfoContext(r.Context(), "Ledger exported",
		log.FieldOperation, log.OpExport,
		log.FieldCount, len(rows),
		"ref", ref)
	NewHTMXResponse().
		TriggerSuccessNotification(fmt.Sprintf("Exported %d transactions to %s", len(rows), ref)).
		BodyHTML(`<div class="success">Exported ` + fmt.Sprint(len(rows)) + ` transactions</div>`).
		Write(w)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "dashboard.html", "Dashboard", "dashboard")
}
