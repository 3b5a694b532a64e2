// Package http serves the ledger as HTMX pages plus a small JSON API.
package http

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"dompet/internal/ledger"
	"dompet/internal/log"
	"dompet/internal/middleware/ratelimit"
	"dompet/internal/middleware/security"
	"dompet/internal/middleware/trace"
	"dompet/internal/sheets"
	"dompet/internal/store"
	appweb "dompet/web"
)

// Ledger is the state the server renders and mutates. *store.Store
// satisfies it.
type Ledger interface {
	Snapshot() ledger.State
	Apply(ctx context.Context, ops ...ledger.Operation) (ledger.State, error)
}

type Options struct {
	// Exporter enables POST /export/sheets when set.
	Exporter sheets.LedgerExporter
	// Ready reports backend health for /readyz.
	Ready  func(ctx context.Context) error
	Logger *log.Logger
	// RateLimit throttles writes; the zero value uses ratelimit.DefaultConfig.
	RateLimit ratelimit.Config
	// Templates holds templates/*.html; nil uses the embedded templates.
	Templates fs.FS
}

// appMetrics tracks application-specific metrics
type appMetrics struct {
	mutations     int64
	rejected      int64
	flushFailures int64
	exports       int64
	uptime        time.Time
}

type Server struct {
	http.Server
	ledger    Ledger
	exporter  sheets.LedgerExporter
	ready     func(ctx context.Context) error
	templates *template.Template
	logger    *log.Logger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	appMetrics       *appMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, l Ledger, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default(log.ComponentHTTP)
	}
	rl := opts.RateLimit
	if rl.RequestsPerMinute == 0 {
		rl = ratelimit.DefaultConfig()
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		ledger:           l,
		exporter:         opts.Exporter,
		ready:            opts.Ready,
		logger:           logger,
		rateLimiter:      ratelimit.NewLimiter(rl),
		securityDetector: security.NewDetector(),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}
	s.traceMiddleware = trace.NewMiddleware(logger, s.securityDetector.ExtractClientIP)

	templatesFS := opts.Templates
	if templatesFS == nil {
		templatesFS = appweb.TemplatesFS
	}
	t, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates",
			log.FieldComponent, log.ComponentTemplate,
			log.FieldErrorType, log.ErrorTypeConfiguration,
			log.FieldError, err)
	}
	s.templates = t

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	mux.HandleFunc("POST /export/sheets", s.handleExport)

	mux.HandleFunc("GET /wallets", s.handleWalletsPage)
	mux.HandleFunc("POST /wallets", s.handleCreateWallet)
	mux.HandleFunc("POST /wallets/{id}", s.handleUpdateWallet)
	mux.HandleFunc("DELETE /wallets/{id}", s.handleDeleteWallet)

	mux.HandleFunc("GET /transactions", s.handleTransactionsPage)
	mux.HandleFunc("POST /transactions", s.handleCreateTransaction)
	mux.HandleFunc("POST /transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("GET /categories", s.handleCategoriesPage)
	mux.HandleFunc("POST /categories", s.handleCreateCategory)
	mux.HandleFunc("POST /categories/{id}", s.handleUpdateCategory)
	mux.HandleFunc("DELETE /categories/{id}", s.handleDeleteCategory)

	mux.HandleFunc("GET /goals", s.handleGoalsPage)
	mux.HandleFunc("POST /goals", s.handleCreateGoal)
	mux.HandleFunc("POST /goals/{id}", s.handleUpdateGoal)
	mux.HandleFunc("DELETE /goals/{id}", s.handleDeleteGoal)

	// Outermost first: trace, security headers, detection, rate limit.
	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.handleRateLimited)(handler)
	handler = s.securityDetector.Middleware(logger.WithComponent(log.ComponentSecurity))(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)
	s.Handler = handler

	return s
}

// Shutdown stops background routines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldComponent, log.ComponentRateLimit,
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.").
		Header("Retry-After", "60").
		TriggerErrorNotification("Too many changes, please wait a minute").
		Write(w)
}

// render executes a named template into a buffer so a failure never leaves
// a half-written page.
func (s *Server) render(name string, data pageData) ([]byte, error) {
	if s.templates == nil {
		return nil, errors.New("templates not loaded")
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderPage writes a full page for the current state.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, name, title, active string) {
	data := newPageData(s.ledger.Snapshot(), title, active, s.exporter != nil)
	body, err := s.render(name, data)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			log.FieldComponent, log.ComponentTemplate,
			log.FieldOperation, log.OpRender,
			"template", name,
			log.FieldError, err)
		http.Error(w, "error rendering page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(body)
}

// mutate applies op and answers with the named partial rendered from the
// resulting state. A failed flush still renders: the change is committed in
// memory and only the write to storage is pending.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, change ledger.Change, partial, message string, op ledger.Operation) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	state, err := s.ledger.Apply(ctx, op)
	resp := NewHTMXResponse()
	switch {
	case err == nil:
		resp.TriggerSuccessNotification(message)
	case errors.Is(err, store.ErrFlush):
		s.countFlushFailure()
		log.NewStructuredLogger(logger).LogError(ctx, "Change committed but not persisted", err,
			log.ComponentStore, op.Name(), log.ErrorTypeStorage)
		resp.TriggerWarningNotification(message + ", but it could not be saved to storage")
	default:
		s.countRejected()
		writeLedgerError(w, r, err)
		return
	}
	s.countMutation()
	log.NewStructuredLogger(logger).LogMutation(ctx, op.Name(), change.String())

	body, err := s.render(partial, newPageData(state, "", "", s.exporter != nil))
	if err != nil {
		logger.ErrorContext(ctx, "Partial rendering failed",
			log.FieldComponent, log.ComponentTemplate,
			log.FieldOperation, log.OpRender,
			"template", partial,
			log.FieldError, err)
		InternalServerError("Error rendering list").Write(w)
		return
	}
	resp.TriggerLedgerChanged(change).
		TriggerFormReset().
		BodyHTML(string(body)).
		Write(w)
}

// parseForm reads the request body or writes a 400 and returns nil.
func parseForm(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Parse request body error",
			log.FieldOperation, log.OpParse,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldError, err)
		BadRequestError("Invalid request format").Write(w)
		return nil
	}
	return p
}

// rejectInput answers a form that failed to parse into an entity.
func (s *Server) rejectInput(w http.ResponseWriter, r *http.Request, err error) {
	s.countRejected()
	writeLedgerError(w, r, err)
}
