package http

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"time"

	applog "fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// schemaReporter is implemented by stores that track migrations.
type schemaReporter interface {
	SchemaStatus(ctx context.Context) (storage.SchemaStatus, error)
}

// exportReporter is implemented by stores that keep export bookkeeping.
type exportReporter interface {
	ExportStats(ctx context.Context) (storage.ExportStats, error)
}

// Services groups the domain services the API is built on.
type Services struct {
	Categories   *services.CategoryService
	Transactions *services.TransactionService
	Budgets      *services.BudgetService
	Reports      *services.ReportService
}

// Options configures NewServer. Zero values get defaults.
type Options struct {
	Addr               string
	RateLimitPerMinute int
	Logger             *applog.Logger
	DB                 Pinger
	// Static is served at / when set.
	Static fs.FS
}

type Server struct {
	http.Server

	categories   *services.CategoryService
	transactions *services.TransactionService
	budgets      *services.BudgetService
	reports      *services.ReportService
	db           Pinger

	logger    *applog.Logger
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	tracer    *trace.Middleware
	startedAt time.Time

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(svc Services, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	limitCfg := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		limitCfg.RequestsPerMinute = opts.RateLimitPerMinute
	}

	s := &Server{
		categories:   svc.Categories,
		transactions: svc.Transactions,
		budgets:      svc.Budgets,
		reports:      svc.Reports,
		db:           opts.DB,
		logger:       logger,
		limiter:      ratelimit.NewLimiter(limitCfg),
		detector:     security.NewDetector(),
		startedAt:    time.Now(),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger)

	mux := http.NewServeMux()
	s.routes(mux, opts.Static)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux, static fs.FS) {
	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/categories", s.handleCreateCategory)
	mux.HandleFunc("GET /api/categories/{id}", s.handleGetCategory)
	mux.HandleFunc("PUT /api/categories/{id}", s.handleUpdateCategory)
	mux.HandleFunc("DELETE /api/categories/{id}", s.handleDeleteCategory)

	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /api/transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("GET /api/budgets", s.handleListBudgets)
	mux.HandleFunc("POST /api/budgets", s.handleCreateBudget)
	mux.HandleFunc("GET /api/budgets/{id}", s.handleGetBudget)
	mux.HandleFunc("PUT /api/budgets/{id}", s.handleUpdateBudget)
	mux.HandleFunc("DELETE /api/budgets/{id}", s.handleDeleteBudget)

	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/summary/monthly", s.handleMonthlySummary)
	mux.HandleFunc("GET /api/summary/yearly", s.handleYearlySummary)

	mux.HandleFunc("GET /api/charts/spending-by-category", s.handleSpendingByCategory)
	mux.HandleFunc("GET /api/charts/income-vs-expenses", s.handleIncomeVsExpenses)
	mux.HandleFunc("GET /api/charts/monthly-trend", s.handleMonthlyTrend)
	mux.HandleFunc("GET /api/charts/daily-pattern", s.handleDailyPattern)

	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/insights", s.handleInsights)

	// Unmatched API paths answer in JSON rather than falling through to the
	// static page.
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	})

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.Handle("/", s.staticHandler(static))
}

// staticHandler serves the embedded web page for GET and HEAD.
func (s *Server) staticHandler(static fs.FS) http.Handler {
	if static == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
		})
	}
	files := security.StaticAssetMiddleware(3600)(http.FileServer(http.FS(static)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
			return
		}
		files.ServeHTTP(w, r)
	})
}

// middleware applies, outermost first: security headers, suspicious request
// detection, tracing, the request logger and rate limiting.
func (s *Server) middleware(next http.Handler) http.Handler {
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(),
			"Rate limit exceeded",
			applog.FieldClientIP, s.detector.ExtractClientIP(r),
			applog.FieldPath, r.URL.Path)
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
	})(next)

	h := limited
	h = applog.RequestIDMiddleware(trace.RequestIDFromRequest)(h)
	h = applog.Middleware(s.logger)(h)
	h = s.tracer.Middleware(h)
	h = s.detector.Middleware(h)
	h = headers.Middleware(h)
	return h
}

// Shutdown stops background goroutines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleReady pings the database; the service is unusable without it.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]any{}

	if s.db == nil {
		checks["database"] = "not_configured"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else if err := s.db.Ping(ctx); err != nil {
		s.logger.WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
		checks["database"] = "failed"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
		if schema, ok := s.db.(schemaReporter); ok {
			check, current := s.schemaCheck(ctx, schema)
			checks["schema"] = check
			if !current {
				status, httpStatus = "not_ready", http.StatusServiceUnavailable
			}
		}
	}

	if s.reports != nil {
		checks["cache"] = map[string]any{"entries": s.reports.Cache().Size()}
	}
	checks["rate_limiter"] = map[string]any{"active_clients": s.limiter.ActiveClients()}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// schemaCheck reports the migration state and whether it is current.
func (s *Server) schemaCheck(ctx context.Context, schema schemaReporter) (any, bool) {
	st, err := schema.SchemaStatus(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Schema check failed", applog.FieldError, err)
		return "failed", false
	}
	check := map[string]any{"version": st.Version, "latest": st.Latest, "dirty": st.Dirty, "status": "ok"}
	if !st.Current() {
		check["status"] = "outdated"
	}
	return check, st.Current()
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	traceMetrics := s.tracer.GetMetrics()
	limitMetrics := s.limiter.GetMetrics()
	securityMetrics := s.detector.GetMetrics()

	var hits, misses uint64
	var entries int
	if s.reports != nil {
		hits, misses = s.reports.Cache().Stats()
		entries = s.reports.Cache().Size()
	}

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}

	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_client_errors_total", "counter", "Responses with a 4xx status", traceMetrics.ClientErrors)
	metric("http_server_errors_total", "counter", "Responses with a 5xx status", traceMetrics.ServerErrors)
	metric("http_response_time_avg_ms", "gauge", "Average response time in milliseconds",
		fmt.Sprintf("%.3f", float64(traceMetrics.AverageResponseTime.Microseconds())/1000))
	metric("report_cache_hits_total", "counter", "Report cache hits", hits)
	metric("report_cache_misses_total", "counter", "Report cache misses", misses)
	metric("report_cache_entries", "gauge", "Current report cache entries", entries)
	metric("rate_limit_rejected_total", "counter", "Requests rejected by the rate limiter", limitMetrics.Rejected)
	metric("rate_limit_active_clients", "gauge", "Clients tracked by the rate limiter", limitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Requests flagged as suspicious", securityMetrics.SuspiciousRequests)
	if exports, ok := s.db.(exportReporter); ok {
		stats, err := exports.ExportStats(r.Context())
		if err != nil {
			s.logger.WarnContext(r.Context(), "Export stats unavailable", applog.FieldError, err)
		} else {
			metric("exports_synced", "gauge", "Transactions exported at their current version", stats.Synced)
			metric("exports_errored", "gauge", "Transactions whose last export failed", stats.Errored)
			metric("exports_pending", "gauge", "Transactions waiting to be exported", stats.Pending)
		}
	}
	metric("uptime_seconds", "gauge", "Process uptime in seconds", fmt.Sprintf("%.0f", time.Since(s.startedAt).Seconds()))
}
