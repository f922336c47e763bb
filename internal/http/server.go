// Package http exposes the budget over a JSON REST API and a Server-Sent
// Events change stream.
package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"budget/internal/budget"
	"budget/internal/cache"
	"budget/internal/core"
	"budget/internal/log"
	"budget/internal/middleware/ratelimit"
	"budget/internal/middleware/security"
	"budget/internal/middleware/trace"
	"budget/internal/repository"
	"budget/internal/services"
	"budget/internal/store"
)

// Pinger reports whether the data store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the API serves from.
type Deps struct {
	Gateway  store.Gateway
	Repos    *repository.Repositories
	Months   *services.MonthInitializer
	Holdings *services.HoldingService
	History  *services.HistoryRecorder
	Engine   *budget.Engine
	// Pinger is optional; without it /readyz always reports ready.
	Pinger Pinger
	Logger *log.Logger

	ViewCacheSize int
	ViewCacheTTL  time.Duration
	RateLimit     ratelimit.Config
	Now           func() time.Time
}

type Server struct {
	http.Server

	deps     Deps
	logger   *log.Logger
	views    *cache.Views
	caches   *cache.Manager
	limiter  *ratelimit.Limiter
	detector *security.Detector
	trace    *trace.Middleware

	unsubscribe  func()
	closing      chan struct{}
	shutdownOnce sync.Once
}

// NewServer wires routes and middleware and subscribes the view cache to
// the gateway's change stream. Call Shutdown to release both.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig())
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ViewCacheSize <= 0 {
		deps.ViewCacheSize = 64
	}
	if deps.ViewCacheTTL <= 0 {
		deps.ViewCacheTTL = 5 * time.Minute
	}

	s := &Server{
		deps:     deps,
		logger:   deps.Logger.WithComponent(log.ComponentHTTP),
		views:    cache.NewViews(deps.ViewCacheSize, deps.ViewCacheTTL),
		caches:   cache.NewManager(),
		limiter:  ratelimit.NewLimiter(deps.RateLimit),
		detector: security.NewDetector(),
		closing:  make(chan struct{}),
	}
	s.trace = trace.NewMiddleware(deps.Logger, s.detector.ExtractClientIP)

	s.caches.Register(s.views.Cleaner())
	s.caches.StartCleanup(deps.ViewCacheTTL)
	s.unsubscribe = deps.Gateway.Subscribe("", nil, s.views.Invalidate)

	mux := http.NewServeMux()
	s.routes(mux)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	var handler http.Handler = mux
	handler = s.limiter.Middleware(ratelimit.UserOrIP(UserIDHeader, s.detector.ExtractClientIP))(handler)
	handler = headers.Middleware(handler)
	handler = s.detector.Middleware(handler)
	handler = s.trace.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/categories", s.handleCreateCategory)
	mux.HandleFunc("PUT /api/categories/{id}", s.handleRenameCategory)
	mux.HandleFunc("DELETE /api/categories/{id}", s.handleDeleteCategory)

	mux.HandleFunc("GET /api/fixed-expenses", s.handleListFixedExpenses)
	mux.HandleFunc("POST /api/fixed-expenses", s.handleCreateFixedExpense)
	mux.HandleFunc("PUT /api/fixed-expenses/{id}", s.handleUpdateFixedExpense)
	mux.HandleFunc("DELETE /api/fixed-expenses/{id}", s.handleDeleteFixedExpense)

	mux.HandleFunc("GET /api/default-income", s.handleGetDefaultIncome)
	mux.HandleFunc("PUT /api/default-income", s.handleSetDefaultIncome)

	mux.HandleFunc("GET /api/months/{year}/{month}", s.handleMonth)
	mux.HandleFunc("PUT /api/months/{year}/{month}/income", s.handleSetMonthIncome)
	mux.HandleFunc("POST /api/months/{year}/{month}/income/reset", s.handleResetMonthIncome)
	mux.HandleFunc("PUT /api/months/{year}/{month}/credit-card", s.handleSetCreditCard)
	mux.HandleFunc("PATCH /api/statuses/{id}", s.handleSetStatus)

	mux.HandleFunc("GET /api/months/{year}/{month}/variable-expenses", s.handleListVariableExpenses)
	mux.HandleFunc("POST /api/months/{year}/{month}/variable-expenses", s.handleCreateVariableExpense)
	mux.HandleFunc("PUT /api/variable-expenses/{id}", s.handleUpdateVariableExpense)
	mux.HandleFunc("DELETE /api/variable-expenses/{id}", s.handleDeleteVariableExpense)

	for _, h := range []holdingRoutes{
		{path: "/api/investments", kind: core.KindInvestment},
		{path: "/api/reserves", kind: core.KindReserve},
	} {
		mux.HandleFunc("GET "+h.path, s.handleListHoldings(h.kind))
		mux.HandleFunc("POST "+h.path, s.handleCreateHolding(h.kind))
		mux.HandleFunc("DELETE "+h.path+"/{id}", s.handleDeleteHolding(h.kind))
		mux.HandleFunc("PUT "+h.path+"/{id}/value", s.handleUpdateHoldingValue(h.kind))
		mux.HandleFunc("GET "+h.path+"/{id}/history", s.handleHoldingHistory(h.kind))
	}

	mux.HandleFunc("GET /api/years/{year}/comparison", s.handleComparison)
	mux.HandleFunc("GET /api/years/{year}/categories", s.handleCategoryMatrix)
	mux.HandleFunc("GET /api/years/{year}/export.xlsx", s.handleExportXLSX)
	mux.HandleFunc("GET /api/totals", s.handleTotals)

	mux.HandleFunc("GET /api/events", s.handleEvents)
}

// Shutdown ends open event streams, stops background routines and then
// the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		close(s.closing)
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
		if errors.Is(shutdownErr, http.ErrServerClosed) {
			shutdownErr = nil
		}
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Pinger.Ping(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, err.Error()).Write(w)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// fail writes the error response for err, logging server-side failures.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp := FromError(err)
	if resp.statusCode >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldOperation, op, log.FieldError, err)
	}
	resp.Write(w)
}

// invalidate drops cached views a local write may have changed. The change
// stream does the same asynchronously for every writer.
func (s *Server) invalidate(table string, year int) {
	row := store.Row{}
	if year != 0 {
		row["year"] = year
	}
	s.views.Invalidate(store.ChangeEvent{Table: table, Row: row})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Body(v).Write(w)
}
