package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"budgetcards/internal/ai"
	"budgetcards/internal/cache"
	"budgetcards/internal/core"
	applog "budgetcards/internal/log"
	"budgetcards/internal/middleware/ratelimit"
	"budgetcards/internal/middleware/security"
	"budgetcards/internal/middleware/trace"
	"budgetcards/internal/services"
)

// Board is the month editing surface the handlers drive.
type Board interface {
	MonthView(ctx context.Context, year, month int) (services.MonthView, error)
	NextMonth(ctx context.Context) (services.MonthView, error)
	AddItem(ctx context.Context, year, month int, title, text, amount string) (core.BudgetItem, []core.BudgetItem, error)
	UpdateField(ctx context.Context, year, month int, title string, index int, field, value string) ([]core.BudgetItem, error)
	ToggleStatus(ctx context.Context, year, month int, title string, index int) ([]core.BudgetItem, error)
	Reorder(ctx context.Context, year, month int, title string, from, to int) ([]core.BudgetItem, error)
	DeleteItem(ctx context.Context, year, month int, title, id string) ([]core.BudgetItem, error)
	Summary(ctx context.Context, year, month int) (string, error)
}

// Relay forwards chat-completion requests upstream.
type Relay interface {
	NewRequest(msgs ...ai.Message) ai.ChatRequest
	Do(ctx context.Context, req ai.ChatRequest) (int, []byte, error)
}

// Deps are the collaborators of the server. Only Board is required.
type Deps struct {
	Board      Board
	Classifier services.Classifier
	Relay      Relay
	Views      *cache.LRUCache[services.MonthView]
	Caches     *cache.Manager
	Ready      func(ctx context.Context) error
	Logger     *applog.Logger
	RateLimit  ratelimit.Config
}

type Server struct {
	http.Server
	deps    Deps
	logger  *applog.Logger
	started time.Time

	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter
	traceMiddleware  *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.Default(applog.ComponentHTTP)
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		deps:             deps,
		logger:           logger,
		started:          time.Now(),
		securityDetector: security.NewDetector(logger.WithComponent(applog.ComponentSecurity)),
		rateLimiter:      ratelimit.NewLimiter(deps.RateLimit),
	}
	s.traceMiddleware = trace.NewMiddleware(logger.WithComponent(applog.ComponentTrace), s.securityDetector.ExtractClientIP)

	mux := http.NewServeMux()
	limited := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path)
		ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded").Write(w)
	})
	write := func(h http.HandlerFunc) http.Handler { return limited(h) }

	const month = "/api/months/{year}/{month}"
	const card = month + "/cards/{title}"

	mux.HandleFunc("GET /api/months/next", s.handleNextMonth)
	mux.HandleFunc("GET "+month, s.handleMonth)
	mux.Handle("POST "+card+"/items", write(s.handleAddItem))
	mux.Handle("PATCH "+card+"/items/{index}", write(s.handleUpdateField))
	mux.Handle("POST "+card+"/items/{index}/toggle", write(s.handleToggle))
	mux.Handle("POST "+card+"/reorder", write(s.handleReorder))
	mux.Handle("DELETE "+card+"/items/{id}", write(s.handleDelete))
	mux.Handle("POST "+month+"/summary", write(s.handleSummary))
	mux.Handle("POST /api/classify", write(s.handleClassify))
	// Any method reaches the relay so non-POST gets a JSON 405.
	mux.Handle("/api/analyze-by-ai", write(s.handleAnalyze))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	var handler http.Handler = mux
	handler = s.traceMiddleware.Middleware(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = headers.Middleware(handler)

	s.Server = http.Server{
		Addr:    addr,
		Handler: handler,
	}
	return s
}

// Shutdown stops background routines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		if s.deps.Caches != nil {
			s.deps.Caches.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
