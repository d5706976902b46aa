// Package server exposes the agent graphs over HTTP: manual and
// supervisor-routed queries, SSE streaming, conversation history, health
// and metrics. It is the boundary layer: thread IDs are generated here,
// input messages get their IDs here, and per-thread locking lives here.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentgraph-go/agentgraph/agents"
	"github.com/agentgraph-go/agentgraph/graph"
	"github.com/agentgraph-go/agentgraph/graph/store"
)

// DefaultRequestTimeout bounds one graph invocation from the HTTP layer.
// Time-based behavior belongs to the service, never to the engine.
const DefaultRequestTimeout = 2 * time.Minute

// Server routes HTTP requests onto the compiled agent graphs.
//
// All three graphs must share one checkpoint store so that a thread
// queried manually and then via the supervisor sees the same history;
// conversation reads and deletes go through that shared store.
type Server struct {
	business   *graph.CompiledGraph[agents.State]
	database   *graph.CompiledGraph[agents.State]
	supervisor *graph.CompiledGraph[agents.State]
	store      store.Store[agents.State]

	locks    *threadLocks
	logger   *slog.Logger
	timeout  time.Duration
	registry *prometheus.Registry
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithRequestTimeout bounds each invocation's context.
// Default: DefaultRequestTimeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// WithMetricsRegistry exposes the registry at GET /metrics.
func WithMetricsRegistry(registry *prometheus.Registry) Option {
	return func(s *Server) { s.registry = registry }
}

// New creates a Server over the three agent graphs.
//
// The graphs must be compiled against the same checkpoint store; the
// supervisor graph's store is used for conversation reads and deletes.
func New(business, database, supervisor *graph.CompiledGraph[agents.State], opts ...Option) *Server {
	s := &Server{
		business:   business,
		database:   database,
		supervisor: supervisor,
		store:      supervisor.Store(),
		locks:      newThreadLocks(),
		logger:     slog.Default(),
		timeout:    DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the HTTP routing table.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Post("/query", s.handleQuery)
	r.Post("/query/auto", s.handleQueryAuto)
	r.Post("/query/stream", s.handleQueryStream)
	r.Get("/conversation/{threadID}", s.handleGetConversation)
	r.Delete("/conversation/{threadID}", s.handleDeleteConversation)
	r.Get("/healthz", s.handleHealth)

	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	return r
}

// logRequests logs one line per request with method, path, status and
// duration.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// graphFor maps the external agent type to a compiled graph.
func (s *Server) graphFor(agentType string) (*graph.CompiledGraph[agents.State], bool) {
	switch agentType {
	case "business":
		return s.business, true
	case "database":
		return s.database, true
	default:
		return nil, false
	}
}
