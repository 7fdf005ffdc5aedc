// Package server provides the read-only HTTP retrieval API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/storyfind/internal/config"
	"github.com/hyperjump/storyfind/internal/models"
	"github.com/hyperjump/storyfind/internal/search"
)

// Searcher is the part of search.Engine the API depends on.
type Searcher interface {
	Search(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error)
	Status() search.Status
}

// Server is the HTTP server for the storyfind API.
type Server struct {
	engine  Searcher
	config  *config.ServerConfig
	index   *config.IndexConfig
	logger  *zap.Logger
	limiter *rate.Limiter
	server  *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIndexConfig lets /api/v1/status report on-disk size for local indexes.
func WithIndexConfig(cfg *config.IndexConfig) Option {
	return func(s *Server) { s.index = cfg }
}

// NewServer creates a server with the given dependencies.
func NewServer(engine Searcher, cfg *config.ServerConfig, opts ...Option) *Server {
	if cfg == nil {
		cfg = &config.ServerConfig{}
	}
	s := &Server{
		engine: engine,
		config: cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = int(cfg.RateLimit) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return s
}

// Handler builds the router with all middleware and routes.
func (s *Server) Handler() http.Handler {
	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware(s.config.CORSOrigins))
	r.Use(s.requestID)

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Post("/search", s.handleSearch)
		r.Get("/status", s.handleStatus)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", headerRequestID},
		ExposedHeaders: []string{headerRequestID},
		MaxAge:         300,
	})
}
