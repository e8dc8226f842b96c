// Package server implements the wastecal HTTP API server.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dwsmith1983/wastecal/internal/engine"
	"github.com/dwsmith1983/wastecal/internal/metrics"
	"github.com/dwsmith1983/wastecal/internal/provider"
	"github.com/dwsmith1983/wastecal/internal/server/handlers"
)

// DefaultMaxBody caps ingest request bodies.
const DefaultMaxBody = 10 << 20

// Server is the wastecal HTTP API server.
type Server struct {
	engine   *engine.Engine
	provider provider.Provider
	feeds    handlers.FeedSource
	logger   *slog.Logger
	apiKey   string
	maxBody  int64
	router   chi.Router
	addr     string
	srv      *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithAPIKey requires X-API-Key on every route but health, metrics and feeds.
func WithAPIKey(key string) Option {
	return func(s *Server) { s.apiKey = key }
}

// WithMaxBody overrides DefaultMaxBody.
func WithMaxBody(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// WithFeeds serves /feeds/{calendarID}.ics from src.
func WithFeeds(src handlers.FeedSource) Option {
	return func(s *Server) { s.feeds = src }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a new HTTP server.
func New(addr string, eng *engine.Engine, prov provider.Provider, opts ...Option) *Server {
	s := &Server{
		engine:   eng,
		provider: prov,
		addr:     addr,
		logger:   slog.Default(),
		maxBody:  DefaultMaxBody,
	}
	for _, o := range opts {
		o(s)
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(requireAPIKey(s.apiKey))
	r.Use(limitBody(s.maxBody))

	s.router = r
	s.registerRoutes(r)
	return s
}

// Handler returns the routed handler, for embedding or tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info("wastecal server listening", "addr", s.addr)
	return s.srv.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}
