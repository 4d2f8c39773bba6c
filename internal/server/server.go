// Package server exposes the pipeline over HTTP: anonymization, span
// resolution, scoring, and the run audit log.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dativo-io/quill/internal/audit"
	"github.com/dativo-io/quill/internal/pipeline"
)

const defaultTimeout = 60 * time.Second

// Server holds all dependencies for the HTTP API.
type Server struct {
	router     *chi.Mux
	pipeline   *pipeline.Pipeline
	auditStore *audit.Store
	minOverlap float64
	startTime  time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithAuditStore enables the /v1/runs endpoints.
func WithAuditStore(s *audit.Store) Option {
	return func(srv *Server) { srv.auditStore = s }
}

// WithMinOverlap sets the scoring overlap fraction for /v1/score.
func WithMinOverlap(frac float64) Option {
	return func(srv *Server) { srv.minOverlap = frac }
}

// New creates the HTTP server around an assembled pipeline.
func New(p *pipeline.Pipeline, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		pipeline:  p,
		startTime: time.Now(),
	}
	for _, o := range opts {
		o(s)
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(defaultTimeout))

	s.router.Get("/health", s.handleHealth)
	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/anonymize", s.handleAnonymize)
		r.Post("/spans", s.handleSpans)
		r.Post("/score", s.handleScore)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})

	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}
