// Package server exposes run reports, run history and metrics over HTTP and
// drives scheduled runs in serve mode.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hed1ad/accessguard/pkg/logger"
)

// Server is the HTTP API.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
}

// NewServer wires routes. history may be nil when no store is configured.
func NewServer(addr string, svc *Service, history History, version string, log *zap.Logger) *Server {
	log = logger.OrNop(log)
	handler := NewHandler(svc, history, version, log)
	router := chi.NewRouter()

	router.Use(middleware.Recoverer)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware(log))
	router.Use(middleware.RealIP)

	router.Get("/health", handler.Health)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/reports", func(r chi.Router) {
		r.Get("/latest", handler.LatestReport)
	})

	router.Route("/runs", func(r chi.Router) {
		r.Get("/", handler.ListRuns)
		r.Post("/", handler.TriggerRun)
		r.Get("/{id}", handler.GetRun)
	})

	router.Get("/entities/{id}/history", handler.EntityHistory)

	return &Server{
		router:  router,
		handler: handler,
		server: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
