// Package server exposes the analysis HTTP API: the orchestrating
// analyze endpoints, usage statistics, health probes, and metrics.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/notefolio/metagen/internal/metrics"
	"github.com/notefolio/metagen/internal/tracing"
)

// Server binds the chi router to the configured address and provides
// graceful shutdown support.
type Server struct {
	router  chi.Router
	handler *AnalyzeHandler
	httpSrv *http.Server
}

// NewServer creates a Server with the given handler and listen address.
// Zero-value timeouts leave the corresponding http.Server field at its
// default (no timeout). If tracingEnabled is true, the OpenTelemetry
// HTTP middleware is added to extract/inject trace context.
func NewServer(handler *AnalyzeHandler, collector *metrics.Collector, addr string, readTimeout, writeTimeout, idleTimeout time.Duration, tracingEnabled bool) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if tracingEnabled {
		r.Use(tracing.HTTPMiddleware)
	}

	r.Post("/api/analyze-article", handler.HandleAnalyze)
	r.Post("/api/analyze-article-full", handler.HandleAnalyze)
	r.Get("/api/usage-stats", handler.HandleUsageStats)

	r.Get("/health", handler.HandleHealth)
	r.Get("/health/ready", handler.HandleReady)
	r.Get("/metrics", metrics.PrometheusHandler(collector))

	srv := &Server{
		router:  r,
		handler: handler,
	}

	srv.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	return srv
}

// Router returns the underlying chi.Router, useful for testing or
// additional route mounting by the caller.
func (s *Server) Router() chi.Router {
	return s.router
}

// Start begins listening for HTTP connections on the configured address.
// It blocks until the server is shut down or encounters a fatal error.
func (s *Server) Start() error {
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
