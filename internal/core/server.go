// Package core is the process chassis shared by the worker and scheduler
// binaries: logging, the database pool, AWS configuration and the small ops
// HTTP server the worker exposes in local mode.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// Server serves GET /health and, when a gatherer is given, GET /metrics.
type Server struct {
	HealthProbes []HealthProbe

	logger *slog.Logger
	router *chi.Mux
}

// NewServer builds the ops router. gatherer may be nil.
func NewServer(logger *slog.Logger, gatherer prometheus.Gatherer, probes ...HealthProbe) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		HealthProbes: probes,
		logger:       logger,
		router:       chi.NewRouter(),
	}

	s.router.Use(s.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(RequestLogger(logger))

	s.router.Get("/health", s.HandleHealth)
	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("ops server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("ops server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ops server shutdown: %w", err)
	}
	return nil
}
