// Package server exposes the airspace engine over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/wegman-software/airspace-go/internal/engine"
	"github.com/wegman-software/airspace-go/internal/logger"
	"github.com/wegman-software/airspace-go/internal/metrics"
)

// Options configures the HTTP server
type Options struct {
	RequestTimeout time.Duration
	Metrics        *metrics.Collector // optional, reported by /api/health
}

// Server serves the engine's query, overlay and preference endpoints
type Server struct {
	engine  *engine.Engine
	metrics *metrics.Collector
	timeout time.Duration
	log     *zap.Logger
}

// New creates a server for e
func New(e *engine.Engine, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	return &Server{
		engine:  e,
		metrics: opts.Metrics,
		timeout: opts.RequestTimeout,
		log:     logger.Named("server"),
	}
}

// Routes configures the HTTP routes
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		RequestLogger(s.log),
		middleware.Recoverer,
		middleware.Timeout(s.timeout),
	)

	r.Get("/api/health", s.health)

	r.Route("/api/airspaces", func(r chi.Router) {
		r.Get("/at", s.airspacesAt)
		r.Get("/{id}", s.getAirspace)
		r.Get("/{id}/polygon", s.getPolygon)
		r.Get("/{id}/style", s.getStyle)
	})

	r.Post("/api/overlay", s.buildOverlay)
	r.Get("/api/overlay/current", s.currentOverlay)
	r.Post("/api/viewport", s.scheduleViewport)
	r.Post("/api/hit", s.hitTest)

	r.Get("/api/preferences", s.getPreferences)
	r.Put("/api/preferences", s.putPreferences)

	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("Shutting down")
	return srv.Shutdown(shutdownCtx)
}
