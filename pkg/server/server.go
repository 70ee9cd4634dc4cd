// Package server exposes the scheduler over HTTP.
//
// Endpoints:
//   - GET /health: Liveness probe with scheduler counters
//   - GET /metrics: Prometheus exposition
//   - POST /batches: Submit a batch (optionally waiting for it)
//   - GET /batches/{id}: Batch phase and state
//   - DELETE /batches/{id}: Cancel a batch
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Sternrassler/batch-fetcher/pkg/config"
	"github.com/Sternrassler/batch-fetcher/pkg/fetch"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Server is the HTTP front end of a Scheduler.
type Server struct {
	server       *http.Server
	logger       zerolog.Logger
	shutdownOnce sync.Once
}

// New creates a stopped server. Batches submitted without wait=true live as
// long as baseCtx.
func New(cfg config.ServerConfig, sched *fetch.Scheduler, defaults fetch.BatchConfig, baseCtx context.Context) *Server {
	return &Server{
		server: &http.Server{
			Addr:         cfg.Addr,
			Handler:      NewRouter(NewAPI(sched, defaults, baseCtx)),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: log.With().Str("component", "http-server").Logger(),
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is cancelled, then shuts down within shutdownTimeout.
func (s *Server) Start(ctx context.Context, shutdownTimeout time.Duration) error {
	errChan := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info().Msg("HTTP server shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("HTTP server failed: %w", err)
	}
}

// Stop gracefully shuts the server down. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("HTTP server shutdown error: %w", err)
			s.logger.Error().Err(err).Msg("HTTP server shutdown error")
			return
		}
		s.logger.Info().Msg("HTTP server stopped gracefully")
	})
	return shutdownErr
}
