// Package api exposes the control API for a supervised unit: status,
// reload and stop over HTTP, plus health and metrics endpoints.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/d4ckard/shuttle/internal/logger"
	"github.com/d4ckard/shuttle/pkg/config"
	"github.com/d4ckard/shuttle/pkg/runner"
)

// Server provides the control API HTTP server.
//
// Endpoints:
//   - GET /health: Liveness probe
//   - GET /api/v1/status: Unit lifecycle status
//   - POST /api/v1/reload: Rebuild and swap in a new generation
//   - POST /api/v1/stop: Gracefully stop the unit
//   - GET /metrics: Prometheus metrics (when a gatherer is attached)
//
// The server supports graceful shutdown and is safe to stop more than once.
type Server struct {
	server       *http.Server
	config       config.APIConfig
	shutdownOnce sync.Once
}

// NewServer creates a control API server for the given runner.
//
// The server is created in a stopped state; call Start to begin serving.
// gatherer may be nil, in which case /metrics is not registered.
func NewServer(cfg config.APIConfig, r *runner.Runner, gatherer prometheus.Gatherer) *Server {
	router := NewRouter(r, gatherer)

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		config: cfg,
	}
}

// Start serves the control API and blocks until the context is cancelled or
// the server fails. Cancellation triggers graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Control API listening", "port", s.config.Port)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
				// Context was cancelled, error is not needed
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Control API shutdown signal received")
		// Fresh context: the cancelled one would abort the shutdown immediately.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("control API failed: %w", err)
	}
}

// Stop initiates graceful shutdown. Safe to call multiple times and
// concurrently with Start.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("control API shutdown error: %w", err)
			logger.Error("Control API shutdown error", "error", err)
		} else {
			logger.Info("Control API stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server is configured to listen on.
func (s *Server) Port() int {
	return s.config.Port
}
