package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/d4ckard/shuttle/internal/logger"
	"github.com/d4ckard/shuttle/pkg/runner"
)

// reloadTimeout bounds reload requests; a reload includes a full build.
const reloadTimeout = 60 * time.Second

// NewRouter creates and configures the chi router with all middleware and
// routes.
func NewRouter(r *runner.Runner, gatherer prometheus.Gatherer) http.Handler {
	router := chi.NewRouter()

	// Middleware stack - order matters
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(reloadTimeout))

	h := newUnitHandler(r)

	router.Get("/health", h.Health)

	router.Route("/api/v1", func(router chi.Router) {
		router.Get("/status", h.Status)
		router.Post("/reload", h.Reload)
		router.Post("/stop", h.Stop)
	})

	if gatherer != nil {
		router.Get("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}).ServeHTTP)
	}

	// Root redirect to health for convenience
	router.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/health", http.StatusTemporaryRedirect)
	})

	return router
}

// requestLogger logs API requests using the internal structured logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		}

		// Health probes at DEBUG to avoid polluting logs
		if r.URL.Path == "/health" {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}
