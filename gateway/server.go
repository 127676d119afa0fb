// Package gateway is the HTTP ingress for job submissions.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/glimte/jobgate/config"
	"github.com/glimte/jobgate/health"
	"github.com/glimte/jobgate/metrics"
)

// JobPublisher hands a serialized job payload to the broker. Implemented
// by rabbitmq.Publisher.
type JobPublisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Server wraps the HTTP server and its routes.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds the router and the underlying HTTP server.
func NewServer(cfg *config.Config, publisher JobPublisher, registry *health.Registry, m *metrics.Metrics, logger *slog.Logger) *Server {
	handler := NewHandler(publisher, m, logger)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)

	// Liveness probe.
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	router.Get("/healthz", registry.Handler().ServeHTTP)
	router.Get("/metrics", m.Handler().ServeHTTP)

	router.Route("/v1", func(r chi.Router) {
		r.Use(apiKeyAuth(cfg.APIKey, m))
		r.Post("/jobs", handler.SubmitJob)
	})

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      router,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		},
		logger: logger,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			}
			if reqID := middleware.GetReqID(r.Context()); reqID != "" {
				args = append(args, "request_id", reqID)
			}

			logger.Info("request", args...)
		})
	}
}
