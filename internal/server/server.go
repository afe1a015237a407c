// Package server exposes the post listing over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"ttscraper/pkg/config"
	"ttscraper/pkg/logger"
	"ttscraper/pkg/metrics"
)

// Name is reported by the root endpoint
const Name = "ttscraper"

// Deps collects what NewRouter wires together
type Deps struct {
	Config  *config.ServerConfig
	Service PostService
	Health  HealthReporter

	// Recorder and Gatherer are optional. Without a Gatherer /metrics is not served.
	Recorder HTTPRecorder
	Gatherer prometheus.Gatherer

	Version string
	Now     func() time.Time
	Logger  logger.Logger
}

// NewRouter builds the route table and middleware chain.
//
// Middleware order:
//
//	request id → real ip → recovery → access log → CORS → compress
//
// The API key check applies to /v1 only.
func NewRouter(deps *Deps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	h := &handler{
		name:    Name,
		version: deps.Version,
		svc:     deps.Service,
		health:  deps.Health,
		now:     now,
		logger:  log,
	}

	r := chi.NewRouter()
	r.Use(NewRequestIDMiddleware())
	r.Use(chimw.RealIP)
	r.Use(NewRecoveryMiddleware(log))
	r.Use(NewLoggingMiddleware(log, deps.Recorder))
	r.Use(NewCORSMiddleware(deps.Config.AllowedOrigins))
	r.Use(chimw.Compress(5))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no such endpoint", 0)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", 0)
	})

	r.Get("/", h.root)
	r.Get("/health", h.healthCheck)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(NewAPIKeyMiddleware(deps.Config, log))
		r.Get("/tiktok/posts", h.posts)
	})

	return r
}

// Server runs the HTTP API until its context is cancelled
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          logger.Logger
}

// New creates a Server listening on cfg.Addr
func New(cfg *config.ServerConfig, handler http.Handler, log logger.Logger) *Server {
	if log == nil {
		log = logger.GetLogger()
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			// a profile fetch with retries can take a while
			WriteTimeout: 3 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          log,
	}
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		logger.LogComponentStart(s.logger, "http_server", map[string]interface{}{
			"addr": s.httpServer.Addr,
		})
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.shutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.LogComponentStop(s.logger, "http_server", "context cancelled")
	return nil
}
