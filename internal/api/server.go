// Package api serves the audit HTTP API: submitting audits, reading verdict
// history, streaming run events and exposing prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
	"github.com/hugo-lorenzo-mato/tribunal/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/tribunal/internal/events"
	"github.com/hugo-lorenzo-mato/tribunal/internal/logging"
	"github.com/hugo-lorenzo-mato/tribunal/internal/service/workflow"
)

// RunnerFactory builds a runner for one audit from the current rubric.
type RunnerFactory func(rubric *core.Rubric) (*workflow.Runner, error)

// Config holds the server configuration.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	// MaxConcurrent bounds how many audits run at once; the rest queue.
	MaxConcurrent int
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            "127.0.0.1:8089",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    0, // event streams stay open
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		AllowedOrigins:  []string{"http://localhost:5173"},
		MaxConcurrent:   2,
	}
}

// Server is the audit HTTP API.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	config     Config
	logger     *logging.Logger
	store      core.VerdictStore
	bus        *events.EventBus
	crashes    *diagnostics.CrashDumpWriter
	metrics    http.Handler
	stream     *eventStream
	newRunner  RunnerFactory
	rubric     atomic.Pointer[core.Rubric]
	jobs       *jobTable
	slots      chan struct{}
	runCtx     context.Context
	cancelRuns context.CancelFunc
	wg         sync.WaitGroup
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithStore sets the verdict history the audit listing reads from.
func WithStore(store core.VerdictStore) ServerOption {
	return func(s *Server) {
		s.store = store
	}
}

// WithEventBus sets the bus run events are streamed from.
func WithEventBus(bus *events.EventBus) ServerOption {
	return func(s *Server) {
		s.bus = bus
	}
}

// WithCrashDumps writes a crash dump whenever a background audit panics.
// Without it the panic is still recovered and the audit marked failed.
func WithCrashDumps(w *diagnostics.CrashDumpWriter) ServerOption {
	return func(s *Server) {
		s.crashes = w
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetricsHandler replaces the /metrics handler.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) {
		s.metrics = h
	}
}

// New creates a server that audits with runners built by newRunner.
func New(cfg Config, rubric *core.Rubric, newRunner RunnerFactory, opts ...ServerOption) *Server {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	s := &Server{
		config:    cfg,
		logger:    logging.NewNop(),
		metrics:   promhttp.Handler(),
		newRunner: newRunner,
		jobs:      newJobTable(),
		slots:     make(chan struct{}, cfg.MaxConcurrent),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rubric.Store(rubric)
	s.runCtx, s.cancelRuns = context.WithCancel(context.Background())
	if s.bus != nil {
		s.stream = newEventStream(s.bus)
	}

	s.router = s.setupRouter()
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	if len(s.config.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: s.config.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", "Location"},
			MaxAge:         300,
		}).Handler)
	}

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleAPIRoot)
		r.Get("/rubric", s.handleRubric)
		r.Route("/audits", func(r chi.Router) {
			r.Post("/", s.handleSubmitAudit)
			r.Get("/", s.handleListAudits)
			r.Get("/{id}", s.handleGetAudit)
			r.Delete("/{id}", s.handleDeleteAudit)
		})
		if s.stream != nil {
			r.Get("/events", s.stream.ServeHTTP)
		}
	})
	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// Rubric returns the rubric new audits use.
func (s *Server) Rubric() *core.Rubric {
	return s.rubric.Load()
}

// SetRubric swaps the rubric for audits submitted from now on. Running audits
// keep the rubric they started with.
func (s *Server) SetRubric(r *core.Rubric) {
	if r != nil {
		s.rubric.Store(r)
	}
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start starts the HTTP server in a non-blocking manner.
func (s *Server) Start() error {
	s.logger.Info("starting http server", "addr", s.httpServer.Addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()
	return nil
}

// Shutdown stops accepting requests, cancels running audits and waits for
// them to record their outcome.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if s.stream != nil {
		s.stream.Shutdown()
	}
	err := s.httpServer.Shutdown(shutdownCtx)
	s.cancelRuns()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		s.logger.Warn("audits still running at shutdown")
	}

	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

// Wait blocks until every submitted audit has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}
