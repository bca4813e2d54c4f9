// Package api provides the HTTP REST surface for the orchestration
// core: project CRUD, stage triggers, poll read models and an SSE
// event stream.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/events"
	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/logging"
	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/registry"
	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/workflow"
)

// Server exposes the orchestrator over HTTP.
type Server struct {
	router  chi.Router
	orch    *workflow.Orchestrator
	agents  *registry.Registry
	bus     *events.Bus
	logger  *logging.Logger
	origins []string
	timeout time.Duration
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithRequestTimeout sets the per-request timeout. Stage triggers are
// synchronous, so this bounds a full dispatch settle.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// NewServer creates an API server.
func NewServer(orch *workflow.Orchestrator, agents *registry.Registry, bus *events.Bus, opts ...Option) *Server {
	s := &Server{
		orch:    orch,
		agents:  agents,
		bus:     bus,
		logger:  logging.NewNop(),
		origins: []string{"*"},
		timeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(s.loggingMiddleware)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           300,
	})
	r.Use(corsHandler.Handler)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/projects", func(r chi.Router) {
			r.Get("/", s.handleListProjects)
			r.Post("/", s.handleCreateProject)

			r.Route("/{projectID}", func(r chi.Router) {
				r.Get("/", s.handleGetProject)
				r.Post("/analyze", s.handleStartAnalysis)
				r.Post("/generate-tests", s.handleGenerateTests)
				r.Post("/generate-scripts", s.handleGenerateScripts)
				r.Post("/run-tests", s.handleRunTests)
				r.Post("/reset", s.handleResetProject)
				r.Get("/workflow", s.handleGetWorkflow)
				r.Get("/stats", s.handleGetStats)
				r.Get("/report", s.handleGetReport)
			})
		})

		r.Route("/agents", func(r chi.Router) {
			r.Get("/", s.handleListAgents)
			r.Post("/{agentID}/recover", s.handleRecoverAgent)
		})

		r.Get("/events", s.handleSSE)
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
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.Error("encoding response", "error", err)
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ListenAndServe starts the HTTP server with graceful shutdown tied to
// the context.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting API server", "addr", addr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
