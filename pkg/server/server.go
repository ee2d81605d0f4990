// Package server exposes the HTTP surface the client depends on: chat and
// streaming endpoints under /api, session CRUD, directory endpoints for
// tools, models and commands, plus root-level health and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tandem-dev/tandem/pkg/commands"
	"github.com/tandem-dev/tandem/pkg/config"
	"github.com/tandem-dev/tandem/pkg/observability"
	"github.com/tandem-dev/tandem/pkg/session"
	"github.com/tandem-dev/tandem/pkg/store"
	"github.com/tandem-dev/tandem/pkg/tools"
)

type Server struct {
	cfg      *config.Config
	manager  *session.Manager
	store    store.Store
	registry *tools.Registry
	commands *commands.Catalog
	metrics  *observability.Metrics

	httpServer *http.Server
}

func New(cfg *config.Config, manager *session.Manager, st store.Store, registry *tools.Registry, catalog *commands.Catalog, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		manager:  manager,
		store:    st,
		registry: registry,
		commands: catalog,
		metrics:  metrics,
	}
}

// Handler builds the full route tree. Exposed so tests can drive the server
// through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(loggingMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Get("/metrics", s.metrics.Handler().ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Post("/chat/{id}", s.handleChatContinue)
		r.Get("/stream/{id}", s.handleStream)
		r.Post("/stop/{id}", s.handleStop)

		r.Get("/sessions", s.handleListSessions)
		r.Route("/session/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Patch("/", s.handleUpdateSession)
			r.Delete("/", s.handleDeleteSession)
			r.Get("/messages", s.handleMessages)
			r.Patch("/cwd", s.handleUpdateWorkingDir)
			r.Get("/plan", s.handleGetPlan)
			r.Put("/plan", s.handleUpdatePlan)
		})

		r.Get("/tools", s.handleTools)
		r.Get("/models", s.handleModels)
		r.Get("/commands", s.handleCommands)
	})

	return r
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: s.Handler(),
	}
	slog.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware answers preflight and stamps every response. OPTIONS is
// handled here so preflight succeeds on any path.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
