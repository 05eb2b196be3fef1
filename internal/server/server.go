// Package server provides the HTTP API for Sakuin: project introspection,
// suggestion, learning, and asynchronous training jobs.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tsukimori/sakuin/internal/config"
	"github.com/tsukimori/sakuin/internal/project"
	"github.com/tsukimori/sakuin/internal/training"
)

// Server is the HTTP server for the Sakuin API.
type Server struct {
	registry    *project.Registry
	coordinator *training.Coordinator
	jobs        *training.Jobs
	config      *config.Config
	logger      *zap.Logger
	server      *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	registry *project.Registry,
	coordinator *training.Coordinator,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		registry:    registry,
		coordinator: coordinator,
		jobs:        training.NewJobs(),
		config:      cfg,
		logger:      logger,
	}
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Get("/api/v1/projects", s.handleListProjects)
	r.Get("/api/v1/projects/{id}", s.handleGetProject)
	r.Post("/api/v1/projects/{id}/suggest", s.handleSuggest)
	r.Post("/api/v1/projects/{id}/learn", s.handleLearn)
	r.Post("/api/v1/projects/{id}/train", s.handleTrain)
	r.Delete("/api/v1/projects/{id}/model", s.handleClear)
	r.Get("/api/v1/jobs/{id}", s.handleGetJob)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
