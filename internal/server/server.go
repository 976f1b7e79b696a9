// Package server provides the HTTP API for emaki.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/emaki/internal/config"
	"github.com/hyperjump/emaki/internal/keyword"
	"github.com/hyperjump/emaki/internal/storage"
	"github.com/hyperjump/emaki/internal/storyboard"
	"go.uber.org/zap"
)

// requestTimeout bounds every request except synchronous storyboard runs, which wait on image generation.
const requestTimeout = 60 * time.Second

// WatchService reports the inbox directories being watched.
type WatchService interface {
	Directories() []string
}

// Server is the HTTP server for the emaki API.
type Server struct {
	pipeline   *storyboard.Pipeline
	storage    storage.Storage
	sceneIndex keyword.Index
	config     *config.Config
	watch      WatchService
	logger     *zap.Logger
	server     *http.Server
	runs       context.Context
	cancelRuns context.CancelFunc
}

// NewServer creates a server with the given dependencies. watch may be nil when no inbox is configured.
func NewServer(
	pipeline *storyboard.Pipeline,
	store storage.Storage,
	sceneIndex keyword.Index,
	cfg *config.Config,
	watch WatchService,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	runs, cancel := context.WithCancel(context.Background())
	return &Server{
		pipeline:   pipeline,
		storage:    store,
		sceneIndex: sceneIndex,
		config:     cfg,
		watch:      watch,
		logger:     logger,
		runs:       runs,
		cancelRuns: cancel,
	}
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/api/v1/stories", s.handleCreateStory)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Use(middleware.Compress(5, "application/json"))

		r.Post("/api/v1/segment", s.handleSegment)
		r.Get("/api/v1/stories", s.handleListStories)
		r.Get("/api/v1/stories/{id}", s.handleGetStory)
		r.Delete("/api/v1/stories/{id}", s.handleDeleteStory)
		r.Get("/api/v1/stories/{id}/scenes/{index}/image", s.handleSceneImage)
		r.Get("/api/v1/scenes/search", s.handleSearchScenes)
		r.Get("/api/v1/watch/directories", s.handleWatchDirectories)
		r.Get("/api/v1/status", s.handleStatus)
		r.Get("/health", s.handleHealth)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server and cancels background storyboard runs.
func (s *Server) Stop(ctx context.Context) error {
	s.cancelRuns()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
