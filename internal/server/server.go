// Package server provides the HTTP API for Tsunagu. It is a thin JSON
// adapter over the ingestion pipeline, the retrieval engine, and the
// document store; no ranking or geometry logic lives here.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/tsunagu/internal/config"
	"github.com/hyperjump/tsunagu/internal/events"
	"github.com/hyperjump/tsunagu/internal/indexer"
	"github.com/hyperjump/tsunagu/internal/search"
	"github.com/hyperjump/tsunagu/internal/storage"
	"github.com/hyperjump/tsunagu/internal/watcher"
)

// Server is the HTTP server for the Tsunagu API.
type Server struct {
	engine   *search.Engine
	pipeline *indexer.Pipeline
	storage  storage.Storage
	bus      *events.Bus
	watch    *watcher.Watcher // may be nil when no directories are watched
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies. watch may be nil.
func NewServer(
	engine *search.Engine,
	pipeline *indexer.Pipeline,
	st storage.Storage,
	bus *events.Bus,
	watch *watcher.Watcher,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		engine:   engine,
		pipeline: pipeline,
		storage:  st,
		bus:      bus,
		watch:    watch,
		config:   cfg,
		logger:   logger,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.routes(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Post("/api/v1/documents", s.handleIngestDocument)
		r.Get("/api/v1/documents", s.handleListDocuments)
		r.Get("/api/v1/documents/{id}", s.handleGetDocument)
		r.Post("/api/v1/documents/{id}/retry", s.handleRetryDocument)
		r.Delete("/api/v1/documents/{id}", s.handleDeleteDocument)
		r.Post("/api/v1/documents/{id}/related", s.handleFindRelated)
		r.Get("/api/v1/status", s.handleStatus)
		r.Get("/health", s.handleHealth)
	})

	// The event stream stays open indefinitely, outside the timeout group.
	r.Get("/api/v1/events", s.handleEvents)

	return r
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
