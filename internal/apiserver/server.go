// Package apiserver is the small net/http surface described by §4.8: JSON
// request/response bodies over an http.ServeMux, errors mapped through the
// §7 taxonomy, in the teacher's handler style (explicit http.HandlerFuncs on
// a mux, a shared writeError helper, no framework).
package apiserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aifocal/akidb/internal/collection"
	"github.com/aifocal/akidb/internal/metadata"
)

// DatabaseRepository is the narrow metadata-repository slice the API surface
// needs for database CRUD; satisfied by *metadata.Repository.
type DatabaseRepository interface {
	CreateDatabase(ctx context.Context, name string) (metadata.Database, error)
	ListDatabases(ctx context.Context) ([]metadata.Database, error)
}

// Config holds every dependency and setting needed to build a Server.
type Config struct {
	Service      *collection.Service
	Repository   DatabaseRepository
	Logger       *slog.Logger
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Gatherer exposes GET /metrics in Prometheus text format. Nil disables
	// the route (no metrics registry configured).
	Gatherer prometheus.Gatherer
}

// Server is the AkiDB HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	svc        *collection.Service
	repo       DatabaseRepository
	logger     *slog.Logger
}

// Handler returns the root HTTP handler, for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// New builds a Server with every route registered.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{svc: cfg.Service, repo: cfg.Repository, logger: cfg.Logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/databases", s.handleCreateDatabase)
	mux.HandleFunc("GET /v1/databases", s.handleListDatabases)

	mux.HandleFunc("POST /v1/databases/{database_id}/collections", s.handleCreateCollection)
	mux.HandleFunc("GET /v1/collections/{id}", s.handleGetCollection)
	mux.HandleFunc("DELETE /v1/collections/{id}", s.handleDeleteCollection)

	mux.HandleFunc("POST /v1/collections/{id}/documents", s.handleUpsertDocument)
	mux.HandleFunc("DELETE /v1/collections/{id}/documents/{doc_id}", s.handleDeleteDocument)
	mux.HandleFunc("POST /v1/collections/{id}/query", s.handleQuery)

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	if cfg.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	s.handler = handler

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  2 * cfg.ReadTimeout,
	}
	return s
}

// Start begins serving HTTP requests; it blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("apiserver: starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("apiserver: shutting down")
	return s.httpServer.Shutdown(ctx)
}
