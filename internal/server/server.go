// Package server exposes the recreation engine and cache manager over HTTP.
// This is the boundary the web UI talks to; all business logic lives below it.
package server

import (
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/govambam/macroscope-code-review-sub002/internal/config"
	"github.com/govambam/macroscope-code-review-sub002/internal/recreate"
	"github.com/govambam/macroscope-code-review-sub002/internal/refcache"
)

// maxBodySize caps JSON request bodies.
const maxBodySize = 1 << 20

// Server routes HTTP requests to the engine and cache manager.
type Server struct {
	cfg    *config.Config
	engine *recreate.Engine
	cache  *refcache.Manager
	jobs   *Jobs
	logger *log.Logger
}

// NewServer creates a server around shared engine and cache instances.
func NewServer(cfg *config.Config, engine *recreate.Engine, cache *refcache.Manager) *Server {
	return &Server{
		cfg:    cfg,
		engine: engine,
		cache:  cache,
		jobs:   NewJobs(),
		logger: log.NewWithOptions(os.Stderr, log.Options{Prefix: "server"}),
	}
}

// Router builds the HTTP route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/api/recreate", s.handleRecreate)
	r.Get("/api/recreate/{jobID}", s.handleJobEvents)
	r.Get("/ws/recreate/{jobID}", s.handleJobWebSocket)

	r.Get("/api/cache/stats", s.handleCacheStats)
	r.Post("/api/cache", s.handleCacheAdd)
	r.Delete("/api/cache/{owner}/{repo}", s.handleCacheRemove)
	r.Post("/api/cache/clear", s.handleCacheClear)

	return r
}

// ListenAndServe runs the HTTP server on the configured address.
func (s *Server) ListenAndServe() error {
	addr := s.cfg.GetListenAddr()
	s.logger.Info("listening", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}
