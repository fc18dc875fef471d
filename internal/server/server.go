// Package server exposes the fusion engine over HTTP. It owns the route
// table and JSON encoding; all behavior lives in the registry, orchestrator,
// health, and memory packages.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fusebox-ai/fusebox/internal/adapter"
	"github.com/fusebox-ai/fusebox/internal/domain"
	"github.com/fusebox-ai/fusebox/internal/health"
	"github.com/fusebox-ai/fusebox/internal/memory"
	"github.com/fusebox-ai/fusebox/internal/orchestrator"
	"github.com/fusebox-ai/fusebox/internal/registry"
)

// Server is the fusebox HTTP API server.
type Server struct {
	registry *registry.Registry
	orch     *orchestrator.Orchestrator
	monitor  *health.Monitor
	memory   *memory.Store
	router   chi.Router
	version  string
	started  time.Time
}

// New creates a new Server over the assembled components.
func New(reg *registry.Registry, orch *orchestrator.Orchestrator, mon *health.Monitor, mem *memory.Store, version string) *Server {
	s := &Server{
		registry: reg,
		orch:     orch,
		monitor:  mon,
		memory:   mem,
		version:  version,
		started:  time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/sources", s.handleListSources)
		r.Post("/sources", s.handleAddSource)
		r.Put("/sources/{sourceID}", s.handleUpdateSource)
		r.Delete("/sources/{sourceID}", s.handleRemoveSource)
		r.Post("/sources/{sourceID}/test", s.handleTestSource)
		r.Get("/source-types", s.handleSourceTypes)

		r.Post("/search", s.handleSearch)
		r.Post("/memories", s.handleAddMemory)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.Report()

	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}

	memCount, _ := s.memory.Count()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"status":   report.Status,
		"version":  s.version,
		"uptime":   time.Since(s.started).Seconds(),
		"memory":   report.Memory,
		"memories": memCount,
		"sources":  report.Sources,
	})
}

func (s *Server) handleSourceTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, adapter.Catalogue())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the domain error taxonomy to HTTP status codes. Anything
// unrecognized, aggregate failure included, is a 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
