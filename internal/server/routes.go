package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fusebox-ai/fusebox/internal/domain"
)

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("projectId")
	writeJSON(w, http.StatusOK, s.registry.List(projectID))
}

func (s *Server) handleAddSource(w http.ResponseWriter, r *http.Request) {
	var src domain.Source
	if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
		writeError(w, fmt.Errorf("%w: invalid json: %v", domain.ErrValidation, err))
		return
	}

	added, err := s.registry.Add(src)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (s *Server) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sourceID")

	var patch domain.SourcePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, fmt.Errorf("%w: invalid json: %v", domain.ErrValidation, err))
		return
	}

	updated, err := s.registry.Update(id, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleRemoveSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sourceID")

	if err := s.registry.Remove(id); err != nil {
		writeError(w, err)
		return
	}
	s.monitor.Forget(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleTestSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sourceID")

	probe, err := s.monitor.TestSource(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, probe)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req domain.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid json: %v", domain.ErrValidation, err))
		return
	}

	resp, err := s.orch.Search(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAddMemory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID string `json:"projectId"`
		Content   string `json:"content"`
		Category  string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid json: %v", domain.ErrValidation, err))
		return
	}

	m, err := s.memory.Add(req.ProjectID, req.Content, req.Category)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":        m.ID,
		"projectId": m.ProjectID,
		"category":  m.Category,
	})
}
