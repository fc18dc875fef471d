// Package registry owns the canonical set of configured knowledge sources.
// Writes are serialized behind a single lock and written through to the
// store; readers get immutable snapshots, so registry mutations never race
// with in-flight searches.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fusebox-ai/fusebox/internal/adapter"
	"github.com/fusebox-ai/fusebox/internal/domain"
)

// Store is the persistence contract backing the registry.
type Store interface {
	ListSources() ([]domain.Source, error)
	PutSource(src domain.Source) error
	DeleteSource(id string) error
}

// Registry holds the canonical copy of every configured source.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]domain.Source
	store   Store
}

// New creates a registry backed by the given store and loads the persisted
// sources.
func New(store Store) (*Registry, error) {
	r := &Registry{
		sources: make(map[string]domain.Source),
		store:   store,
	}
	persisted, err := store.ListSources()
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	for _, src := range persisted {
		r.sources[src.ID] = src
	}
	return r, nil
}

// Add validates and registers a new source. The caller supplies the id; a
// missing or duplicate id is a validation error. Per-kind required config
// fields are checked here, at add time, not at query time.
func (r *Registry) Add(src domain.Source) (domain.Source, error) {
	if strings.TrimSpace(src.ID) == "" {
		return domain.Source{}, fmt.Errorf("%w: id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(src.Name) == "" {
		return domain.Source{}, fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if src.Kind == "" {
		return domain.Source{}, fmt.Errorf("%w: type is required", domain.ErrValidation)
	}
	if !domain.KnownKind(src.Kind) {
		return domain.Source{}, fmt.Errorf("%w: unknown source type %q", domain.ErrValidation, src.Kind)
	}
	if err := adapter.ValidateConfig(src.Kind, src.Config); err != nil {
		return domain.Source{}, err
	}

	now := time.Now()
	src.CreatedAt = now
	src.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[src.ID]; exists {
		return domain.Source{}, fmt.Errorf("%w: source %q already exists", domain.ErrValidation, src.ID)
	}
	if err := r.store.PutSource(src); err != nil {
		return domain.Source{}, err
	}
	r.sources[src.ID] = src
	return src.Clone(), nil
}

// Update applies a partial patch to an existing source.
func (r *Registry) Update(id string, patch domain.SourcePatch) (domain.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, exists := r.sources[id]
	if !exists {
		return domain.Source{}, fmt.Errorf("%w: source %q", domain.ErrNotFound, id)
	}

	updated := src.Clone()
	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return domain.Source{}, fmt.Errorf("%w: name cannot be empty", domain.ErrValidation)
		}
		updated.Name = *patch.Name
	}
	if patch.Config != nil {
		if err := adapter.ValidateConfig(updated.Kind, patch.Config); err != nil {
			return domain.Source{}, err
		}
		updated.Config = patch.Config
	}
	if patch.Priority != nil {
		updated.Priority = *patch.Priority
	}
	if patch.Enabled != nil {
		updated.Enabled = *patch.Enabled
	}
	updated.UpdatedAt = time.Now()

	if err := r.store.PutSource(updated); err != nil {
		return domain.Source{}, err
	}
	r.sources[id] = updated
	return updated.Clone(), nil
}

// Remove deletes a source. Idempotent: removing an absent id is not an
// error.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[id]; !exists {
		return nil
	}
	if err := r.store.DeleteSource(id); err != nil {
		return err
	}
	delete(r.sources, id)
	return nil
}

// Get returns a copy of one source.
func (r *Registry) Get(id string) (domain.Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[id]
	if !ok {
		return domain.Source{}, false
	}
	return src.Clone(), true
}

// List returns all sources (enabled and disabled), optionally filtered by
// project, ordered by priority descending then name.
func (r *Registry) List(projectID string) []domain.Source {
	return r.snapshot(projectID, false)
}

// Snapshot returns an immutable copy of the matching sources for a search:
// later registry mutations never affect an in-flight request. An empty
// projectID matches all projects; a source with no project is global and
// matches every project.
func (r *Registry) Snapshot(projectID string, enabledOnly bool) []domain.Source {
	return r.snapshot(projectID, enabledOnly)
}

func (r *Registry) snapshot(projectID string, enabledOnly bool) []domain.Source {
	r.mu.RLock()
	out := make([]domain.Source, 0, len(r.sources))
	for _, src := range r.sources {
		if projectID != "" && src.ProjectID != "" && src.ProjectID != projectID {
			continue
		}
		if enabledOnly && !src.Enabled {
			continue
		}
		out = append(out, src.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}
