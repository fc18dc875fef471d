// Package domain holds the shared types of the fusion retrieval engine:
// knowledge sources, fusion strategies, raw and fused results, and the
// sentinel errors the HTTP layer maps to status codes.
package domain

import "time"

// SourceKind identifies the adapter variant used to query a knowledge source.
type SourceKind string

const (
	KindSearchEngine    SourceKind = "search_engine"
	KindVectorStore     SourceKind = "vector_store"
	KindGraphStore      SourceKind = "graph_store"
	KindFileTree        SourceKind = "file_tree"
	KindRelationalStore SourceKind = "relational_store"
	KindExternalAPI     SourceKind = "external_api"

	// KindMemory is the internal temporal memory retriever. It is always
	// queried and cannot be registered as an external source.
	KindMemory SourceKind = "memory"
)

// MemorySourceID is the reserved source id carried by memory results.
const MemorySourceID = "memory"

// KnownKind reports whether k is a registrable external source kind.
func KnownKind(k SourceKind) bool {
	switch k {
	case KindSearchEngine, KindVectorStore, KindGraphStore,
		KindFileTree, KindRelationalStore, KindExternalAPI:
		return true
	}
	return false
}

// Source is a configured external knowledge source. The registry owns the
// canonical copy; everything downstream works on snapshots.
type Source struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Kind      SourceKind        `json:"type"`
	Config    map[string]string `json:"config,omitempty"`
	Priority  int               `json:"priority"`
	Enabled   bool              `json:"enabled"`
	ProjectID string            `json:"projectId,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Clone returns a deep copy, so adapters can never mutate registry state.
func (s Source) Clone() Source {
	out := s
	if s.Config != nil {
		out.Config = make(map[string]string, len(s.Config))
		for k, v := range s.Config {
			out.Config[k] = v
		}
	}
	return out
}

// SourcePatch is a partial update applied to an existing source.
// Nil fields are left unchanged; a non-nil Config replaces the whole map.
type SourcePatch struct {
	Name     *string           `json:"name,omitempty"`
	Config   map[string]string `json:"config,omitempty"`
	Priority *int              `json:"priority,omitempty"`
	Enabled  *bool             `json:"enabled,omitempty"`
}
