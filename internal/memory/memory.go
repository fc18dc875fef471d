// Package memory implements the internal temporal memory store: the
// privileged, always-queried signal fused ahead of external knowledge
// sources. Entries decay over time and are boosted back by retrieval.
package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fusebox-ai/fusebox/internal/domain"
	"github.com/fusebox-ai/fusebox/internal/store"
)

// Store wraps the memories tables with embedding-backed search.
type Store struct {
	db *store.DB

	mu       sync.RWMutex
	embedder *Embedder

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a memory store and builds the TF-IDF embedder from the
// existing corpus.
func New(db *store.DB) (*Store, error) {
	s := &Store{db: db, stopCh: make(chan struct{})}
	if err := s.RebuildEmbedder(); err != nil {
		return nil, err
	}
	return s, nil
}

// RebuildEmbedder rebuilds the TF-IDF vocabulary from the current corpus and
// re-embeds every entry. Called at startup and by the maintenance timer.
func (s *Store) RebuildEmbedder() error {
	memories, err := s.db.ListMemories("")
	if err != nil {
		return fmt.Errorf("rebuild embedder: %w", err)
	}

	docs := make([]string, 0, len(memories))
	for _, m := range memories {
		docs = append(docs, m.Content)
	}
	embedder := NewEmbedder(docs, 512)

	for _, m := range memories {
		if err := s.db.SaveVector(m.ID, embedder.Embed(m.Content), embedder.Model()); err != nil {
			return fmt.Errorf("re-embed memory %s: %w", m.ID, err)
		}
	}

	s.mu.Lock()
	s.embedder = embedder
	s.mu.Unlock()
	return nil
}

// Add stores a new memory entry and embeds it with the current vocabulary.
func (s *Store) Add(projectID, content, category string) (store.Memory, error) {
	if content == "" {
		return store.Memory{}, fmt.Errorf("%w: content is required", domain.ErrValidation)
	}

	m := store.Memory{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Content:   content,
		Category:  category,
	}
	if err := s.db.CreateMemory(&m); err != nil {
		return store.Memory{}, err
	}

	s.mu.RLock()
	embedder := s.embedder
	s.mu.RUnlock()
	if err := s.db.SaveVector(m.ID, embedder.Embed(content), embedder.Model()); err != nil {
		return store.Memory{}, err
	}
	return m, nil
}

// Search is the memory-search primitive: TF-IDF cosine similarity against
// stored vectors, scaled by decayed relevance. Raw scores land in [0,1].
func (s *Store) Search(ctx context.Context, projectID, query string, limit int, threshold float64) ([]domain.RawResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	embedder := s.embedder
	s.mu.RUnlock()

	queryVec := embedder.Embed(query)

	vectors, err := s.db.AllVectors()
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	memories, err := s.db.ListMemories(projectID)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	byID := make(map[string]store.Memory, len(memories))
	for _, m := range memories {
		byID[m.ID] = m
	}

	var results []domain.RawResult
	for _, v := range vectors {
		m, ok := byID[v.MemoryID]
		if !ok {
			continue // other project
		}
		similarity := CosineSimilarity(queryVec, v.Embedding)
		score := similarity * m.Relevance
		if score <= 0 || score < threshold {
			continue
		}

		results = append(results, domain.RawResult{
			SourceID:  domain.MemorySourceID,
			Kind:      domain.ResultMemory,
			Content:   m.Content,
			RawScore:  score,
			Relevance: similarity,
			Timestamp: time.UnixMilli(m.UpdatedAt),
			Metadata: map[string]string{
				"memoryId": m.ID,
				"category": m.Category,
			},
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].RawScore > results[j].RawScore
	})
	if len(results) > limit {
		results = results[:limit]
	}

	// Touch retrieved memories (retrieval boost)
	for _, r := range results {
		if id := r.Metadata["memoryId"]; id != "" {
			if err := s.db.TouchMemory(id); err != nil {
				log.Printf("memory: touch %s: %v", id, err)
			}
		}
	}

	return results, nil
}

// Ping reports whether the underlying store is reachable.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// Count returns the number of stored memories.
func (s *Store) Count() (int, error) {
	return s.db.CountMemories()
}

// StartMaintenanceTimer runs decay and embedder rebuild at startup and then
// daily, until Stop is called.
func (s *Store) StartMaintenanceTimer() {
	s.runMaintenance()

	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runMaintenance()
			case <-s.stopCh:
				return
			}
		}
	}()
}

func (s *Store) runMaintenance() {
	if updated, err := s.db.DecayAllMemories(); err != nil {
		log.Printf("memory decay error: %v", err)
	} else if updated > 0 {
		log.Printf("memory decay: updated %d entries", updated)
	}
	if err := s.RebuildEmbedder(); err != nil {
		log.Printf("memory embedder rebuild error: %v", err)
	}
}

// Stop shuts down the maintenance goroutine.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
