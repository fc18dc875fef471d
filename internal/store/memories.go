package store

import (
	"database/sql"
	"fmt"
	"math"
	"time"
)

// Memory is a single temporal memory entry.
type Memory struct {
	ID          string
	ProjectID   string
	Content     string
	Category    string
	Relevance   float64
	LastAccess  *int64
	AccessCount int
	CreatedAt   int64
	UpdatedAt   int64
}

// CreateMemory inserts a new memory entry with full relevance.
func (db *DB) CreateMemory(m *Memory) error {
	now := time.Now().UnixMilli()
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.Relevance == 0 {
		m.Relevance = 1.0
	}
	if m.Category == "" {
		m.Category = "note"
	}

	_, err := db.Exec(`
		INSERT INTO memories (id, project_id, content, category, relevance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.ProjectID, m.Content, m.Category, m.Relevance, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create memory: %w", err)
	}
	return nil
}

// ListMemories returns all memories, optionally filtered by project.
func (db *DB) ListMemories(projectID string) ([]Memory, error) {
	query := `
		SELECT id, project_id, content, category, relevance, last_access, access_count, created_at, updated_at
		FROM memories
	`
	args := []any{}
	if projectID != "" {
		query += " WHERE project_id = ?"
		args = append(args, projectID)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var memories []Memory
	for rows.Next() {
		var m Memory
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Content, &m.Category, &m.Relevance,
			&m.LastAccess, &m.AccessCount, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

// TouchMemory records a retrieval: resets relevance to 1.0 and bumps the
// access counters. Retrieval is the decay antidote.
func (db *DB) TouchMemory(id string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE memories
		SET relevance = 1.0, last_access = ?, access_count = access_count + 1
		WHERE id = ?
	`, now, id)
	if err != nil {
		return fmt.Errorf("touch memory %s: %w", id, err)
	}
	return nil
}

// DecayAllMemories applies exponential relevance decay: 90-day half-life
// since last access (or creation), floored at 0.1. Computed in Go because
// modernc.org/sqlite lacks pow(). Returns the number of rows updated.
func (db *DB) DecayAllMemories() (int, error) {
	memories, err := db.ListMemories("")
	if err != nil {
		return 0, err
	}

	now := time.Now().UnixMilli()
	updated := 0
	for _, m := range memories {
		anchor := m.CreatedAt
		if m.LastAccess != nil {
			anchor = *m.LastAccess
		}
		days := float64(now-anchor) / float64(24*time.Hour/time.Millisecond)
		if days < 0 {
			days = 0
		}

		relevance := math.Pow(0.5, days/90.0)
		if relevance < 0.1 {
			relevance = 0.1
		}

		if math.Abs(relevance-m.Relevance) < 0.001 {
			continue
		}
		if _, err := db.Exec("UPDATE memories SET relevance = ? WHERE id = ?", relevance, m.ID); err != nil {
			return updated, fmt.Errorf("decay memory %s: %w", m.ID, err)
		}
		updated++
	}
	return updated, nil
}

// CountMemories returns the total number of memory entries.
func (db *DB) CountMemories() (int, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM memories").Scan(&n)
	return n, err
}

// GetMemory returns a memory by id, or nil if not found.
func (db *DB) GetMemory(id string) (*Memory, error) {
	var m Memory
	err := db.QueryRow(`
		SELECT id, project_id, content, category, relevance, last_access, access_count, created_at, updated_at
		FROM memories WHERE id = ?
	`, id).Scan(&m.ID, &m.ProjectID, &m.Content, &m.Category, &m.Relevance,
		&m.LastAccess, &m.AccessCount, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memory %s: %w", id, err)
	}
	return &m, nil
}
