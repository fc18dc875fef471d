package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fusebox-ai/fusebox/internal/domain"
)

// ListSources returns every persisted knowledge source.
func (db *DB) ListSources() ([]domain.Source, error) {
	rows, err := db.Query(`
		SELECT id, name, kind, config, priority, enabled, project_id, created_at, updated_at
		FROM knowledge_sources
	`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (domain.Source, error) {
	var (
		src                  domain.Source
		kind, configJSON     string
		enabled              int
		createdAt, updatedAt int64
	)
	if err := row.Scan(&src.ID, &src.Name, &kind, &configJSON, &src.Priority,
		&enabled, &src.ProjectID, &createdAt, &updatedAt); err != nil {
		return domain.Source{}, fmt.Errorf("scan source: %w", err)
	}
	src.Kind = domain.SourceKind(kind)
	src.Enabled = enabled != 0
	src.CreatedAt = time.UnixMilli(createdAt)
	src.UpdatedAt = time.UnixMilli(updatedAt)
	if configJSON != "" {
		if err := json.Unmarshal([]byte(configJSON), &src.Config); err != nil {
			return domain.Source{}, fmt.Errorf("decode source config %s: %w", src.ID, err)
		}
	}
	return src, nil
}

// PutSource inserts or replaces a knowledge source.
func (db *DB) PutSource(src domain.Source) error {
	config := src.Config
	if config == nil {
		config = map[string]string{}
	}
	configJSON, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("encode source config: %w", err)
	}

	enabled := 0
	if src.Enabled {
		enabled = 1
	}

	_, err = db.Exec(`
		INSERT INTO knowledge_sources (id, name, kind, config, priority, enabled, project_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			config = excluded.config,
			priority = excluded.priority,
			enabled = excluded.enabled,
			project_id = excluded.project_id,
			updated_at = excluded.updated_at
	`, src.ID, src.Name, string(src.Kind), string(configJSON), src.Priority,
		enabled, src.ProjectID, src.CreatedAt.UnixMilli(), src.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("put source %s: %w", src.ID, err)
	}
	return nil
}

// DeleteSource removes a knowledge source. Deleting an absent id is a no-op.
func (db *DB) DeleteSource(id string) error {
	if _, err := db.Exec("DELETE FROM knowledge_sources WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete source %s: %w", id, err)
	}
	return nil
}
