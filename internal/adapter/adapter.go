// Package adapter implements the SourceAdapter contract: one variant per
// knowledge-source kind, each translating the neutral query into its native
// protocol and mapping native relevance onto a common [0,1] rawScore.
package adapter

import (
	"context"
	"fmt"

	"github.com/fusebox-ai/fusebox/internal/domain"
)

// QueryOpts carries the per-call limits handed to an adapter.
type QueryOpts struct {
	Limit     int
	Threshold float64
}

// Probe is the outcome of a connectivity test.
type Probe struct {
	Connected bool               `json:"connected"`
	Message   string             `json:"message,omitempty"`
	Sample    []domain.RawResult `json:"sample"`
}

// Adapter is the capability contract implemented once per source kind.
// Query must respect the caller's deadline and return a deadline error
// rather than blocking. Errors are values; the orchestrator isolates them.
type Adapter interface {
	Kind() domain.SourceKind
	Query(ctx context.Context, query string, opts QueryOpts) ([]domain.RawResult, error)
	TestConnection(ctx context.Context) (Probe, error)

	// EmptyProbeOK reports whether a probe returning zero results still
	// counts as healthy. True for binary-match sources (file trees) where
	// an empty tree is not a failure.
	EmptyProbeOK() bool
}

// Factory builds an adapter from a source config snapshot.
type Factory func(src domain.Source) (Adapter, error)

// New is the default factory over all known kinds. The source's config has
// already passed registry validation; constructors re-check required fields
// defensively.
func New(src domain.Source) (Adapter, error) {
	switch src.Kind {
	case domain.KindSearchEngine:
		return newSearchEngine(src)
	case domain.KindVectorStore:
		return newVectorStore(src)
	case domain.KindGraphStore:
		return newGraphStore(src)
	case domain.KindFileTree:
		return newFileTree(src)
	case domain.KindRelationalStore:
		return newRelationalStore(src)
	case domain.KindExternalAPI:
		return newExternalAPI(src)
	}
	return nil, fmt.Errorf("%w: unknown source type %q", domain.ErrValidation, src.Kind)
}

// Field describes one config key of an adapter kind.
type Field struct {
	Name        string `json:"name"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

// KindInfo is one entry of the static source-type catalogue.
type KindInfo struct {
	Kind        domain.SourceKind `json:"type"`
	Description string            `json:"description"`
	Fields      []Field           `json:"configFields"`
}

// Catalogue returns the static catalogue of adapter kinds and their config
// fields, served by GET /source-types.
func Catalogue() []KindInfo {
	return []KindInfo{
		{
			Kind:        domain.KindSearchEngine,
			Description: "Full-text search engine behind a JSON HTTP endpoint; scores rescaled against the top hit",
			Fields: []Field{
				{Name: "endpoint", Required: true, Description: "Search endpoint URL"},
				{Name: "api_key", Description: "Bearer token sent as Authorization header"},
				{Name: "results_path", Description: "JSON path of the result array (default: results)"},
				{Name: "content_path", Description: "JSON path of an item's content (default: content)"},
				{Name: "score_path", Description: "JSON path of an item's score (default: score)"},
				{Name: "timestamp_path", Description: "JSON path of an item's timestamp (default: timestamp)"},
			},
		},
		{
			Kind:        domain.KindVectorStore,
			Description: "Vector similarity store behind a JSON HTTP endpoint; similarities mapped from [-1,1] to [0,1]",
			Fields: []Field{
				{Name: "endpoint", Required: true, Description: "Similarity query endpoint URL"},
				{Name: "api_key", Description: "Bearer token sent as Authorization header"},
				{Name: "results_path", Description: "JSON path of the result array (default: results)"},
				{Name: "content_path", Description: "JSON path of an item's content (default: content)"},
				{Name: "score_path", Description: "JSON path of an item's similarity (default: score)"},
				{Name: "timestamp_path", Description: "JSON path of an item's timestamp (default: timestamp)"},
			},
		},
		{
			Kind:        domain.KindGraphStore,
			Description: "Graph traversal store behind a JSON HTTP endpoint; hits scored by path depth",
			Fields: []Field{
				{Name: "endpoint", Required: true, Description: "Traversal query endpoint URL"},
				{Name: "api_key", Description: "Bearer token sent as Authorization header"},
				{Name: "results_path", Description: "JSON path of the result array (default: results)"},
				{Name: "content_path", Description: "JSON path of an item's content (default: content)"},
				{Name: "depth_path", Description: "JSON path of an item's traversal depth (default: depth)"},
				{Name: "timestamp_path", Description: "JSON path of an item's timestamp (default: timestamp)"},
			},
		},
		{
			Kind:        domain.KindFileTree,
			Description: "Local file tree scanned per query; matches are binary and mapped to a constant high confidence",
			Fields: []Field{
				{Name: "root", Required: true, Description: "Root directory to scan"},
				{Name: "extensions", Description: "Comma-separated extension filter, e.g. .md,.txt (default: all files)"},
			},
		},
		{
			Kind:        domain.KindRelationalStore,
			Description: "Relational table queried with per-token LIKE matching; scored by matched-token ratio",
			Fields: []Field{
				{Name: "dsn", Required: true, Description: "Database path or DSN"},
				{Name: "table", Required: true, Description: "Table to query"},
				{Name: "content_column", Description: "Text column to match (default: content)"},
				{Name: "timestamp_column", Description: "Optional unix-milliseconds timestamp column"},
			},
		},
		{
			Kind:        domain.KindExternalAPI,
			Description: "Generic HTTP API; result scores passed through, or rescaled against the top hit when normalize=top1",
			Fields: []Field{
				{Name: "endpoint", Required: true, Description: "API endpoint URL"},
				{Name: "method", Description: "HTTP method (default: GET with query parameter)"},
				{Name: "query_param", Description: "Query string parameter for GET (default: q)"},
				{Name: "api_key", Description: "Bearer token sent as Authorization header"},
				{Name: "normalize", Description: "Score normalization: none or top1 (default: none, clamped)"},
				{Name: "results_path", Description: "JSON path of the result array (default: results)"},
				{Name: "content_path", Description: "JSON path of an item's content (default: content)"},
				{Name: "score_path", Description: "JSON path of an item's score (default: score)"},
				{Name: "timestamp_path", Description: "JSON path of an item's timestamp (default: timestamp)"},
			},
		},
	}
}

// ValidateConfig checks that all required fields for the kind are present.
// Run at registry-add time so misconfiguration fails early, not at query time.
func ValidateConfig(kind domain.SourceKind, config map[string]string) error {
	for _, info := range Catalogue() {
		if info.Kind != kind {
			continue
		}
		for _, f := range info.Fields {
			if f.Required && config[f.Name] == "" {
				return fmt.Errorf("%w: source type %s requires config field %q", domain.ErrValidation, kind, f.Name)
			}
		}
		return nil
	}
	return fmt.Errorf("%w: unknown source type %q", domain.ErrValidation, kind)
}
