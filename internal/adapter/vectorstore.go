package adapter

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fusebox-ai/fusebox/internal/domain"
)

// vectorStore queries a similarity store over a JSON HTTP endpoint.
// Cosine similarity lives in [-1,1], so scores pass through the affine map
// (s+1)/2 onto [0,1].
type vectorStore struct {
	src    domain.Source
	paths  resultPaths
	client *http.Client
}

func newVectorStore(src domain.Source) (Adapter, error) {
	if src.Config["endpoint"] == "" {
		return nil, fmt.Errorf("%w: vector_store source %s has no endpoint", domain.ErrValidation, src.ID)
	}
	return &vectorStore{
		src:    src,
		paths:  pathsFromConfig(src.Config),
		client: newHTTPClient(),
	}, nil
}

func (a *vectorStore) Kind() domain.SourceKind { return domain.KindVectorStore }
func (a *vectorStore) EmptyProbeOK() bool      { return false }

func (a *vectorStore) Query(ctx context.Context, query string, opts QueryOpts) ([]domain.RawResult, error) {
	body, err := doJSON(ctx, a.client, http.MethodPost, a.src.Config["endpoint"], a.src.Config["api_key"], map[string]any{
		"query": query,
		"top_k": opts.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("vector store %s: %w", a.src.ID, err)
	}

	items := parseItems(body, a.paths)
	results := make([]domain.RawResult, 0, len(items))
	for _, it := range items {
		results = append(results, domain.RawResult{
			SourceID:  a.src.ID,
			Kind:      domain.ResultKnowledge,
			Content:   it.content,
			RawScore:  clamp01((it.score + 1) / 2),
			Relevance: -1,
			Timestamp: it.timestamp,
		})
	}
	return results, nil
}

func (a *vectorStore) TestConnection(ctx context.Context) (Probe, error) {
	sample, err := a.Query(ctx, probeQuery, QueryOpts{Limit: 1})
	if err != nil {
		return Probe{Connected: false, Message: err.Error()}, nil
	}
	msg := "connected"
	if len(sample) == 0 {
		msg = "connected (no content matched probe)"
	}
	return Probe{Connected: true, Message: msg, Sample: sample}, nil
}
