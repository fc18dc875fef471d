package adapter

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fusebox-ai/fusebox/internal/domain"
)

// searchEngine queries a full-text engine over a JSON HTTP endpoint.
// Keyword-engine scores (BM25 and friends) have no fixed scale, so each
// response is rescaled against its own top hit: rawScore = score / top1.
type searchEngine struct {
	src    domain.Source
	paths  resultPaths
	client *http.Client
}

func newSearchEngine(src domain.Source) (Adapter, error) {
	if src.Config["endpoint"] == "" {
		return nil, fmt.Errorf("%w: search_engine source %s has no endpoint", domain.ErrValidation, src.ID)
	}
	return &searchEngine{
		src:    src,
		paths:  pathsFromConfig(src.Config),
		client: newHTTPClient(),
	}, nil
}

func (a *searchEngine) Kind() domain.SourceKind { return domain.KindSearchEngine }
func (a *searchEngine) EmptyProbeOK() bool      { return false }

func (a *searchEngine) Query(ctx context.Context, query string, opts QueryOpts) ([]domain.RawResult, error) {
	body, err := doJSON(ctx, a.client, http.MethodPost, a.src.Config["endpoint"], a.src.Config["api_key"], map[string]any{
		"query": query,
		"limit": opts.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("search engine %s: %w", a.src.ID, err)
	}

	items := parseItems(body, a.paths)

	// Rescale against the top-1 score of this response.
	var top float64
	for _, it := range items {
		if it.hasScore && it.score > top {
			top = it.score
		}
	}

	results := make([]domain.RawResult, 0, len(items))
	for _, it := range items {
		score := 0.0
		if top > 0 && it.hasScore {
			score = clamp01(it.score / top)
		}
		results = append(results, domain.RawResult{
			SourceID:  a.src.ID,
			Kind:      domain.ResultKnowledge,
			Content:   it.content,
			RawScore:  score,
			Relevance: -1,
			Timestamp: it.timestamp,
		})
	}
	return results, nil
}

func (a *searchEngine) TestConnection(ctx context.Context) (Probe, error) {
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
