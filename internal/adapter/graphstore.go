package adapter

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/fusebox-ai/fusebox/internal/domain"
)

// graphStore queries a graph traversal endpoint. A hit's strength decays
// with its distance from the query anchor: rawScore = 1/(1+depth), so a
// direct hit scores 1.0 and each hop halves-then-thirds the confidence.
type graphStore struct {
	src    domain.Source
	paths  resultPaths
	depth  string
	client *http.Client
}

func newGraphStore(src domain.Source) (Adapter, error) {
	if src.Config["endpoint"] == "" {
		return nil, fmt.Errorf("%w: graph_store source %s has no endpoint", domain.ErrValidation, src.ID)
	}
	depth := src.Config["depth_path"]
	if depth == "" {
		depth = "depth"
	}
	return &graphStore{
		src:    src,
		paths:  pathsFromConfig(src.Config),
		depth:  depth,
		client: newHTTPClient(),
	}, nil
}

func (a *graphStore) Kind() domain.SourceKind { return domain.KindGraphStore }
func (a *graphStore) EmptyProbeOK() bool      { return false }

func (a *graphStore) Query(ctx context.Context, query string, opts QueryOpts) ([]domain.RawResult, error) {
	body, err := doJSON(ctx, a.client, http.MethodPost, a.src.Config["endpoint"], a.src.Config["api_key"], map[string]any{
		"query": query,
		"limit": opts.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("graph store %s: %w", a.src.ID, err)
	}

	var results []domain.RawResult
	gjson.GetBytes(body, a.paths.items).ForEach(func(_, value gjson.Result) bool {
		content := value.Get(a.paths.content).String()
		if content == "" {
			return true
		}

		depth := 0.0
		if d := value.Get(a.depth); d.Exists() && d.Float() > 0 {
			depth = d.Float()
		}

		results = append(results, domain.RawResult{
			SourceID:  a.src.ID,
			Kind:      domain.ResultKnowledge,
			Content:   content,
			RawScore:  1 / (1 + depth),
			Relevance: -1,
			Timestamp: parseTimestamp(value.Get(a.paths.timestamp)),
		})
		return true
	})
	return results, nil
}

func (a *graphStore) TestConnection(ctx context.Context) (Probe, error) {
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
