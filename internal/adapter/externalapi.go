package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/fusebox-ai/fusebox/internal/domain"
)

// externalAPI queries a generic HTTP API. Scores are trusted as [0,1] by
// default (clamped); APIs with unbounded scores set normalize=top1 to be
// rescaled against the response's top hit, like the search-engine adapter.
type externalAPI struct {
	src    domain.Source
	paths  resultPaths
	client *http.Client
}

func newExternalAPI(src domain.Source) (Adapter, error) {
	if src.Config["endpoint"] == "" {
		return nil, fmt.Errorf("%w: external_api source %s has no endpoint", domain.ErrValidation, src.ID)
	}
	return &externalAPI{
		src:    src,
		paths:  pathsFromConfig(src.Config),
		client: newHTTPClient(),
	}, nil
}

func (a *externalAPI) Kind() domain.SourceKind { return domain.KindExternalAPI }
func (a *externalAPI) EmptyProbeOK() bool      { return false }

func (a *externalAPI) Query(ctx context.Context, query string, opts QueryOpts) ([]domain.RawResult, error) {
	method := a.src.Config["method"]
	if method == "" {
		method = http.MethodGet
	}

	var body []byte
	var err error
	if method == http.MethodGet {
		param := a.src.Config["query_param"]
		if param == "" {
			param = "q"
		}
		u, parseErr := url.Parse(a.src.Config["endpoint"])
		if parseErr != nil {
			return nil, fmt.Errorf("%w: bad endpoint: %v", domain.ErrValidation, parseErr)
		}
		q := u.Query()
		q.Set(param, query)
		u.RawQuery = q.Encode()
		body, err = doJSON(ctx, a.client, http.MethodGet, u.String(), a.src.Config["api_key"], nil)
	} else {
		body, err = doJSON(ctx, a.client, method, a.src.Config["endpoint"], a.src.Config["api_key"], map[string]any{
			"query": query,
			"limit": opts.Limit,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("external api %s: %w", a.src.ID, err)
	}

	items := parseItems(body, a.paths)

	var top float64
	if a.src.Config["normalize"] == "top1" {
		for _, it := range items {
			if it.hasScore && it.score > top {
				top = it.score
			}
		}
	}

	results := make([]domain.RawResult, 0, len(items))
	for _, it := range items {
		score := it.score
		if !it.hasScore {
			// APIs without a relevance signal: presence is the match.
			score = 1
		} else if top > 0 {
			score = it.score / top
		}
		results = append(results, domain.RawResult{
			SourceID:  a.src.ID,
			Kind:      domain.ResultKnowledge,
			Content:   it.content,
			RawScore:  clamp01(score),
			Relevance: -1,
			Timestamp: it.timestamp,
		})
	}
	return results, nil
}

func (a *externalAPI) TestConnection(ctx context.Context) (Probe, error) {
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
