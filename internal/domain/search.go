package domain

import (
	"fmt"
	"strings"
	"time"
)

// Strategy controls how memory and external knowledge scores are blended.
// Weights are independent multipliers; they are not required to sum to 1.
type Strategy struct {
	MemoryWeight   float64 `json:"memoryWeight"`
	RAGWeight      float64 `json:"ragWeight"`
	TimeDecay      float64 `json:"timeDecay"`
	RelevanceBoost float64 `json:"relevanceBoost"`
	MaxResults     int     `json:"maxResults"`
	Threshold      float64 `json:"threshold"`
}

// DefaultStrategy returns the server-side defaults used when a request
// does not override them.
func DefaultStrategy() Strategy {
	return Strategy{
		MemoryWeight:   0.7,
		RAGWeight:      0.6,
		TimeDecay:      0.02,
		RelevanceBoost: 0.3,
		MaxResults:     20,
		Threshold:      0.1,
	}
}

// StrategyOverride is a per-request partial strategy. Nil fields fall back
// to the server default.
type StrategyOverride struct {
	MemoryWeight   *float64 `json:"memoryWeight,omitempty"`
	RAGWeight      *float64 `json:"ragWeight,omitempty"`
	TimeDecay      *float64 `json:"timeDecay,omitempty"`
	RelevanceBoost *float64 `json:"relevanceBoost,omitempty"`
	MaxResults     *int     `json:"maxResults,omitempty"`
	Threshold      *float64 `json:"threshold,omitempty"`
}

// Apply overlays the override onto base and returns the result.
func (o *StrategyOverride) Apply(base Strategy) Strategy {
	if o == nil {
		return base
	}
	if o.MemoryWeight != nil {
		base.MemoryWeight = *o.MemoryWeight
	}
	if o.RAGWeight != nil {
		base.RAGWeight = *o.RAGWeight
	}
	if o.TimeDecay != nil {
		base.TimeDecay = *o.TimeDecay
	}
	if o.RelevanceBoost != nil {
		base.RelevanceBoost = *o.RelevanceBoost
	}
	if o.MaxResults != nil {
		base.MaxResults = *o.MaxResults
	}
	if o.Threshold != nil {
		base.Threshold = *o.Threshold
	}
	return base
}

// ResultKind separates the privileged memory signal from external knowledge.
type ResultKind string

const (
	ResultMemory    ResultKind = "memory"
	ResultKnowledge ResultKind = "knowledge"
)

// RawResult is a single adapter hit before fusion. RawScore must already be
// normalized to [0,1] by the adapter; the fusion engine clamps defensively.
// Relevance is the adapter's distinct textual-match signal when it has one;
// a negative value means "no distinct signal" and fusion falls back to the
// confidence.
type RawResult struct {
	SourceID  string            `json:"sourceId"`
	Kind      ResultKind        `json:"kind"`
	Content   string            `json:"content"`
	RawScore  float64           `json:"rawScore"`
	Relevance float64           `json:"relevance"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"sourceMetadata,omitempty"`
}

// ResultMetadata explains how a fused score was computed.
type ResultMetadata struct {
	OriginalScore float64   `json:"originalScore"`
	FusionWeight  float64   `json:"fusionWeight"`
	Timestamp     time.Time `json:"timestamp"`
	Confidence    float64   `json:"confidence"`
	Relevance     float64   `json:"relevance"`
	Freshness     float64   `json:"freshness"`
}

// FusedResult is one ranked entry of a search response. Related holds
// near-duplicates merged away by deduplication, each keeping its own score
// and source for auditability.
type FusedResult struct {
	ID         string         `json:"id"`
	Kind       ResultKind     `json:"kind"`
	Content    string         `json:"content"`
	Score      float64        `json:"score"`
	Source     string         `json:"source"`
	Metadata   ResultMetadata `json:"metadata"`
	Highlights []string       `json:"highlights,omitempty"`
	Related    []FusedResult  `json:"relatedResults,omitempty"`
}

// SearchRequest is the input to the orchestrator. An empty Sources list
// means "all enabled sources for the project"; the list never filters the
// memory retriever, which is always queried.
type SearchRequest struct {
	Query     string            `json:"query"`
	ProjectID string            `json:"projectId"`
	Sources   []string          `json:"sources,omitempty"`
	Strategy  *StrategyOverride `json:"fusionStrategy,omitempty"`
	Limit     int               `json:"limit,omitempty"`
	Threshold *float64          `json:"threshold,omitempty"`
}

// Validate checks the required request fields.
func (r SearchRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return fmt.Errorf("%w: query is required", ErrValidation)
	}
	if strings.TrimSpace(r.ProjectID) == "" {
		return fmt.Errorf("%w: projectId is required", ErrValidation)
	}
	return nil
}

// SearchStats reports which sources contributed to a response.
type SearchStats struct {
	SourcesQueried  int `json:"sourcesQueried"`
	SourcesFailed   int `json:"sourcesFailed"`
	SourcesTimedOut int `json:"sourcesTimedOut"`
	SourcesSkipped  int `json:"sourcesSkipped"`
	TotalCandidates int `json:"totalCandidates"`
}

// SearchResponse is the stable JSON contract toward the presentation layer.
type SearchResponse struct {
	FusedResults []FusedResult `json:"fusedResults"`
	Stats        SearchStats   `json:"stats"`
}
