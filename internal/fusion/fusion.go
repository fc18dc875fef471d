// Package fusion turns heterogeneous raw results into one explainable
// ranked list: clamp adapter confidences, apply recency decay, blend
// memory and knowledge weights, filter, merge near-duplicates, and sort
// deterministically. The pipeline is pure and request-scoped; no locks.
package fusion

import (
	"fmt"
	"hash/fnv"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/fusebox-ai/fusebox/internal/domain"
)

// DedupThreshold is the fixed content-similarity bound above which two
// results are merged into one canonical entry.
const DedupThreshold = 0.85

// floorFreshness is assigned to results with no usable timestamp when decay
// is active: the lowest admissible freshness, still above zero so the
// threshold decides survival.
const floorFreshness = 0.01

const maxHighlights = 3

// Engine computes fused scores. The clock is injectable for tests.
type Engine struct {
	now func() time.Time
}

// New returns a fusion engine using the wall clock.
func New() *Engine {
	return &Engine{now: time.Now}
}

// NewWithClock returns a fusion engine with a fixed clock, for tests.
func NewWithClock(now func() time.Time) *Engine {
	return &Engine{now: now}
}

// Fuse runs the full pipeline over raw results. priority maps source id to
// the source's configured priority, used only for tie-breaking.
//
// Per result: confidence = clamp(rawScore), freshness = exp(-timeDecay*ageDays),
// base = weight(kind)*confidence, and
//
//	score = (base*(1-relevanceBoost) + relevanceBoost*relevance) * freshness
//
// so relevanceBoost trades base confidence for pure relevance, and freshness
// can only lower a score, never raise it.
func (e *Engine) Fuse(query string, raw []domain.RawResult, strat domain.Strategy, priority map[string]int) ([]domain.FusedResult, error) {
	now := e.now()
	fused := make([]domain.FusedResult, 0, len(raw))

	for _, r := range raw {
		confidence := clamp01(r.RawScore)

		freshness := 1.0
		if strat.TimeDecay > 0 {
			if r.Timestamp.IsZero() {
				log.Printf("fusion: result from %s has no timestamp, using floor freshness", r.SourceID)
				freshness = floorFreshness
			} else {
				ageDays := now.Sub(r.Timestamp).Hours() / 24
				if ageDays < 0 {
					ageDays = 0
				}
				freshness = math.Exp(-strat.TimeDecay * ageDays)
			}
		}

		relevance := r.Relevance
		if relevance < 0 {
			relevance = confidence
		} else {
			relevance = clamp01(relevance)
		}

		weight := strat.RAGWeight
		if r.Kind == domain.ResultMemory {
			weight = strat.MemoryWeight
		}
		base := weight * confidence

		score := (base*(1-strat.RelevanceBoost) + strat.RelevanceBoost*relevance) * freshness
		if score < 0 {
			return nil, fmt.Errorf("%w: negative score %f for source %s", domain.ErrFusionInconsistency, score, r.SourceID)
		}
		if score < strat.Threshold {
			continue
		}

		fused = append(fused, domain.FusedResult{
			ID:      resultID(r),
			Kind:    r.Kind,
			Content: r.Content,
			Score:   score,
			Source:  r.SourceID,
			Metadata: domain.ResultMetadata{
				OriginalScore: r.RawScore,
				FusionWeight:  weight,
				Timestamp:     r.Timestamp,
				Confidence:    confidence,
				Relevance:     relevance,
				Freshness:     freshness,
			},
			Highlights: highlights(r.Content, query),
		})
	}

	sortResults(fused, priority)
	fused = Dedup(fused)

	if strat.MaxResults > 0 && len(fused) > strat.MaxResults {
		fused = fused[:strat.MaxResults]
	}
	return fused, nil
}

// Dedup merges near-duplicate results. Input must be sorted by rank; the
// first (highest-ranked) member of each cluster becomes canonical and
// absorbs the rest as relatedResults. Idempotent: surviving top-level
// entries are pairwise at or below the threshold, so re-running is a no-op.
func Dedup(sorted []domain.FusedResult) []domain.FusedResult {
	out := make([]domain.FusedResult, 0, len(sorted))
	for _, cand := range sorted {
		merged := false
		for i := range out {
			if Similarity(out[i].Content, cand.Content) > DedupThreshold {
				related := cand
				related.Related = nil
				out[i].Related = append(out[i].Related, related)
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, cand)
		}
	}
	return out
}

// sortResults orders descending by score, then freshness descending, then
// source priority descending, then id ascending. Fully deterministic
// regardless of adapter completion order.
func sortResults(results []domain.FusedResult, priority map[string]int) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Metadata.Freshness != b.Metadata.Freshness {
			return a.Metadata.Freshness > b.Metadata.Freshness
		}
		if pa, pb := priority[a.Source], priority[b.Source]; pa != pb {
			return pa > pb
		}
		return a.ID < b.ID
	})
}

// resultID derives a deterministic id from the source and content, so
// ordering and dedup audits are reproducible across runs.
func resultID(r domain.RawResult) string {
	h := fnv.New32a()
	h.Write([]byte(r.Content))
	return fmt.Sprintf("%s-%08x", r.SourceID, h.Sum32())
}

// highlights extracts short snippets around query term occurrences.
func highlights(content, query string) []string {
	lower := strings.ToLower(content)
	var out []string
	seen := make(map[string]bool)

	for _, term := range strings.Fields(strings.ToLower(query)) {
		if len(term) < 2 {
			continue
		}
		idx := strings.Index(lower, term)
		if idx < 0 {
			continue
		}

		start := idx - 40
		if start < 0 {
			start = 0
		}
		end := idx + len(term) + 40
		if end > len(content) {
			end = len(content)
		}
		snippet := strings.TrimSpace(content[start:end])
		if snippet == "" || seen[snippet] {
			continue
		}
		seen[snippet] = true
		out = append(out, snippet)
		if len(out) >= maxHighlights {
			break
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
