package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fusebox-ai/fusebox/internal/adapter"
	"github.com/fusebox-ai/fusebox/internal/domain"
	"github.com/fusebox-ai/fusebox/internal/health"
	"github.com/fusebox-ai/fusebox/internal/registry"
	"github.com/fusebox-ai/fusebox/internal/store"
)

type fakeMemory struct {
	results []domain.RawResult
	err     error
}

func (f *fakeMemory) Search(ctx context.Context, projectID, query string, limit int, threshold float64) ([]domain.RawResult, error) {
	return f.results, f.err
}

func (f *fakeMemory) Ping() error { return nil }

type fakeSourceAdapter struct {
	src     domain.Source
	results []domain.RawResult
	err     error
	calls   *atomic.Int64
}

func (f *fakeSourceAdapter) Kind() domain.SourceKind { return f.src.Kind }
func (f *fakeSourceAdapter) EmptyProbeOK() bool      { return false }

func (f *fakeSourceAdapter) Query(ctx context.Context, query string, opts adapter.QueryOpts) ([]domain.RawResult, error) {
	if f.calls != nil {
		f.calls.Add(1)
	}
	return f.results, f.err
}

func (f *fakeSourceAdapter) TestConnection(ctx context.Context) (adapter.Probe, error) {
	return adapter.Probe{Connected: f.err == nil}, nil
}

type harness struct {
	orch    *Orchestrator
	reg     *registry.Registry
	mon     *health.Monitor
	mem     *fakeMemory
	results map[string][]domain.RawResult // by source id
	errs    map[string]error
	calls   map[string]*atomic.Int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	reg, err := registry.New(db)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}

	mem := &fakeMemory{}
	mon := health.New(reg, mem, health.Config{})
	t.Cleanup(mon.Stop)

	h := &harness{
		reg:     reg,
		mon:     mon,
		mem:     mem,
		results: make(map[string][]domain.RawResult),
		errs:    make(map[string]error),
		calls:   make(map[string]*atomic.Int64),
	}

	// No decay and unit weights keep fused scores equal to raw scores.
	h.orch = New(reg, mem, mon, Config{
		Defaults: domain.Strategy{MemoryWeight: 1, RAGWeight: 1, MaxResults: 50},
	})
	h.orch.SetFactory(func(src domain.Source) (adapter.Adapter, error) {
		return &fakeSourceAdapter{
			src:     src,
			results: h.results[src.ID],
			err:     h.errs[src.ID],
			calls:   h.calls[src.ID],
		}, nil
	})
	return h
}

func (h *harness) addSource(t *testing.T, id string, results []domain.RawResult, err error) {
	t.Helper()
	_, aerr := h.reg.Add(domain.Source{
		ID:      id,
		Name:    id,
		Kind:    domain.KindFileTree,
		Config:  map[string]string{"root": t.TempDir()},
		Enabled: true,
	})
	if aerr != nil {
		t.Fatalf("Add %s: %v", id, aerr)
	}
	h.results[id] = results
	h.errs[id] = err
	h.calls[id] = &atomic.Int64{}
}

func hit(source, content string, score float64) domain.RawResult {
	return domain.RawResult{
		SourceID:  source,
		Kind:      domain.ResultKnowledge,
		Content:   content,
		RawScore:  score,
		Relevance: -1,
		Timestamp: time.Now(),
	}
}

func TestSearchFusesMemoryAndSources(t *testing.T) {
	h := newHarness(t)
	h.mem.results = []domain.RawResult{{
		SourceID: domain.MemorySourceID, Kind: domain.ResultMemory,
		Content: "remembered constraint about retries", RawScore: 0.9, Relevance: -1, Timestamp: time.Now(),
	}}
	h.addSource(t, "wiki", []domain.RawResult{hit("wiki", "documented retry policy for workers", 0.5)}, nil)

	resp, err := h.orch.Search(context.Background(), domain.SearchRequest{Query: "retry", ProjectID: "p1"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if resp.Stats.SourcesQueried != 2 {
		t.Errorf("sourcesQueried = %d, want 2 (memory + wiki)", resp.Stats.SourcesQueried)
	}
	if resp.Stats.TotalCandidates != 2 {
		t.Errorf("totalCandidates = %d, want 2", resp.Stats.TotalCandidates)
	}
	if len(resp.FusedResults) != 2 {
		t.Fatalf("results = %d, want 2", len(resp.FusedResults))
	}
	if resp.FusedResults[0].Kind != domain.ResultMemory {
		t.Errorf("first result kind = %s, want memory (higher score)", resp.FusedResults[0].Kind)
	}
}

func TestSearchPartialFailure(t *testing.T) {
	h := newHarness(t)
	h.addSource(t, "good", []domain.RawResult{hit("good", "useful answer", 0.8)}, nil)
	h.addSource(t, "bad", nil, errors.New("connection refused"))

	resp, err := h.orch.Search(context.Background(), domain.SearchRequest{Query: "answer", ProjectID: "p1"})
	if err != nil {
		t.Fatalf("Search: %v, partial failure must not be fatal", err)
	}

	if resp.Stats.SourcesFailed != 1 {
		t.Errorf("sourcesFailed = %d, want 1", resp.Stats.SourcesFailed)
	}
	if resp.Stats.SourcesTimedOut != 0 {
		t.Errorf("sourcesTimedOut = %d, want 0", resp.Stats.SourcesTimedOut)
	}
	if len(resp.FusedResults) != 1 {
		t.Fatalf("results = %d, want 1", len(resp.FusedResults))
	}
	if resp.FusedResults[0].Source != "good" {
		t.Errorf("source = %s, want good", resp.FusedResults[0].Source)
	}
}

func TestSearchTimeoutClassified(t *testing.T) {
	h := newHarness(t)
	h.addSource(t, "slow", nil, context.DeadlineExceeded)
	h.addSource(t, "fast", []domain.RawResult{hit("fast", "quick answer", 0.7)}, nil)

	resp, err := h.orch.Search(context.Background(), domain.SearchRequest{Query: "answer", ProjectID: "p1"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Stats.SourcesTimedOut != 1 {
		t.Errorf("sourcesTimedOut = %d, want 1", resp.Stats.SourcesTimedOut)
	}
	if resp.Stats.SourcesFailed != 0 {
		t.Errorf("sourcesFailed = %d, want 0", resp.Stats.SourcesFailed)
	}
}

func TestSearchAllSourcesFail(t *testing.T) {
	h := newHarness(t)
	h.mem.err = errors.New("db locked")
	h.addSource(t, "down", nil, errors.New("unreachable"))

	_, err := h.orch.Search(context.Background(), domain.SearchRequest{Query: "q", ProjectID: "p1"})
	if !errors.Is(err, domain.ErrAggregateFailure) {
		t.Errorf("err = %v, want ErrAggregateFailure", err)
	}
}

func TestSearchValidation(t *testing.T) {
	h := newHarness(t)

	tests := []domain.SearchRequest{
		{ProjectID: "p1"},
		{Query: "q"},
		{Query: "   ", ProjectID: "p1"},
	}
	for _, req := range tests {
		if _, err := h.orch.Search(context.Background(), req); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("Search(%+v) err = %v, want ErrValidation", req, err)
		}
	}
}

func TestSearchUnknownSourcesSkipped(t *testing.T) {
	h := newHarness(t)
	h.addSource(t, "known", []domain.RawResult{hit("known", "present", 0.6)}, nil)

	resp, err := h.orch.Search(context.Background(), domain.SearchRequest{
		Query: "present", ProjectID: "p1",
		Sources: []string{"known", "ghost"},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Stats.SourcesSkipped != 1 {
		t.Errorf("sourcesSkipped = %d, want 1", resp.Stats.SourcesSkipped)
	}
	if resp.Stats.SourcesQueried != 2 {
		t.Errorf("sourcesQueried = %d, want 2 (memory + known)", resp.Stats.SourcesQueried)
	}
}

func TestSearchSkipsDegradedByDefault(t *testing.T) {
	h := newHarness(t)
	h.addSource(t, "flaky", []domain.RawResult{hit("flaky", "stale answer", 0.9)}, nil)

	for i := 0; i < 3; i++ {
		h.mon.RecordFailure("flaky", errors.New("down"))
	}

	resp, err := h.orch.Search(context.Background(), domain.SearchRequest{Query: "answer", ProjectID: "p1"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Stats.SourcesQueried != 1 {
		t.Errorf("sourcesQueried = %d, want 1 (memory only)", resp.Stats.SourcesQueried)
	}
	if h.calls["flaky"].Load() != 0 {
		t.Error("degraded source was queried by default")
	}

	// Explicit request keeps a degraded source queryable.
	resp, err = h.orch.Search(context.Background(), domain.SearchRequest{
		Query: "answer", ProjectID: "p1", Sources: []string{"flaky"},
	})
	if err != nil {
		t.Fatalf("Search explicit: %v", err)
	}
	if h.calls["flaky"].Load() != 1 {
		t.Error("explicitly requested degraded source was not queried")
	}
	if len(resp.FusedResults) != 1 {
		t.Errorf("results = %d, want 1", len(resp.FusedResults))
	}
}

func TestSearchFailuresDegradeSource(t *testing.T) {
	h := newHarness(t)
	h.addSource(t, "dying", nil, errors.New("refused"))

	for i := 0; i < 3; i++ {
		if _, err := h.orch.Search(context.Background(), domain.SearchRequest{Query: "q", ProjectID: "p1"}); err != nil {
			t.Fatalf("Search %d: %v", i, err)
		}
	}
	if !h.mon.IsDegraded("dying") {
		t.Error("source not degraded after three failed searches")
	}
}

func TestSearchLimitOverride(t *testing.T) {
	h := newHarness(t)
	h.addSource(t, "many", []domain.RawResult{
		hit("many", "alpha finding about parsers", 0.9),
		hit("many", "beta finding about lexers", 0.8),
		hit("many", "gamma finding about tokens", 0.7),
	}, nil)

	resp, err := h.orch.Search(context.Background(), domain.SearchRequest{
		Query: "finding", ProjectID: "p1", Limit: 2,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.FusedResults) != 2 {
		t.Errorf("results = %d, want 2 with limit override", len(resp.FusedResults))
	}
}

func TestSearchThresholdOverride(t *testing.T) {
	h := newHarness(t)
	h.addSource(t, "mixed", []domain.RawResult{
		hit("mixed", "strong match for the query", 0.9),
		hit("mixed", "barely related aside", 0.2),
	}, nil)

	threshold := 0.5
	resp, err := h.orch.Search(context.Background(), domain.SearchRequest{
		Query: "query", ProjectID: "p1", Threshold: &threshold,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.FusedResults) != 1 {
		t.Errorf("results = %d, want 1 above threshold", len(resp.FusedResults))
	}
}

func TestSearchEmptyResultsNotNil(t *testing.T) {
	h := newHarness(t)

	resp, err := h.orch.Search(context.Background(), domain.SearchRequest{Query: "nothing", ProjectID: "p1"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.FusedResults == nil {
		t.Error("fusedResults is nil, want empty slice")
	}
}
