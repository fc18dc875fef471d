// Package orchestrator accepts search requests, resolves the active source
// set, fans the query out concurrently (memory plus N adapters) under
// bounded parallelism with per-source deadlines, isolates per-source
// failures, and hands the surviving raw results to the fusion engine.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/time/rate"

	"github.com/fusebox-ai/fusebox/internal/adapter"
	"github.com/fusebox-ai/fusebox/internal/domain"
	"github.com/fusebox-ai/fusebox/internal/fusion"
	"github.com/fusebox-ai/fusebox/internal/health"
	"github.com/fusebox-ai/fusebox/internal/registry"
)

// MemorySearcher is the memory-search primitive: the privileged, always-on
// signal fanned out alongside external sources.
type MemorySearcher interface {
	Search(ctx context.Context, projectID, query string, limit int, threshold float64) ([]domain.RawResult, error)
}

// Config tunes the orchestrator.
type Config struct {
	// Defaults is the server-side fusion strategy; requests may override
	// any subset of its fields.
	Defaults domain.Strategy
	// SourceTimeout bounds each per-source query. Default 5s.
	SourceTimeout time.Duration
	// MaxParallel bounds concurrent source queries. Default 8.
	MaxParallel int
}

func (c Config) withDefaults() Config {
	if c.Defaults == (domain.Strategy{}) {
		c.Defaults = domain.DefaultStrategy()
	}
	if c.SourceTimeout <= 0 {
		c.SourceTimeout = 5 * time.Second
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = 8
	}
	return c
}

// Orchestrator coordinates one search end to end. All per-request state is
// private to the call; the only shared mutable state is the rate-limiter
// table.
type Orchestrator struct {
	registry *registry.Registry
	memory   MemorySearcher
	monitor  *health.Monitor
	factory  adapter.Factory
	engine   *fusion.Engine
	cfg      Config

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates an orchestrator with the default adapter factory.
func New(reg *registry.Registry, mem MemorySearcher, mon *health.Monitor, cfg Config) *Orchestrator {
	return &Orchestrator{
		registry: reg,
		memory:   mem,
		monitor:  mon,
		factory:  adapter.New,
		engine:   fusion.New(),
		cfg:      cfg.withDefaults(),
	}
}

// SetFactory overrides the adapter factory, for tests.
func (o *Orchestrator) SetFactory(f adapter.Factory) { o.factory = f }

// SetFusionEngine overrides the fusion engine, for tests needing a fixed clock.
func (o *Orchestrator) SetFusionEngine(e *fusion.Engine) { o.engine = e }

type outcome struct {
	sourceID string
	results  []domain.RawResult
	err      error
}

// Search validates the request, queries memory and all resolved sources in
// parallel, and fuses whatever succeeded. Per-source failures are counted,
// never fatal; only total failure returns an error.
func (o *Orchestrator) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	strat := req.Strategy.Apply(o.cfg.Defaults)
	if req.Limit > 0 {
		strat.MaxResults = req.Limit
	}
	if req.Threshold != nil {
		strat.Threshold = *req.Threshold
	}

	var stats domain.SearchStats
	sources := o.resolveSources(req, &stats)

	// Source priorities for deterministic tie-breaking downstream.
	priorities := make(map[string]int, len(sources))
	for _, src := range sources {
		priorities[src.ID] = src.Priority
	}

	// Fetch enough per source to survive threshold filtering and dedup.
	fetchLimit := strat.MaxResults * 2
	if fetchLimit < 10 {
		fetchLimit = 10
	}

	tasks := len(sources) + 1 // external sources plus memory
	stats.SourcesQueried = tasks
	out := make(chan outcome, tasks)
	sem := make(chan struct{}, o.cfg.MaxParallel)

	go func() {
		sem <- struct{}{}
		defer func() { <-sem }()

		mctx, cancel := context.WithTimeout(ctx, o.cfg.SourceTimeout)
		defer cancel()
		results, err := o.memory.Search(mctx, req.ProjectID, req.Query, fetchLimit, 0)
		out <- outcome{sourceID: domain.MemorySourceID, results: results, err: err}
	}()

	opts := adapter.QueryOpts{Limit: fetchLimit, Threshold: strat.Threshold}
	for _, src := range sources {
		go func(src domain.Source) {
			sem <- struct{}{}
			defer func() { <-sem }()

			results, err := o.querySource(ctx, src, req.Query, opts)
			out <- outcome{sourceID: src.ID, results: results, err: err}
		}(src)
	}

	// Join barrier: every task reports exactly once, completed or failed.
	// A cancelled parent context makes remaining tasks fail fast; results
	// already collected stay eligible for fusion.
	var raw []domain.RawResult
	var errs *multierror.Error
	for i := 0; i < tasks; i++ {
		oc := <-out
		if oc.err != nil {
			if isTimeout(oc.err) {
				stats.SourcesTimedOut++
			} else {
				stats.SourcesFailed++
			}
			errs = multierror.Append(errs, fmt.Errorf("source %s: %w", oc.sourceID, oc.err))
			log.Printf("search: source %s failed: %v", oc.sourceID, oc.err)
			if oc.sourceID != domain.MemorySourceID {
				o.monitor.RecordFailure(oc.sourceID, oc.err)
			}
			continue
		}
		if oc.sourceID != domain.MemorySourceID {
			o.monitor.RecordSuccess(oc.sourceID)
		}
		raw = append(raw, oc.results...)
	}

	if stats.SourcesFailed+stats.SourcesTimedOut == tasks {
		return nil, fmt.Errorf("%w: %v", domain.ErrAggregateFailure, errs.ErrorOrNil())
	}
	stats.TotalCandidates = len(raw)

	fused, err := o.engine.Fuse(req.Query, raw, strat, priorities)
	if err != nil {
		return nil, err
	}

	return &domain.SearchResponse{FusedResults: fused, Stats: stats}, nil
}

// resolveSources turns the request's source filter into a concrete snapshot.
// Empty filter: all enabled, non-degraded sources for the project. Explicit
// ids: intersected with enabled sources (degraded ones stay queryable on
// request); unknown ids are dropped and counted.
func (o *Orchestrator) resolveSources(req domain.SearchRequest, stats *domain.SearchStats) []domain.Source {
	snapshot := o.registry.Snapshot(req.ProjectID, true)

	if len(req.Sources) == 0 {
		resolved := snapshot[:0]
		for _, src := range snapshot {
			if o.monitor.IsDegraded(src.ID) {
				continue
			}
			resolved = append(resolved, src)
		}
		return resolved
	}

	byID := make(map[string]domain.Source, len(snapshot))
	for _, src := range snapshot {
		byID[src.ID] = src
	}

	var resolved []domain.Source
	for _, id := range req.Sources {
		src, ok := byID[id]
		if !ok {
			stats.SourcesSkipped++
			log.Printf("search: requested source %q unknown or disabled, skipping", id)
			continue
		}
		resolved = append(resolved, src)
	}
	return resolved
}

// querySource runs one adapter call under the per-source deadline and the
// source's optional rate limit.
func (o *Orchestrator) querySource(ctx context.Context, src domain.Source, query string, opts adapter.QueryOpts) ([]domain.RawResult, error) {
	if lim := o.limiter(src); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limit wait: %v", domain.ErrSourceUnavailable, err)
		}
	}

	a, err := o.factory(src)
	if err != nil {
		return nil, err
	}

	qctx, cancel := context.WithTimeout(ctx, o.cfg.SourceTimeout)
	defer cancel()

	results, err := a.Query(qctx, query, opts)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: source %s", domain.ErrSourceTimeout, src.ID)
		}
		return nil, err
	}
	return results, nil
}

// limiter returns the per-source rate limiter configured via the
// "rate_limit" config key (queries per second), or nil when unlimited.
func (o *Orchestrator) limiter(src domain.Source) *rate.Limiter {
	raw := src.Config["rate_limit"]
	if raw == "" {
		return nil
	}
	qps, err := strconv.ParseFloat(raw, 64)
	if err != nil || qps <= 0 {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.limiters == nil {
		o.limiters = make(map[string]*rate.Limiter)
	}
	lim, ok := o.limiters[src.ID]
	if !ok || lim.Limit() != rate.Limit(qps) {
		lim = rate.NewLimiter(rate.Limit(qps), 1)
		o.limiters[src.ID] = lim
	}
	return lim
}

func isTimeout(err error) bool {
	return errors.Is(err, domain.ErrSourceTimeout) || errors.Is(err, context.DeadlineExceeded)
}
