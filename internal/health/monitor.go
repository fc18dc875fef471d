// Package health tracks per-source connectivity. Sources degrade after
// consecutive orchestrator-observed failures and recover on a successful
// probe; degraded sources stay queryable on explicit request but drop out
// of default source resolution to protect request latency.
package health

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/fusebox-ai/fusebox/internal/adapter"
	"github.com/fusebox-ai/fusebox/internal/domain"
	"github.com/fusebox-ai/fusebox/internal/registry"
)

// Pinger reports memory-store reachability.
type Pinger interface {
	Ping() error
}

// Config tunes the monitor.
type Config struct {
	// FailureThreshold is the number of consecutive failures before a
	// source is marked degraded. Default 3.
	FailureThreshold int
	// ProbeTimeout bounds a single connectivity probe. Default 3s.
	ProbeTimeout time.Duration
	// ProbeAttempts is how many times a probe is retried before the
	// source is reported unreachable. Default 2.
	ProbeAttempts int
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 3 * time.Second
	}
	if c.ProbeAttempts <= 0 {
		c.ProbeAttempts = 2
	}
	return c
}

type sourceState struct {
	consecutiveFailures int
	degraded            bool
	connected           bool
	lastError           string
	lastChecked         time.Time
}

// SourceHealth is one source's entry in the aggregate report.
type SourceHealth struct {
	ID                  string            `json:"id"`
	Name                string            `json:"name"`
	Kind                domain.SourceKind `json:"type"`
	Status              string            `json:"status"` // enabled, degraded, disabled
	Connected           bool              `json:"connected"`
	ConsecutiveFailures int               `json:"consecutiveFailures,omitempty"`
	LastError           string            `json:"lastError,omitempty"`
	LastChecked         time.Time         `json:"lastChecked,omitempty"`
}

// Report is the aggregate health report behind GET /health.
type Report struct {
	Status  string         `json:"status"` // ok or degraded
	Memory  bool           `json:"memory"`
	Sources []SourceHealth `json:"sources"`
}

// Monitor probes sources and tracks their degradation state.
type Monitor struct {
	registry *registry.Registry
	factory  adapter.Factory
	memory   Pinger
	cfg      Config

	mu     sync.Mutex
	states map[string]*sourceState

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a monitor over the registry's sources.
func New(reg *registry.Registry, mem Pinger, cfg Config) *Monitor {
	return &Monitor{
		registry: reg,
		factory:  adapter.New,
		memory:   mem,
		cfg:      cfg.withDefaults(),
		states:   make(map[string]*sourceState),
		stopCh:   make(chan struct{}),
	}
}

// SetFactory overrides the adapter factory, for tests.
func (m *Monitor) SetFactory(f adapter.Factory) { m.factory = f }

func (m *Monitor) state(id string) *sourceState {
	s, ok := m.states[id]
	if !ok {
		s = &sourceState{connected: true}
		m.states[id] = s
	}
	return s
}

// RecordFailure notes an orchestrator-observed failure. After
// FailureThreshold consecutive failures the source degrades.
func (m *Monitor) RecordFailure(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state(id)
	s.consecutiveFailures++
	s.lastError = err.Error()
	if !s.degraded && s.consecutiveFailures >= m.cfg.FailureThreshold {
		s.degraded = true
		log.Printf("health: source %s degraded after %d consecutive failures", id, s.consecutiveFailures)
	}
}

// RecordSuccess resets the failure streak. Only a successful probe clears
// the degraded flag.
func (m *Monitor) RecordSuccess(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state(id)
	s.consecutiveFailures = 0
	s.connected = true
	s.lastError = ""
}

// IsDegraded reports whether a source is currently degraded.
func (m *Monitor) IsDegraded(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[id]
	return ok && s.degraded
}

// Forget drops all health state for a removed source.
func (m *Monitor) Forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, id)
}

// TestSource runs a connectivity probe against one source. Returns
// ErrNotFound for unknown ids; an unreachable source is reported in the
// probe, not as an error. A successful probe re-enables a degraded source.
func (m *Monitor) TestSource(ctx context.Context, id string) (adapter.Probe, error) {
	src, ok := m.registry.Get(id)
	if !ok {
		return adapter.Probe{}, fmt.Errorf("%w: source %q", domain.ErrNotFound, id)
	}

	a, err := m.factory(src)
	if err != nil {
		return adapter.Probe{}, err
	}

	probe, err := retry.DoWithData(
		func() (adapter.Probe, error) {
			pctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
			defer cancel()
			p, perr := a.TestConnection(pctx)
			if perr != nil {
				return adapter.Probe{}, perr
			}
			if !p.Connected {
				return adapter.Probe{}, fmt.Errorf("%w: %s", domain.ErrSourceUnavailable, p.Message)
			}
			return p, nil
		},
		retry.Attempts(uint(m.cfg.ProbeAttempts)),
		retry.Delay(200*time.Millisecond),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)

	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state(id)
	s.lastChecked = time.Now()

	if err != nil {
		s.connected = false
		s.lastError = err.Error()
		s.consecutiveFailures++
		return adapter.Probe{Connected: false, Message: err.Error(), Sample: []domain.RawResult{}}, nil
	}

	if s.degraded {
		log.Printf("health: source %s recovered", id)
	}
	s.connected = true
	s.degraded = false
	s.consecutiveFailures = 0
	s.lastError = ""
	if probe.Sample == nil {
		probe.Sample = []domain.RawResult{}
	}
	return probe, nil
}

// Start probes all enabled sources at the given interval until Stop.
func (m *Monitor) Start(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.probeAll()
			case <-m.stopCh:
				return
			}
		}
	}()
}

func (m *Monitor) probeAll() {
	for _, src := range m.registry.Snapshot("", true) {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ProbeTimeout*time.Duration(m.cfg.ProbeAttempts+1))
		if _, err := m.TestSource(ctx, src.ID); err != nil {
			log.Printf("health: probe %s: %v", src.ID, err)
		}
		cancel()
	}
}

// Stop shuts down the periodic prober.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// Report aggregates per-source status plus memory reachability.
func (m *Monitor) Report() Report {
	memOK := m.memory.Ping() == nil

	sources := m.registry.List("")
	report := Report{Memory: memOK, Sources: make([]SourceHealth, 0, len(sources))}

	m.mu.Lock()
	defer m.mu.Unlock()

	degradedCount := 0
	for _, src := range sources {
		sh := SourceHealth{
			ID:        src.ID,
			Name:      src.Name,
			Kind:      src.Kind,
			Status:    "enabled",
			Connected: true,
		}
		if s, ok := m.states[src.ID]; ok {
			sh.Connected = s.connected
			sh.ConsecutiveFailures = s.consecutiveFailures
			sh.LastError = s.lastError
			sh.LastChecked = s.lastChecked
			if s.degraded {
				sh.Status = "degraded"
				degradedCount++
			}
		}
		if !src.Enabled {
			sh.Status = "disabled"
		}
		report.Sources = append(report.Sources, sh)
	}

	report.Status = "ok"
	if !memOK || degradedCount > 0 {
		report.Status = "degraded"
	}
	return report
}
