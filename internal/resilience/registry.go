package resilience

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Status is the coarse health of a dependency.
type Status string

// Dependency statuses.
const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// Breaker exposes circuit breaker state.
type Breaker interface {
	State() gobreaker.State
	Counts() gobreaker.Counts
}

// Probe actively checks a dependency, e.g. a database ping.
type Probe func(ctx context.Context) error

// Health is a point-in-time report on one dependency.
type Health struct {
	Name          string
	Status        Status
	Breaker       *gobreaker.State
	Counts        gobreaker.Counts
	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string
}

type dependency struct {
	breaker       Breaker
	probe         Probe
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// Registry tracks the dependencies of the service and their health.
type Registry struct {
	mu   sync.RWMutex
	deps map[string]*dependency
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{deps: make(map[string]*dependency)}
}

// RegisterBreaker tracks a dependency guarded by a circuit breaker.
func (r *Registry) RegisterBreaker(name string, b Breaker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(name).breaker = b
}

// RegisterProbe tracks a dependency checked by an active probe.
func (r *Registry) RegisterProbe(name string, p Probe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(name).probe = p
}

func (r *Registry) entry(name string) *dependency {
	d, ok := r.deps[name]
	if !ok {
		d = &dependency{}
		r.deps[name] = d
	}
	return d
}

// RecordSuccess notes a successful call to a dependency.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.deps[name]; ok {
		now := time.Now()
		d.lastSuccessAt = &now
	}
}

// RecordFailure notes a failed call to a dependency.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.deps[name]; ok {
		now := time.Now()
		d.lastFailureAt = &now
		if err != nil {
			d.lastError = err.Error()
		}
	}
}

// Check runs every probe, records the outcomes and returns the health of all
// dependencies ordered by name.
func (r *Registry) Check(ctx context.Context) []Health {
	r.mu.RLock()
	probes := make(map[string]Probe)
	for name, d := range r.deps {
		if d.probe != nil {
			probes[name] = d.probe
		}
	}
	r.mu.RUnlock()

	for name, probe := range probes {
		if err := probe(ctx); err != nil {
			r.RecordFailure(name, err)
		} else {
			r.RecordSuccess(name)
		}
	}
	return r.All()
}

// Get returns the health of one dependency.
func (r *Registry) Get(name string) (Health, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.deps[name]
	if !ok {
		return Health{}, false
	}
	return d.health(name), true
}

// All returns the health of every dependency ordered by name.
func (r *Registry) All() []Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Health, 0, len(r.deps))
	for name, d := range r.deps {
		out = append(out, d.health(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of tracked dependencies.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.deps)
}

func (d *dependency) health(name string) Health {
	h := Health{
		Name:          name,
		LastSuccessAt: d.lastSuccessAt,
		LastFailureAt: d.lastFailureAt,
		LastError:     d.lastError,
	}

	if d.breaker != nil {
		state := d.breaker.State()
		h.Breaker = &state
		h.Counts = d.breaker.Counts()
		switch state {
		case gobreaker.StateOpen:
			h.Status = StatusUnhealthy
		case gobreaker.StateHalfOpen:
			h.Status = StatusDegraded
		default:
			h.Status = StatusHealthy
		}
		return h
	}

	switch {
	case d.lastFailureAt == nil && d.lastSuccessAt == nil:
		h.Status = StatusUnknown
	case d.lastSuccessAt == nil || (d.lastFailureAt != nil && d.lastFailureAt.After(*d.lastSuccessAt)):
		h.Status = StatusUnhealthy
	default:
		h.Status = StatusHealthy
	}
	return h
}

// Overall folds dependency health into one status: unhealthy if any
// dependency is unhealthy, degraded if any is degraded, healthy otherwise.
func Overall(deps []Health) Status {
	status := StatusHealthy
	for _, h := range deps {
		switch h.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}
