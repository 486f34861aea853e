package prediction

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/scatsroute/scatsroute/internal/traffic"
)

const (
	// DefaultVolume is the volume used whenever no usable prediction exists.
	DefaultVolume = 100.0

	// DefaultTimeout bounds all lookups of one query.
	DefaultTimeout = 2 * time.Second

	// DefaultConcurrency is the number of parallel lookups per query.
	DefaultConcurrency = 8
)

// FallbackReason explains why a lookup returned the default volume.
type FallbackReason string

// Fallback reasons, in the order the resolver checks them.
const (
	FallbackNone          FallbackReason = ""
	FallbackTimeout       FallbackReason = "timeout"
	FallbackUnavailable   FallbackReason = "unavailable"
	FallbackMissingColumn FallbackReason = "missing_column"
	FallbackOutOfRange    FallbackReason = "out_of_range"
	FallbackInvalidValue  FallbackReason = "invalid_value"
)

// Lookup is the resolved volume of one site.
type Lookup struct {
	SiteID   int
	Volume   float64
	Fallback FallbackReason
}

// Predicted reports whether the volume came from a prediction series.
func (l Lookup) Predicted() bool {
	return l.Fallback == FallbackNone
}

// Resolution is the outcome of resolving many sites for one slot.
type Resolution struct {
	Slot    int
	Lookups []Lookup
}

// Volumes returns the resolved volumes in lookup order.
func (r Resolution) Volumes() []float64 {
	out := make([]float64, len(r.Lookups))
	for i, l := range r.Lookups {
		out[i] = l.Volume
	}
	return out
}

// Fallbacks counts lookups that fell back to the default, by reason.
func (r Resolution) Fallbacks() map[FallbackReason]int {
	counts := make(map[FallbackReason]int)
	for _, l := range r.Lookups {
		if !l.Predicted() {
			counts[l.Fallback]++
		}
	}
	return counts
}

// ResolverConfig holds configuration for the volume resolver.
type ResolverConfig struct {
	// Store provides prediction series (required).
	Store Store

	// Timeout bounds all lookups of one query (default: 2s).
	Timeout time.Duration

	// Concurrency is the number of parallel lookups (default: 8).
	Concurrency int

	// Logger for resolver operations.
	Logger zerolog.Logger
}

// Resolver turns (site, model, time) into a volume. It never fails: every
// missing, malformed or late prediction degrades to DefaultVolume.
type Resolver struct {
	store       Store
	timeout     time.Duration
	concurrency int
	logger      zerolog.Logger
}

// NewResolver creates a resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Resolver{
		store:       cfg.Store,
		timeout:     timeout,
		concurrency: concurrency,
		logger:      cfg.Logger,
	}
}

// StoreName returns the name of the underlying store.
func (r *Resolver) StoreName() string {
	return r.store.Name()
}

// Resolve returns the volume of one site at the slot containing at.
func (r *Resolver) Resolve(ctx context.Context, siteID int, model string, at time.Time) Lookup {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.lookup(ctx, siteID, model, traffic.SlotIndex(at))
}

// ResolveAll resolves every site for the slot containing at. All lookups
// share one deadline; lookups still pending when it expires fall back.
func (r *Resolver) ResolveAll(ctx context.Context, siteIDs []int, model string, at time.Time) Resolution {
	slot := traffic.SlotIndex(at)
	res := Resolution{
		Slot:    slot,
		Lookups: make([]Lookup, len(siteIDs)),
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, id := range siteIDs {
		g.Go(func() error {
			res.Lookups[i] = r.lookup(ctx, id, model, slot)
			return nil
		})
	}
	_ = g.Wait()

	if counts := res.Fallbacks(); len(counts) > 0 {
		event := r.logger.Debug().
			Str("model", model).
			Int("slot", slot).
			Int("sites", len(siteIDs))
		for reason, n := range counts {
			event = event.Int("fallback_"+string(reason), n)
		}
		event.Msg("prediction fallbacks applied")
	}

	return res
}

func (r *Resolver) lookup(ctx context.Context, siteID int, model string, slot int) Lookup {
	fallback := func(reason FallbackReason) Lookup {
		return Lookup{SiteID: siteID, Volume: DefaultVolume, Fallback: reason}
	}

	if ctx.Err() != nil {
		return fallback(FallbackTimeout)
	}

	series, err := r.store.Series(ctx, siteID, model)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fallback(FallbackTimeout)
	case errors.Is(err, ErrValueColumnMissing):
		return fallback(FallbackMissingColumn)
	case errors.Is(err, ErrSeriesNotFound), errors.Is(err, ErrInvalidModel):
		return fallback(FallbackUnavailable)
	default:
		r.logger.Warn().
			Err(err).
			Str("store", r.store.Name()).
			Int("site_id", siteID).
			Str("model", model).
			Msg("prediction lookup failed")
		return fallback(FallbackUnavailable)
	}

	if slot < 0 || slot >= len(series) {
		return fallback(FallbackOutOfRange)
	}
	v := series[slot]
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback(FallbackInvalidValue)
	}
	return Lookup{SiteID: siteID, Volume: v}
}
