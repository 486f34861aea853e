package routing

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/scatsroute/scatsroute/internal/geo"
	"github.com/scatsroute/scatsroute/internal/network"
	"github.com/scatsroute/scatsroute/internal/planner"
	"github.com/scatsroute/scatsroute/internal/prediction"
	"github.com/scatsroute/scatsroute/internal/traffic"
)

const (
	instrumentationName = "github.com/scatsroute/scatsroute/internal/routing"

	// MaxRoutes is the largest number of routes a plan returns.
	MaxRoutes = 5

	// DefaultCacheSize is the default number of cached results.
	DefaultCacheSize = 1024

	// DefaultCacheTTL is the default lifetime of a cached result.
	DefaultCacheTTL = time.Minute
)

// VolumeResolver resolves the volume of many sites for one slot.
type VolumeResolver interface {
	ResolveAll(ctx context.Context, siteIDs []int, model string, at time.Time) prediction.Resolution
}

// ServiceConfig holds configuration for the routing service.
type ServiceConfig struct {
	// Topology is the shared road network (required).
	Topology *network.Topology

	// Resolver provides per-site volumes (required).
	Resolver VolumeResolver

	// WeightModel converts distance and volume into travel time.
	// Zero value uses traffic.DefaultWeightModel.
	WeightModel traffic.WeightModel

	// MaxRoutes is how many routes to return, capped at 5 (default: 5).
	MaxRoutes int

	// CacheSize is the number of cached results (default: 1024, negative disables).
	CacheSize int

	// CacheTTL is how long a result stays cached (default: 1 minute).
	CacheTTL time.Duration

	// Logger for service operations.
	Logger zerolog.Logger
}

type cacheKey struct {
	origin      int
	destination int
	model       string
	slot        int
}

// Service plans routes over an immutable topology. Every plan works on its
// own weighted view, so Plan is safe for concurrent use.
type Service struct {
	topo      *network.Topology
	resolver  VolumeResolver
	weights   traffic.WeightModel
	maxRoutes int
	logger    zerolog.Logger

	cache  *expirable.LRU[cacheKey, *Result]
	hits   atomic.Int64
	misses atomic.Int64

	tracer     trace.Tracer
	duration   metric.Float64Histogram
	routeCount metric.Int64Histogram
	fallbacks  metric.Int64Counter
}

// NewService creates a new routing service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Topology == nil {
		return nil, errors.New("routing: topology is required")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("routing: resolver is required")
	}

	weights := cfg.WeightModel
	if weights == (traffic.WeightModel{}) {
		weights = traffic.DefaultWeightModel()
	}

	maxRoutes := cfg.MaxRoutes
	if maxRoutes <= 0 || maxRoutes > MaxRoutes {
		maxRoutes = MaxRoutes
	}

	s := &Service{
		topo:      cfg.Topology,
		resolver:  cfg.Resolver,
		weights:   weights,
		maxRoutes: maxRoutes,
		logger:    cfg.Logger,
		tracer:    otel.Tracer(instrumentationName),
	}

	if cfg.CacheSize >= 0 {
		size := cfg.CacheSize
		if size == 0 {
			size = DefaultCacheSize
		}
		ttl := cfg.CacheTTL
		if ttl <= 0 {
			ttl = DefaultCacheTTL
		}
		s.cache = expirable.NewLRU[cacheKey, *Result](size, nil, ttl)
	}

	if err := s.initMetrics(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) initMetrics() error {
	meter := otel.Meter(instrumentationName)

	var err error
	s.duration, err = meter.Float64Histogram(
		"routing.plan.duration",
		metric.WithDescription("Duration of route planning in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	s.routeCount, err = meter.Int64Histogram(
		"routing.plan.routes",
		metric.WithDescription("Number of routes returned per plan"),
		metric.WithUnit("{route}"),
	)
	if err != nil {
		return err
	}

	s.fallbacks, err = meter.Int64Counter(
		"routing.prediction.fallbacks",
		metric.WithDescription("Site volumes that fell back to the default"),
		metric.WithUnit("{site}"),
	)
	return err
}

// Topology returns the network the service plans over.
func (s *Service) Topology() *network.Topology {
	return s.topo
}

// Sites returns every site ordered by identifier.
func (s *Service) Sites() []network.Site {
	return s.topo.Sites()
}

// Plan returns up to MaxRoutes loopless routes from q.Origin to q.Destination,
// ranked by total travel time. It returns ErrNoRouteFound when the sites are
// not connected and an *Error wrapping ErrInvalidQuery for malformed queries.
func (s *Service) Plan(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()

	ctx, span := s.tracer.Start(ctx, "routing.Plan", trace.WithAttributes(
		attribute.Int("routing.origin", q.Origin),
		attribute.Int("routing.destination", q.Destination),
		attribute.String("routing.model", q.Model),
	))
	defer span.End()

	origin, destination, err := s.validate(q)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	key := cacheKey{
		origin:      q.Origin,
		destination: q.Destination,
		model:       q.Model,
		slot:        traffic.SlotIndex(q.At),
	}
	if res, ok := s.cached(key); ok {
		res.Query = q
		span.SetAttributes(attribute.Bool("routing.cache_hit", true))
		return s.finish(ctx, span, res, start)
	}

	reachable := s.topo.ReachableFrom(origin)
	ids := make([]int, len(reachable))
	for i, idx := range reachable {
		ids[i] = s.topo.SiteAt(idx).ID
	}

	resolution := s.resolver.ResolveAll(ctx, ids, q.Model, q.At)

	// Sites outside the origin's reach never carry a route; their volume is irrelevant.
	volumes := make([]float64, s.topo.Len())
	for i := range volumes {
		volumes[i] = prediction.DefaultVolume
	}
	for i, l := range resolution.Lookups {
		volumes[reachable[i]] = l.Volume
	}

	view, err := s.topo.Reweight(volumes, s.weights)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reweight failed")
		return nil, fmt.Errorf("weighting network: %w", err)
	}

	paths := planner.KShortestPaths(view, origin, destination, s.maxRoutes)

	res := &Result{
		Query:     q,
		Slot:      resolution.Slot,
		Routes:    make([]Route, len(paths)),
		Fallbacks: resolution.Fallbacks(),
	}
	for i, p := range paths {
		res.Routes[i] = s.route(p)
	}

	for reason, n := range res.Fallbacks {
		s.fallbacks.Add(ctx, int64(n), metric.WithAttributes(
			attribute.String("reason", string(reason)),
		))
	}

	// A timed-out resolution carries default volumes that only this query may see.
	if s.cache != nil && ctx.Err() == nil && res.Fallbacks[prediction.FallbackTimeout] == 0 {
		s.cache.Add(key, res)
	}

	s.logger.Debug().
		Int("origin", q.Origin).
		Int("destination", q.Destination).
		Str("model", q.Model).
		Int("slot", res.Slot).
		Int("sites_resolved", len(ids)).
		Int("routes", len(res.Routes)).
		Msg("planned routes")

	return s.finish(ctx, span, res, start)
}

func (s *Service) finish(ctx context.Context, span trace.Span, res *Result, start time.Time) (*Result, error) {
	s.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.Bool("cache_hit", res.Cached),
	))
	s.routeCount.Record(ctx, int64(len(res.Routes)))
	span.SetAttributes(attribute.Int("routing.routes", len(res.Routes)))

	if len(res.Routes) == 0 {
		return nil, &Error{
			Code:    CodeNoRoute,
			Message: fmt.Sprintf("no path from site %d to site %d", res.Query.Origin, res.Query.Destination),
			Err:     ErrNoRouteFound,
		}
	}
	return res, nil
}

func (s *Service) validate(q Query) (int, int, error) {
	origin, ok := s.topo.IndexOf(q.Origin)
	if !ok {
		return 0, 0, &Error{
			Code:    CodeUnknownOrigin,
			Message: fmt.Sprintf("origin site %d is not in the network", q.Origin),
			Err:     ErrUnknownSite,
		}
	}
	destination, ok := s.topo.IndexOf(q.Destination)
	if !ok {
		return 0, 0, &Error{
			Code:    CodeUnknownDestination,
			Message: fmt.Sprintf("destination site %d is not in the network", q.Destination),
			Err:     ErrUnknownSite,
		}
	}
	if err := prediction.ValidateModel(q.Model); err != nil {
		return 0, 0, &Error{
			Code:    CodeInvalidModel,
			Message: err.Error(),
			Err:     ErrInvalidQuery,
		}
	}
	if q.At.IsZero() {
		return 0, 0, &Error{
			Code:    CodeInvalidTime,
			Message: "query time is required",
			Err:     ErrInvalidQuery,
		}
	}
	return origin, destination, nil
}

func (s *Service) route(p planner.Path) Route {
	r := Route{
		Sites:             make([]int, len(p.Nodes)),
		Coordinates:       make([]geo.Coordinate, len(p.Nodes)),
		TravelTimeSeconds: p.Cost,
	}
	for i, idx := range p.Nodes {
		site := s.topo.SiteAt(idx)
		r.Sites[i] = site.ID
		r.Coordinates[i] = site.Coordinate
	}
	return r
}

func (s *Service) cached(key cacheKey) (*Result, bool) {
	if s.cache == nil {
		return nil, false
	}
	res, ok := s.cache.Get(key)
	if !ok {
		s.misses.Add(1)
		return nil, false
	}
	s.hits.Add(1)
	out := *res
	out.Cached = true
	return &out, true
}

// InvalidateCache drops every cached result.
func (s *Service) InvalidateCache() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

// CacheStats contains result cache statistics.
type CacheStats struct {
	Entries int
	Hits    int64
	Misses  int64
	Enabled bool
}

// CacheStats returns result cache statistics.
func (s *Service) CacheStats() CacheStats {
	stats := CacheStats{
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
		Enabled: s.cache != nil,
	}
	if s.cache != nil {
		stats.Entries = s.cache.Len()
	}
	return stats
}
