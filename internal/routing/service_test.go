package routing_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/scatsroute/scatsroute/internal/geo"
	"github.com/scatsroute/scatsroute/internal/network"
	"github.com/scatsroute/scatsroute/internal/prediction"
	"github.com/scatsroute/scatsroute/internal/routing"
	"github.com/scatsroute/scatsroute/internal/traffic"
)

const (
	siteA = 100
	siteB = 200
	siteC = 300
	siteD = 400
)

// metersNorth is the latitude offset, in degrees, of a point d meters north.
func metersNorth(d float64) float64 {
	return d / geo.EarthRadiusMeters * 180 / 3.141592653589793
}

// scenario is a four-site network: A->B->D straight north, A->C->D via a detour east.
func scenario(t *testing.T) *network.Topology {
	t.Helper()
	sites := []network.Site{
		{ID: siteA, Coordinate: geo.Coordinate{Lat: -37.8, Lon: 145.0}},
		{ID: siteB, Coordinate: geo.Coordinate{Lat: -37.8 + metersNorth(1000), Lon: 145.0}},
		{ID: siteC, Coordinate: geo.Coordinate{Lat: -37.8 + metersNorth(1000), Lon: 145.02}},
		{ID: siteD, Coordinate: geo.Coordinate{Lat: -37.8 + metersNorth(2000), Lon: 145.0}},
	}
	links := []network.Link{
		{From: siteA, To: siteB},
		{From: siteB, To: siteD},
		{From: siteA, To: siteC},
		{From: siteC, To: siteD},
	}
	topo, err := network.NewTopology(sites, links)
	require.NoError(t, err)
	return topo
}

// countingResolver counts ResolveAll calls.
type countingResolver struct {
	inner routing.VolumeResolver
	calls atomic.Int32
}

func (c *countingResolver) ResolveAll(ctx context.Context, ids []int, model string, at time.Time) prediction.Resolution {
	c.calls.Add(1)
	return c.inner.ResolveAll(ctx, ids, model, at)
}

func newResolver(store prediction.Store) *prediction.Resolver {
	return prediction.NewResolver(prediction.ResolverConfig{Store: store, Logger: zerolog.Nop()})
}

func newService(t *testing.T, topo *network.Topology, resolver routing.VolumeResolver, cacheSize int) *routing.Service {
	t.Helper()
	svc, err := routing.NewService(routing.ServiceConfig{
		Topology:  topo,
		Resolver:  resolver,
		CacheSize: cacheSize,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	return svc
}

func query(origin, destination int, model string, hour, minute int) routing.Query {
	return routing.Query{
		Origin:      origin,
		Destination: destination,
		Model:       model,
		At:          time.Date(2006, time.October, 1, hour, minute, 0, 0, time.UTC),
	}
}

func pathCost(topo *network.Topology, volume map[int]float64, ids ...int) float64 {
	model := traffic.DefaultWeightModel()
	total := 0.0
	for i := 0; i+1 < len(ids); i++ {
		from, _ := topo.Site(ids[i])
		to, _ := topo.Site(ids[i+1])
		v, ok := volume[ids[i]]
		if !ok {
			v = prediction.DefaultVolume
		}
		total += model.TravelTime(geo.Distance(from.Coordinate, to.Coordinate), v)
	}
	return total
}

func TestService_Plan_Scenario(t *testing.T) {
	topo := scenario(t)
	svc := newService(t, topo, newResolver(prediction.NewMemoryStore()), -1)

	res, err := svc.Plan(context.Background(), query(siteA, siteD, "LSTM", 8, 0))
	require.NoError(t, err)

	require.Len(t, res.Routes, 2)
	assert.Equal(t, []int{siteA, siteB, siteD}, res.Routes[0].Sites)
	assert.Equal(t, []int{siteA, siteC, siteD}, res.Routes[1].Sites)
	assert.InDelta(t, pathCost(topo, nil, siteA, siteB, siteD), res.Routes[0].TravelTimeSeconds, 1e-9)
	assert.InDelta(t, pathCost(topo, nil, siteA, siteC, siteD), res.Routes[1].TravelTimeSeconds, 1e-9)
	assert.Less(t, res.Routes[0].TravelTimeSeconds, res.Routes[1].TravelTimeSeconds)

	// 1000m at the default volume of 100: (1000/16.667 + 30) * 1.1 = 99.
	assert.InDelta(t, 198, res.Routes[0].TravelTimeSeconds, 0.01)
	assert.InDelta(t, 3.3, res.Routes[0].TravelTimeMinutes(), 0.001)

	b, _ := topo.Site(siteB)
	assert.Equal(t, b.Coordinate, res.Routes[0].Coordinates[1])
	assert.Len(t, res.Routes[0].Coordinates, 3)

	assert.Equal(t, 32, res.Slot)
	assert.Equal(t, map[prediction.FallbackReason]int{prediction.FallbackUnavailable: 4}, res.Fallbacks)
	assert.False(t, res.Cached)
}

func TestService_Plan_PredictionsChangeRanking(t *testing.T) {
	topo := scenario(t)
	store := prediction.NewMemoryStore()
	// Slot 0 congests B heavily; slot 1 is outside the series and defaults.
	store.Put(siteB, "LSTM", prediction.Series{5000})
	svc := newService(t, topo, newResolver(store), -1)

	congested, err := svc.Plan(context.Background(), query(siteA, siteD, "LSTM", 0, 5))
	require.NoError(t, err)
	require.Len(t, congested.Routes, 2)
	assert.Equal(t, []int{siteA, siteC, siteD}, congested.Routes[0].Sites)
	assert.InDelta(t, pathCost(topo, map[int]float64{siteB: 5000}, siteA, siteB, siteD),
		congested.Routes[1].TravelTimeSeconds, 1e-9)

	clear, err := svc.Plan(context.Background(), query(siteA, siteD, "LSTM", 0, 20))
	require.NoError(t, err)
	assert.Equal(t, []int{siteA, siteB, siteD}, clear.Routes[0].Sites)
	assert.Equal(t, 1, clear.Fallbacks[prediction.FallbackOutOfRange])
}

func TestService_Plan_InvalidQueries(t *testing.T) {
	svc := newService(t, scenario(t), newResolver(prediction.NewMemoryStore()), 0)

	tests := []struct {
		name    string
		query   routing.Query
		code    string
		unknown bool
	}{
		{"unknown origin", query(999, siteD, "LSTM", 8, 0), routing.CodeUnknownOrigin, true},
		{"unknown destination", query(siteA, 999, "LSTM", 8, 0), routing.CodeUnknownDestination, true},
		{"empty model", query(siteA, siteD, "", 8, 0), routing.CodeInvalidModel, false},
		{"path model", query(siteA, siteD, "../LSTM", 8, 0), routing.CodeInvalidModel, false},
		{"missing time", routing.Query{Origin: siteA, Destination: siteD, Model: "LSTM"}, routing.CodeInvalidTime, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Plan(context.Background(), tt.query)
			require.Error(t, err)
			assert.Nil(t, res)

			var rerr *routing.Error
			require.True(t, errors.As(err, &rerr))
			assert.Equal(t, tt.code, rerr.Code)
			assert.ErrorIs(t, err, routing.ErrInvalidQuery)
			assert.Equal(t, tt.unknown, errors.Is(err, routing.ErrUnknownSite))
			assert.False(t, errors.Is(err, routing.ErrNoRouteFound))
		})
	}
}

func TestService_Plan_NoPath(t *testing.T) {
	svc := newService(t, scenario(t), newResolver(prediction.NewMemoryStore()), 0)

	for i := 0; i < 3; i++ {
		res, err := svc.Plan(context.Background(), query(siteD, siteA, "LSTM", 8, 0))
		assert.Nil(t, res)
		assert.ErrorIs(t, err, routing.ErrNoRouteFound)
		assert.False(t, errors.Is(err, routing.ErrInvalidQuery))

		var rerr *routing.Error
		require.True(t, errors.As(err, &rerr))
		assert.Equal(t, routing.CodeNoRoute, rerr.Code)
	}
}

func TestService_Plan_Trivial(t *testing.T) {
	svc := newService(t, scenario(t), newResolver(prediction.NewMemoryStore()), 0)

	res, err := svc.Plan(context.Background(), query(siteB, siteB, "LSTM", 8, 0))
	require.NoError(t, err)
	require.Len(t, res.Routes, 1)
	assert.Equal(t, []int{siteB}, res.Routes[0].Sites)
	assert.Zero(t, res.Routes[0].TravelTimeSeconds)
}

func TestService_Plan_ResolvesOnlyReachableSites(t *testing.T) {
	var seen []int
	resolver := resolverFunc(func(_ context.Context, ids []int, _ string, _ time.Time) prediction.Resolution {
		seen = append([]int(nil), ids...)
		lookups := make([]prediction.Lookup, len(ids))
		for i, id := range ids {
			lookups[i] = prediction.Lookup{SiteID: id, Volume: 0}
		}
		return prediction.Resolution{Lookups: lookups}
	})
	svc := newService(t, scenario(t), resolver, -1)

	_, err := svc.Plan(context.Background(), query(siteC, siteD, "LSTM", 8, 0))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{siteC, siteD}, seen)
}

type resolverFunc func(ctx context.Context, ids []int, model string, at time.Time) prediction.Resolution

func (f resolverFunc) ResolveAll(ctx context.Context, ids []int, model string, at time.Time) prediction.Resolution {
	return f(ctx, ids, model, at)
}

func TestService_Plan_Cache(t *testing.T) {
	resolver := &countingResolver{inner: newResolver(prediction.NewMemoryStore())}
	svc := newService(t, scenario(t), resolver, 16)
	ctx := context.Background()

	first, err := svc.Plan(ctx, query(siteA, siteD, "LSTM", 8, 0))
	require.NoError(t, err)
	assert.False(t, first.Cached)

	// Same slot, different minute and date.
	q := query(siteA, siteD, "LSTM", 8, 14)
	q.At = q.At.AddDate(0, 0, 3)
	second, err := svc.Plan(ctx, q)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, q, second.Query)
	assert.Equal(t, first.Routes, second.Routes)
	assert.Equal(t, int32(1), resolver.calls.Load())

	_, err = svc.Plan(ctx, query(siteA, siteD, "LSTM", 8, 15))
	require.NoError(t, err)
	assert.Equal(t, int32(2), resolver.calls.Load())

	stats := svc.CacheStats()
	assert.True(t, stats.Enabled)
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)

	svc.InvalidateCache()
	assert.Equal(t, 0, svc.CacheStats().Entries)
	_, err = svc.Plan(ctx, query(siteA, siteD, "LSTM", 8, 0))
	require.NoError(t, err)
	assert.Equal(t, int32(3), resolver.calls.Load())
}

func TestService_Plan_TimedOutResultNotCached(t *testing.T) {
	store := prediction.NewMemoryStore()
	store.Put(siteA, "LSTM", prediction.Series{5000})
	store.Put(siteB, "LSTM", prediction.Series{5000})
	resolver := &countingResolver{inner: newResolver(store)}
	svc := newService(t, scenario(t), resolver, 16)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	degraded, err := svc.Plan(cancelled, query(siteA, siteD, "LSTM", 0, 0))
	require.NoError(t, err)
	assert.Positive(t, degraded.Fallbacks[prediction.FallbackTimeout])
	assert.Equal(t, 0, svc.CacheStats().Entries)

	healthy, err := svc.Plan(context.Background(), query(siteA, siteD, "LSTM", 0, 0))
	require.NoError(t, err)
	assert.False(t, healthy.Cached)
	assert.Zero(t, healthy.Fallbacks[prediction.FallbackTimeout])
	assert.Equal(t, int32(2), resolver.calls.Load())
	assert.Greater(t, healthy.Routes[0].TravelTimeSeconds, degraded.Routes[0].TravelTimeSeconds)
	assert.Equal(t, 1, svc.CacheStats().Entries)
}

func TestService_CacheDisabled(t *testing.T) {
	resolver := &countingResolver{inner: newResolver(prediction.NewMemoryStore())}
	svc := newService(t, scenario(t), resolver, -1)

	for i := 0; i < 2; i++ {
		_, err := svc.Plan(context.Background(), query(siteA, siteD, "LSTM", 8, 0))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), resolver.calls.Load())
	assert.False(t, svc.CacheStats().Enabled)
}

func TestService_Plan_Idempotent(t *testing.T) {
	store := prediction.NewMemoryStore()
	store.Put(siteA, "LSTM", prediction.Series{250})
	store.Put(siteC, "LSTM", prediction.Series{10})
	svc := newService(t, scenario(t), newResolver(store), -1)

	first, err := svc.Plan(context.Background(), query(siteA, siteD, "LSTM", 0, 0))
	require.NoError(t, err)
	second, err := svc.Plan(context.Background(), query(siteA, siteD, "LSTM", 0, 0))
	require.NoError(t, err)
	assert.Equal(t, first.Routes, second.Routes)
}

func TestService_Plan_ConcurrentQueries(t *testing.T) {
	topo := scenario(t)
	store := prediction.NewMemoryStore()
	models := []string{"LSTM", "GRU", "SAES", "TCN"}
	for i, m := range models {
		store.Put(siteB, m, prediction.Series{float64(i) * 3000})
		store.Put(siteC, m, prediction.Series{float64(len(models)-i) * 3000})
	}
	svc := newService(t, topo, newResolver(store), -1)

	want := make(map[string][]routing.Route)
	for _, m := range models {
		res, err := svc.Plan(context.Background(), query(siteA, siteD, m, 0, 0))
		require.NoError(t, err)
		want[m] = res.Routes
	}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(m string) {
			defer wg.Done()
			res, err := svc.Plan(context.Background(), query(siteA, siteD, m, 0, 0))
			if err != nil {
				errs <- err
				return
			}
			if !assert.ObjectsAreEqual(want[m], res.Routes) {
				errs <- fmt.Errorf("model %s: routes differ from sequential plan", m)
			}
		}(models[i%len(models)])
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestService_MaxRoutes(t *testing.T) {
	sites := make([]network.Site, 6)
	var links []network.Link
	for i := range sites {
		sites[i] = network.Site{ID: i + 1, Coordinate: geo.Coordinate{Lat: -37.8 + float64(i)*0.001, Lon: 145.0}}
	}
	for i := range sites {
		for j := range sites {
			links = append(links, network.Link{From: i + 1, To: j + 1})
		}
	}
	topo, err := network.NewTopology(sites, links)
	require.NoError(t, err)

	tests := []struct {
		max  int
		want int
	}{
		{0, 5},
		{10, 5},
		{2, 2},
		{1, 1},
	}
	for _, tt := range tests {
		svc, err := routing.NewService(routing.ServiceConfig{
			Topology:  topo,
			Resolver:  newResolver(prediction.NewMemoryStore()),
			MaxRoutes: tt.max,
			Logger:    zerolog.Nop(),
		})
		require.NoError(t, err)

		res, err := svc.Plan(context.Background(), query(1, 6, "LSTM", 8, 0))
		require.NoError(t, err)
		assert.Len(t, res.Routes, tt.want, "max routes %d", tt.max)
	}
}

func TestNewService_RequiresDependencies(t *testing.T) {
	_, err := routing.NewService(routing.ServiceConfig{Resolver: newResolver(prediction.NewMemoryStore())})
	assert.Error(t, err)

	_, err = routing.NewService(routing.ServiceConfig{Topology: scenario(t)})
	assert.Error(t, err)
}

func TestService_Plan_RecordsSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	svc := newService(t, scenario(t), newResolver(prediction.NewMemoryStore()), -1)
	_, err := svc.Plan(context.Background(), query(siteA, siteD, "LSTM", 8, 0))
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "routing.Plan", spans[0].Name)

	attrs := make(map[string]any)
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, int64(siteA), attrs["routing.origin"])
	assert.Equal(t, int64(2), attrs["routing.routes"])
}

func TestParseQueryTime(t *testing.T) {
	tests := []struct {
		date, clock string
		want        time.Time
		ok          bool
	}{
		{"2006-10-01", "08:30", time.Date(2006, 10, 1, 8, 30, 0, 0, time.UTC), true},
		{"2006-10-01", "23:59:59", time.Date(2006, 10, 1, 23, 59, 59, 0, time.UTC), true},
		{" 2006-10-01 ", " 00:00 ", time.Date(2006, 10, 1, 0, 0, 0, 0, time.UTC), true},
		{"2006-13-01", "08:30", time.Time{}, false},
		{"2006-10-01", "24:00", time.Time{}, false},
		{"01/10/2006", "08:30", time.Time{}, false},
		{"2006-10-01", "", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.date+" "+tt.clock, func(t *testing.T) {
			got, err := routing.ParseQueryTime(tt.date, tt.clock)
			if !tt.ok {
				var rerr *routing.Error
				require.True(t, errors.As(err, &rerr))
				assert.Equal(t, routing.CodeInvalidTime, rerr.Code)
				assert.ErrorIs(t, err, routing.ErrInvalidQuery)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got))
		})
	}
}
