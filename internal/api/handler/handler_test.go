package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scatsroute/scatsroute/internal/api/handler"
	"github.com/scatsroute/scatsroute/internal/api/middleware"
	"github.com/scatsroute/scatsroute/internal/api/models"
	"github.com/scatsroute/scatsroute/internal/geo"
	"github.com/scatsroute/scatsroute/internal/network"
	"github.com/scatsroute/scatsroute/internal/prediction"
	"github.com/scatsroute/scatsroute/internal/resilience"
	"github.com/scatsroute/scatsroute/internal/routing"
)

// metersNorth is the latitude offset, in degrees, of a point d meters north.
func metersNorth(d float64) float64 {
	return d / geo.EarthRadiusMeters * 180 / 3.141592653589793
}

// testNetwork is 100->200->400 straight north, 100->300->400 via a detour
// east, and an isolated site 500.
func testNetwork(t *testing.T) *network.Topology {
	t.Helper()
	sites := []network.Site{
		{ID: 100, Coordinate: geo.Coordinate{Lat: -37.8, Lon: 145.0}},
		{ID: 200, Coordinate: geo.Coordinate{Lat: -37.8 + metersNorth(1000), Lon: 145.0}},
		{ID: 300, Coordinate: geo.Coordinate{Lat: -37.8 + metersNorth(1000), Lon: 145.02}},
		{ID: 400, Coordinate: geo.Coordinate{Lat: -37.8 + metersNorth(2000), Lon: 145.0}},
		{ID: 500, Coordinate: geo.Coordinate{Lat: -37.7, Lon: 145.1}},
	}
	links := []network.Link{
		{From: 100, To: 200},
		{From: 200, To: 400},
		{From: 100, To: 300},
		{From: 300, To: 400},
	}
	topo, err := network.NewTopology(sites, links)
	require.NoError(t, err)
	return topo
}

func testService(t *testing.T) *routing.Service {
	t.Helper()
	svc, err := routing.NewService(routing.ServiceConfig{
		Topology: testNetwork(t),
		Resolver: prediction.NewResolver(prediction.ResolverConfig{
			Store:  prediction.NewMemoryStore(),
			Logger: zerolog.Nop(),
		}),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	return svc
}

func post(t *testing.T, h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	middleware.RequestID(h).ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p models.Problem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	return p
}

func TestComputeRoutes_RanksOptions(t *testing.T) {
	h := handler.NewRouteHandler(testService(t), zerolog.Nop())

	rec := post(t, h.ComputeRoutes, "/v1/routes:compute",
		`{"origin":100,"destination":"400","model":"lstm","date":"2006-10-01","time":"08:00"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp models.RouteComputeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	assert.Equal(t, "lstm", resp.Model)
	assert.Equal(t, 32, resp.Slot)
	require.Len(t, resp.Options, 2)

	first := resp.Options[0]
	assert.Equal(t, 1, first.Rank)
	assert.Equal(t, []int{100, 200, 400}, first.Sites)
	assert.Len(t, first.Coordinates, 3)
	assert.NotEmpty(t, first.Polyline)
	assert.True(t, strings.HasPrefix(first.ID, "opt_"))
	// Two 1 km segments at the default volume: 2 * (60 + 30) * 1.1 seconds.
	assert.InDelta(t, 198, first.DurationSeconds, 0.01)
	assert.InDelta(t, 3.3, first.DurationMinutes, 0.001)

	assert.Equal(t, 2, resp.Options[1].Rank)
	assert.Equal(t, []int{100, 300, 400}, resp.Options[1].Sites)
	assert.Greater(t, resp.Options[1].DurationSeconds, first.DurationSeconds)

	assert.Equal(t, 4, resp.Meta.DefaultedSites[string(prediction.FallbackUnavailable)])
}

func TestComputeRoutes_DepartAt(t *testing.T) {
	h := handler.NewRouteHandler(testService(t), zerolog.Nop())

	rec := post(t, h.ComputeRoutes, "/v1/routes:compute",
		`{"origin":100,"destination":400,"model":"gru","departAt":"2006-10-01T23:59:00+10:00"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp models.RouteComputeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 95, resp.Slot)
}

func TestComputeRoutes_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
		field  string
	}{
		{"malformed json", `{"origin":`, http.StatusBadRequest, "", ""},
		{"trailing data", `{"origin":100}{}`, http.StatusBadRequest, "", ""},
		{"non numeric site", `{"origin":"abc","destination":400,"model":"lstm","date":"2006-10-01","time":"08:00"}`, http.StatusBadRequest, "", ""},
		{"missing origin", `{"destination":400,"model":"lstm","date":"2006-10-01","time":"08:00"}`, http.StatusBadRequest, "", "origin"},
		{"missing model", `{"origin":100,"destination":400,"date":"2006-10-01","time":"08:00"}`, http.StatusBadRequest, "", "model"},
		{"missing time", `{"origin":100,"destination":400,"model":"lstm"}`, http.StatusBadRequest, "", "departAt"},
		{"bad time", `{"origin":100,"destination":400,"model":"lstm","date":"2006-10-01","time":"25:00"}`, http.StatusBadRequest, "", "time"},
		{"unknown origin", `{"origin":999,"destination":400,"model":"lstm","date":"2006-10-01","time":"08:00"}`, http.StatusBadRequest, routing.CodeUnknownOrigin, "origin"},
		{"unknown destination", `{"origin":100,"destination":999,"model":"lstm","date":"2006-10-01","time":"08:00"}`, http.StatusBadRequest, routing.CodeUnknownDestination, "destination"},
		{"invalid model", `{"origin":100,"destination":400,"model":"../etc","date":"2006-10-01","time":"08:00"}`, http.StatusBadRequest, routing.CodeInvalidModel, "model"},
		{"no route", `{"origin":100,"destination":500,"model":"lstm","date":"2006-10-01","time":"08:00"}`, http.StatusNotFound, routing.CodeNoRoute, ""},
	}

	h := handler.NewRouteHandler(testService(t), zerolog.Nop())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h.ComputeRoutes, "/v1/routes:compute", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())

			p := decodeProblem(t, rec)
			assert.Equal(t, tt.code, p.Code)
			assert.Equal(t, "/v1/routes:compute", p.Instance)
			assert.NotEmpty(t, p.TraceID)
			if tt.field != "" {
				require.NotEmpty(t, p.Errors)
				assert.Equal(t, tt.field, p.Errors[0].Field)
			}
		})
	}
}

type failingPlanner struct{ err error }

func (f failingPlanner) Plan(context.Context, routing.Query) (*routing.Result, error) {
	return nil, f.err
}

func TestComputeRoutes_PlannerFailures(t *testing.T) {
	body := `{"origin":100,"destination":400,"model":"lstm","date":"2006-10-01","time":"08:00"}`

	rec := post(t, handler.NewRouteHandler(failingPlanner{errors.New("disk on fire")}, zerolog.Nop()).ComputeRoutes, "/", body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk on fire")

	rec = post(t, handler.NewRouteHandler(failingPlanner{context.Canceled}, zerolog.Nop()).ComputeRoutes, "/", body)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSites(t *testing.T) {
	topo := testNetwork(t)
	h := handler.NewSiteHandler(topo)

	r := chi.NewRouter()
	r.Get("/v1/sites", h.ListSites)
	r.Get("/v1/sites/{siteId}", h.GetSite)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sites", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	var list models.SiteListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Equal(t, 5, list.Count)
	assert.Equal(t, 100, list.Sites[0].ID)
	assert.Equal(t, []int{200, 300}, list.Sites[0].Neighbors)
	assert.Equal(t, []int{}, list.Sites[4].Neighbors)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sites/200", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	var site models.Site
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&site))
	assert.Equal(t, []int{400}, site.Neighbors)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sites/42", http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sites/abc", http.NoBody))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLegacy_Sites(t *testing.T) {
	h := handler.NewLegacyHandler(testService(t), testNetwork(t), zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Sites(rec, httptest.NewRequest(http.MethodGet, "/get_scats_sites", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	var sites []map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sites))
	require.Len(t, sites, 5)
	assert.Equal(t, float64(100), sites[0]["SCATS Number"])
	assert.Equal(t, -37.8, sites[0]["Latitude"])
	assert.Equal(t, 145.0, sites[0]["Longitude"])
}

func TestLegacy_CalculateRoute(t *testing.T) {
	svc := testService(t)
	h := handler.NewLegacyHandler(svc, svc.Topology(), zerolog.Nop())

	rec := post(t, h.CalculateRoute, "/calculate_route",
		`{"origin":"100","destination":"400","model":"lstm","date":"2006-10-01","time":"08:00"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var routes []struct {
		Path        []int        `json:"path"`
		Coordinates [][2]float64 `json:"coordinates"`
		TotalTime   float64      `json:"total_time"`
	}
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&routes))
	require.Len(t, routes, 2)
	assert.Equal(t, []int{100, 200, 400}, routes[0].Path)
	assert.Equal(t, [2]float64{-37.8, 145.0}, routes[0].Coordinates[0])
	assert.InDelta(t, 3.3, routes[0].TotalTime, 0.001)
}

func TestLegacy_CalculateRouteErrors(t *testing.T) {
	svc := testService(t)
	h := handler.NewLegacyHandler(svc, svc.Topology(), zerolog.Nop())

	tests := []struct {
		name   string
		body   string
		status int
		msg    string
	}{
		{"no path", `{"origin":100,"destination":500,"model":"lstm","date":"2006-10-01","time":"08:00"}`, http.StatusNotFound, handler.NoPathMessage},
		{"missing fields", `{"origin":100}`, http.StatusBadRequest, ""},
		{"bad time", `{"origin":100,"destination":400,"model":"lstm","date":"01/10/2006","time":"08:00"}`, http.StatusBadRequest, ""},
		{"unknown site", `{"origin":1,"destination":400,"model":"lstm","date":"2006-10-01","time":"08:00"}`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h.CalculateRoute, "/calculate_route", tt.body)
			assert.Equal(t, tt.status, rec.Code)

			var body models.LegacyError
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.NotEmpty(t, body.Error)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, body.Error)
			}
		})
	}
}

func TestOps(t *testing.T) {
	registry := resilience.NewRegistry()
	failing := true
	registry.RegisterProbe("redis", func(context.Context) error {
		if failing {
			return errors.New("connection refused")
		}
		return nil
	})

	svc := testService(t)
	h := handler.NewOpsHandler(handler.OpsConfig{
		Version:         "1.2.3",
		Registry:        registry,
		Routing:         svc,
		PredictionStore: "memory",
	})

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "1.2.3")

	rec = httptest.NewRecorder()
	h.ReadinessCheck(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	failing = false
	rec = httptest.NewRecorder()
	h.ReadinessCheck(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.SystemStatus(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	var status models.SystemStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, models.HealthStatusOK, status.Status)
	assert.Equal(t, 5, status.Network.Sites)
	assert.Equal(t, 4, status.Network.Segments)
	assert.Equal(t, "memory", status.Network.PredictionStore)
	assert.True(t, status.RouteCache.Enabled)
	require.Len(t, status.Dependencies, 1)
	assert.Equal(t, "redis", status.Dependencies[0].Name)
	assert.NotNil(t, status.Dependencies[0].LastFailureAt)
	assert.NotNil(t, status.Dependencies[0].LastSuccessAt)
}
