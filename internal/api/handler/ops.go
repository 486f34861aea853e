// Package handler provides HTTP handlers for the SCATS route API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/scatsroute/scatsroute/internal/api/models"
	"github.com/scatsroute/scatsroute/internal/api/response"
	"github.com/scatsroute/scatsroute/internal/network"
	"github.com/scatsroute/scatsroute/internal/resilience"
	"github.com/scatsroute/scatsroute/internal/routing"
)

// readinessTimeout bounds the dependency probes run by readiness checks.
const readinessTimeout = 2 * time.Second

// RoutingStatus exposes the routing service's state to operators.
type RoutingStatus interface {
	Topology() *network.Topology
	CacheStats() routing.CacheStats
}

// OpsConfig configures an OpsHandler.
type OpsConfig struct {
	Version         string
	BuildTime       string
	Registry        *resilience.Registry
	Routing         RoutingStatus
	PredictionStore string
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	if cfg.Registry == nil {
		cfg.Registry = resilience.NewRegistry()
	}
	return &OpsHandler{cfg: cfg}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready - probes every registered dependency.
// Only an unhealthy dependency makes the service unready.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	deps := h.cfg.Registry.Check(ctx)
	status := healthStatus(resilience.Overall(deps))

	details := make(map[string]interface{}, len(deps))
	for _, d := range deps {
		details[d.Name] = string(d.Status)
	}

	code := http.StatusOK
	if status == models.HealthStatusFail {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, r, code, models.Health{
		Status:  status,
		Time:    models.Timestamp(time.Now()),
		Details: details,
	})
}

// SystemStatus handles GET /v1/ops/status - network, cache and dependency status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	deps := h.cfg.Registry.All()

	status := models.SystemStatus{
		Status:       healthStatus(resilience.Overall(deps)),
		Time:         models.Timestamp(time.Now()),
		Dependencies: make([]models.DependencyStatus, len(deps)),
	}
	for i, d := range deps {
		status.Dependencies[i] = dependencyStatus(d)
	}

	if h.cfg.Routing != nil {
		topo := h.cfg.Routing.Topology()
		status.Network = models.NetworkStatus{
			Sites:           topo.Len(),
			Segments:        topo.SegmentCount(),
			PredictionStore: h.cfg.PredictionStore,
		}
		stats := h.cfg.Routing.CacheStats()
		status.RouteCache = models.RouteCacheStatus{
			Enabled: stats.Enabled,
			Entries: stats.Entries,
			Hits:    stats.Hits,
			Misses:  stats.Misses,
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func dependencyStatus(h resilience.Health) models.DependencyStatus {
	d := models.DependencyStatus{
		Name:   h.Name,
		Status: healthStatus(h.Status),
	}
	if h.Breaker != nil {
		state := h.Breaker.String()
		d.CircuitState = &state
	}
	if h.LastSuccessAt != nil {
		ts := models.Timestamp(*h.LastSuccessAt)
		d.LastSuccessAt = &ts
	}
	if h.LastFailureAt != nil {
		ts := models.Timestamp(*h.LastFailureAt)
		d.LastFailureAt = &ts
	}
	if h.LastError != "" {
		msg := h.LastError
		d.Message = &msg
	}
	return d
}

func healthStatus(s resilience.Status) models.HealthStatus {
	switch s {
	case resilience.StatusUnhealthy:
		return models.HealthStatusFail
	case resilience.StatusDegraded:
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}
