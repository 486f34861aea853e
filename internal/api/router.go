// Package api provides the HTTP API for the SCATS route planner.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/scatsroute/scatsroute/internal/api/handler"
	"github.com/scatsroute/scatsroute/internal/api/middleware"
	"github.com/scatsroute/scatsroute/internal/resilience"
	"github.com/scatsroute/scatsroute/internal/routing"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version         string
	BuildTime       string
	Logger          zerolog.Logger
	ServiceName     string
	Metrics         *middleware.Metrics
	Routing         *routing.Service
	Registry        *resilience.Registry
	PredictionStore string
	AllowedOrigins  []string
	RequireTLS      bool

	// Rate limits; zero values use the package defaults.
	PlanningRateLimit middleware.RateLimitConfig
	StandardRateLimit middleware.RateLimitConfig
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "scatsroute-api"
	}
	if cfg.PlanningRateLimit.WindowLength == 0 {
		cfg.PlanningRateLimit = middleware.PlanningRateLimit
	}
	if cfg.StandardRateLimit.WindowLength == 0 {
		cfg.StandardRateLimit = middleware.StandardRateLimit
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	topo := cfg.Routing.Topology()
	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:         cfg.Version,
		BuildTime:       cfg.BuildTime,
		Registry:        cfg.Registry,
		Routing:         cfg.Routing,
		PredictionStore: cfg.PredictionStore,
	})
	routeHandler := handler.NewRouteHandler(cfg.Routing, cfg.Logger)
	siteHandler := handler.NewSiteHandler(topo)
	legacyHandler := handler.NewLegacyHandler(cfg.Routing, topo, cfg.Logger)

	planningRateLimit := middleware.RateLimitByIP(cfg.PlanningRateLimit)
	standardRateLimit := middleware.RateLimitByIP(cfg.StandardRateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/sites", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/", siteHandler.ListSites)
			r.Get("/{siteId}", siteHandler.GetSite)
		})

		r.With(planningRateLimit, middleware.RequireJSON).Post("/routes:compute", routeHandler.ComputeRoutes)
	})

	// Unversioned endpoints kept for the map frontend.
	r.With(standardRateLimit).Get("/get_scats_sites", legacyHandler.Sites)
	r.With(planningRateLimit, middleware.RequireJSON).Post("/calculate_route", legacyHandler.CalculateRoute)

	return r
}
