package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/scatsroute/scatsroute/internal/api/models"
	"github.com/scatsroute/scatsroute/internal/api/response"
	"github.com/scatsroute/scatsroute/internal/network"
	"github.com/scatsroute/scatsroute/internal/routing"
)

// NoPathMessage is the legacy error body for disconnected sites.
const NoPathMessage = "No path found between the specified SCATS sites."

// LegacyHandler serves the original unversioned endpoints used by the map frontend.
type LegacyHandler struct {
	planner Planner
	topo    *network.Topology
	logger  zerolog.Logger
}

// NewLegacyHandler creates a new LegacyHandler.
func NewLegacyHandler(planner Planner, topo *network.Topology, logger zerolog.Logger) *LegacyHandler {
	return &LegacyHandler{
		planner: planner,
		topo:    topo,
		logger:  logger.With().Str("handler", "legacy").Logger(),
	}
}

// Sites handles GET /get_scats_sites.
func (h *LegacyHandler) Sites(w http.ResponseWriter, r *http.Request) {
	sites := h.topo.Sites()
	out := make([]models.LegacySite, len(sites))
	for i, s := range sites {
		out[i] = models.LegacySite{ID: s.ID, Lat: s.Coordinate.Lat, Lon: s.Coordinate.Lon}
	}
	response.JSON(w, r, http.StatusOK, out)
}

// CalculateRoute handles POST /calculate_route.
func (h *LegacyHandler) CalculateRoute(w http.ResponseWriter, r *http.Request) {
	var input models.LegacyRouteRequest
	if err := decodeBody(w, r, &input); err != nil {
		h.fail(w, r, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if input.Origin == nil || input.Destination == nil || input.Model == "" {
		h.fail(w, r, http.StatusBadRequest, "origin, destination and model are required")
		return
	}

	at, err := routing.ParseQueryTime(input.Date, input.Time)
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.planner.Plan(r.Context(), routing.Query{
		Origin:      int(*input.Origin),
		Destination: int(*input.Destination),
		Model:       input.Model,
		At:          at,
	})
	switch {
	case err == nil:
	case errors.Is(err, routing.ErrNoRouteFound):
		h.fail(w, r, http.StatusNotFound, NoPathMessage)
		return
	case errors.Is(err, routing.ErrInvalidQuery):
		h.fail(w, r, http.StatusBadRequest, err.Error())
		return
	default:
		h.logger.Error().Err(err).Msg("route planning failed")
		h.fail(w, r, http.StatusInternalServerError, "route planning failed")
		return
	}

	out := make([]models.LegacyRoute, len(res.Routes))
	for i, route := range res.Routes {
		coords := make([][2]float64, len(route.Coordinates))
		for j, c := range route.Coordinates {
			coords[j] = [2]float64{c.Lat, c.Lon}
		}
		out[i] = models.LegacyRoute{
			Path:        route.Sites,
			Coordinates: coords,
			TotalTime:   route.TravelTimeMinutes(),
		}
	}
	response.JSON(w, r, http.StatusOK, out)
}

func (h *LegacyHandler) fail(w http.ResponseWriter, r *http.Request, status int, msg string) {
	response.JSON(w, r, status, models.LegacyError{Error: msg})
}
