package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/scatsroute/scatsroute/internal/api/models"
	"github.com/scatsroute/scatsroute/internal/api/response"
	"github.com/scatsroute/scatsroute/internal/network"
)

// SiteHandler serves the road network's sites.
type SiteHandler struct {
	topo *network.Topology
}

// NewSiteHandler creates a new SiteHandler.
func NewSiteHandler(topo *network.Topology) *SiteHandler {
	return &SiteHandler{topo: topo}
}

// ListSites handles GET /v1/sites.
func (h *SiteHandler) ListSites(w http.ResponseWriter, r *http.Request) {
	sites := h.topo.Sites()
	resp := models.SiteListResponse{
		Sites: make([]models.Site, len(sites)),
		Count: len(sites),
	}
	for i, s := range sites {
		resp.Sites[i] = h.site(s)
	}
	response.JSON(w, r, http.StatusOK, resp)
}

// GetSite handles GET /v1/sites/{siteId}.
func (h *SiteHandler) GetSite(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "siteId")
	id, err := strconv.Atoi(raw)
	if err != nil {
		response.BadRequest(w, r, "site identifier must be an integer", []models.FieldError{
			{Field: "siteId", Message: "not an integer: " + raw},
		})
		return
	}

	s, ok := h.topo.Site(id)
	if !ok {
		response.NotFound(w, r, "site "+raw+" is not in the network")
		return
	}
	response.JSON(w, r, http.StatusOK, h.site(s))
}

func (h *SiteHandler) site(s network.Site) models.Site {
	neighbors := h.topo.Neighbors(s.ID)
	if neighbors == nil {
		neighbors = []int{}
	}
	return models.Site{
		ID:        s.ID,
		Point:     models.Point{Lat: s.Coordinate.Lat, Lon: s.Coordinate.Lon},
		Neighbors: neighbors,
	}
}
