package models

// RouteComputeRequest is the body of POST /v1/routes:compute.
// The departure is either DepartAt or the Date and Time pair.
type RouteComputeRequest struct {
	Origin      *SiteRef   `json:"origin"`
	Destination *SiteRef   `json:"destination"`
	Model       string     `json:"model"`
	Date        string     `json:"date,omitempty"`
	Time        string     `json:"time,omitempty"`
	DepartAt    *Timestamp `json:"departAt,omitempty"`
}

// RouteComputeResponse lists ranked route options.
type RouteComputeResponse struct {
	GeneratedAt Timestamp     `json:"generatedAt"`
	Model       string        `json:"model"`
	Slot        int           `json:"slot"`
	Options     []RouteOption `json:"options"`
	Meta        RouteMeta     `json:"meta"`
}

// RouteOption is one ranked route.
type RouteOption struct {
	ID              string  `json:"id"`
	Rank            int     `json:"rank"`
	Sites           []int   `json:"sites"`
	Coordinates     []Point `json:"coordinates"`
	Polyline        string  `json:"polyline"`
	DurationSeconds float64 `json:"durationSeconds"`
	DurationMinutes float64 `json:"durationMinutes"`
}

// RouteMeta describes how the routes were computed.
type RouteMeta struct {
	Cached bool `json:"cached"`
	// DefaultedSites counts sites whose predicted volume was unavailable, by reason.
	DefaultedSites map[string]int `json:"defaultedSites,omitempty"`
}

// Site is a sensor site in the road network.
type Site struct {
	ID        int   `json:"id"`
	Point     Point `json:"point"`
	Neighbors []int `json:"neighbors"`
}

// SiteListResponse lists every site.
type SiteListResponse struct {
	Sites []Site `json:"sites"`
	Count int    `json:"count"`
}
