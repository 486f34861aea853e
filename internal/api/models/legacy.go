package models

// LegacySite is an entry of GET /get_scats_sites.
type LegacySite struct {
	ID  int     `json:"SCATS Number"`
	Lat float64 `json:"Latitude"`
	Lon float64 `json:"Longitude"`
}

// LegacyRouteRequest is the body of POST /calculate_route.
type LegacyRouteRequest struct {
	Origin      *SiteRef `json:"origin"`
	Destination *SiteRef `json:"destination"`
	Model       string   `json:"model"`
	Date        string   `json:"date"`
	Time        string   `json:"time"`
}

// LegacyRoute is one route of POST /calculate_route; TotalTime is in minutes
// and each coordinate is a [lat, lon] pair.
type LegacyRoute struct {
	Path        []int        `json:"path"`
	Coordinates [][2]float64 `json:"coordinates"`
	TotalTime   float64      `json:"total_time"`
}

// LegacyError is the error body of the legacy endpoints.
type LegacyError struct {
	Error string `json:"error"`
}
