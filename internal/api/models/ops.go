package models

// Health represents the health status of the service.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus represents the overall system status.
type SystemStatus struct {
	Status       HealthStatus       `json:"status"`
	Time         Timestamp          `json:"time"`
	Network      NetworkStatus      `json:"network"`
	RouteCache   RouteCacheStatus   `json:"routeCache"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// NetworkStatus describes the loaded road network.
type NetworkStatus struct {
	Sites           int    `json:"sites"`
	Segments        int    `json:"segments"`
	PredictionStore string `json:"predictionStore"`
}

// RouteCacheStatus reports result cache statistics.
type RouteCacheStatus struct {
	Enabled bool  `json:"enabled"`
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// DependencyStatus represents the status of a backing dependency.
type DependencyStatus struct {
	Name          string       `json:"name"`
	Status        HealthStatus `json:"status"`
	CircuitState  *string      `json:"circuitState,omitempty"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	Message       *string      `json:"message,omitempty"`
}
