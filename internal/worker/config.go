// Package worker preloads prediction series into the shared Redis cache so
// that route queries rarely reach the prediction source.
package worker

import (
	"time"
)

// WarmConfig holds configuration for the cache warming job.
type WarmConfig struct {
	// Models are warmed when a run names no models.
	Models []string

	// SiteIDs are the sites whose series are loaded, normally every site of the topology.
	SiteIDs []int

	// Concurrency is the number of parallel loads.
	// Default: 4
	Concurrency int

	// Timeout bounds each series load.
	// Default: 10 seconds
	Timeout time.Duration

	// Invalidate drops a model's cached series before reloading it, so
	// series removed at the source do not linger in the cache.
	Invalidate bool
}

// DefaultWarmConfig returns the default warming configuration.
func DefaultWarmConfig() WarmConfig {
	return WarmConfig{
		Concurrency: 4,
		Timeout:     10 * time.Second,
		Invalidate:  true,
	}
}

func (c WarmConfig) withDefaults() WarmConfig {
	d := DefaultWarmConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}
