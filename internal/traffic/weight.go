// Package traffic converts predicted traffic volume into travel-time costs.
package traffic

import "math"

// Defaults for the travel-time model.
const (
	// DefaultSpeedLimitKPH is the free-flow speed on every segment.
	DefaultSpeedLimitKPH = 60.0
	// DefaultIntersectionDelay is the fixed delay per segment, in seconds.
	DefaultIntersectionDelay = 30.0
	// DefaultVolumeScale is the volume that doubles free-flow travel time.
	DefaultVolumeScale = 1000.0
)

// WeightModel turns a segment distance and an upstream volume into seconds.
type WeightModel struct {
	// SpeedLimitKPH is the free-flow speed. Default: 60.
	SpeedLimitKPH float64

	// IntersectionDelay is added to every segment, in seconds. Default: 30.
	IntersectionDelay float64

	// VolumeScale is the divisor of the congestion factor 1 + volume/scale. Default: 1000.
	VolumeScale float64
}

// DefaultWeightModel returns the model used by the route planner.
func DefaultWeightModel() WeightModel {
	return WeightModel{
		SpeedLimitKPH:     DefaultSpeedLimitKPH,
		IntersectionDelay: DefaultIntersectionDelay,
		VolumeScale:       DefaultVolumeScale,
	}
}

// SpeedLimitMPS returns the speed limit in meters per second.
func (m WeightModel) SpeedLimitMPS() float64 {
	return m.SpeedLimitKPH * 1000 / 3600
}

// FreeFlow returns the uncongested travel time over distanceMeters, in seconds.
func (m WeightModel) FreeFlow(distanceMeters float64) float64 {
	return distanceMeters/m.SpeedLimitMPS() + m.IntersectionDelay
}

// CongestionFactor returns 1 + volume/VolumeScale.
// Negative volumes are clamped to zero.
func (m WeightModel) CongestionFactor(volume float64) float64 {
	return 1 + math.Max(volume, 0)/m.VolumeScale
}

// TravelTime returns the congested travel time in seconds.
// It is monotonic in both arguments.
func (m WeightModel) TravelTime(distanceMeters, volume float64) float64 {
	return m.FreeFlow(distanceMeters) * m.CongestionFactor(volume)
}
