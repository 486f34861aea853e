package network

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidWeight indicates a weight model produced a negative or non-finite cost.
var ErrInvalidWeight = errors.New("invalid segment weight")

// Weigher converts a segment distance and a volume into a travel-time cost.
type Weigher interface {
	TravelTime(distanceMeters, volume float64) float64
}

// WeightedView is a query-private weight table over a shared Topology.
// Views are not safe for concurrent mutation; each query owns its own.
type WeightedView struct {
	topo    *Topology
	weights []float64
}

// Reweight returns a new view whose weights are computed from volumes,
// which holds one volume per site in index order.
func (t *Topology) Reweight(volumes []float64, w Weigher) (*WeightedView, error) {
	v := &WeightedView{
		topo:    t,
		weights: make([]float64, len(t.segments)),
	}
	if err := v.Recompute(volumes, w); err != nil {
		return nil, err
	}
	return v, nil
}

// Recompute overwrites every segment weight using the volume at the
// segment's upstream site.
func (v *WeightedView) Recompute(volumes []float64, w Weigher) error {
	if len(volumes) != len(v.topo.sites) {
		return fmt.Errorf("got %d volumes for %d sites", len(volumes), len(v.topo.sites))
	}
	for i, seg := range v.topo.segments {
		weight := w.TravelTime(seg.DistanceMeters, volumes[seg.From])
		if weight < 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
			return fmt.Errorf("%w: segment %d->%d = %v", ErrInvalidWeight,
				v.topo.sites[seg.From].ID, v.topo.sites[seg.To].ID, weight)
		}
		v.weights[i] = weight
	}
	return nil
}

// Topology returns the shared topology behind the view.
func (v *WeightedView) Topology() *Topology {
	return v.topo
}

// Weight returns the weight of the segment at index i.
func (v *WeightedView) Weight(i int) float64 {
	return v.weights[i]
}

// NodeCount returns the number of sites.
func (v *WeightedView) NodeCount() int {
	return len(v.topo.sites)
}

// EdgeCount returns the number of segments.
func (v *WeightedView) EdgeCount() int {
	return len(v.topo.segments)
}

// EdgesFrom returns the segment indices leaving node.
func (v *WeightedView) EdgesFrom(node int) []int {
	return v.topo.outgoing[node]
}

// EdgeHead returns the downstream site index of segment e.
func (v *WeightedView) EdgeHead(e int) int {
	return v.topo.segments[e].To
}

// EdgeWeight returns the weight of segment e.
func (v *WeightedView) EdgeWeight(e int) float64 {
	return v.weights[e]
}
