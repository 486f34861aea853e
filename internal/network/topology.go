// Package network holds the static road-sensor topology and per-query weighted views of it.
package network

import (
	"errors"
	"fmt"
	"sort"

	"github.com/scatsroute/scatsroute/internal/geo"
)

// Sentinel errors for topology construction.
var (
	// ErrEmptyTopology indicates the topology source produced no sites.
	ErrEmptyTopology = errors.New("topology has no sites")
	// ErrInvalidSite indicates a site with out-of-range coordinates.
	ErrInvalidSite = errors.New("invalid site")
)

// Site is a sensor location.
type Site struct {
	ID         int
	Coordinate geo.Coordinate
}

// Link is a directed neighbour reference between two site identifiers.
type Link struct {
	From int
	To   int
}

// Segment is a directed road link between two sites, addressed by site index.
type Segment struct {
	From           int
	To             int
	DistanceMeters float64
}

// Topology is the immutable site/segment arena shared by all queries.
// Sites are indexed in ascending identifier order; segments leaving a site
// are ordered by the identifier of the site they lead to.
type Topology struct {
	sites    []Site
	index    map[int]int
	segments []Segment
	outgoing [][]int
}

// NewTopology builds a topology from sites and links.
// A repeated site identifier keeps the coordinates of its last occurrence.
// Links naming unknown sites, self-loops and repeated ordered pairs are dropped.
func NewTopology(sites []Site, links []Link) (*Topology, error) {
	byID := make(map[int]Site, len(sites))
	for _, s := range sites {
		if err := s.Coordinate.Validate(); err != nil {
			return nil, fmt.Errorf("%w %d: %v", ErrInvalidSite, s.ID, err)
		}
		byID[s.ID] = s
	}
	if len(byID) == 0 {
		return nil, ErrEmptyTopology
	}

	t := &Topology{
		sites: make([]Site, 0, len(byID)),
		index: make(map[int]int, len(byID)),
	}
	for _, s := range byID {
		t.sites = append(t.sites, s)
	}
	sort.Slice(t.sites, func(i, j int) bool { return t.sites[i].ID < t.sites[j].ID })
	for i, s := range t.sites {
		t.index[s.ID] = i
	}

	type pair struct{ from, to int }
	seen := make(map[pair]bool, len(links))
	pairs := make([]pair, 0, len(links))
	for _, l := range links {
		from, ok := t.index[l.From]
		if !ok {
			continue
		}
		to, ok := t.index[l.To]
		if !ok || from == to {
			continue
		}
		p := pair{from, to}
		if seen[p] {
			continue
		}
		seen[p] = true
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].from != pairs[j].from {
			return pairs[i].from < pairs[j].from
		}
		return pairs[i].to < pairs[j].to
	})

	t.segments = make([]Segment, len(pairs))
	t.outgoing = make([][]int, len(t.sites))
	for i, p := range pairs {
		t.segments[i] = Segment{
			From:           p.from,
			To:             p.to,
			DistanceMeters: geo.Distance(t.sites[p.from].Coordinate, t.sites[p.to].Coordinate),
		}
		t.outgoing[p.from] = append(t.outgoing[p.from], i)
	}

	return t, nil
}

// Len returns the number of sites.
func (t *Topology) Len() int {
	return len(t.sites)
}

// SegmentCount returns the number of directed segments.
func (t *Topology) SegmentCount() int {
	return len(t.segments)
}

// Sites returns a copy of all sites in ascending identifier order.
func (t *Topology) Sites() []Site {
	out := make([]Site, len(t.sites))
	copy(out, t.sites)
	return out
}

// SiteIDs returns all site identifiers in index order.
func (t *Topology) SiteIDs() []int {
	ids := make([]int, len(t.sites))
	for i, s := range t.sites {
		ids[i] = s.ID
	}
	return ids
}

// Site looks up a site by identifier.
func (t *Topology) Site(id int) (Site, bool) {
	i, ok := t.index[id]
	if !ok {
		return Site{}, false
	}
	return t.sites[i], true
}

// IndexOf returns the arena index of a site identifier.
func (t *Topology) IndexOf(id int) (int, bool) {
	i, ok := t.index[id]
	return i, ok
}

// SiteAt returns the site stored at index i.
func (t *Topology) SiteAt(i int) Site {
	return t.sites[i]
}

// Segment returns the segment stored at index i.
func (t *Topology) Segment(i int) Segment {
	return t.segments[i]
}

// Outgoing returns the indices of segments leaving the site at index i.
// The returned slice must not be modified.
func (t *Topology) Outgoing(i int) []int {
	return t.outgoing[i]
}

// Neighbors returns the identifiers of sites directly reachable from id.
func (t *Topology) Neighbors(id int) []int {
	i, ok := t.index[id]
	if !ok {
		return nil
	}
	out := make([]int, 0, len(t.outgoing[i]))
	for _, s := range t.outgoing[i] {
		out = append(out, t.sites[t.segments[s].To].ID)
	}
	return out
}

// ReachableFrom returns the indices of every site reachable from the site at
// index i, including i itself, in breadth-first order.
func (t *Topology) ReachableFrom(i int) []int {
	seen := make([]bool, len(t.sites))
	seen[i] = true
	queue := []int{i}
	for head := 0; head < len(queue); head++ {
		for _, s := range t.outgoing[queue[head]] {
			next := t.segments[s].To
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return queue
}
