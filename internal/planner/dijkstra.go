// Package planner computes shortest and k-shortest loopless paths over a
// non-negatively weighted directed graph.
package planner

import (
	"container/heap"
	"math"
)

// Graph is a directed graph with integer nodes [0, NodeCount) and
// integer edges [0, EdgeCount).
type Graph interface {
	NodeCount() int
	EdgeCount() int
	EdgesFrom(node int) []int
	EdgeHead(edge int) int
	EdgeWeight(edge int) float64
}

// Path is a simple path through the graph.
type Path struct {
	// Nodes visited in order, source first.
	Nodes []int
	// Edges traversed in order; len(Edges) == len(Nodes)-1.
	Edges []int
	// Cost is the sum of edge weights, accumulated in traversal order.
	Cost float64
}

// mask hides nodes and edges from a search.
type mask struct {
	nodes []bool
	edges []bool
	// touched records what to clear on reset.
	touchedNodes []int
	touchedEdges []int
}

func newMask(g Graph) *mask {
	return &mask{
		nodes: make([]bool, g.NodeCount()),
		edges: make([]bool, g.EdgeCount()),
	}
}

func (m *mask) hideNode(n int) {
	if !m.nodes[n] {
		m.nodes[n] = true
		m.touchedNodes = append(m.touchedNodes, n)
	}
}

func (m *mask) hideEdge(e int) {
	if !m.edges[e] {
		m.edges[e] = true
		m.touchedEdges = append(m.touchedEdges, e)
	}
}

func (m *mask) reset() {
	for _, n := range m.touchedNodes {
		m.nodes[n] = false
	}
	for _, e := range m.touchedEdges {
		m.edges[e] = false
	}
	m.touchedNodes = m.touchedNodes[:0]
	m.touchedEdges = m.touchedEdges[:0]
}

// ShortestPath returns the minimum-cost path from source to target.
// The boolean is false when target is unreachable.
func ShortestPath(g Graph, source, target int) (Path, bool) {
	return dijkstra(g, source, target, nil)
}

// dijkstra runs a single-target search that ignores anything hidden by m.
// Among equal-cost frontier entries the lower node index is settled first,
// which makes the chosen path deterministic.
func dijkstra(g Graph, source, target int, m *mask) (Path, bool) {
	if m != nil && (m.nodes[source] || m.nodes[target]) {
		return Path{}, false
	}
	if source == target {
		return Path{Nodes: []int{source}}, true
	}

	n := g.NodeCount()
	dist := make([]float64, n)
	via := make([]int, n)
	prev := make([]int, n)
	settled := make([]bool, n)
	for i := range dist {
		dist[i] = math.Inf(1)
		via[i] = -1
		prev[i] = -1
	}
	dist[source] = 0

	pq := &frontier{}
	heap.Push(pq, frontierItem{node: source, dist: 0})

	for pq.Len() > 0 {
		item := heap.Pop(pq).(frontierItem)
		u := item.node
		if settled[u] {
			continue
		}
		settled[u] = true
		if u == target {
			break
		}

		for _, e := range g.EdgesFrom(u) {
			if m != nil && m.edges[e] {
				continue
			}
			v := g.EdgeHead(e)
			if settled[v] || (m != nil && m.nodes[v]) {
				continue
			}
			alt := dist[u] + g.EdgeWeight(e)
			if alt < dist[v] {
				dist[v] = alt
				via[v] = e
				prev[v] = u
				heap.Push(pq, frontierItem{node: v, dist: alt})
			}
		}
	}

	if !settled[target] {
		return Path{}, false
	}

	var edges []int
	for cur := target; cur != source; cur = prev[cur] {
		edges = append(edges, via[cur])
	}
	for i, j := 0, len(edges)-1; i < j; i, j = i+1, j-1 {
		edges[i], edges[j] = edges[j], edges[i]
	}

	return buildPath(g, source, edges), true
}

// buildPath assembles a Path from a source and its edge sequence.
func buildPath(g Graph, source int, edges []int) Path {
	nodes := make([]int, 0, len(edges)+1)
	nodes = append(nodes, source)
	cost := 0.0
	for _, e := range edges {
		nodes = append(nodes, g.EdgeHead(e))
		cost += g.EdgeWeight(e)
	}
	return Path{Nodes: nodes, Edges: edges, Cost: cost}
}

type frontierItem struct {
	node int
	dist float64
}

type frontier []frontierItem

func (f frontier) Len() int { return len(f) }
func (f frontier) Less(i, j int) bool {
	if f[i].dist != f[j].dist {
		return f[i].dist < f[j].dist
	}
	return f[i].node < f[j].node
}
func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }

func (f *frontier) Push(x any) {
	*f = append(*f, x.(frontierItem))
}

func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	item := old[n-1]
	*f = old[:n-1]
	return item
}
