package planner

import (
	"container/heap"
	"strconv"
	"strings"
)

// KShortestPaths returns up to k loopless paths from source to target,
// ordered by non-decreasing cost, using Yen's algorithm.
//
// Candidates of equal cost are accepted in the order they were discovered.
// An unreachable target yields an empty result. When source == target the
// only path is the single-node path of cost zero.
func KShortestPaths(g Graph, source, target, k int) []Path {
	if k <= 0 {
		return nil
	}
	first, ok := dijkstra(g, source, target, nil)
	if !ok {
		return nil
	}
	accepted := []Path{first}
	if source == target {
		return accepted
	}

	seen := map[string]bool{pathKey(first.Nodes): true}
	pool := &candidates{}
	m := newMask(g)
	seq := 0

	for len(accepted) < k {
		last := accepted[len(accepted)-1]

		for i := 0; i < len(last.Nodes)-1; i++ {
			spur := last.Nodes[i]
			root := last.Nodes[:i+1]

			for _, p := range accepted {
				if len(p.Nodes) > i+1 && sameNodes(p.Nodes[:i+1], root) {
					m.hideEdge(p.Edges[i])
				}
			}
			for _, n := range root[:i] {
				m.hideNode(n)
			}

			spurPath, found := dijkstra(g, spur, target, m)
			m.reset()
			if !found {
				continue
			}

			edges := make([]int, 0, i+len(spurPath.Edges))
			edges = append(edges, last.Edges[:i]...)
			edges = append(edges, spurPath.Edges...)
			candidate := buildPath(g, source, edges)

			key := pathKey(candidate.Nodes)
			if seen[key] {
				continue
			}
			seen[key] = true
			heap.Push(pool, candidateItem{path: candidate, seq: seq})
			seq++
		}

		if pool.Len() == 0 {
			break
		}
		next := heap.Pop(pool).(candidateItem)
		accepted = append(accepted, next.path)
	}

	return accepted
}

func sameNodes(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func pathKey(nodes []int) string {
	var b strings.Builder
	for i, n := range nodes {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

type candidateItem struct {
	path Path
	seq  int
}

// candidates is a min-heap ordered by cost, then discovery order.
type candidates []candidateItem

func (c candidates) Len() int { return len(c) }
func (c candidates) Less(i, j int) bool {
	if c[i].path.Cost != c[j].path.Cost {
		return c[i].path.Cost < c[j].path.Cost
	}
	return c[i].seq < c[j].seq
}
func (c candidates) Swap(i, j int) { c[i], c[j] = c[j], c[i] }

func (c *candidates) Push(x any) {
	*c = append(*c, x.(candidateItem))
}

func (c *candidates) Pop() any {
	old := *c
	n := len(old)
	item := old[n-1]
	*c = old[:n-1]
	return item
}
