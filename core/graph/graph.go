// Package graph holds the in-memory road network and the shortest
// distance queries used by dispatch. The graph is built once at startup
// and is read-only afterwards, so queries are safe for any number of
// concurrent callers without locking.
package graph

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/towgrid/dispatch/core/model"
)

// Unreachable is returned by ShortestDistance when no path exists. It
// is larger than any representable path length.
const Unreachable int64 = math.MaxInt64

// Node is a physical point on the road network.
type Node struct {
	ID int64 `json:"id"`
	X  int64 `json:"x"`
	Y  int64 `json:"y"`
}

// Edge is a directed adjacency entry. Road segments are undirected:
// AddEdge synthesizes the reverse entry, so callers must insert each
// segment exactly once. Inserting a pre-reversed pair doubles the
// adjacency and corrupts distances.
type Edge struct {
	From   int64 `json:"from"`
	To     int64 `json:"to"`
	Weight int64 `json:"weight"`
}

// Graph is a weighted undirected road network.
type Graph struct {
	nodes map[int64]Node
	adj   map[int64][]Edge
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[int64]Node),
		adj:   make(map[int64][]Edge),
	}
}

// AddNode registers a node, replacing any previous node with the same id.
func (g *Graph) AddNode(n Node) {
	g.nodes[n.ID] = n
}

// AddEdge inserts an undirected segment as two directed adjacency
// entries. Negative weights are rejected: Dijkstra's correctness
// depends on non-negative weights.
func (g *Graph) AddEdge(e Edge) error {
	if e.Weight < 0 {
		return fmt.Errorf("%w: edge %d-%d has negative weight %d", model.ErrValidation, e.From, e.To, e.Weight)
	}
	g.adj[e.From] = append(g.adj[e.From], e)
	g.adj[e.To] = append(g.adj[e.To], Edge{From: e.To, To: e.From, Weight: e.Weight})
	return nil
}

// HasNode reports whether id names a known node.
func (g *Graph) HasNode(id int64) bool {
	_, ok := g.nodes[id]
	return ok
}

// Node returns the node for id.
func (g *Graph) Node(id int64) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodeCount returns the number of registered nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

type pqItem struct {
	node int64
	dist int64
}

type pq []pqItem

func (p pq) Len() int            { return len(p) }
func (p pq) Less(i, j int) bool  { return p[i].dist < p[j].dist }
func (p pq) Swap(i, j int)       { p[i], p[j] = p[j], p[i] }
func (p *pq) Push(x any)         { *p = append(*p, x.(pqItem)) }
func (p *pq) Pop() any {
	old := *p
	n := len(old)
	item := old[n-1]
	*p = old[:n-1]
	return item
}

// ShortestDistance returns the minimal sum of edge weights on any path
// between from and to, or Unreachable when no path exists. A node's
// distance to itself is 0. Stale heap entries are skipped lazily; the
// search stops as soon as the target is popped.
func (g *Graph) ShortestDistance(from, to int64) int64 {
	settled := make(map[int64]int64)
	frontier := &pq{}
	heap.Push(frontier, pqItem{node: from, dist: 0})

	for frontier.Len() > 0 {
		cur := heap.Pop(frontier).(pqItem)
		if cur.node == to {
			return cur.dist
		}
		if best, ok := settled[cur.node]; ok && cur.dist >= best {
			continue
		}
		settled[cur.node] = cur.dist

		for _, e := range g.adj[cur.node] {
			next := cur.dist + e.Weight
			if best, ok := settled[e.To]; !ok || next < best {
				heap.Push(frontier, pqItem{node: e.To, dist: next})
			}
		}
	}
	return Unreachable
}

// NearestGoal expands from the start node in increasing distance order
// and returns the first goal popped from the frontier, which is
// therefore a goal of minimal distance. Candidates beyond limit are
// never enqueued, bounding the fan-out when only nearby goals matter;
// a caller who wants the nearest goal regardless of distance passes an
// effectively unbounded limit. The second return value is false when
// the goal set is empty or no goal is reachable within limit.
func (g *Graph) NearestGoal(from int64, goals map[int64]struct{}, limit int64) (int64, bool) {
	if len(goals) == 0 {
		return 0, false
	}
	settled := make(map[int64]int64)
	frontier := &pq{}
	heap.Push(frontier, pqItem{node: from, dist: 0})

	for frontier.Len() > 0 {
		cur := heap.Pop(frontier).(pqItem)
		if _, ok := goals[cur.node]; ok {
			return cur.node, true
		}
		if best, ok := settled[cur.node]; ok && cur.dist >= best {
			continue
		}
		settled[cur.node] = cur.dist

		for _, e := range g.adj[cur.node] {
			next := cur.dist + e.Weight
			if next > limit {
				continue
			}
			if best, ok := settled[e.To]; !ok || next < best {
				heap.Push(frontier, pqItem{node: e.To, dist: next})
			}
		}
	}
	return 0, false
}
