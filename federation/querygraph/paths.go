package querygraph

import (
	"container/heap"
)

// KeyChasingPath is a way to reach Node from the start of a key chase by
// taking only KeyResolution and RootTypeResolution edges.
type KeyChasingPath struct {
	Node  NodeIndex
	Cost  float64
	Edges []EdgeIndex
}

// -----------------------------------------------------------------------
// Dijkstra priority queue implementation
// -----------------------------------------------------------------------

// chaseItem is an element in the priority queue.
type chaseItem struct {
	node  NodeIndex
	cost  float64
	via   EdgeIndex // edge used to reach node, -1 for the start
	index int       // maintained by heap.Interface
}

// chasePQ implements heap.Interface for a min-heap of chaseItem. Equal
// costs are ordered by the index of the edge used, so that the first
// created edge wins.
type chasePQ []*chaseItem

func (pq chasePQ) Len() int { return len(pq) }
func (pq chasePQ) Less(i, j int) bool {
	if pq[i].cost != pq[j].cost {
		return pq[i].cost < pq[j].cost
	}
	return pq[i].via < pq[j].via
}
func (pq chasePQ) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}
func (pq *chasePQ) Push(x any) {
	n := len(*pq)
	item := x.(*chaseItem)
	item.index = n
	*pq = append(*pq, item)
}
func (pq *chasePQ) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

// KeyChasingPaths runs Dijkstra's algorithm from `from` over the edges that
// jump between subgraphs. An edge is usable when its conditions resolve;
// its weight is the resolution cost. After the first jump only the
// non-trivial followups of the previous edge are considered. Subgraphs in
// excludedDestinations are never entered.
//
// Paths are returned cheapest first, ties broken by edge index. The start
// node itself is not part of the result.
func KeyChasingPaths(g *QueryGraph, from NodeIndex, resolver ConditionResolver, ctx PathContext, excludedDestinations ExcludedDestinations, excludedConditions ExcludedConditions) ([]KeyChasingPath, error) {
	if _, err := g.Node(from); err != nil {
		return nil, err
	}
	dist := map[NodeIndex]float64{from: 0}
	prev := make(map[NodeIndex]EdgeIndex)
	settled := make(map[NodeIndex]bool)

	pq := &chasePQ{}
	heap.Init(pq)
	heap.Push(pq, &chaseItem{node: from, cost: 0, via: -1})

	var order []NodeIndex
	for pq.Len() > 0 {
		item := heap.Pop(pq).(*chaseItem)
		u := item.node
		if settled[u] || item.cost > dist[u] {
			continue // stale entry
		}
		settled[u] = true
		if u != from {
			order = append(order, u)
		}

		var candidates []*Edge
		if item.via < 0 {
			candidates = g.OutEdges(u)
		} else {
			candidates = g.NonTrivialFollowupEdges(g.edges[item.via])
		}
		for _, e := range candidates {
			if e.Transition.Kind != KeyResolution && e.Transition.Kind != RootTypeResolution {
				continue
			}
			v := e.Tail
			if v == from || settled[v] || excludedDestinations.Contains(g.nodes[v].Source) {
				continue
			}
			res, err := resolver.Resolve(e, ctx, excludedDestinations, excludedConditions)
			if err != nil {
				return nil, err
			}
			if !res.Satisfied {
				continue
			}
			newCost := dist[u] + res.Cost
			if existing, ok := dist[v]; ok && newCost >= existing {
				continue
			}
			dist[v] = newCost
			prev[v] = e.Index
			heap.Push(pq, &chaseItem{node: v, cost: newCost, via: e.Index})
		}
	}

	paths := make([]KeyChasingPath, 0, len(order))
	for _, n := range order {
		paths = append(paths, KeyChasingPath{Node: n, Cost: dist[n], Edges: reconstructEdges(g, prev, from, n)})
	}
	return paths, nil
}

// reconstructEdges returns the edges leading from `from` to `to` using prev.
func reconstructEdges(g *QueryGraph, prev map[NodeIndex]EdgeIndex, from, to NodeIndex) []EdgeIndex {
	var edges []EdgeIndex
	for cur := to; cur != from; {
		ei, ok := prev[cur]
		if !ok {
			break
		}
		edges = append([]EdgeIndex{ei}, edges...)
		cur = g.edges[ei].Head
	}
	return edges
}
