package hnsw

import (
	"container/heap"
	"math"
)

// candidate is a (id, distance) pair used by the search kernel's
// priority structures and by prune's closest-neighbour scan.
type candidate struct {
	id   uint64
	dist float32
}

// minCandHeap is a min-heap of candidates (closest first) — the
// best-first exploration frontier.
type minCandHeap []candidate

func (h minCandHeap) Len() int            { return len(h) }
func (h minCandHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minCandHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minCandHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *minCandHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// maxCandHeap is a max-heap of candidates (farthest first) — used to hold
// the bounded result set so the current "bound" (the farthest kept
// distance) is always O(1) to read at the top and O(log ef) to evict.
type maxCandHeap []candidate

func (h maxCandHeap) Len() int            { return len(h) }
func (h maxCandHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxCandHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxCandHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *maxCandHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// searchLayer runs best-first exploration on a single layer and returns up
// to ef node ids reachable through layer-l edges, sorted ascending by
// distance to query. entryPoints must be non-empty and belong to layer l
// (the caller — Insert/Search — is responsible for that).
//
// This is the one routine shared by Insert and Search (§4.4 of the
// source spec): visited-set gated expansion, a bounded max-heap standing
// in for the "rescan results for the farthest element" the naive
// reference implementation would do, and the early-termination rule once
// the best unexplored candidate can no longer beat the current bound.
func (g *Graph) searchLayer(query Vector, entryPoints []uint64, ef int, layer int) []candidate {
	visited := make(map[uint64]bool, ef*2)
	frontier := &minCandHeap{}
	results := &maxCandHeap{}

	consider := func(id uint64, dist float32) {
		bound := currentBound(results, ef)
		if results.Len() < ef || dist < bound {
			heap.Push(frontier, candidate{id: id, dist: dist})
			heap.Push(results, candidate{id: id, dist: dist})
			if results.Len() > ef {
				heap.Pop(results)
			}
		}
	}

	for _, id := range entryPoints {
		if visited[id] {
			continue
		}
		visited[id] = true
		consider(id, g.distTo(query, id))
	}

	for frontier.Len() > 0 {
		c := heap.Pop(frontier).(candidate)
		if c.dist > currentBound(results, ef) {
			break
		}

		n := g.nodes[c.id]
		for _, nbID := range n.neighbors(layer) {
			if visited[nbID] {
				continue
			}
			visited[nbID] = true
			consider(nbID, g.distTo(query, nbID))
		}
	}

	out := make([]candidate, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(candidate)
	}
	return out
}

// currentBound is the largest distance currently held in results, or +Inf
// while results has not yet reached ef entries — matching §4.4 step 4's
// "push when d < bound OR |results| < ef" rule without a separate
// not-yet-full flag.
func currentBound(results *maxCandHeap, ef int) float32 {
	if results.Len() < ef {
		return float32(math.Inf(1))
	}
	return (*results)[0].dist
}

// sortCandidatesAscending sorts candidates by distance, closest first —
// used by pruneNeighbors, which does not need the heap machinery above
// since it operates on a single node's already-small neighbour list.
func sortCandidatesAscending(c []candidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].dist < c[j-1].dist; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}
