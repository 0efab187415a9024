package hnsw

import (
	"fmt"
	"math"
	"sort"
)

// SearchRequest bundles a query and its search parameters. Construct it
// with NewSearchRequest so TopK/MaxSearchDepth are validated once, up
// front, rather than at every call site.
type SearchRequest struct {
	Query          Vector
	TopK           int
	MaxSearchDepth int
}

// NewSearchRequest validates topK > 0 and, if maxSearchDepth > 0, uses it
// as-is; pass 0 to get the "unbounded" sentinel (math.MaxInt).
// MaxSearchDepth is accepted and stored for API completeness but is not
// consulted by the search kernel — see SPEC_FULL.md §A.9.
func NewSearchRequest(query Vector, topK int, maxSearchDepth int) (SearchRequest, error) {
	if topK <= 0 {
		return SearchRequest{}, fmt.Errorf("hnsw: NewSearchRequest: topK must be > 0, got %d: %w", topK, ErrInvalidArgument)
	}
	if maxSearchDepth == 0 {
		maxSearchDepth = math.MaxInt
	} else if maxSearchDepth < 0 {
		return SearchRequest{}, fmt.Errorf("hnsw: NewSearchRequest: maxSearchDepth must be > 0, got %d: %w", maxSearchDepth, ErrInvalidArgument)
	}
	return SearchRequest{Query: query, TopK: topK, MaxSearchDepth: maxSearchDepth}, nil
}

// SearchResult is a single (id, distance) hit. Results are orderable
// ascending by Distance.
type SearchResult struct {
	ID       uint64
	Distance float32
}

// String renders an informational (not wire-format) summary.
func (r SearchResult) String() string {
	return fmt.Sprintf("SearchResult{ID: %d, Distance: %g}", r.ID, r.Distance)
}

// SearchResults is an ascending-by-distance slice of SearchResult,
// satisfying sort.Interface for callers that want to re-sort a subset.
type SearchResults []SearchResult

func (s SearchResults) Len() int           { return len(s) }
func (s SearchResults) Less(i, j int) bool { return s[i].Distance < s[j].Distance }
func (s SearchResults) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

var _ sort.Interface = SearchResults(nil)

// Search runs a top-level k-nearest-neighbour query (§4.8): an empty
// index returns nil; otherwise a greedy ef=1 descent from the entry point
// down to layer 1, a layer-0 search with ef = max(TopK, M), and the
// closest min(TopK, len(candidates)) results in ascending distance order.
func (g *Graph) Search(req SearchRequest) SearchResults {
	if len(g.nodes) == 0 {
		return nil
	}

	nearest := g.entryPoint
	for lc := g.maxLevel; lc > 0; lc-- {
		nearest = g.greedyDescend(req.Query, nearest, lc)
	}

	ef := req.TopK
	if g.m > ef {
		ef = g.m
	}
	cands := g.searchLayer(req.Query, []uint64{nearest}, ef, 0)

	n := req.TopK
	if n > len(cands) {
		n = len(cands)
	}

	out := make(SearchResults, n)
	for i := 0; i < n; i++ {
		out[i] = SearchResult{ID: cands[i].id, Distance: cands[i].dist}
	}
	return out
}
