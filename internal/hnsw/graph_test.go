package hnsw

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"testing"
)

func randomVec(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	return v
}

func mustGraph(t *testing.T, cfg Config) *Graph {
	t.Helper()
	g, err := NewSeeded(cfg, 42)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

// S1 — Euclidean distance sanity.
func TestScenarioS1Distance(t *testing.T) {
	a := NewVector(1, []float32{0, 0})
	b := NewVector(2, []float32{3, 4})
	d, err := a.Distance(b)
	if err != nil {
		t.Fatalf("Distance: %v", err)
	}
	if math.Abs(float64(d)-5.0) > 1e-3 {
		t.Errorf("expected ~5.0, got %v", d)
	}
}

// S3 — four-corner lookup.
func TestScenarioS3FourCorners(t *testing.T) {
	g := mustGraph(t, Config{M: 16, ML: DefaultML})

	corners := []struct {
		id   uint64
		data []float32
	}{
		{1, []float32{0, 0}},
		{2, []float32{1, 0}},
		{3, []float32{0, 1}},
		{4, []float32{1, 1}},
	}
	for _, c := range corners {
		if err := g.Insert(NewVector(c.id, c.data)); err != nil {
			t.Fatalf("Insert(%d): %v", c.id, err)
		}
	}

	req, err := NewSearchRequest(NewVector(0, []float32{0.1, 0.1}), 2, 0)
	if err != nil {
		t.Fatalf("NewSearchRequest: %v", err)
	}
	results := g.Search(req)

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != 1 {
		t.Errorf("expected closest to be id=1, got id=%d", results[0].ID)
	}
	want := math.Sqrt(0.02)
	if math.Abs(float64(results[0].Distance)-want) > 1e-3 {
		t.Errorf("expected distance ~%.4f, got %v", want, results[0].Distance)
	}
	if results[0].Distance > results[1].Distance {
		t.Errorf("results not ascending: %v then %v", results[0].Distance, results[1].Distance)
	}
}

// S4 — duplicate id rejection leaves state untouched.
func TestScenarioS4DuplicateID(t *testing.T) {
	g := mustGraph(t, DefaultConfig())
	if err := g.Insert(NewVector(1, []float32{1, 2})); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	err := g.Insert(NewVector(1, []float32{5, 5}))
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if g.Size() != 1 {
		t.Errorf("expected size 1 after rejected duplicate, got %d", g.Size())
	}
}

// S5 — empty index search.
func TestScenarioS5EmptyIndexSearch(t *testing.T) {
	g := mustGraph(t, DefaultConfig())
	req, err := NewSearchRequest(NewVector(0, []float32{1, 2}), 5, 0)
	if err != nil {
		t.Fatalf("NewSearchRequest: %v", err)
	}
	results := g.Search(req)
	if len(results) != 0 {
		t.Errorf("expected empty results, got %d", len(results))
	}
}

// S6 — SearchRequest validation.
func TestScenarioS6RequestValidation(t *testing.T) {
	v := NewVector(0, []float32{1, 2})
	cases := []struct {
		name           string
		topK           int
		maxSearchDepth int
	}{
		{"zero topK", 0, 0},
		{"negative topK", -1, 0},
		{"negative maxSearchDepth", 1, -1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := NewSearchRequest(v, c.topK, c.maxSearchDepth)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

// S7 — oversubscribed k.
func TestScenarioS7OversubscribedK(t *testing.T) {
	g := mustGraph(t, DefaultConfig())
	g.Insert(NewVector(1, []float32{0, 0}))
	g.Insert(NewVector(2, []float32{1, 1}))

	req, _ := NewSearchRequest(NewVector(0, []float32{0, 0}), 10, 0)
	results := g.Search(req)
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}
}

// S8 — single-vector retrieval.
func TestScenarioS8SingleVector(t *testing.T) {
	g := mustGraph(t, DefaultConfig())
	g.Insert(NewVector(1, []float32{3, 3, 3}))

	req, _ := NewSearchRequest(NewVector(0, []float32{0, 0, 0}), 1, 0)
	results := g.Search(req)
	if len(results) != 1 || results[0].ID != 1 {
		t.Fatalf("expected single result id=1, got %v", results)
	}
}

// Round-trip: every inserted vector is its own nearest neighbor.
func TestSelfIsNearestNeighbor(t *testing.T) {
	const dim = 32
	rng := rand.New(rand.NewSource(7))
	g := mustGraph(t, Config{M: 16, ML: DefaultML})

	const n = 150
	ids := make([]uint64, n)
	for i := 0; i < n; i++ {
		id := uint64(i + 1)
		ids[i] = id
		if err := g.Insert(NewVector(id, randomVec(rng, dim))); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	for _, id := range ids {
		v, ok := g.vectorFor(id)
		if !ok {
			t.Fatalf("vectorFor(%d) missing", id)
		}
		req, _ := NewSearchRequest(v, 1, 0)
		results := g.Search(req)
		if len(results) == 0 || results[0].ID != id {
			t.Errorf("id %d: expected self as nearest neighbor, got %v", id, results)
		}
	}
}

// P1 — bidirectional edges.
func TestInvariantP1Bidirectional(t *testing.T) {
	const dim = 16
	rng := rand.New(rand.NewSource(3))
	g := mustGraph(t, Config{M: 8, ML: DefaultML})

	for i := 0; i < 200; i++ {
		g.Insert(NewVector(uint64(i+1), randomVec(rng, dim)))
	}

	for id, n := range g.nodes {
		for l := 0; l <= n.level; l++ {
			for _, nb := range n.neighbors(l) {
				if nb == id {
					t.Errorf("node %d is its own neighbor at layer %d", id, l)
				}
				other, ok := g.nodes[nb]
				if !ok {
					t.Errorf("neighbor %d of node %d does not exist", nb, id)
					continue
				}
				if !other.hasNeighbor(l, id) {
					t.Errorf("edge not bidirectional: %d -> %d at layer %d but not back", id, nb, l)
				}
			}
		}
	}
}

// P2 — degree bounds.
func TestInvariantP2DegreeBounds(t *testing.T) {
	const dim = 16
	const m = 8
	rng := rand.New(rand.NewSource(9))
	g := mustGraph(t, Config{M: m, ML: DefaultML})

	for i := 0; i < 300; i++ {
		g.Insert(NewVector(uint64(i+1), randomVec(rng, dim)))
	}

	for id, n := range g.nodes {
		if n.degree(0) > 2*m {
			t.Errorf("node %d: layer 0 degree %d exceeds M_max0=%d", id, n.degree(0), 2*m)
		}
		for l := 1; l <= n.level; l++ {
			if n.degree(l) > m {
				t.Errorf("node %d: layer %d degree %d exceeds M=%d", id, l, n.degree(l), m)
			}
		}
	}
}

// P3 — entry point / max level consistency.
func TestInvariantP3EntryPointConsistency(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	g := mustGraph(t, Config{M: 8, ML: DefaultML})

	for i := 0; i < 100; i++ {
		g.Insert(NewVector(uint64(i+1), randomVec(rng, 8)))
	}

	if !g.Contains(g.entryPoint) {
		t.Fatalf("entry point %d does not exist", g.entryPoint)
	}
	if g.nodes[g.entryPoint].level != g.maxLevel {
		t.Errorf("entry point level %d != maxLevel %d", g.nodes[g.entryPoint].level, g.maxLevel)
	}
	for id, n := range g.nodes {
		if n.level > g.maxLevel {
			t.Errorf("node %d has level %d > maxLevel %d", id, n.level, g.maxLevel)
		}
	}
}

// P5 — search output shape: ascending (non-decreasing), distinct ids, bounded length.
func TestInvariantP5SearchOutputShape(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	g := mustGraph(t, Config{M: 16, ML: DefaultML})

	const n = 100
	for i := 0; i < n; i++ {
		g.Insert(NewVector(uint64(i+1), randomVec(rng, 24)))
	}

	req, _ := NewSearchRequest(NewVector(0, randomVec(rng, 24)), 10, 0)
	results := g.Search(req)

	if len(results) != min(10, n) {
		t.Fatalf("expected %d results, got %d", min(10, n), len(results))
	}
	seen := make(map[uint64]bool)
	for i, r := range results {
		if seen[r.ID] {
			t.Errorf("duplicate id %d in results", r.ID)
		}
		seen[r.ID] = true
		if i > 0 && results[i-1].Distance > r.Distance {
			t.Errorf("results not ascending at index %d: %v then %v", i, results[i-1].Distance, r.Distance)
		}
	}
	if !sort.IsSorted(results) {
		t.Error("SearchResults not sorted per sort.Interface")
	}
}

// New/Config validation.
func TestNewConfigValidation(t *testing.T) {
	if _, err := New(Config{M: 1, ML: 1}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for M<2, got %v", err)
	}
	if _, err := New(Config{M: 16, ML: 0}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for ML<=0, got %v", err)
	}
}

// BenchmarkRecall measures recall@10 of HNSW vs brute force, mirroring
// the teacher's BenchmarkRecall10.
func BenchmarkRecall(b *testing.B) {
	const (
		dim    = 64
		nIndex = 1000
		nQuery = 30
		k      = 10
	)
	rng := rand.New(rand.NewSource(42))
	g, err := NewSeeded(Config{M: 16, ML: DefaultML}, 42)
	if err != nil {
		b.Fatalf("NewSeeded: %v", err)
	}

	vecs := make([]Vector, nIndex)
	for i := range vecs {
		vecs[i] = NewVector(uint64(i+1), randomVec(rng, dim))
		g.Insert(vecs[i])
	}

	queries := make([]Vector, nQuery)
	for i := range queries {
		queries[i] = NewVector(0, randomVec(rng, dim))
	}

	b.ResetTimer()

	var totalRecall float64
	for _, q := range queries {
		type sc struct {
			id  uint64
			d   float32
		}
		scores := make([]sc, nIndex)
		for i, v := range vecs {
			d, _ := q.Distance(v)
			scores[i] = sc{id: v.ID(), d: d}
		}
		sort.Slice(scores, func(i, j int) bool { return scores[i].d < scores[j].d })
		groundTruth := make(map[uint64]bool, k)
		for i := 0; i < k && i < len(scores); i++ {
			groundTruth[scores[i].id] = true
		}

		req, _ := NewSearchRequest(q, k, 0)
		results := g.Search(req)
		var hits int
		for _, r := range results {
			if groundTruth[r.ID] {
				hits++
			}
		}
		totalRecall += float64(hits) / float64(k)
	}

	recall := totalRecall / float64(nQuery)
	b.ReportMetric(recall, "recall@10")
	if recall < 0.80 {
		b.Errorf("recall@10 too low: %.3f (want >= 0.80)", recall)
	}
}
