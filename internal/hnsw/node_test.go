package hnsw

import "testing"

func TestNodeNeighborsOutOfRangeLayer(t *testing.T) {
	n := newNode(NewVector(1, []float32{0, 0}), 1)
	if got := n.neighbors(5); got != nil {
		t.Errorf("expected nil/empty view for out-of-range layer, got %v", got)
	}
	if got := n.neighbors(-1); got != nil {
		t.Errorf("expected nil/empty view for negative layer, got %v", got)
	}
}

func TestNodeAddNeighborDedup(t *testing.T) {
	n := newNode(NewVector(1, []float32{0, 0}), 0)
	n.addNeighbor(0, 7)
	n.addNeighbor(0, 7)
	if n.degree(0) != 1 {
		t.Errorf("expected degree 1 after duplicate add, got %d", n.degree(0))
	}
}

func TestNodeRemoveNeighbor(t *testing.T) {
	n := newNode(NewVector(1, []float32{0, 0}), 0)
	n.addNeighbor(0, 1)
	n.addNeighbor(0, 2)
	n.addNeighbor(0, 3)
	n.removeNeighbor(0, 2)

	if n.hasNeighbor(0, 2) {
		t.Error("expected 2 to be removed")
	}
	if !n.hasNeighbor(0, 1) || !n.hasNeighbor(0, 3) {
		t.Error("expected 1 and 3 to remain")
	}
	if n.degree(0) != 2 {
		t.Errorf("expected degree 2, got %d", n.degree(0))
	}
}

func TestNewNodeEachLayerInitiallyEmpty(t *testing.T) {
	n := newNode(NewVector(1, []float32{0, 0}), 3)
	for l := 0; l <= 3; l++ {
		if n.degree(l) != 0 {
			t.Errorf("layer %d: expected empty neighbor set, got degree %d", l, n.degree(l))
		}
	}
}
