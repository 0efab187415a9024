package hnsw

import "testing"

func TestVectorDefensiveCopyOnConstruct(t *testing.T) {
	data := []float32{1, 2, 3}
	v := NewVector(1, data)

	data[0] = 999 // mutate the caller's original slice

	got := v.DataCopy()
	if got[0] != 1 {
		t.Errorf("Vector was affected by post-construction mutation of caller's slice: got %v", got)
	}
}

func TestVectorDataCopyIsIndependent(t *testing.T) {
	v := NewVector(1, []float32{1, 2, 3})
	cp := v.DataCopy()
	cp[0] = 999

	cp2 := v.DataCopy()
	if cp2[0] != 1 {
		t.Errorf("mutating one DataCopy() result affected a later one: got %v", cp2)
	}
}

func TestVectorAccessors(t *testing.T) {
	v := NewVector(42, []float32{1, 2, 3, 4})
	if v.ID() != 42 {
		t.Errorf("expected id 42, got %d", v.ID())
	}
	if v.Dimension() != 4 {
		t.Errorf("expected dimension 4, got %d", v.Dimension())
	}
}

func TestVectorDistanceDelegates(t *testing.T) {
	a := NewVector(1, []float32{0, 0})
	b := NewVector(2, []float32{3, 4})
	d, err := a.Distance(b)
	if err != nil {
		t.Fatalf("Distance: %v", err)
	}
	if d != 5 {
		t.Errorf("expected 5, got %v", d)
	}
}
