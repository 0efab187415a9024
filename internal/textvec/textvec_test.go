package textvec

import (
	"testing"
)

func TestL2Normalize(t *testing.T) {
	v := []float32{3, 4, 0} // norm = 5
	l2Normalize(v)
	want := []float32{0.6, 0.8, 0}
	for i, got := range v {
		if diff := got - want[i]; diff < -1e-5 || diff > 1e-5 {
			t.Errorf("v[%d] = %f, want %f", i, got, want[i])
		}
	}
}

func TestEmbedderNew(t *testing.T) {
	_, err := New("/tmp/nonexistent-model-dir-vecindex-test", "", 0)
	if err == nil {
		t.Fatal("expected error for missing model dir, got nil")
	}
}

// TestEmbedSemanticSimilarity verifies that the BGE-small embeddings produce
// mathematically meaningful similarities using CLS pooling, and that the
// resulting hnsw.Vector carries the id the caller assigned.
func TestEmbedSemanticSimilarity(t *testing.T) {
	e, err := New("../../models", "../../lib/onnxruntime.so", 0)
	if err != nil {
		t.Skipf("skipping: model not found at ../../models: %v", err)
	}
	defer e.Close()

	vecs, err := e.EmbedDocuments([]string{
		"a cute baby feline playing with yarn",
		"a tiny kitten swatting at a string",
	}, []uint64{1, 2})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if vecs[0].ID() != 1 || vecs[1].ID() != 2 {
		t.Fatalf("expected ids 1,2, got %d,%d", vecs[0].ID(), vecs[1].ID())
	}

	simKitten, err := vecs[0].CosineSimilarity(vecs[1])
	if err != nil {
		t.Fatalf("CosineSimilarity: %v", err)
	}
	if simKitten < 0.70 {
		t.Errorf("expected high similarity for synonyms, got %f", simKitten)
	}

	unrelated, err := e.EmbedDocuments([]string{
		"a cute baby feline playing with yarn",
		"instructions for adjusting the carburetor on a 1998 honda civic",
	}, []uint64{1, 3})
	if err != nil {
		t.Fatalf("embed unrelated: %v", err)
	}
	simCar, err := unrelated[0].CosineSimilarity(unrelated[1])
	if err != nil {
		t.Fatalf("CosineSimilarity: %v", err)
	}
	if simCar > 0.5 {
		t.Errorf("expected low similarity for unrelated text, got %f", simCar)
	}
}
