package hnsw

import (
	"errors"
	"math"
	"testing"
)

func TestDistanceBasic(t *testing.T) {
	d, err := Distance([]float32{0, 0}, []float32{3, 4})
	if err != nil {
		t.Fatalf("Distance: %v", err)
	}
	if math.Abs(float64(d)-5.0) > 1e-3 {
		t.Errorf("expected 5.0, got %v", d)
	}
}

func TestDistanceDimensionMismatch(t *testing.T) {
	_, err := Distance([]float32{1, 2}, []float32{1, 2, 3})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestDistanceSymmetricAndTriangleInequality(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, -1, 7}
	c := []float32{0, 0, 0}

	dab, _ := Distance(a, b)
	dba, _ := Distance(b, a)
	if math.Abs(float64(dab-dba)) > 1e-5 {
		t.Errorf("distance not symmetric: %v vs %v", dab, dba)
	}

	daa, _ := Distance(a, a)
	if daa != 0 {
		t.Errorf("d(a,a) should be 0, got %v", daa)
	}

	dac, _ := Distance(a, c)
	dcb, _ := Distance(c, b)
	if float64(dab) > float64(dac)+float64(dcb)+1e-4 {
		t.Errorf("triangle inequality violated: d(a,b)=%v > d(a,c)+d(c,b)=%v", dab, dac+dcb)
	}
}

func TestCosineSimilarityEdges(t *testing.T) {
	cases := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0.0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := CosineSimilarity(c.a, c.b)
			if err != nil {
				t.Fatalf("CosineSimilarity: %v", err)
			}
			if math.Abs(float64(got-c.expected)) > 1e-6 {
				t.Errorf("expected %v, got %v", c.expected, got)
			}
		})
	}
}

func TestCosineSimilaritySymmetric(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{-2, 0.5, 7}
	ab, _ := CosineSimilarity(a, b)
	ba, _ := CosineSimilarity(b, a)
	if math.Abs(float64(ab-ba)) > 1e-6 {
		t.Errorf("cosine not symmetric: %v vs %v", ab, ba)
	}
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1}, []float32{1, 2})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
