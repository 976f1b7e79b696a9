// Package vector provides similarity helpers for embedding vectors.
package vector

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrEmptyVector is returned when a vector has no components.
	ErrEmptyVector = errors.New("vector: empty vector")
	// ErrZeroVector is returned when a vector has zero length, which leaves cosine similarity undefined.
	ErrZeroVector = errors.New("vector: zero-norm vector")
)

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Normalize scales x in place to unit length. A zero vector is left as is and reported false.
func Normalize(x []float32) bool {
	norm := L2Norm(x)
	if norm == 0 {
		return false
	}
	inv := float32(1 / norm)
	for i := range x {
		x[i] *= inv
	}
	return true
}

// Cosine returns the cosine similarity of a and b in [-1, 1].
// It fails instead of returning NaN when either vector is empty or zero, or the dimensions differ.
func Cosine(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrEmptyVector
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector: dimension mismatch: %d vs %d", len(a), len(b))
	}
	normA, normB := L2Norm(a), L2Norm(b)
	if normA == 0 || normB == 0 {
		return 0, ErrZeroVector
	}
	sim := InnerProduct(a, b) / (normA * normB)
	// Rounding can push identical vectors slightly past 1.
	return math.Max(-1, math.Min(1, sim)), nil
}
