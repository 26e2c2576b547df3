// Package vectormath provides similarity math over embedding vectors.
package vectormath

import "math"

// CosineSimilarity computes the cosine similarity between two embedding
// vectors. Returns a value in [-1, 1]. Mismatched lengths or an all-zero
// vector yield 0 rather than an error, so callers can treat degenerate
// input as "not similar" without special-casing.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	dotProduct := 0.0
	magA := 0.0
	magB := 0.0

	for i := range a {
		fa := float64(a[i])
		fb := float64(b[i])
		dotProduct += fa * fb
		magA += fa * fa
		magB += fb * fb
	}

	if magA == 0 || magB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(magA) * math.Sqrt(magB))
}

// CosineDistance converts cosine similarity into a distance in [0, 2].
// Identical direction is 0, orthogonal is 1, opposite is 2.
func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}
