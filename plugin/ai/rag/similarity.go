package rag

import "math"

// CosineSimilarity calculates cosine similarity between two vectors.
// It is 0 when either vector is empty or zero, or when the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp rounding drift so callers can rely on [-1, 1].
	return math.Max(-1, math.Min(1, sim))
}
