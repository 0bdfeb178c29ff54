package semindex

import (
	"errors"
	"math"
)

// ErrNoProvider is returned by Query when the index was built without an
// embedding provider. Index calls report it as a skipped indexing attempt.
var ErrNoProvider = errors.New("semindex: no embedding provider configured")

// cosineSimilarity computes the normalized dot product of two vectors.
// Vectors of mismatched length or zero norm score 0.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
