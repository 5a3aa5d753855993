package promotion

import (
	"fmt"
	"math"
)

// CosineSimilarity computes cosine similarity for two vectors.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, fmt.Errorf("cosine similarity: empty vector")
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("cosine similarity: vector dimension mismatch: %d vs %d", len(a), len(b))
	}

	var dot float64
	var normA float64
	var normB float64

	for i := range a {
		ai := float64(a[i])
		bi := float64(b[i])
		if !isFiniteFloat64(ai) {
			return 0, fmt.Errorf("cosine similarity: invalid value in vector a at index %d", i)
		}
		if !isFiniteFloat64(bi) {
			return 0, fmt.Errorf("cosine similarity: invalid value in vector b at index %d", i)
		}

		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}

	if normA == 0 {
		return 0, fmt.Errorf("cosine similarity: zero vector norm for a")
	}
	if normB == 0 {
		return 0, fmt.Errorf("cosine similarity: zero vector norm for b")
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

func isFiniteFloat64(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
