package storage

import (
	"math"
	"slices"

	"github.com/scrypster/recollect/pkg/types"
)

// CosineSimilarity returns dot(a,b)/(|a||b|). It returns 0 when either vector
// has zero norm or the dimensions differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// clamp float drift
	if sim > 1 {
		return 1
	}
	if sim < -1 {
		return -1
	}
	return sim
}

// Comparable reports whether two vectors can be compared at all.
func Comparable(a, b []float32) bool {
	return len(a) > 0 && len(a) == len(b) && !isZero(a) && !isZero(b)
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// RankVectors scores candidates against query, drops incomparable vectors and
// those below minSimilarity, orders by similarity then recency, and truncates to k.
// Backends doing a full scan share this ordering.
func RankVectors(candidates []types.VectorRecord, query []float32, k int, minSimilarity float64) []types.ScoredVector {
	if k <= 0 {
		return nil
	}

	scored := make([]types.ScoredVector, 0, len(candidates))
	for _, c := range candidates {
		if !Comparable(query, c.Embedding) {
			continue
		}
		sim := CosineSimilarity(query, c.Embedding)
		if sim < minSimilarity {
			continue
		}
		scored = append(scored, types.ScoredVector{Record: c, Similarity: sim})
	}

	SortScored(scored)

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// SortScored orders by similarity descending, ties broken by newer TimeSpan.Start.
func SortScored(scored []types.ScoredVector) {
	slices.SortStableFunc(scored, func(a, b types.ScoredVector) int {
		if a.Similarity > b.Similarity {
			return -1
		}
		if a.Similarity < b.Similarity {
			return 1
		}
		return b.Record.TimeSpan.Start.Compare(a.Record.TimeSpan.Start)
	})
}
