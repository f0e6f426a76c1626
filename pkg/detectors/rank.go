package detectors

import (
	"math"
	"sort"
)

// FlagCount returns how many of n entities a contamination fraction flags:
// round(c*n), at least one and at most n.
func FlagCount(n int, contamination float64) int {
	k := int(math.Round(contamination * float64(n)))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	return k
}

// LowestK returns the indices of the k lowest scores, ascending, ties broken by index.
func LowestK(scores []float64, k int) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] < scores[order[b]]
	})
	if k > len(order) {
		k = len(order)
	}
	return order[:k]
}

// ScoreMap pairs entity ids with scores.
func ScoreMap(ids []string, scores []float64) map[string]float64 {
	m := make(map[string]float64, len(ids))
	for i, id := range ids {
		m[id] = scores[i]
	}
	return m
}

// Pick returns ids at the given indices.
func Pick(ids []string, idx []int) []string {
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = ids[j]
	}
	return out
}
