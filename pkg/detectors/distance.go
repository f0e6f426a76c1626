package detectors

import "math"

// Euclidean returns the L2 distance between two equal-length vectors.
func Euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// PairwiseDistances returns the symmetric matrix of Euclidean distances between rows.
func PairwiseDistances(data [][]float64) [][]float64 {
	n := len(data)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := Euclidean(data[i], data[j])
			dist[i][j] = d
			dist[j][i] = d
		}
	}
	return dist
}
