package features

import "math"

// StandardScaler standardizes each column to zero mean and unit variance.
// A fitted scaler belongs to one detector in one run and is never shared.
type StandardScaler struct {
	Mean []float64
	Std  []float64
}

// Fit computes per-column mean and population standard deviation.
// Zero-variance columns get a unit scale so they transform to zero.
func (s *StandardScaler) Fit(data [][]float64) {
	if len(data) == 0 {
		s.Mean, s.Std = nil, nil
		return
	}
	nFeatures := len(data[0])
	n := float64(len(data))

	s.Mean = make([]float64, nFeatures)
	s.Std = make([]float64, nFeatures)

	for _, row := range data {
		for j, v := range row {
			s.Mean[j] += v
		}
	}
	for j := range s.Mean {
		s.Mean[j] /= n
	}

	for _, row := range data {
		for j, v := range row {
			d := v - s.Mean[j]
			s.Std[j] += d * d
		}
	}
	for j := range s.Std {
		s.Std[j] = math.Sqrt(s.Std[j] / n)
		if s.Std[j] == 0 {
			s.Std[j] = 1
		}
	}
}

// Transform returns a standardized copy of data.
func (s *StandardScaler) Transform(data [][]float64) [][]float64 {
	out := make([][]float64, len(data))
	for i, row := range data {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			out[i][j] = (v - s.Mean[j]) / s.Std[j]
		}
	}
	return out
}

// FitTransform fits the scaler and returns the standardized copy.
func (s *StandardScaler) FitTransform(data [][]float64) [][]float64 {
	s.Fit(data)
	return s.Transform(data)
}

// Standardize is a convenience for a throwaway scaler over the table's raw matrix.
func Standardize(t *Table) ([][]float64, *StandardScaler) {
	s := &StandardScaler{}
	return s.FitTransform(t.Matrix()), s
}
