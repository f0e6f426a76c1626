// Package lof implements the Local Outlier Factor for contextual anomaly detection.
package lof

import (
	"sort"

	"github.com/hed1ad/accessguard/pkg/detectors"
	"github.com/hed1ad/accessguard/pkg/errorutil"
	"github.com/hed1ad/accessguard/pkg/features"
)

// densityEpsilon keeps the reachability density finite when a point and its
// neighbors coincide.
const densityEpsilon = 1e-10

// LocalOutlierFactor holds the configuration of the detector.
type LocalOutlierFactor struct {
	neighbors     int
	contamination float64
}

// Artifacts is the auxiliary data of a local-density result.
type Artifacts struct {
	Scaler *features.StandardScaler `json:"-"`
	// K is the neighbor count actually used after clamping to n-1.
	K int `json:"k"`
	// Neighbors lists each entity's k nearest neighbors, nearest first.
	Neighbors map[string][]string `json:"neighbors"`
	// Density is the local reachability density per entity.
	Density map[string]float64 `json:"density"`
	// Factor is the local outlier factor per entity; values well above 1 are outliers.
	Factor map[string]float64 `json:"factor"`
}

// Option configures a LocalOutlierFactor.
type Option func(*LocalOutlierFactor)

// WithNeighbors sets k, the neighborhood size.
func WithNeighbors(k int) Option {
	return func(l *LocalOutlierFactor) {
		l.neighbors = k
	}
}

// WithContamination sets the expected proportion of outliers.
func WithContamination(c float64) Option {
	return func(l *LocalOutlierFactor) {
		l.contamination = c
	}
}

// New creates a LocalOutlierFactor detector.
func New(opts ...Option) *LocalOutlierFactor {
	l := &LocalOutlierFactor{
		neighbors:     5,
		contamination: 0.15,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FromConfig creates a detector from run configuration.
func FromConfig(cfg detectors.Config) *LocalOutlierFactor {
	return New(WithNeighbors(cfg.NeighborCount), WithContamination(cfg.ContaminationLocal))
}

// Method implements detectors.Detector.
func (l *LocalOutlierFactor) Method() detectors.Method { return detectors.LocalDensity }

// Detect standardizes the table, computes the local outlier factor of every
// entity and flags the top contamination fraction. Scores are the negated
// factor, so more negative is more unusual.
func (l *LocalOutlierFactor) Detect(table *features.Table) (*detectors.Result, error) {
	if err := detectors.ValidateContamination("contamination_local", l.contamination); err != nil {
		return nil, err
	}
	if l.neighbors <= 0 {
		return nil, errorutil.Configuration("neighbor_count", "must be positive, got %d", l.neighbors)
	}

	n := table.Len()
	k := l.neighbors
	if k > n-1 {
		k = n - 1
	}
	if k < 1 || k >= n {
		return nil, errorutil.InsufficientData("neighbor_count", "need at least 2 rows for k nearest neighbors, got %d", n)
	}

	scaler := &features.StandardScaler{}
	data := scaler.FitTransform(table.Matrix())
	dist := detectors.PairwiseDistances(data)

	neighbors := nearest(dist, k)

	kDist := make([]float64, n)
	for i, nb := range neighbors {
		kDist[i] = dist[i][nb[k-1]]
	}

	density := make([]float64, n)
	for i, nb := range neighbors {
		var reach float64
		for _, j := range nb {
			reach += max(kDist[j], dist[i][j])
		}
		density[i] = 1 / (reach/float64(k) + densityEpsilon)
	}

	factor := make([]float64, n)
	scores := make([]float64, n)
	for i, nb := range neighbors {
		var sum float64
		for _, j := range nb {
			sum += density[j]
		}
		factor[i] = sum / float64(k) / density[i]
		scores[i] = -factor[i]
	}

	ids := table.EntityIDs()
	art := &Artifacts{
		Scaler:    scaler,
		K:         k,
		Neighbors: make(map[string][]string, n),
		Density:   detectors.ScoreMap(ids, density),
		Factor:    detectors.ScoreMap(ids, factor),
	}
	for i, nb := range neighbors {
		art.Neighbors[ids[i]] = detectors.Pick(ids, nb)
	}

	flaggedIdx := detectors.LowestK(scores, detectors.FlagCount(n, l.contamination))

	return detectors.NewResult(
		detectors.LocalDensity,
		detectors.Pick(ids, flaggedIdx),
		detectors.ScoreMap(ids, scores),
		art,
	), nil
}

// nearest returns, for each point, the indices of its k nearest other points
// ordered by distance then index.
func nearest(dist [][]float64, k int) [][]int {
	n := len(dist)
	out := make([][]int, n)
	for i := 0; i < n; i++ {
		others := make([]int, 0, n-1)
		for j := 0; j < n; j++ {
			if j != i {
				others = append(others, j)
			}
		}
		row := dist[i]
		sort.SliceStable(others, func(a, b int) bool {
			return row[others[a]] < row[others[b]]
		})
		out[i] = others[:k]
	}
	return out
}
