// Package dbscan implements density-based clustering and flags entities that fit no cluster.
package dbscan

import (
	"sort"

	"github.com/hed1ad/accessguard/pkg/detectors"
	"github.com/hed1ad/accessguard/pkg/errorutil"
	"github.com/hed1ad/accessguard/pkg/features"
)

// Noise is the cluster id of points reachable from no core point.
const Noise = -1

// DBSCAN holds the clustering parameters and the profiling setup.
type DBSCAN struct {
	eps        float64
	minPoints  int
	roles      features.Roles
	thresholds OutlierThresholds
	classifier *Classifier
}

// Clustering is the auxiliary data of a clustering result.
type Clustering struct {
	Scaler *features.StandardScaler `json:"-"`
	// Assignments maps every entity to a cluster id or Noise.
	Assignments map[string]int `json:"assignments"`
	// Core marks entities with at least minPoints neighbors within eps.
	Core     map[string]bool  `json:"core"`
	Clusters []Profile        `json:"clusters"`
	Outliers []OutlierProfile `json:"outliers"`
}

// NumClusters returns the number of non-noise clusters.
func (c *Clustering) NumClusters() int { return len(c.Clusters) }

// Option configures a DBSCAN.
type Option func(*DBSCAN)

// WithEps sets the neighborhood radius in standardized units.
func WithEps(eps float64) Option {
	return func(d *DBSCAN) {
		d.eps = eps
	}
}

// WithMinPoints sets how many other points a core point needs within eps.
func WithMinPoints(n int) Option {
	return func(d *DBSCAN) {
		d.minPoints = n
	}
}

// WithRoles sets which features drive profiling and outlier risk factors.
func WithRoles(r features.Roles) Option {
	return func(d *DBSCAN) {
		d.roles = r
	}
}

// WithOutlierThresholds sets the multipliers used to count outlier risk factors.
func WithOutlierThresholds(t OutlierThresholds) Option {
	return func(d *DBSCAN) {
		d.thresholds = t
	}
}

// WithClassifier sets the cluster rule table.
func WithClassifier(c *Classifier) Option {
	return func(d *DBSCAN) {
		d.classifier = c
	}
}

// New creates a DBSCAN detector. Without WithClassifier it uses the default
// rule table for the configured roles.
func New(opts ...Option) (*DBSCAN, error) {
	d := &DBSCAN{
		eps:        0.8,
		minPoints:  2,
		roles:      features.DefaultRoles(),
		thresholds: DefaultOutlierThresholds(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.classifier == nil {
		c, err := NewClassifier(DefaultRules(d.roles), DefaultFallback)
		if err != nil {
			return nil, err
		}
		d.classifier = c
	}
	return d, nil
}

// Method implements detectors.Detector.
func (d *DBSCAN) Method() detectors.Method { return detectors.Clustering }

// Detect standardizes the table, clusters it and flags every noise point.
// Clustered entities score 0; noise scores the negated distance to the nearest
// core point, or to the nearest other point when no core point exists.
func (d *DBSCAN) Detect(table *features.Table) (*detectors.Result, error) {
	if d.eps < 0 {
		return nil, errorutil.Configuration("eps", "must not be negative, got %g", d.eps)
	}
	if d.minPoints <= 0 {
		return nil, errorutil.Configuration("min_points", "must be positive, got %d", d.minPoints)
	}

	scaler := &features.StandardScaler{}
	data := scaler.FitTransform(table.Matrix())
	dist := detectors.PairwiseDistances(data)

	labels, core := cluster(dist, d.eps, d.minPoints)

	n := table.Len()
	ids := table.EntityIDs()
	scores := make([]float64, n)
	var noise []int
	for i, label := range labels {
		if label != Noise {
			continue
		}
		noise = append(noise, i)
		scores[i] = -nearestDistance(dist, i, core)
	}
	sort.SliceStable(noise, func(a, b int) bool {
		return scores[noise[a]] < scores[noise[b]]
	})

	aux := &Clustering{
		Scaler:      scaler,
		Assignments: make(map[string]int, n),
		Core:        make(map[string]bool, n),
	}
	for i, id := range ids {
		aux.Assignments[id] = labels[i]
		aux.Core[id] = core[i]
	}
	aux.Clusters = d.profiles(table, labels)
	aux.Outliers = d.outlierProfiles(table, noise)

	return detectors.NewResult(
		detectors.Clustering,
		detectors.Pick(ids, noise),
		detectors.ScoreMap(ids, scores),
		aux,
	), nil
}

// cluster assigns cluster ids in order of the first unassigned core point,
// expanding breadth-first. Border points join the first cluster that reaches them.
func cluster(dist [][]float64, eps float64, minPoints int) ([]int, []bool) {
	n := len(dist)
	neighbors := make([][]int, n)
	core := make([]bool, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j && dist[i][j] <= eps {
				neighbors[i] = append(neighbors[i], j)
			}
		}
		core[i] = len(neighbors[i]) >= minPoints
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = Noise
	}
	assigned := make([]bool, n)

	next := 0
	for i := 0; i < n; i++ {
		if assigned[i] || !core[i] {
			continue
		}
		id := next
		next++

		labels[i] = id
		assigned[i] = true
		queue := []int{i}
		for len(queue) > 0 {
			p := queue[0]
			queue = queue[1:]
			for _, q := range neighbors[p] {
				if assigned[q] {
					continue
				}
				labels[q] = id
				assigned[q] = true
				if core[q] {
					queue = append(queue, q)
				}
			}
		}
	}
	return labels, core
}

func nearestDistance(dist [][]float64, i int, core []bool) float64 {
	best, found := 0.0, false
	for j, isCore := range core {
		if isCore && j != i && (!found || dist[i][j] < best) {
			best, found = dist[i][j], true
		}
	}
	if found {
		return best
	}
	for j := range dist[i] {
		if j != i && (!found || dist[i][j] < best) {
			best, found = dist[i][j], true
		}
	}
	return best
}
