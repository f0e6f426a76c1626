// Package iforest implements the Isolation Forest algorithm for global anomaly detection.
package iforest

import (
	"errors"
	"math"
	"math/rand"

	"github.com/hed1ad/accessguard/pkg/detectors"
	"github.com/hed1ad/accessguard/pkg/errorutil"
	"github.com/hed1ad/accessguard/pkg/features"
)

// IsolationForest holds the configuration of an isolation forest.
// Fitting never mutates it, so one instance may serve concurrent runs.
type IsolationForest struct {
	nTrees        int
	sampleSize    int
	contamination float64
	maxDepth      int // 0 derives the cap from the sample size
	seed          int64
}

// Model is a fitted forest. It is immutable.
type Model struct {
	trees         []*iTree
	sampleSize    int
	avgPathLength float64
}

// iTree represents a single isolation tree.
type iTree struct {
	root *node
}

// node is a node in the isolation tree.
type node struct {
	// Split parameters (for internal nodes)
	splitFeature int
	splitValue   float64

	// Children
	left  *node
	right *node

	// Leaf information
	size int // number of samples that reached this leaf
}

// Artifacts is the auxiliary data of a global-isolation result.
type Artifacts struct {
	Scaler *features.StandardScaler `json:"-"`
	Model  *Model                   `json:"-"`
	// Threshold is the highest score still flagged.
	Threshold float64 `json:"threshold"`
	// PathLengths holds each entity's average isolation depth.
	PathLengths map[string]float64 `json:"path_lengths"`
}

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(f *IsolationForest) {
		f.nTrees = n
	}
}

// WithSampleSize sets the subsample size for each tree.
func WithSampleSize(n int) Option {
	return func(f *IsolationForest) {
		f.sampleSize = n
	}
}

// WithContamination sets the expected proportion of anomalies.
func WithContamination(c float64) Option {
	return func(f *IsolationForest) {
		f.contamination = c
	}
}

// WithMaxDepth caps tree depth. Zero derives ceil(log2(sampleSize)).
func WithMaxDepth(d int) Option {
	return func(f *IsolationForest) {
		f.maxDepth = d
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(f *IsolationForest) {
		f.seed = seed
	}
}

// New creates a new IsolationForest with the given options.
func New(opts ...Option) *IsolationForest {
	f := &IsolationForest{
		nTrees:        100,
		sampleSize:    256,
		contamination: 0.1,
		seed:          42,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// FromConfig creates an IsolationForest from run configuration.
func FromConfig(cfg detectors.Config) *IsolationForest {
	return New(
		WithTrees(cfg.Trees),
		WithSampleSize(cfg.SampleSize),
		WithContamination(cfg.ContaminationIsolation),
		WithSeed(cfg.RandomSeed),
	)
}

// Method implements detectors.Detector.
func (f *IsolationForest) Method() detectors.Method { return detectors.GlobalIsolation }

// Detect standardizes the table, fits a fresh forest and flags the
// lowest-scoring contamination fraction. Scores are the negated isolation
// score, so lower is more anomalous.
func (f *IsolationForest) Detect(table *features.Table) (*detectors.Result, error) {
	if err := detectors.ValidateContamination("contamination_isolation", f.contamination); err != nil {
		return nil, err
	}
	if f.nTrees <= 0 {
		return nil, errorutil.Configuration("trees", "must be positive, got %d", f.nTrees)
	}
	if f.sampleSize <= 0 {
		return nil, errorutil.Configuration("sample_size", "must be positive, got %d", f.sampleSize)
	}
	if table.Len() < 2 {
		return nil, errorutil.InsufficientData("rows", "isolation forest needs at least 2 rows, got %d", table.Len())
	}

	scaler := &features.StandardScaler{}
	data := scaler.FitTransform(table.Matrix())

	model, err := f.Fit(data)
	if err != nil {
		return nil, err
	}

	ids := table.EntityIDs()
	scores := make([]float64, len(data))
	paths := make(map[string]float64, len(data))
	for i, sample := range data {
		path := model.PathLength(sample)
		paths[ids[i]] = path
		scores[i] = -model.scoreFromPath(path)
	}

	flaggedIdx := detectors.LowestK(scores, detectors.FlagCount(len(scores), f.contamination))
	threshold := scores[flaggedIdx[len(flaggedIdx)-1]]

	return detectors.NewResult(
		detectors.GlobalIsolation,
		detectors.Pick(ids, flaggedIdx),
		detectors.ScoreMap(ids, scores),
		&Artifacts{Scaler: scaler, Model: model, Threshold: threshold, PathLengths: paths},
	), nil
}

// Fit builds a forest over data. The random source is seeded per call, so
// equal input yields an identical model.
func (f *IsolationForest) Fit(data [][]float64) (*Model, error) {
	if len(data) == 0 {
		return nil, errors.New("empty training data")
	}

	nSamples := len(data)
	nFeatures := len(data[0])
	rng := rand.New(rand.NewSource(f.seed))

	// Adjust sample size if needed
	sampleSize := f.sampleSize
	if sampleSize > nSamples {
		sampleSize = nSamples
	}

	maxDepth := f.maxDepth
	if maxDepth <= 0 {
		maxDepth = int(math.Ceil(math.Log2(float64(sampleSize))))
	}

	b := &treeBuilder{rng: rng, nFeatures: nFeatures, maxDepth: maxDepth}

	trees := make([]*iTree, f.nTrees)
	for i := 0; i < f.nTrees; i++ {
		// Sample without replacement
		indices := rng.Perm(nSamples)[:sampleSize]
		sample := make([][]float64, sampleSize)
		for j, idx := range indices {
			sample[j] = data[idx]
		}

		trees[i] = &iTree{root: b.buildNode(sample, 0)}
	}

	return &Model{
		trees:         trees,
		sampleSize:    sampleSize,
		avgPathLength: averagePathLength(float64(sampleSize)),
	}, nil
}

type treeBuilder struct {
	rng       *rand.Rand
	nFeatures int
	maxDepth  int
}

func (b *treeBuilder) buildNode(data [][]float64, depth int) *node {
	n := len(data)

	// Terminal conditions
	if depth >= b.maxDepth || n <= 1 {
		return &node{size: n}
	}

	// Random feature and split value
	feature := b.rng.Intn(b.nFeatures)

	// Find min/max for this feature
	minVal, maxVal := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		if row[feature] < minVal {
			minVal = row[feature]
		}
		if row[feature] > maxVal {
			maxVal = row[feature]
		}
	}

	// If all values are the same, return leaf
	if minVal == maxVal {
		return &node{size: n}
	}

	// Random split value
	splitValue := minVal + b.rng.Float64()*(maxVal-minVal)

	// Partition data
	var leftData, rightData [][]float64
	for _, row := range data {
		if row[feature] < splitValue {
			leftData = append(leftData, row)
		} else {
			rightData = append(rightData, row)
		}
	}

	return &node{
		splitFeature: feature,
		splitValue:   splitValue,
		left:         b.buildNode(leftData, depth+1),
		right:        b.buildNode(rightData, depth+1),
	}
}

// Trees returns the number of trees in the model.
func (m *Model) Trees() int { return len(m.trees) }

// PathLength returns the average path length of sample across all trees.
func (m *Model) PathLength(sample []float64) float64 {
	var totalPath float64
	for _, tree := range m.trees {
		totalPath += pathLength(sample, tree.root, 0)
	}
	return totalPath / float64(len(m.trees))
}

// Score returns the isolation score 2^(-E[h(x)]/c(n)) in (0, 1].
// Higher score = more anomalous.
func (m *Model) Score(sample []float64) float64 {
	return m.scoreFromPath(m.PathLength(sample))
}

// Scores returns Score for every sample.
func (m *Model) Scores(data [][]float64) []float64 {
	scores := make([]float64, len(data))
	for i, sample := range data {
		scores[i] = m.Score(sample)
	}
	return scores
}

func (m *Model) scoreFromPath(avgPath float64) float64 {
	if m.avgPathLength == 0 {
		return 0.5
	}
	return math.Pow(2, -avgPath/m.avgPathLength)
}

// pathLength calculates the path length for a sample in a tree.
func pathLength(sample []float64, n *node, currentDepth int) float64 {
	if n.left == nil && n.right == nil {
		// Leaf node: add expected path length for remaining isolation
		return float64(currentDepth) + averagePathLength(float64(n.size))
	}

	if sample[n.splitFeature] < n.splitValue {
		return pathLength(sample, n.left, currentDepth+1)
	}
	return pathLength(sample, n.right, currentDepth+1)
}

// averagePathLength returns the average path length of unsuccessful search in BST.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	// c(n) = 2*H(n-1) - 2*(n-1)/n, where H is harmonic number
	// Approximation: H(n) ≈ ln(n) + 0.5772156649 (Euler-Mascheroni constant)
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}
