package iforest

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/accessguard/pkg/detectors"
	"github.com/hed1ad/accessguard/pkg/errorutil"
	"github.com/hed1ad/accessguard/pkg/features"
)

func TestNewIsolationForest(t *testing.T) {
	tests := []struct {
		name       string
		opts       []Option
		wantNTrees int
	}{
		{
			name:       "default configuration",
			opts:       nil,
			wantNTrees: 100,
		},
		{
			name:       "custom trees",
			opts:       []Option{WithTrees(50)},
			wantNTrees: 50,
		},
		{
			name:       "multiple options",
			opts:       []Option{WithTrees(200), WithContamination(0.05), WithSeed(123)},
			wantNTrees: 200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.opts...)
			assert.Equal(t, tt.wantNTrees, f.nTrees)
		})
	}
}

func TestFromConfig(t *testing.T) {
	cfg := detectors.DefaultConfig()
	cfg.Trees = 7
	cfg.RandomSeed = 9

	f := FromConfig(cfg)
	assert.Equal(t, 7, f.nTrees)
	assert.Equal(t, int64(9), f.seed)
	assert.Equal(t, 0.10, f.contamination)
	assert.Equal(t, detectors.GlobalIsolation, f.Method())
}

func TestFit(t *testing.T) {
	tests := []struct {
		name    string
		data    [][]float64
		wantErr bool
	}{
		{
			name:    "empty data",
			data:    [][]float64{},
			wantErr: true,
		},
		{
			name:    "single sample",
			data:    [][]float64{{1.0, 2.0, 3.0}},
			wantErr: false,
		},
		{
			name:    "normal data",
			data:    generateTestData(100, 5),
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(WithTrees(10), WithSeed(42))
			model, err := f.Fit(tt.data)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, 10, model.Trees())
			}
		})
	}
}

func TestScore(t *testing.T) {
	trainData := generateTestData(500, 5)
	model, err := New(WithTrees(50), WithSampleSize(100), WithSeed(42)).Fit(trainData)
	require.NoError(t, err)

	t.Run("scores are in (0, 1]", func(t *testing.T) {
		for _, score := range model.Scores(generateTestData(100, 5)) {
			assert.Greater(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
		}
	})

	t.Run("far points score higher", func(t *testing.T) {
		normal := model.Score([]float64{0, 0, 0, 0, 0})
		for _, sample := range [][]float64{
			{1000, 1000, 1000, 1000, 1000},
			{-500, -500, -500, -500, -500},
		} {
			score := model.Score(sample)
			assert.Greater(t, score, 0.4, "anomalies should have high scores")
			assert.Greater(t, score, normal)
		}
	})
}

func TestDetectSingleOutlier(t *testing.T) {
	table := scenarioTable()

	res, err := New(WithContamination(0.1), WithSeed(42)).Detect(table)
	require.NoError(t, err)

	assert.Equal(t, detectors.GlobalIsolation, res.Method)
	assert.Equal(t, []string{"outlier"}, res.Flagged)
	assert.Len(t, res.Scores, 10)

	outlierScore := res.Scores["outlier"]
	for id, score := range res.Scores {
		if id != "outlier" {
			assert.Less(t, outlierScore, score, "outlier must have the minimum score")
		}
	}

	art, ok := res.Auxiliary.(*Artifacts)
	require.True(t, ok)
	assert.Equal(t, outlierScore, art.Threshold)
	assert.Less(t, art.PathLengths["outlier"], art.PathLengths["user-0"])
}

func TestDetectDeterministic(t *testing.T) {
	table := randomTable(60, 4, 7)
	f := New(WithTrees(40), WithContamination(0.1), WithSeed(42))

	first, err := f.Detect(table)
	require.NoError(t, err)
	second, err := f.Detect(table)
	require.NoError(t, err)

	assert.Equal(t, first.Flagged, second.Flagged)
	for id, score := range first.Scores {
		assert.InDelta(t, score, second.Scores[id], 1e-9)
	}
}

func TestDetectContaminationBound(t *testing.T) {
	tests := []struct {
		n int
		c float64
	}{
		{n: 10, c: 0.1},
		{n: 37, c: 0.1},
		{n: 200, c: 0.15},
		{n: 5, c: 0.3},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d,c=%g", tt.n, tt.c), func(t *testing.T) {
			res, err := New(WithTrees(20), WithContamination(tt.c)).Detect(randomTable(tt.n, 3, 1))
			require.NoError(t, err)
			want := math.Round(tt.c * float64(tt.n))
			assert.InDelta(t, want, float64(len(res.Flagged)), 1)
		})
	}
}

func TestDetectErrors(t *testing.T) {
	t.Run("single row", func(t *testing.T) {
		_, err := New().Detect(randomTable(1, 3, 1))
		require.Error(t, err)
		assert.True(t, errorutil.IsInsufficientData(err))
	})

	t.Run("bad contamination", func(t *testing.T) {
		_, err := New(WithContamination(0.6)).Detect(randomTable(10, 3, 1))
		require.Error(t, err)
		assert.True(t, errorutil.IsConfiguration(err))
	})

	t.Run("no trees", func(t *testing.T) {
		_, err := New(WithTrees(0)).Detect(randomTable(10, 3, 1))
		require.Error(t, err)
		assert.True(t, errorutil.IsConfiguration(err))
	})
}

func TestDetectLeavesTableUntouched(t *testing.T) {
	table := scenarioTable()
	before := table.Matrix()

	_, err := New().Detect(table)
	require.NoError(t, err)
	assert.Equal(t, before, table.Matrix())
}

func TestAveragePathLength(t *testing.T) {
	assert.Equal(t, 0.0, averagePathLength(1))
	assert.Equal(t, 1.0, averagePathLength(2))
	assert.InDelta(t, 10.24, averagePathLength(256), 0.01)
}

func BenchmarkFit(b *testing.B) {
	data := generateTestData(10000, 10)
	f := New(WithTrees(100), WithSampleSize(256))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Fit(data)
	}
}

func BenchmarkDetect(b *testing.B) {
	table := randomTable(2000, 7, 1)
	f := New(WithTrees(100), WithSampleSize(256))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Detect(table)
	}
}

func generateTestData(n, features int) [][]float64 {
	data := make([][]float64, n)
	for i := 0; i < n; i++ {
		data[i] = make([]float64, features)
		for j := 0; j < features; j++ {
			data[i][j] = rand.NormFloat64()
		}
	}
	return data
}

func scenarioTable() *features.Table {
	names := []string{"access", "diversity", "sensitive"}
	rows := make([]features.FeatureRow, 0, 10)
	for i := 0; i < 9; i++ {
		rows = append(rows, features.FeatureRow{
			EntityID: fmt.Sprintf("user-%d", i),
			Category: "reader",
			Values:   []float64{2, 1, 0},
		})
	}
	rows = append(rows, features.FeatureRow{EntityID: "outlier", Category: "reader", Values: []float64{50, 10, 20}})
	return features.NewTable(names, rows)
}

func randomTable(n, nFeatures int, seed int64) *features.Table {
	rng := rand.New(rand.NewSource(seed))
	names := make([]string, nFeatures)
	for j := range names {
		names[j] = fmt.Sprintf("f%d", j)
	}
	rows := make([]features.FeatureRow, n)
	for i := range rows {
		values := make([]float64, nFeatures)
		for j := range values {
			values[j] = math.Abs(rng.NormFloat64()) * 10
		}
		rows[i] = features.FeatureRow{EntityID: fmt.Sprintf("e%03d", i), Category: "c", Values: values}
	}
	return features.NewTable(names, rows)
}
