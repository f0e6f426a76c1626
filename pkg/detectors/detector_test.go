package detectors

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/accessguard/pkg/errorutil"
)

func TestMethodNames(t *testing.T) {
	for _, m := range Methods {
		parsed, err := ParseMethod(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}

	_, err := ParseMethod("kmeans")
	assert.Error(t, err)
	assert.Equal(t, "method(9)", Method(9).String())

	b, err := json.Marshal(map[string]Method{"m": LocalDensity})
	require.NoError(t, err)
	assert.JSONEq(t, `{"m":"local_density"}`, string(b))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantParam string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero eps allowed", mutate: func(c *Config) { c.Eps = 0 }},
		{name: "contamination zero", mutate: func(c *Config) { c.ContaminationIsolation = 0 }, wantParam: "contamination_isolation"},
		{name: "contamination half", mutate: func(c *Config) { c.ContaminationLocal = 0.5 }, wantParam: "contamination_local"},
		{name: "negative eps", mutate: func(c *Config) { c.Eps = -0.1 }, wantParam: "eps"},
		{name: "zero min points", mutate: func(c *Config) { c.MinPoints = 0 }, wantParam: "min_points"},
		{name: "zero neighbors", mutate: func(c *Config) { c.NeighborCount = 0 }, wantParam: "neighbor_count"},
		{name: "zero trees", mutate: func(c *Config) { c.Trees = 0 }, wantParam: "trees"},
		{name: "zero sample size", mutate: func(c *Config) { c.SampleSize = 0 }, wantParam: "sample_size"},
		{name: "negative top n", mutate: func(c *Config) { c.TopN = -1 }, wantParam: "top_n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.wantParam == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errorutil.IsConfiguration(err))
			var e *errorutil.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.wantParam, e.Param)
		})
	}
}

func TestResultIsFlagged(t *testing.T) {
	r := NewResult(GlobalIsolation, []string{"b"}, map[string]float64{"a": 0, "b": -1}, nil)
	assert.True(t, r.IsFlagged("b"))
	assert.False(t, r.IsFlagged("a"))

	// Decoded results have no index but still answer.
	var decoded Result
	require.NoError(t, json.Unmarshal([]byte(`{"method_name":"clustering","flagged_entities":["x"]}`), &decoded))
	assert.Equal(t, Clustering, decoded.Method)
	assert.True(t, decoded.IsFlagged("x"))

	var nilResult *Result
	assert.False(t, nilResult.IsFlagged("x"))
}

func TestFlagCount(t *testing.T) {
	tests := []struct {
		n    int
		c    float64
		want int
	}{
		{n: 10, c: 0.1, want: 1},
		{n: 100, c: 0.15, want: 15},
		{n: 25, c: 0.1, want: 3},
		{n: 3, c: 0.1, want: 1},
		{n: 1, c: 0.49, want: 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FlagCount(tt.n, tt.c), "n=%d c=%g", tt.n, tt.c)
	}
}

func TestLowestK(t *testing.T) {
	scores := []float64{0.3, -1, 0.3, -2, 5}
	assert.Equal(t, []int{3, 1}, LowestK(scores, 2))
	assert.Equal(t, []int{3, 1, 0, 2}, LowestK(scores, 4))
	assert.Len(t, LowestK(scores, 10), 5)
}

func TestPairwiseDistances(t *testing.T) {
	d := PairwiseDistances([][]float64{{0, 0}, {3, 4}, {0, 1}})
	assert.Equal(t, 5.0, d[0][1])
	assert.Equal(t, 5.0, d[1][0])
	assert.Equal(t, 1.0, d[0][2])
	assert.Equal(t, 0.0, d[2][2])
}
