package dbscan

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/accessguard/pkg/detectors"
	"github.com/hed1ad/accessguard/pkg/errorutil"
	"github.com/hed1ad/accessguard/pkg/features"
)

func TestDetectTwoGroupsAndOutlier(t *testing.T) {
	d, err := New(WithEps(0.8), WithMinPoints(2), WithRoles(testRoles))
	require.NoError(t, err)

	res, err := d.Detect(groupsTable())
	require.NoError(t, err)

	assert.Equal(t, detectors.Clustering, res.Method)
	assert.Equal(t, []string{"intruder"}, res.Flagged)
	assert.Less(t, res.Scores["intruder"], 0.0)
	assert.Equal(t, 0.0, res.Scores["low-0"])

	aux, ok := res.Auxiliary.(*Clustering)
	require.True(t, ok)
	assert.Equal(t, 2, aux.NumClusters())
	assert.Equal(t, Noise, aux.Assignments["intruder"])
	assert.Equal(t, 0, aux.Assignments["low-0"])
	assert.Equal(t, 1, aux.Assignments["high-0"])

	low, high := aux.Clusters[0], aux.Clusters[1]
	assert.Equal(t, 5, low.Size)
	assert.Equal(t, "reader", low.ModalCategory)
	assert.Equal(t, "low-activity group", low.Kind)
	assert.InDelta(t, 1.0, low.Mean["access"], 1e-9)

	assert.Equal(t, "administrator", high.ModalCategory)
	assert.Equal(t, "high-activity/privileged group", high.Kind)

	require.Len(t, aux.Outliers, 1)
	assert.Equal(t, "intruder", aux.Outliers[0].EntityID)
	assert.Equal(t, []string{"access", "sensitive", "diversity"}, aux.Outliers[0].Factors)
	assert.Equal(t, "HIGH", aux.Outliers[0].Level)
}

func TestDetectIdenticalPoints(t *testing.T) {
	rows := make([]features.FeatureRow, 5)
	for i := range rows {
		rows[i] = features.FeatureRow{EntityID: fmt.Sprintf("same-%d", i), Values: []float64{3, 3}}
	}
	table := features.NewTable([]string{"a", "b"}, rows)

	tests := []struct {
		name        string
		minPoints   int
		wantFlagged int
		wantGroups  int
	}{
		{name: "one giant cluster", minPoints: 2, wantFlagged: 0, wantGroups: 1},
		{name: "all outliers", minPoints: 5, wantFlagged: 5, wantGroups: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(WithEps(0), WithMinPoints(tt.minPoints))
			require.NoError(t, err)

			res, err := d.Detect(table)
			require.NoError(t, err)
			assert.Len(t, res.Flagged, tt.wantFlagged)
			assert.Equal(t, tt.wantGroups, res.Auxiliary.(*Clustering).NumClusters())
		})
	}
}

func TestDetectStable(t *testing.T) {
	d, err := New(WithRoles(testRoles))
	require.NoError(t, err)

	first, err := d.Detect(groupsTable())
	require.NoError(t, err)
	second, err := d.Detect(groupsTable())
	require.NoError(t, err)

	assert.Equal(t, first.Flagged, second.Flagged)
	assert.Equal(t, first.Auxiliary.(*Clustering).Assignments, second.Auxiliary.(*Clustering).Assignments)
}

func TestDetectSingleRow(t *testing.T) {
	d, err := New()
	require.NoError(t, err)

	res, err := d.Detect(features.NewTable([]string{"a"}, []features.FeatureRow{{EntityID: "solo", Values: []float64{1}}}))
	require.NoError(t, err)
	assert.Equal(t, []string{"solo"}, res.Flagged)
	assert.Equal(t, 0.0, res.Scores["solo"])
}

func TestDetectErrors(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{name: "negative eps", opts: []Option{WithEps(-1)}},
		{name: "zero min points", opts: []Option{WithMinPoints(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.opts...)
			require.NoError(t, err)
			_, err = d.Detect(groupsTable())
			require.Error(t, err)
			assert.True(t, errorutil.IsConfiguration(err))
		})
	}
}

func TestCluster(t *testing.T) {
	// 0-1-2 chain of core points, 3 is a border of 2, 4 is isolated.
	data := [][]float64{{0}, {1}, {2}, {3}, {10}}
	labels, core := cluster(detectors.PairwiseDistances(data), 1, 2)

	assert.Equal(t, []int{0, 0, 0, 0, Noise}, labels)
	assert.Equal(t, []bool{false, true, true, false, false}, core)
}

func TestMode(t *testing.T) {
	assert.Equal(t, "b", mode(map[string]int{"b": 2, "c": 2, "a": 1}))
	assert.Equal(t, "", mode(map[string]int{}))
}

func groupsTable() *features.Table {
	names := []string{"access", "sensitive", "diversity"}
	var rows []features.FeatureRow
	low := [][]float64{{1, 0, 1}, {1, 0, 1}, {1.2, 0, 1}, {1, 0, 1}, {0.8, 0, 1}}
	for i, v := range low {
		rows = append(rows, features.FeatureRow{EntityID: fmt.Sprintf("low-%d", i), Category: "reader", Values: v})
	}
	high := [][]float64{{10, 4, 5}, {10, 4, 5}, {11, 4, 5}, {9, 4, 5}, {10, 4, 5}}
	for i, v := range high {
		rows = append(rows, features.FeatureRow{EntityID: fmt.Sprintf("high-%d", i), Category: "administrator", Values: v})
	}
	rows = append(rows, features.FeatureRow{EntityID: "intruder", Category: "reader", Values: []float64{40, 20, 12}})
	return features.NewTable(names, rows)
}

// testRoles matches the short feature names of groupsTable.
var testRoles = features.Roles{Activity: "access", Sensitive: "sensitive", Diversity: "diversity"}
