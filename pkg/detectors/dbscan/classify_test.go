package dbscan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/accessguard/pkg/errorutil"
	"github.com/hed1ad/accessguard/pkg/features"
)

func TestDefaultRules(t *testing.T) {
	c, err := NewClassifier(DefaultRules(features.DefaultRoles()), "")
	require.NoError(t, err)

	tests := []struct {
		name    string
		profile Profile
		want    string
	}{
		{
			name: "low activity",
			profile: Profile{Mean: map[string]float64{
				features.TotalAccessCount:   1.5,
				features.SensitiveDataReach: 0.5,
			}, ModalCategory: "reader"},
			want: "low-activity group",
		},
		{
			name: "high activity",
			profile: Profile{Mean: map[string]float64{
				features.TotalAccessCount:   8,
				features.SensitiveDataReach: 3,
			}, ModalCategory: "developer"},
			want: "high-activity/privileged group",
		},
		{
			name: "administrators",
			profile: Profile{Mean: map[string]float64{
				features.TotalAccessCount:   3,
				features.SensitiveDataReach: 1.5,
			}, ModalCategory: "administrator"},
			want: "administrator group",
		},
		{
			name: "mixed",
			profile: Profile{Mean: map[string]float64{
				features.TotalAccessCount:   3,
				features.SensitiveDataReach: 1.5,
			}, ModalCategory: "developer"},
			want: DefaultFallback,
		},
		{
			name:    "missing features fall through",
			profile: Profile{Mean: map[string]float64{}, ModalCategory: "developer"},
			want:    DefaultFallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.profile))
		})
	}
}

func TestCustomRules(t *testing.T) {
	c, err := NewClassifier([]Rule{
		{Name: "crowd", Expression: "size >= 10"},
		{Name: "service accounts", Expression: `category.startsWith("svc")`},
	}, "other")
	require.NoError(t, err)

	assert.Equal(t, "crowd", c.Classify(Profile{Size: 12, ModalCategory: "svc-batch"}))
	assert.Equal(t, "service accounts", c.Classify(Profile{Size: 3, ModalCategory: "svc-batch"}))
	assert.Equal(t, "other", c.Classify(Profile{Size: 3, ModalCategory: "developer"}))
}

func TestClassifierErrors(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{name: "syntax", rule: Rule{Name: "bad", Expression: "mean[ <"}},
		{name: "not bool", rule: Rule{Name: "number", Expression: "size + 1"}},
		{name: "unknown variable", rule: Rule{Name: "ghost", Expression: "ghost > 1"}},
		{name: "no name", rule: Rule{Expression: "size > 1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClassifier([]Rule{tt.rule}, "")
			require.Error(t, err)
			assert.True(t, errorutil.IsConfiguration(err))
		})
	}
}
