// Package explain derives advisory, human-readable reasons for flagged entities.
// Explanations never change scores or flags.
package explain

import (
	"fmt"
	"math"
	"strings"

	"github.com/hed1ad/accessguard/pkg/detectors"
	"github.com/hed1ad/accessguard/pkg/detectors/dbscan"
	"github.com/hed1ad/accessguard/pkg/features"
)

// ComplexPattern is the explanation when no single feature stands out.
const ComplexPattern = "complex pattern, requires manual investigation"

// Factor levels.
const (
	LevelExtreme  = "extreme"
	LevelElevated = "elevated"
	LevelPeer     = "peer"
	LevelOutlier  = "outlier"
)

// Config holds the thresholds of every explanation.
type Config struct {
	// ExtremeStd and ElevatedStd are the standard-deviation multiples above the
	// normal-population mean for the two global tiers.
	ExtremeStd  float64 `mapstructure:"extreme_std" json:"extreme_std" yaml:"extreme_std"`
	ElevatedStd float64 `mapstructure:"elevated_std" json:"elevated_std" yaml:"elevated_std"`
	// PeerMultiplier is the multiple of the peer-group mean that counts as a deviation.
	PeerMultiplier float64        `mapstructure:"peer_multiplier" json:"peer_multiplier" yaml:"peer_multiplier"`
	Roles          features.Roles `mapstructure:"roles" json:"roles" yaml:"roles"`
}

// DefaultConfig returns 2σ extreme, 1σ elevated and a 1.5× peer multiplier.
func DefaultConfig() Config {
	return Config{
		ExtremeStd:     2,
		ElevatedStd:    1,
		PeerMultiplier: 1.5,
		Roles:          features.DefaultRoles(),
	}
}

// Factor is one contributing reason.
type Factor struct {
	Feature  string  `json:"feature"`
	Level    string  `json:"level"`
	Value    float64 `json:"value"`
	Baseline float64 `json:"baseline"`
	Text     string  `json:"text"`
}

// Explanation lists the reasons one method flagged one entity.
type Explanation struct {
	EntityID string           `json:"entity_id"`
	Method   detectors.Method `json:"method_name"`
	Factors  []Factor         `json:"factors"`
	Summary  string           `json:"summary"`
}

// Explainer builds explanations from a table and detection results.
type Explainer struct {
	cfg Config
}

// New creates an Explainer.
func New(cfg Config) *Explainer {
	return &Explainer{cfg: cfg}
}

// Explain returns explanations for every flagged entity of every present
// result, in method order and then flagged order.
func (e *Explainer) Explain(table *features.Table, results map[detectors.Method]*detectors.Result) []Explanation {
	var out []Explanation
	for _, m := range detectors.Methods {
		res, ok := results[m]
		if !ok || res == nil {
			continue
		}
		switch m {
		case detectors.GlobalIsolation:
			out = append(out, e.Global(table, res)...)
		case detectors.LocalDensity:
			out = append(out, e.Peer(table, res)...)
		case detectors.Clustering:
			out = append(out, e.ClusterOutliers(res)...)
		}
	}
	return out
}

func (e *Explainer) roleOrder() []string {
	return []string{e.cfg.Roles.Activity, e.cfg.Roles.Sensitive, e.cfg.Roles.Diversity}
}

func summarize(factors []Factor, empty string) string {
	if len(factors) == 0 {
		return empty
	}
	texts := make([]string, len(factors))
	for i, f := range factors {
		texts[i] = f.Text
	}
	return strings.Join(texts, "; ")
}

func label(feature string) string {
	return strings.ReplaceAll(feature, "_", " ")
}

func meanStd(values []float64) (float64, float64) {
	n := float64(len(values))
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / n
	if n < 2 {
		return mean, 0
	}
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / (n - 1))
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}

// clusterProfile extracts the clustering artifacts, if any.
func clusterProfile(res *detectors.Result) *dbscan.Clustering {
	c, _ := res.Auxiliary.(*dbscan.Clustering)
	return c
}
