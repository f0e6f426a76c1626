// Package detectors provides the unsupervised anomaly detectors run over a feature table.
package detectors

import (
	"fmt"

	"github.com/hed1ad/accessguard/pkg/errorutil"
	"github.com/hed1ad/accessguard/pkg/features"
)

// Method identifies a detection algorithm.
type Method int

const (
	// GlobalIsolation flags population-wide outliers with an isolation forest.
	GlobalIsolation Method = iota
	// LocalDensity flags points sparser than their neighbors (local outlier factor).
	LocalDensity
	// Clustering flags points that belong to no density cluster.
	Clustering

	// NumMethods is the number of defined methods.
	NumMethods = int(Clustering) + 1
)

// Methods lists every method in evaluation order.
var Methods = [NumMethods]Method{GlobalIsolation, LocalDensity, Clustering}

var methodNames = [NumMethods]string{
	GlobalIsolation: "global_isolation",
	LocalDensity:    "local_density",
	Clustering:      "clustering",
}

func (m Method) String() string {
	if m < 0 || int(m) >= NumMethods {
		return fmt.Sprintf("method(%d)", int(m))
	}
	return methodNames[m]
}

// MarshalText encodes the method by name.
func (m Method) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a method name.
func (m *Method) UnmarshalText(b []byte) error {
	parsed, err := ParseMethod(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMethod returns the method with the given name.
func ParseMethod(name string) (Method, error) {
	for i, n := range methodNames {
		if n == name {
			return Method(i), nil
		}
	}
	return 0, fmt.Errorf("unknown detection method %q", name)
}

// Detector is the common interface for all anomaly detection algorithms.
// Detect must treat the table as read-only and keep all fitted state local to the call.
type Detector interface {
	Method() Method
	Detect(table *features.Table) (*Result, error)
}

// Result is the output of one detector for one run. It must not be modified once returned.
type Result struct {
	Method Method `json:"method_name"`
	// Flagged holds the anomalous entity ids, most anomalous first.
	Flagged []string `json:"flagged_entities"`
	// Scores holds one score per entity; lower means more anomalous.
	Scores map[string]float64 `json:"per_entity_score"`
	// Auxiliary carries method-specific fitted artifacts.
	Auxiliary any `json:"auxiliary,omitempty"`

	flagged map[string]struct{}
}

// NewResult builds a Result and indexes its flagged set.
func NewResult(method Method, flagged []string, scores map[string]float64, aux any) *Result {
	r := &Result{
		Method:    method,
		Flagged:   flagged,
		Scores:    scores,
		Auxiliary: aux,
		flagged:   make(map[string]struct{}, len(flagged)),
	}
	for _, id := range flagged {
		r.flagged[id] = struct{}{}
	}
	return r
}

// IsFlagged reports whether the entity was flagged.
func (r *Result) IsFlagged(id string) bool {
	if r == nil {
		return false
	}
	if r.flagged == nil {
		for _, f := range r.Flagged {
			if f == id {
				return true
			}
		}
		return false
	}
	_, ok := r.flagged[id]
	return ok
}

// Config holds the per-run parameters of all detectors.
type Config struct {
	// ContaminationIsolation is the expected anomaly fraction for the isolation forest.
	ContaminationIsolation float64 `mapstructure:"contamination_isolation" json:"contamination_isolation" yaml:"contamination_isolation"`
	// ContaminationLocal is the expected anomaly fraction for the local outlier factor.
	ContaminationLocal float64 `mapstructure:"contamination_local" json:"contamination_local" yaml:"contamination_local"`
	NeighborCount      int     `mapstructure:"neighbor_count" json:"neighbor_count" yaml:"neighbor_count"`
	Eps                float64 `mapstructure:"eps" json:"eps" yaml:"eps"`
	MinPoints          int     `mapstructure:"min_points" json:"min_points" yaml:"min_points"`
	RandomSeed         int64   `mapstructure:"random_seed" json:"random_seed" yaml:"random_seed"`
	Trees              int     `mapstructure:"trees" json:"trees" yaml:"trees"`
	SampleSize         int     `mapstructure:"sample_size" json:"sample_size" yaml:"sample_size"`
	// TopN bounds the prioritized list in the report summary.
	TopN int `mapstructure:"top_n" json:"top_n" yaml:"top_n"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		ContaminationIsolation: 0.10,
		ContaminationLocal:     0.15,
		NeighborCount:          5,
		Eps:                    0.8,
		MinPoints:              2,
		RandomSeed:             42,
		Trees:                  100,
		SampleSize:             256,
		TopN:                   5,
	}
}

// Validate checks every parameter and returns the first ConfigurationError found.
func (c Config) Validate() error {
	if err := ValidateContamination("contamination_isolation", c.ContaminationIsolation); err != nil {
		return err
	}
	if err := ValidateContamination("contamination_local", c.ContaminationLocal); err != nil {
		return err
	}
	if c.NeighborCount <= 0 {
		return errorutil.Configuration("neighbor_count", "must be positive, got %d", c.NeighborCount)
	}
	if c.Eps < 0 {
		return errorutil.Configuration("eps", "must not be negative, got %g", c.Eps)
	}
	if c.MinPoints <= 0 {
		return errorutil.Configuration("min_points", "must be positive, got %d", c.MinPoints)
	}
	if c.Trees <= 0 {
		return errorutil.Configuration("trees", "must be positive, got %d", c.Trees)
	}
	if c.SampleSize <= 0 {
		return errorutil.Configuration("sample_size", "must be positive, got %d", c.SampleSize)
	}
	if c.TopN < 0 {
		return errorutil.Configuration("top_n", "must not be negative, got %d", c.TopN)
	}
	return nil
}

// ValidateContamination checks that a contamination fraction lies in (0, 0.5).
func ValidateContamination(param string, c float64) error {
	if !(c > 0 && c < 0.5) {
		return errorutil.Configuration(param, "must be in (0, 0.5), got %g", c)
	}
	return nil
}
