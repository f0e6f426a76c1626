package explain

import (
	"fmt"

	"github.com/hed1ad/accessguard/pkg/detectors"
)

// ClusterOutliers explains clustering flags from the outlier risk factors
// computed during profiling.
func (e *Explainer) ClusterOutliers(res *detectors.Result) []Explanation {
	c := clusterProfile(res)
	if c == nil {
		return nil
	}

	out := make([]Explanation, 0, len(c.Outliers))
	for _, o := range c.Outliers {
		ex := Explanation{EntityID: o.EntityID, Method: detectors.Clustering}
		for _, feature := range o.Factors {
			ex.Factors = append(ex.Factors, Factor{
				Feature: feature,
				Level:   LevelOutlier,
				Text:    fmt.Sprintf("%s well above population average", label(feature)),
			})
		}
		ex.Summary = fmt.Sprintf("fits no behavioral cluster (%s outlier risk)", o.Level)
		if len(ex.Factors) > 0 {
			ex.Summary += ": " + summarize(ex.Factors, "")
		}
		out = append(out, ex)
	}
	return out
}
