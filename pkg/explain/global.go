package explain

import (
	"fmt"

	"github.com/hed1ad/accessguard/pkg/detectors"
	"github.com/hed1ad/accessguard/pkg/features"
)

// Global explains isolation-forest flags against the population the method
// judged normal. Role features are checked in activity, sensitive, diversity order.
func (e *Explainer) Global(table *features.Table, res *detectors.Result) []Explanation {
	if len(res.Flagged) == 0 {
		return nil
	}

	rowOf := make(map[string]int, table.Len())
	var normal []int
	for i, id := range table.EntityIDs() {
		rowOf[id] = i
		if !res.IsFlagged(id) {
			normal = append(normal, i)
		}
	}
	if len(normal) == 0 {
		for i := 0; i < table.Len(); i++ {
			normal = append(normal, i)
		}
	}

	type baseline struct {
		feature   string
		mean, std float64
	}
	var baselines []baseline
	for _, feature := range e.roleOrder() {
		if table.Index(feature) < 0 {
			continue
		}
		values := make([]float64, len(normal))
		for k, i := range normal {
			values[k], _ = table.Value(i, feature)
		}
		mean, std := meanStd(values)
		baselines = append(baselines, baseline{feature: feature, mean: mean, std: std})
	}

	out := make([]Explanation, 0, len(res.Flagged))
	for _, id := range res.Flagged {
		i, ok := rowOf[id]
		if !ok {
			continue
		}
		var factors []Factor
		for _, b := range baselines {
			v, _ := table.Value(i, b.feature)
			var level string
			switch {
			case v > b.mean+e.cfg.ExtremeStd*b.std:
				level = LevelExtreme
			case v > b.mean+e.cfg.ElevatedStd*b.std:
				level = LevelElevated
			default:
				continue
			}
			factors = append(factors, Factor{
				Feature:  b.feature,
				Level:    level,
				Value:    v,
				Baseline: b.mean,
				Text: fmt.Sprintf("%s %s %s (normal average %s)",
					level, label(b.feature), formatNumber(v), formatNumber(b.mean)),
			})
		}
		out = append(out, Explanation{
			EntityID: id,
			Method:   detectors.GlobalIsolation,
			Factors:  factors,
			Summary:  summarize(factors, ComplexPattern),
		})
	}
	return out
}
