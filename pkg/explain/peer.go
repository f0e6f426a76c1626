package explain

import (
	"fmt"
	"math"

	"github.com/hed1ad/accessguard/pkg/detectors"
	"github.com/hed1ad/accessguard/pkg/features"
)

// Peer explains local-density flags by comparing the entity's raw role
// features with the mean of the other entities sharing its category.
func (e *Explainer) Peer(table *features.Table, res *detectors.Result) []Explanation {
	if len(res.Flagged) == 0 {
		return nil
	}

	rowOf := make(map[string]int, table.Len())
	byCategory := map[string][]int{}
	for i, row := range table.Rows() {
		rowOf[row.EntityID] = i
		byCategory[row.Category] = append(byCategory[row.Category], i)
	}

	out := make([]Explanation, 0, len(res.Flagged))
	for _, id := range res.Flagged {
		i, ok := rowOf[id]
		if !ok {
			continue
		}
		category := table.Row(i).Category
		ex := Explanation{EntityID: id, Method: detectors.LocalDensity}

		var peers []int
		for _, j := range byCategory[category] {
			if j != i {
				peers = append(peers, j)
			}
		}
		if len(peers) == 0 {
			ex.Summary = fmt.Sprintf("no other %s entities to compare against", category)
			out = append(out, ex)
			continue
		}

		for _, feature := range e.roleOrder() {
			v, ok := table.Value(i, feature)
			if !ok {
				continue
			}
			var sum float64
			for _, j := range peers {
				pv, _ := table.Value(j, feature)
				sum += pv
			}
			peerMean := sum / float64(len(peers))
			if v <= peerMean*e.cfg.PeerMultiplier || v == 0 {
				continue
			}

			var text string
			if peerMean == 0 {
				text = fmt.Sprintf("%s %s where %s peers average 0", label(feature), formatNumber(v), category)
			} else {
				ratio := v / peerMean
				text = fmt.Sprintf("%s %.1f× %s peer average (%s vs %s)",
					label(feature), math.Round(ratio*10)/10, category, formatNumber(v), formatNumber(peerMean))
			}
			ex.Factors = append(ex.Factors, Factor{
				Feature:  feature,
				Level:    LevelPeer,
				Value:    v,
				Baseline: peerMean,
				Text:     text,
			})
		}
		ex.Summary = summarize(ex.Factors, fmt.Sprintf("unusual combination for %s peers", category))
		out = append(out, ex)
	}
	return out
}
