package dbscan

import (
	"sort"

	"github.com/hed1ad/accessguard/pkg/features"
)

// Profile describes one cluster for reporting.
type Profile struct {
	ID            int                `json:"id"`
	Size          int                `json:"size"`
	Members       []string           `json:"members"`
	Mean          map[string]float64 `json:"mean"`
	ModalCategory string             `json:"modal_category"`
	Kind          string             `json:"kind"`
}

// OutlierThresholds are the multiples of the population mean above which an
// outlier's role feature counts as a risk factor.
type OutlierThresholds struct {
	Activity  float64 `mapstructure:"activity" json:"activity" yaml:"activity"`
	Sensitive float64 `mapstructure:"sensitive" json:"sensitive" yaml:"sensitive"`
	Diversity float64 `mapstructure:"diversity" json:"diversity" yaml:"diversity"`
}

// DefaultOutlierThresholds returns 2x activity, 2x sensitive reach and 1.5x diversity.
func DefaultOutlierThresholds() OutlierThresholds {
	return OutlierThresholds{Activity: 2, Sensitive: 2, Diversity: 1.5}
}

// OutlierProfile is the advisory assessment of one noise point.
type OutlierProfile struct {
	EntityID string `json:"entity_id"`
	Category string `json:"category_label"`
	// Factors names the role features above their threshold, in role order.
	Factors []string `json:"factors"`
	// Level is HIGH for 3 factors, MEDIUM for 2, LOW otherwise.
	Level string `json:"level"`
}

func (d *DBSCAN) profiles(table *features.Table, labels []int) []Profile {
	members := map[int][]int{}
	for i, label := range labels {
		if label != Noise {
			members[label] = append(members[label], i)
		}
	}

	ids := make([]int, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	names := table.Features()
	out := make([]Profile, 0, len(ids))
	for _, id := range ids {
		rows := members[id]
		p := Profile{
			ID:   id,
			Size: len(rows),
			Mean: make(map[string]float64, len(names)),
		}
		counts := map[string]int{}
		for _, i := range rows {
			row := table.Row(i)
			p.Members = append(p.Members, row.EntityID)
			counts[row.Category]++
			for j, name := range names {
				p.Mean[name] += row.Values[j]
			}
		}
		for name := range p.Mean {
			p.Mean[name] /= float64(len(rows))
		}
		p.ModalCategory = mode(counts)
		p.Kind = d.classifier.Classify(p)
		out = append(out, p)
	}
	return out
}

func (d *DBSCAN) outlierProfiles(table *features.Table, noise []int) []OutlierProfile {
	if len(noise) == 0 {
		return nil
	}

	checks := []struct {
		feature    string
		multiplier float64
	}{
		{d.roles.Activity, d.thresholds.Activity},
		{d.roles.Sensitive, d.thresholds.Sensitive},
		{d.roles.Diversity, d.thresholds.Diversity},
	}
	means := make([]float64, len(checks))
	for k, c := range checks {
		means[k] = mean(table.Column(c.feature))
	}

	out := make([]OutlierProfile, 0, len(noise))
	for _, i := range noise {
		row := table.Row(i)
		p := OutlierProfile{EntityID: row.EntityID, Category: row.Category}
		for k, c := range checks {
			v, ok := table.Value(i, c.feature)
			if !ok {
				continue
			}
			if v > means[k]*c.multiplier {
				p.Factors = append(p.Factors, c.feature)
			}
		}
		switch {
		case len(p.Factors) >= 3:
			p.Level = "HIGH"
		case len(p.Factors) >= 2:
			p.Level = "MEDIUM"
		default:
			p.Level = "LOW"
		}
		out = append(out, p)
	}
	return out
}

// mode returns the most frequent label, the lexicographically smallest on ties.
func mode(counts map[string]int) string {
	best, bestCount := "", -1
	for label, c := range counts {
		if c > bestCount || (c == bestCount && label < best) {
			best, bestCount = label, c
		}
	}
	return best
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
