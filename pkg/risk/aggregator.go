package risk

import (
	"sort"

	"github.com/hed1ad/accessguard/pkg/detectors"
	"github.com/hed1ad/accessguard/pkg/features"
)

// DefaultTopN is the length of the prioritized list.
const DefaultTopN = 5

// Skipped records a method that produced no result in a run.
type Skipped struct {
	Method detectors.Method `json:"method_name"`
	Reason string           `json:"reason"`
}

// Aggregator joins detection results into risk records.
type Aggregator struct {
	topN int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithTopN sets the length of the prioritized list.
func WithTopN(n int) Option {
	return func(a *Aggregator) {
		a.topN = n
	}
}

// NewAggregator creates an Aggregator.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{topN: DefaultTopN}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate produces exactly one record per entity in the table plus any
// entity seen only in a result. Absent methods contribute nothing and are
// listed as skipped.
func (a *Aggregator) Aggregate(table *features.Table, results map[detectors.Method]*detectors.Result, skipped []Skipped) *Report {
	category := map[string]string{}
	var population []string
	seen := map[string]bool{}

	for _, row := range table.Rows() {
		if !seen[row.EntityID] {
			seen[row.EntityID] = true
			population = append(population, row.EntityID)
			category[row.EntityID] = row.Category
		}
	}

	var extra []string
	ordered := make([]*detectors.Result, 0, len(results))
	for _, m := range detectors.Methods {
		res, ok := results[m]
		if !ok || res == nil {
			continue
		}
		ordered = append(ordered, res)
		for _, id := range res.Flagged {
			if !seen[id] {
				seen[id] = true
				extra = append(extra, id)
			}
		}
		for id := range res.Scores {
			if !seen[id] {
				seen[id] = true
				extra = append(extra, id)
			}
		}
	}
	sort.Strings(extra)
	population = append(population, extra...)

	records := make([]Record, 0, len(population))
	for _, id := range population {
		rec := Record{EntityID: id, Category: category[id], FlaggedBy: []detectors.Method{}}
		for _, res := range ordered {
			if res.IsFlagged(id) {
				rec.Score += Weight(res.Method)
				rec.FlaggedBy = append(rec.FlaggedBy, res.Method)
			}
		}
		rec.Level = LevelFor(rec.Score)
		records = append(records, rec)
	}

	return &Report{
		Records: records,
		Results: ordered,
		Summary: a.summarize(records, ordered, skipped),
	}
}

func (a *Aggregator) summarize(records []Record, results []*detectors.Result, skipped []Skipped) Summary {
	s := Summary{
		TotalEntities:  len(records),
		LevelCounts:    make(map[Level]int, len(Levels)),
		MethodsRun:     make([]detectors.Method, 0, len(results)),
		MethodsSkipped: append([]Skipped{}, skipped...),
		HighRisk:       []string{},
	}
	for _, l := range Levels {
		s.LevelCounts[l] = 0
	}
	for _, res := range results {
		s.MethodsRun = append(s.MethodsRun, res.Method)
	}
	sort.Slice(s.MethodsSkipped, func(i, j int) bool {
		return s.MethodsSkipped[i].Method < s.MethodsSkipped[j].Method
	})

	for _, r := range records {
		s.LevelCounts[r.Level]++
		if r.Level.Severity() >= High.Severity() {
			s.HighRisk = append(s.HighRisk, r.EntityID)
		}
	}

	s.TopN = TopN(records, a.topN)
	return s
}

// TopN returns the n records with the highest score, ties broken by entity id.
func TopN(records []Record, n int) []Record {
	sorted := append([]Record(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].EntityID < sorted[j].EntityID
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	if n < 0 {
		n = 0
	}
	return sorted[:n]
}
