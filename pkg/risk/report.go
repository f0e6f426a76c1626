package risk

import (
	"fmt"
	"time"

	"github.com/hed1ad/accessguard/pkg/detectors"
	"github.com/hed1ad/accessguard/pkg/explain"
)

// Summary is the headline view of a run.
type Summary struct {
	TotalEntities  int                `json:"total_entities"`
	LevelCounts    map[Level]int      `json:"risk_level_counts"`
	TopN           []Record           `json:"top_n"`
	HighRisk       []string           `json:"high_risk"`
	MethodsRun     []detectors.Method `json:"methods_run"`
	MethodsSkipped []Skipped          `json:"methods_skipped"`
	Clusters       int                `json:"clusters"`
}

// Report is the in-memory result of one run.
type Report struct {
	RunID           string                `json:"run_id"`
	GeneratedAt     time.Time             `json:"generated_at"`
	Records         []Record              `json:"risk_records"`
	Results         []*detectors.Result   `json:"detection_results"`
	Explanations    []explain.Explanation `json:"explanations"`
	Summary         Summary               `json:"summary"`
	Recommendations []string              `json:"recommendations"`
}

// Record returns the record of an entity.
func (r *Report) Record(id string) (Record, bool) {
	for _, rec := range r.Records {
		if rec.EntityID == id {
			return rec, true
		}
	}
	return Record{}, false
}

// Result returns the result of a method, if it ran.
func (r *Report) Result(m detectors.Method) (*detectors.Result, bool) {
	for _, res := range r.Results {
		if res.Method == m {
			return res, true
		}
	}
	return nil, false
}

// ExplanationsFor returns every explanation attached to an entity.
func (r *Report) ExplanationsFor(id string) []explain.Explanation {
	var out []explain.Explanation
	for _, ex := range r.Explanations {
		if ex.EntityID == id {
			out = append(out, ex)
		}
	}
	return out
}

// Recommend returns the advisory follow-ups for a summary.
func Recommend(s Summary) []string {
	recs := make([]string, 0, 6)
	if n := len(s.HighRisk); n > 0 {
		recs = append(recs, fmt.Sprintf("Investigate %d high-risk account(s) immediately", n))
		recs = append(recs, "Review access patterns for entities with risk score >= 4")
	}
	if len(s.MethodsSkipped) > 0 {
		recs = append(recs, "Re-run skipped detectors once more entities are available")
	}
	recs = append(recs,
		"Implement enhanced monitoring for detected anomalies",
		"Establish behavioral baselines for each access level",
		"Create role-based access policies from the behavioral clusters",
	)
	return recs
}
