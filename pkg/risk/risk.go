// Package risk reconciles detector verdicts into one composite score and level per entity.
package risk

import (
	"github.com/hed1ad/accessguard/pkg/detectors"
)

// Level is the categorical risk of an entity.
type Level string

const (
	Low      Level = "LOW"
	Medium   Level = "MEDIUM"
	High     Level = "HIGH"
	Critical Level = "CRITICAL"
)

// Levels lists every level from most to least severe.
var Levels = []Level{Critical, High, Medium, Low}

// weights is the fixed contribution of each method's flag.
var weights = [detectors.NumMethods]int{
	detectors.GlobalIsolation: 3,
	detectors.LocalDensity:    2,
	detectors.Clustering:      2,
}

// Weight returns the score contribution of a flag from m.
func Weight(m detectors.Method) int {
	if m < 0 || int(m) >= detectors.NumMethods {
		return 0
	}
	return weights[m]
}

// MaxScore is the score of an entity flagged by every method.
func MaxScore() int {
	total := 0
	for _, w := range weights {
		total += w
	}
	return total
}

// LevelFor maps a score to its level: >=6 CRITICAL, >=4 HIGH, >=2 MEDIUM, else LOW.
func LevelFor(score int) Level {
	switch {
	case score >= 6:
		return Critical
	case score >= 4:
		return High
	case score >= 2:
		return Medium
	default:
		return Low
	}
}

// Severity orders levels; higher is worse.
func (l Level) Severity() int {
	switch l {
	case Critical:
		return 3
	case High:
		return 2
	case Medium:
		return 1
	default:
		return 0
	}
}

// Record is the composite verdict for one entity.
type Record struct {
	EntityID string `json:"entity_id"`
	Category string `json:"category_label,omitempty"`
	Score    int    `json:"risk_score"`
	Level    Level  `json:"risk_level"`
	// FlaggedBy lists the flagging methods in evaluation order.
	FlaggedBy []detectors.Method `json:"flagged_by"`
}
