package consensus

import (
	"sort"

	"github.com/joss/ensemble/internal/domain"
)

// Fixed lookup tables for priority scoring.
var (
	priorityScores = map[string]float64{
		"critical": 10,
		"high":     7,
		"medium":   5,
		"low":      2,
	}

	categoryWeights = map[string]float64{
		"performance":     1.0,
		"security":        1.2,
		"readability":     0.8,
		"maintainability": 0.9,
		"architecture":    1.0,
		"best_practices":  0.7,
		"error_handling":  1.1,
	}

	effortMultipliers = map[string]float64{
		"low":    1.0,
		"medium": 0.7,
		"high":   0.4,
	}

	impactScores = map[string]float64{
		"low":    1,
		"medium": 2,
		"high":   3,
	}
)

// Roadmap phase cutoffs on the final score.
const (
	criticalCutoff = 10.0
	mediumCutoff   = 4.0
)

// Score computes each group's priority score in place and returns the
// groups ordered by descending score. Ties keep first-seen order.
func Score(groups []domain.SuggestionGroup) []domain.SuggestionGroup {
	for i := range groups {
		groups[i].Score = groupScore(&groups[i])
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Score > groups[j].Score })
	return groups
}

// groupScore multiplies the fixed tables through the group's dominant
// member and its confidence. The dominant member is the highest
// priority one; first-seen wins ties.
func groupScore(g *domain.SuggestionGroup) float64 {
	if len(g.Members) == 0 {
		return 0
	}

	lead := g.Members[0]
	for _, m := range g.Members[1:] {
		if priorityScores[m.Priority] > priorityScores[lead.Priority] {
			lead = m
		}
	}

	priority := lookup(priorityScores, lead.Priority, 5)
	category := lookup(categoryWeights, g.Category, 1.0)
	impact := lookup(impactScores, lead.Impact, 2)
	effort := lookup(effortMultipliers, lead.Effort, 1.0)

	return priority * category * impact * effort * g.Confidence
}

// BuildRoadmap buckets scored groups into the three phases. Input is
// expected sorted descending by score (as Score returns), which keeps
// each phase ordered.
func BuildRoadmap(groups []domain.SuggestionGroup) domain.Roadmap {
	var rm domain.Roadmap
	for _, g := range groups {
		switch {
		case g.Score >= criticalCutoff:
			rm.Immediate = append(rm.Immediate, g)
		case g.Score >= mediumCutoff:
			rm.NearTerm = append(rm.NearTerm, g)
		default:
			rm.LongerTerm = append(rm.LongerTerm, g)
		}
	}
	return rm
}

func lookup(table map[string]float64, key string, fallback float64) float64 {
	if v, ok := table[key]; ok {
		return v
	}
	return fallback
}
