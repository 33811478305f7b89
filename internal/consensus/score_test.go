package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/ensemble/internal/domain"
)

func group(category, priority, effort, impact string, confidence float64) domain.SuggestionGroup {
	return domain.SuggestionGroup{
		Representative: "g",
		Category:       category,
		Confidence:     confidence,
		Members: []domain.Suggestion{{
			Text:     "g",
			Category: category,
			Priority: priority,
			Effort:   effort,
			Impact:   impact,
		}},
	}
}

func TestScoreFormula(t *testing.T) {
	// critical(10) * security(1.2) * high impact(3) * low effort(1.0) * conf 1.0
	groups := Score([]domain.SuggestionGroup{
		group("security", "critical", "low", "high", 1.0),
	})
	assert.InDelta(t, 36.0, groups[0].Score, 1e-9)

	// medium(5) * best_practices(0.7) * medium impact(2) * medium effort(0.7) * conf 1.0
	groups = Score([]domain.SuggestionGroup{
		group("best_practices", "medium", "medium", "medium", 1.0),
	})
	assert.InDelta(t, 4.9, groups[0].Score, 1e-9)
}

func TestScoreUsesHighestPriorityMember(t *testing.T) {
	g := group("performance", "low", "low", "medium", 1.0)
	g.Members = append(g.Members, domain.Suggestion{
		Text: "g", Category: "performance",
		Priority: "critical", Effort: "low", Impact: "high",
	})

	groups := Score([]domain.SuggestionGroup{g})

	// The critical member leads: 10 * 1.0 * 3 * 1.0 * 1.0
	assert.InDelta(t, 30.0, groups[0].Score, 1e-9)
}

func TestScoreOrdersDescending(t *testing.T) {
	groups := Score([]domain.SuggestionGroup{
		group("best_practices", "low", "high", "low", 0.5),
		group("security", "critical", "low", "high", 1.0),
		group("performance", "medium", "medium", "medium", 1.0),
	})

	require.Len(t, groups, 3)
	assert.Equal(t, "security", groups[0].Category)
	assert.Equal(t, "performance", groups[1].Category)
	assert.Equal(t, "best_practices", groups[2].Category)
}

func TestScoreUnknownKeysUseFallbacks(t *testing.T) {
	groups := Score([]domain.SuggestionGroup{
		group("mystery", "urgent", "unknown", "huge", 1.0),
	})

	// 5 (priority) * 1.0 (category) * 2 (impact) * 1.0 (effort)
	assert.InDelta(t, 10.0, groups[0].Score, 1e-9)
}

func TestBuildRoadmapCutoffs(t *testing.T) {
	groups := Score([]domain.SuggestionGroup{
		group("security", "critical", "low", "high", 1.0),       // 36.0
		group("performance", "medium", "medium", "medium", 1.0), // 7.0
		group("best_practices", "low", "high", "low", 0.5),      // 0.28
	})

	rm := BuildRoadmap(groups)

	require.Len(t, rm.Immediate, 1)
	require.Len(t, rm.NearTerm, 1)
	require.Len(t, rm.LongerTerm, 1)
	assert.Equal(t, "security", rm.Immediate[0].Category)
	assert.Equal(t, "performance", rm.NearTerm[0].Category)
	assert.Equal(t, 3, rm.Total())
}

func TestBuildRoadmapBoundaryScores(t *testing.T) {
	rm := BuildRoadmap([]domain.SuggestionGroup{
		{Score: 10.0},
		{Score: 4.0},
		{Score: 3.99},
	})

	assert.Len(t, rm.Immediate, 1)
	assert.Len(t, rm.NearTerm, 1)
	assert.Len(t, rm.LongerTerm, 1)
}

func TestScoreEmptyGroup(t *testing.T) {
	groups := Score([]domain.SuggestionGroup{{Representative: "empty"}})
	assert.Zero(t, groups[0].Score)
}
