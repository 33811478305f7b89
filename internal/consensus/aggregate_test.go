package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/ensemble/internal/domain"
)

func sugg(text, category, provider string) domain.Suggestion {
	return domain.Suggestion{
		Text:       text,
		Category:   category,
		Priority:   "medium",
		Effort:     "medium",
		Impact:     "medium",
		ProviderID: provider,
	}
}

func TestGroupMergesNearDuplicates(t *testing.T) {
	a := NewAggregator(0, 0)

	groups := a.Group([]domain.Suggestion{
		sugg("use a connection pool for database access", "performance", "p1"),
		sugg("use a database connection pool", "performance", "p2"),
		sugg("add input validation", "security", "p1"),
	}, 2)

	require.Len(t, groups, 2)
	assert.Equal(t, "use a connection pool for database access", groups[0].Representative)
	assert.Len(t, groups[0].Members, 2)
	assert.ElementsMatch(t, []string{"p1", "p2"}, groups[0].Providers)
	assert.Len(t, groups[1].Members, 1)
}

func TestGroupRequiresSameCategory(t *testing.T) {
	a := NewAggregator(0, 0)

	groups := a.Group([]domain.Suggestion{
		sugg("cache the computed results", "performance", "p1"),
		sugg("cache the computed results", "architecture", "p2"),
	}, 2)

	// Identical text, different category: never merged.
	require.Len(t, groups, 2)
}

func TestGroupThresholdStrictlyExceeds(t *testing.T) {
	a := &Aggregator{SimilarityThreshold: 0.5, ConsensusThreshold: 2}

	// Jaccard("alpha beta gamma delta", "alpha beta") = 2/4 = 0.5,
	// exactly at the threshold, so the pair stays apart.
	groups := a.Group([]domain.Suggestion{
		sugg("alpha beta gamma delta", "performance", "p1"),
		sugg("alpha beta", "performance", "p2"),
	}, 2)

	require.Len(t, groups, 2)
}

func TestGroupDeterministicForFixedOrder(t *testing.T) {
	a := NewAggregator(0, 0)
	in := []domain.Suggestion{
		sugg("use prepared statements everywhere", "security", "p1"),
		sugg("use prepared statements for every query", "security", "p2"),
		sugg("reduce allocation in the hot path", "performance", "p3"),
	}

	first := a.Group(in, 3)
	second := a.Group(in, 3)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Representative, second[i].Representative)
		assert.Equal(t, first[i].Providers, second[i].Providers)
	}
}

func TestConfidenceAndConsensusTagging(t *testing.T) {
	a := NewAggregator(0, 2)

	groups := a.Group([]domain.Suggestion{
		sugg("use a connection pool for database access", "performance", "p1"),
		sugg("use a database connection pool", "performance", "p2"),
		sugg("extract the parser into its own module", "architecture", "p3"),
	}, 4)

	require.Len(t, groups, 2)

	// Two of four providers agree.
	assert.InDelta(t, 0.5, groups[0].Confidence, 1e-9)
	assert.True(t, groups[0].Consensus)

	// Unique suggestion: one of four, below the tag threshold.
	assert.InDelta(t, 0.25, groups[1].Confidence, 1e-9)
	assert.False(t, groups[1].Consensus)
}

func TestConsensusTaggingIsNotQuorum(t *testing.T) {
	// Threshold 3 with only 2 agreeing providers: groups still come
	// back, just untagged.
	a := NewAggregator(0, 3)

	groups := a.Group([]domain.Suggestion{
		sugg("use a connection pool for database access", "performance", "p1"),
		sugg("use a database connection pool", "performance", "p2"),
	}, 3)

	require.Len(t, groups, 1)
	assert.False(t, groups[0].Consensus)
}

func TestDuplicateProviderCountedOnce(t *testing.T) {
	a := NewAggregator(0, 2)

	groups := a.Group([]domain.Suggestion{
		sugg("use a connection pool for database access", "performance", "p1"),
		sugg("use a database connection pool", "performance", "p1"),
	}, 2)

	require.Len(t, groups, 1)
	assert.Equal(t, []string{"p1"}, groups[0].Providers)
	assert.False(t, groups[0].Consensus)
}

func TestAggregateSkipsFailedResults(t *testing.T) {
	a := NewAggregator(0, 0)

	groups := a.Aggregate([]domain.ProviderResult{
		{ProviderID: "p1", Payload: `[{"text":"add retries","category":"error_handling"}]`},
		{ProviderID: "p2", Err: "timeout"},
	}, 2)

	require.Len(t, groups, 1)
	assert.Equal(t, []string{"p1"}, groups[0].Providers)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "use a pool", normalize("  Use, a POOL!  "))
	assert.Equal(t, "", normalize("!!!"))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, similarity("a b c", "a b c"))
	assert.Equal(t, 0.0, similarity("a b", "c d"))
	assert.InDelta(t, 0.5, similarity("w x y z", "w x"), 1e-9)
	assert.Equal(t, 0.0, similarity("", "a b"))
}
