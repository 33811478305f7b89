package estimate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/ensemble/internal/domain"
	"github.com/joss/ensemble/internal/registry"
)

func testEstimator(t *testing.T) *Estimator {
	t.Helper()
	reg, err := registry.New(context.Background(), nil)
	require.NoError(t, err)
	return New(reg)
}

func TestEstimateTokenArithmetic(t *testing.T) {
	e := testEstimator(t)

	est, err := e.Estimate(10000, "java", "go", "gpt-4o", domain.StrategyQualityFirst)
	require.NoError(t, err)

	// 10000 lines of java at 12 tokens/line plus prompt overhead.
	assert.Equal(t, 120200, est.InputTokens)
	assert.Equal(t, int(float64(120200)*1.2), est.OutputTokens)
	assert.Equal(t, est.InputTokens+est.OutputTokens, est.TotalTokens)
	assert.Equal(t, "gpt-4o", est.ProviderID)
}

func TestEstimateCostMonotonicInSize(t *testing.T) {
	e := testEstimator(t)

	small, err := e.Estimate(10000, "java", "go", "gpt-4o", domain.StrategyQualityFirst)
	require.NoError(t, err)
	large, err := e.Estimate(20000, "java", "go", "gpt-4o", domain.StrategyQualityFirst)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, large.CostUSD, small.CostUSD)
	assert.GreaterOrEqual(t, large.TimeMinutes, small.TimeMinutes)
}

func TestEstimateUnknownKindUsesDefaultDensity(t *testing.T) {
	e := testEstimator(t)

	est, err := e.Estimate(100, "cobol", "go", "gpt-4o", domain.StrategyQualityFirst)
	require.NoError(t, err)
	assert.Equal(t, 100*10+200, est.InputTokens)
}

func TestEstimateFanOutForConcurrentStrategies(t *testing.T) {
	e := testEstimator(t)

	single, err := e.Estimate(5000, "python", "go", "gpt-4o", domain.StrategyQualityFirst)
	require.NoError(t, err)
	race, err := e.Estimate(5000, "python", "go", "gpt-4o", domain.StrategyRace)
	require.NoError(t, err)

	// Four built-ins enabled, fan-out capped at three.
	assert.InDelta(t, single.CostUSD*3, race.CostUSD, 0.02)
}

func TestEstimateRaceUsesFastestSpeed(t *testing.T) {
	e := testEstimator(t)

	// deepseek-coder alone runs at 1.0x; under RACE the fastest enabled
	// candidate (gpt-4o at 1.5x) sets the pace.
	solo, err := e.Estimate(10000, "python", "go", "deepseek-coder", domain.StrategyQualityFirst)
	require.NoError(t, err)
	race, err := e.Estimate(10000, "python", "go", "deepseek-coder", domain.StrategyRace)
	require.NoError(t, err)

	assert.Less(t, race.TimeMinutes, solo.TimeMinutes)
}

func TestEstimateConsensusUsesSlowestSpeed(t *testing.T) {
	e := testEstimator(t)

	solo, err := e.Estimate(10000, "python", "go", "gpt-4o", domain.StrategyQualityFirst)
	require.NoError(t, err)
	cons, err := e.Estimate(10000, "python", "go", "gpt-4o", domain.StrategyConsensus)
	require.NoError(t, err)

	// CONSENSUS waits for the slowest candidate (deepseek-coder at 1.0x).
	assert.Greater(t, cons.TimeMinutes, solo.TimeMinutes)
}

func TestEstimateAlternativesCheaperOnly(t *testing.T) {
	e := testEstimator(t)

	est, err := e.Estimate(10000, "java", "go", "gpt-4o", domain.StrategyQualityFirst)
	require.NoError(t, err)

	// Everything else is cheaper than gpt-4o.
	require.Len(t, est.Alternatives, 3)
	for _, alt := range est.Alternatives {
		assert.Less(t, alt.CostUSD, est.CostUSD)
		assert.NotEqual(t, "gpt-4o", alt.ProviderID)
	}

	// Ordered by descending savings; best savings surfaced on top.
	assert.Equal(t, "deepseek-coder", est.Alternatives[0].ProviderID)
	assert.Equal(t, est.Alternatives[0].SavingsUSD, est.SavingsUSD)
	for i := 1; i < len(est.Alternatives); i++ {
		assert.LessOrEqual(t, est.Alternatives[i].SavingsUSD, est.Alternatives[i-1].SavingsUSD)
	}
}

func TestEstimateCheapestHasNoAlternatives(t *testing.T) {
	e := testEstimator(t)

	est, err := e.Estimate(10000, "java", "go", "deepseek-coder", domain.StrategyQualityFirst)
	require.NoError(t, err)
	assert.Empty(t, est.Alternatives)
	assert.Zero(t, est.SavingsUSD)
}

func TestEstimateUnknownProvider(t *testing.T) {
	e := testEstimator(t)

	_, err := e.Estimate(100, "python", "go", "nope", domain.StrategyQualityFirst)
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestEstimateNegativeSize(t *testing.T) {
	e := testEstimator(t)

	_, err := e.Estimate(-1, "python", "go", "gpt-4o", domain.StrategyQualityFirst)
	assert.Error(t, err)
}

func TestEstimateBatchSums(t *testing.T) {
	e := testEstimator(t)

	one, err := e.Estimate(1000, "python", "go", "gpt-4o", domain.StrategyQualityFirst)
	require.NoError(t, err)

	cost, minutes, err := e.EstimateBatch([]int{1000, 1000}, "python", "go", "gpt-4o", domain.StrategyQualityFirst)
	require.NoError(t, err)
	assert.InDelta(t, one.CostUSD*2, cost, 0.02)
	assert.InDelta(t, one.TimeMinutes*2, minutes, 0.2)
}

func TestEstimateText(t *testing.T) {
	e := testEstimator(t)

	est, err := e.EstimateText("def f():\n    return 42\n", "python", "go", "gpt-4o", domain.StrategyQualityFirst)
	require.NoError(t, err)
	assert.Positive(t, est.TotalTokens)
	assert.GreaterOrEqual(t, est.CostUSD, 0.0)
}

func TestTokensNeverZeroForText(t *testing.T) {
	assert.Positive(t, Tokens("hello world, this is a reasonably long sentence"))
	assert.GreaterOrEqual(t, Tokens(""), 0)
}
