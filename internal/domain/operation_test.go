package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategy(t *testing.T) {
	for _, s := range []string{"quality_first", "race", "consensus", "round_robin", "random"} {
		st, err := ParseStrategy(s)
		require.NoError(t, err)
		assert.Equal(t, s, string(st))
	}

	_, err := ParseStrategy("fastest")
	assert.Error(t, err)
	_, err = ParseStrategy("")
	assert.Error(t, err)
}

func TestOperationValidate(t *testing.T) {
	op := Operation{Kind: KindTranslate, Source: "class A {}", SourceKind: "java", TargetKind: "go"}
	assert.NoError(t, op.Validate())

	op.TargetKind = ""
	assert.Error(t, op.Validate())

	op = Operation{Kind: KindAnalyze, Source: "def f(): pass", SourceKind: "python"}
	assert.NoError(t, op.Validate())

	op.Source = "   \n\t"
	assert.ErrorIs(t, op.Validate(), ErrEmptySource)

	op = Operation{Kind: OperationKind("review"), Source: "x"}
	assert.Error(t, op.Validate())
}

func TestOperationLines(t *testing.T) {
	assert.Equal(t, 0, Operation{}.Lines())
	assert.Equal(t, 1, Operation{Source: "one line"}.Lines())
	assert.Equal(t, 3, Operation{Source: "a\nb\nc"}.Lines())
}

func TestProviderResultSuccess(t *testing.T) {
	assert.True(t, ProviderResult{Payload: "out"}.Success())
	assert.False(t, ProviderResult{Err: "timeout"}.Success())
}

func TestTokenUsageTotal(t *testing.T) {
	assert.Equal(t, 30, TokenUsage{Input: 10, Output: 20}.Total())
}
