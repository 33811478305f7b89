package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSuggestionsArray(t *testing.T) {
	payload := `[
		{"text": "use a pool", "category": "Performance", "priority": "HIGH", "effort": "low", "impact": "high"},
		{"text": "validate input", "category": "security"}
	]`

	out := ParseSuggestions(payload, "p1")

	require.Len(t, out, 2)
	assert.Equal(t, "use a pool", out[0].Text)
	assert.Equal(t, "performance", out[0].Category)
	assert.Equal(t, "high", out[0].Priority)
	assert.Equal(t, "p1", out[0].ProviderID)

	// Missing fields default.
	assert.Equal(t, "medium", out[1].Priority)
	assert.Equal(t, "medium", out[1].Effort)
	assert.Equal(t, "medium", out[1].Impact)
}

func TestParseSuggestionsFenced(t *testing.T) {
	payload := "```json\n[{\"text\": \"add retries\", \"category\": \"error_handling\"}]\n```"

	out := ParseSuggestions(payload, "p1")

	require.Len(t, out, 1)
	assert.Equal(t, "add retries", out[0].Text)
}

func TestParseSuggestionsWrappedObject(t *testing.T) {
	payload := `{"suggestions": [{"title": "split the module", "category": "architecture"}]}`

	out := ParseSuggestions(payload, "p2")

	require.Len(t, out, 1)
	// Title stands in when text is absent.
	assert.Equal(t, "split the module", out[0].Text)
}

func TestParseSuggestionsMalformed(t *testing.T) {
	assert.Nil(t, ParseSuggestions("not json at all", "p1"))
	assert.Empty(t, ParseSuggestions(`{"other": 1}`, "p1"))
	assert.Empty(t, ParseSuggestions(`[]`, "p1"))
}

func TestParseSuggestionsSkipsEmptyText(t *testing.T) {
	payload := `[{"category": "security"}, {"text": "real one"}]`

	out := ParseSuggestions(payload, "p1")

	require.Len(t, out, 1)
	assert.Equal(t, "real one", out[0].Text)
	assert.Equal(t, "best_practices", out[0].Category)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, "[1]", stripFences("```json\n[1]\n```"))
	assert.Equal(t, "[1]", stripFences("```\n[1]\n```"))
	assert.Equal(t, "[1]", stripFences("[1]"))
}
