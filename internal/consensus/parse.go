// Package consensus merges near-duplicate suggestions from independent
// providers, computes agreement-based confidence and turns scored
// groups into a phased roadmap.
package consensus

import (
	"encoding/json"
	"strings"

	"github.com/joss/ensemble/internal/domain"
)

// rawSuggestion is the JSON shape providers are prompted to return.
type rawSuggestion struct {
	Text     string `json:"text"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Priority string `json:"priority"`
	Effort   string `json:"effort"`
	Impact   string `json:"impact"`
	Before   string `json:"before"`
	After    string `json:"after"`
}

// ParseSuggestions extracts suggestions from one provider payload.
// Payloads wrapped in markdown code fences are unwrapped first; a
// payload that fails to parse yields an empty slice, never an error;
// a malformed response from one provider must not sink the aggregate.
func ParseSuggestions(payload, providerID string) []domain.Suggestion {
	body := stripFences(payload)

	var raws []rawSuggestion
	if err := json.Unmarshal([]byte(body), &raws); err != nil {
		// Some backends wrap the list in an object.
		var wrapped struct {
			Suggestions []rawSuggestion `json:"suggestions"`
		}
		if err := json.Unmarshal([]byte(body), &wrapped); err != nil {
			return nil
		}
		raws = wrapped.Suggestions
	}

	out := make([]domain.Suggestion, 0, len(raws))
	for _, r := range raws {
		text := r.Text
		if text == "" {
			text = r.Title
		}
		if text == "" {
			continue
		}
		out = append(out, domain.Suggestion{
			Text:       text,
			Category:   defaultStr(strings.ToLower(r.Category), "best_practices"),
			Priority:   defaultStr(strings.ToLower(r.Priority), "medium"),
			Effort:     defaultStr(strings.ToLower(r.Effort), "medium"),
			Impact:     defaultStr(strings.ToLower(r.Impact), "medium"),
			ProviderID: providerID,
			Before:     r.Before,
			After:      r.After,
		})
	}
	return out
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func defaultStr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
