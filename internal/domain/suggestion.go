package domain

// Suggestion is a single recommendation produced by one provider
// during an ANALYZE operation.
type Suggestion struct {
	Text       string `json:"text"`
	Category   string `json:"category"`
	Priority   string `json:"priority"` // critical, high, medium, low
	Effort     string `json:"effort"`   // low, medium, high
	Impact     string `json:"impact"`   // low, medium, high
	ProviderID string `json:"provider_id"`
	Before     string `json:"before,omitempty"`
	After      string `json:"after,omitempty"`
}

// SuggestionGroup clusters near-duplicate suggestions from different
// providers into one logical recommendation. Groups for one operation
// exhaustively partition all suggestions.
type SuggestionGroup struct {
	Representative string       `json:"representative"`
	Category       string       `json:"category"`
	Members        []Suggestion `json:"members"`
	Providers      []string     `json:"providers"`
	Confidence     float64      `json:"confidence"` // distinct providers / providers queried
	Consensus      bool         `json:"consensus"`
	Score          float64      `json:"score"`
}

// Roadmap buckets scored suggestion groups into three execution phases,
// ordered descending by score within each phase.
type Roadmap struct {
	Immediate  []SuggestionGroup `json:"immediate"`
	NearTerm   []SuggestionGroup `json:"near_term"`
	LongerTerm []SuggestionGroup `json:"longer_term"`
}

// Total returns the number of groups across all phases.
func (r Roadmap) Total() int {
	return len(r.Immediate) + len(r.NearTerm) + len(r.LongerTerm)
}
