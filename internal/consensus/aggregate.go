package consensus

import (
	"strings"
	"unicode"

	"github.com/joss/ensemble/internal/domain"
)

// Aggregator groups suggestions across providers.
//
// Grouping is single-pass, first-fit greedy: each suggestion joins the
// first existing group whose representative is similar enough and
// shares its category, else starts a new group. The partition is
// deterministic for a fixed input order; reordering the input can
// change it.
type Aggregator struct {
	// SimilarityThreshold is the minimum normalized similarity for two
	// texts to merge. Exceeding (not meeting) the threshold merges.
	SimilarityThreshold float64

	// ConsensusThreshold is the absolute count of distinct providers a
	// group needs to be tagged "consensus". Tagging only: a dispatch
	// never fails because groups fall short of it.
	ConsensusThreshold int
}

// NewAggregator returns an aggregator with the given thresholds;
// non-positive values fall back to defaults.
func NewAggregator(similarity float64, threshold int) *Aggregator {
	if similarity <= 0 {
		similarity = 0.55
	}
	if threshold <= 0 {
		threshold = 2
	}
	return &Aggregator{SimilarityThreshold: similarity, ConsensusThreshold: threshold}
}

// Aggregate parses every successful result and partitions the combined
// suggestions into groups. queried is the number of providers that were
// asked, the denominator for confidence.
func (a *Aggregator) Aggregate(results []domain.ProviderResult, queried int) []domain.SuggestionGroup {
	var all []domain.Suggestion
	for _, r := range results {
		if !r.Success() {
			continue
		}
		all = append(all, ParseSuggestions(r.Payload, r.ProviderID)...)
	}
	return a.Group(all, queried)
}

// Group partitions suggestions preserving first-seen order.
func (a *Aggregator) Group(suggestions []domain.Suggestion, queried int) []domain.SuggestionGroup {
	if queried <= 0 {
		queried = 1
	}

	var groups []domain.SuggestionGroup
	for _, s := range suggestions {
		placed := false
		for i := range groups {
			g := &groups[i]
			if g.Category != s.Category {
				continue
			}
			if similarity(normalize(g.Representative), normalize(s.Text)) > a.SimilarityThreshold {
				g.Members = append(g.Members, s)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, domain.SuggestionGroup{
				Representative: s.Text,
				Category:       s.Category,
				Members:        []domain.Suggestion{s},
			})
		}
	}

	for i := range groups {
		g := &groups[i]
		g.Providers = distinctProviders(g.Members)
		g.Confidence = float64(len(g.Providers)) / float64(queried)
		g.Consensus = len(g.Providers) >= a.ConsensusThreshold
	}
	return groups
}

func distinctProviders(members []domain.Suggestion) []string {
	seen := make(map[string]struct{}, len(members))
	var out []string
	for _, m := range members {
		if _, ok := seen[m.ProviderID]; ok {
			continue
		}
		seen[m.ProviderID] = struct{}{}
		out = append(out, m.ProviderID)
	}
	return out
}

// normalize lowercases, strips punctuation and collapses whitespace.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// similarity is the Jaccard index over token sets of the normalized
// texts: identical sets score 1, disjoint sets 0.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, t := range strings.Fields(s) {
		out[t] = struct{}{}
	}
	return out
}
