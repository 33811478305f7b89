// Package estimate derives token, cost and time figures for an
// operation before it runs, from the registry's pricing table.
// Estimates are stateless and re-derivable; nothing here persists.
package estimate

import (
	"fmt"
	"math"
	"sort"

	"github.com/joss/ensemble/internal/domain"
	"github.com/joss/ensemble/internal/registry"
)

// Estimate is the per-operation cost/time projection.
type Estimate struct {
	TotalTokens  int           `json:"total_tokens"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	CostUSD      float64       `json:"cost_usd"`
	TimeMinutes  float64       `json:"time_minutes"`
	ProviderID   string        `json:"provider_id"`
	Alternatives []Alternative `json:"alternatives"`
	SavingsUSD   float64       `json:"savings_usd"`
}

// Alternative is one cheaper provider option.
type Alternative struct {
	ProviderID     string  `json:"provider_id"`
	CostUSD        float64 `json:"cost_usd"`
	SavingsUSD     float64 `json:"savings_usd"`
	SavingsPercent float64 `json:"savings_percent"`
	Quality        float64 `json:"quality"`
	SpeedFactor    float64 `json:"speed_factor"`
}

// tokensPerLine maps a source kind to its token density.
var tokensPerLine = map[string]int{
	"java":       12,
	"python":     10,
	"javascript": 11,
	"typescript": 12,
	"go":         10,
	"cpp":        13,
	"rust":       12,
}

const (
	defaultTokensPerLine = 10
	// kindOverhead covers the prompt scaffolding around the source.
	kindOverhead = 200
	// outputRatio models code expansion during translation.
	outputRatio = 1.2
	// baseMinutesPerKLine at speed factor 1.0.
	baseMinutesPerKLine = 2.0
	// fanOutCap bounds how many concurrent candidates RACE/CONSENSUS
	// are costed for.
	fanOutCap = 3
)

// Estimator computes estimates against the live registry.
type Estimator struct {
	reg *registry.Registry
}

// New creates an estimator.
func New(reg *registry.Registry) *Estimator {
	return &Estimator{reg: reg}
}

// Estimate projects cost and time for converting lines of sourceKind
// into targetKind on the given provider under the given strategy.
func (e *Estimator) Estimate(lines int, sourceKind, targetKind, providerID string, strategy domain.Strategy) (Estimate, error) {
	d, err := e.reg.Get(providerID)
	if err != nil {
		return Estimate{}, err
	}
	if lines < 0 {
		return Estimate{}, fmt.Errorf("negative size metric: %d", lines)
	}

	perLine, ok := tokensPerLine[sourceKind]
	if !ok {
		perLine = defaultTokensPerLine
	}
	inputTokens := lines*perLine + kindOverhead
	outputTokens := int(float64(inputTokens) * outputRatio)

	cost := tokenCost(inputTokens, outputTokens, d)

	enabled := e.reg.Snapshot(registry.Filter{BuiltIn: true, Custom: true, EnabledOnly: true})

	// RACE and CONSENSUS pay for every concurrent candidate.
	fanOut := 1
	if strategy == domain.StrategyRace || strategy == domain.StrategyConsensus {
		fanOut = min(len(enabled), fanOutCap)
		if fanOut < 1 {
			fanOut = 1
		}
	}
	cost *= float64(fanOut)

	speed := e.strategySpeed(d, strategy, enabled)
	minutes := (float64(lines) / 1000.0) * baseMinutesPerKLine / speed

	alts := e.alternatives(inputTokens, outputTokens, d, cost)
	savings := 0.0
	if len(alts) > 0 {
		savings = alts[0].SavingsUSD
	}

	return Estimate{
		TotalTokens:  inputTokens + outputTokens,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      round2(cost),
		TimeMinutes:  round1(minutes),
		ProviderID:   providerID,
		Alternatives: alts,
		SavingsUSD:   round2(savings),
	}, nil
}

// EstimateText is Estimate with the size metric taken from the real
// token count of source rather than a line heuristic.
func (e *Estimator) EstimateText(source, sourceKind, targetKind, providerID string, strategy domain.Strategy) (Estimate, error) {
	perLine, ok := tokensPerLine[sourceKind]
	if !ok {
		perLine = defaultTokensPerLine
	}
	lines := Tokens(source) / perLine
	return e.Estimate(lines, sourceKind, targetKind, providerID, strategy)
}

// EstimateBatch sums estimates over several inputs.
func (e *Estimator) EstimateBatch(lineCounts []int, sourceKind, targetKind, providerID string, strategy domain.Strategy) (totalCost, totalMinutes float64, err error) {
	for _, lines := range lineCounts {
		est, eerr := e.Estimate(lines, sourceKind, targetKind, providerID, strategy)
		if eerr != nil {
			return 0, 0, eerr
		}
		totalCost += est.CostUSD
		totalMinutes += est.TimeMinutes
	}
	return round2(totalCost), round1(totalMinutes), nil
}

// strategySpeed picks the effective speed factor: RACE finishes with
// the fastest candidate, CONSENSUS waits for the slowest.
func (e *Estimator) strategySpeed(d registry.Descriptor, strategy domain.Strategy, enabled []registry.Descriptor) float64 {
	speed := d.SpeedFactor
	if speed <= 0 {
		speed = 1.0
	}
	if len(enabled) == 0 {
		return speed
	}

	switch strategy {
	case domain.StrategyRace:
		for _, c := range enabled {
			if c.SpeedFactor > speed {
				speed = c.SpeedFactor
			}
		}
	case domain.StrategyConsensus:
		for _, c := range enabled {
			if c.SpeedFactor > 0 && c.SpeedFactor < speed {
				speed = c.SpeedFactor
			}
		}
	}
	return speed
}

// alternatives lists every other enabled provider that would be
// cheaper, ordered by descending savings.
func (e *Estimator) alternatives(inputTokens, outputTokens int, current registry.Descriptor, currentCost float64) []Alternative {
	var alts []Alternative
	for _, d := range e.reg.Snapshot(registry.Filter{BuiltIn: true, Custom: true, EnabledOnly: true}) {
		if d.ID == current.ID {
			continue
		}
		cost := tokenCost(inputTokens, outputTokens, d)
		if cost >= currentCost {
			continue
		}
		saving := currentCost - cost
		pct := 0.0
		if currentCost > 0 {
			pct = saving / currentCost * 100
		}
		alts = append(alts, Alternative{
			ProviderID:     d.ID,
			CostUSD:        round2(cost),
			SavingsUSD:     round2(saving),
			SavingsPercent: round1(pct),
			Quality:        d.Quality,
			SpeedFactor:    d.SpeedFactor,
		})
	}
	sort.Slice(alts, func(i, j int) bool { return alts[i].SavingsUSD > alts[j].SavingsUSD })
	return alts
}

func tokenCost(inputTokens, outputTokens int, d registry.Descriptor) float64 {
	return float64(inputTokens)/1000*d.InputCost + float64(outputTokens)/1000*d.OutputCost
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round1(v float64) float64 { return math.Round(v*10) / 10 }
