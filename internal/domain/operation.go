// Package domain defines the value types shared across the engine:
// operations, provider results, suggestions, tasks and their events.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// OperationKind classifies a unit of work.
type OperationKind string

const (
	KindTranslate OperationKind = "translate"
	KindAnalyze   OperationKind = "analyze"
)

// Strategy selects how candidate providers are called and combined.
type Strategy string

const (
	StrategyQualityFirst Strategy = "quality_first"
	StrategyRace         Strategy = "race"
	StrategyConsensus    Strategy = "consensus"
	StrategyRoundRobin   Strategy = "round_robin"
	StrategyRandom       Strategy = "random"
)

// Strategies lists all valid strategies.
var Strategies = []Strategy{
	StrategyQualityFirst,
	StrategyRace,
	StrategyConsensus,
	StrategyRoundRobin,
	StrategyRandom,
}

// ParseStrategy converts a string into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	for _, st := range Strategies {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown strategy: %q", s)
}

// Operation is one immutable unit of work.
// For KindTranslate, TargetKind names the language to translate into.
// For KindAnalyze, Categories restricts which suggestion categories to request.
type Operation struct {
	Kind       OperationKind `json:"kind"`
	Source     string        `json:"source"`
	SourceKind string        `json:"source_kind"`
	TargetKind string        `json:"target_kind,omitempty"`
	Categories []string      `json:"categories,omitempty"`
}

// ErrEmptySource is returned when an operation carries no payload.
var ErrEmptySource = errors.New("operation source is empty")

// Validate checks the operation is well formed.
func (o Operation) Validate() error {
	if strings.TrimSpace(o.Source) == "" {
		return ErrEmptySource
	}
	switch o.Kind {
	case KindTranslate:
		if o.TargetKind == "" {
			return fmt.Errorf("translate operation requires a target kind")
		}
	case KindAnalyze:
	default:
		return fmt.Errorf("unknown operation kind: %q", o.Kind)
	}
	return nil
}

// Lines returns the number of source lines, used as the estimator size metric.
func (o Operation) Lines() int {
	if o.Source == "" {
		return 0
	}
	return strings.Count(o.Source, "\n") + 1
}

// TokenUsage records tokens consumed by one provider call.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int { return u.Input + u.Output }

// ProviderResult is the outcome of one provider call for one operation.
// Exactly one of Payload or Err is meaningful.
type ProviderResult struct {
	ProviderID  string        `json:"provider_id"`
	OperationID string        `json:"operation_id"`
	Payload     string        `json:"payload,omitempty"`
	Err         string        `json:"error,omitempty"`
	Latency     time.Duration `json:"latency"`
	Usage       TokenUsage    `json:"usage"`
}

// Success reports whether the call produced a payload.
func (r ProviderResult) Success() bool { return r.Err == "" }
