package dispatch

import (
	"errors"
	"fmt"
)

// Dispatch errors.
var (
	// ErrAllProvidersFailed indicates every candidate failed before any
	// succeeded (QUALITY_FIRST, RACE, ROUND_ROBIN, RANDOM).
	ErrAllProvidersFailed = errors.New("all providers failed")

	// ErrInsufficientQuorum indicates a CONSENSUS dispatch settled with
	// fewer successes than the required quorum.
	ErrInsufficientQuorum = errors.New("insufficient quorum")

	// ErrNoCandidates indicates the candidate set was empty after
	// filtering to enabled providers.
	ErrNoCandidates = errors.New("no enabled candidate providers")
)

// QuorumError carries the quorum arithmetic.
type QuorumError struct {
	Required int
	Got      int
	Queried  int
}

func (e *QuorumError) Error() string {
	return fmt.Sprintf("insufficient quorum: %d/%d successes, need %d", e.Got, e.Queried, e.Required)
}

func (e *QuorumError) Unwrap() error { return ErrInsufficientQuorum }

// ExhaustedError wraps the last provider failure after the candidate
// list was exhausted.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all providers failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return ErrAllProvidersFailed }
