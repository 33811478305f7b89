// Package dispatch issues provider calls according to the selected
// strategy, consults and fills the result cache, and translates
// per-provider failures into strategy decisions. Provider call errors
// never escape this package raw; callers see either a winning outcome
// or a strategy-level error (AllProvidersFailed, InsufficientQuorum).
package dispatch

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/joss/ensemble/internal/cache"
	"github.com/joss/ensemble/internal/domain"
	"github.com/joss/ensemble/internal/logging"
	"github.com/joss/ensemble/internal/registry"
)

// CallFunc submits one prompt to one backend and returns the raw text
// payload. The production implementation goes through the adapter
// package; tests inject fakes.
type CallFunc func(ctx context.Context, d registry.Descriptor, prompt string) (string, error)

// Options tunes a dispatcher.
type Options struct {
	// CallTimeout is the mandatory per-call timeout.
	CallTimeout time.Duration
	// DispatchTimeout bounds the whole dispatch.
	DispatchTimeout time.Duration
	// CacheTTL applies to every successful terminal outcome written.
	CacheTTL time.Duration
	// Quorum for CONSENSUS; zero means majority of the candidate set.
	Quorum int
}

// Outcome is the terminal result of one dispatch.
type Outcome struct {
	Payload    string
	ProviderID string
	CacheHit   bool
	Attempts   int
	// Results holds every successful settled result for CONSENSUS
	// dispatches; nil for single-winner strategies.
	Results []domain.ProviderResult
	Queried int
	Usage   domain.TokenUsage
}

// Dispatcher coordinates concurrent provider calls. It owns the
// round-robin rotation index; all access to it is serialized. One
// dispatcher instance is constructed at process start and injected by
// reference wherever dispatching happens.
type Dispatcher struct {
	reg   *registry.Registry
	cache cache.Cache
	call  CallFunc
	opts  Options
	log   zerolog.Logger

	// rrMu serializes the rotation cursor.
	rrMu     sync.Mutex
	rrCursor int

	// semMu guards per-provider concurrency limiters.
	semMu sync.Mutex
	sems  map[string]chan struct{}

	statsMu sync.Mutex
	stats   map[string]*ProviderStats
}

// ProviderStats is the rolling per-provider performance record.
type ProviderStats struct {
	Successes  int64         `json:"successes"`
	Failures   int64         `json:"failures"`
	TotalTime  time.Duration `json:"total_time"`
	AvgLatency time.Duration `json:"avg_latency"`
}

// New creates a dispatcher.
func New(reg *registry.Registry, c cache.Cache, call CallFunc, opts Options) *Dispatcher {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 60 * time.Second
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 5 * time.Minute
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	return &Dispatcher{
		reg:   reg,
		cache: c,
		call:  call,
		opts:  opts,
		log:   logging.New("dispatch"),
		sems:  make(map[string]chan struct{}),
		stats: make(map[string]*ProviderStats),
	}
}

// Dispatch runs one operation against the candidate providers under
// the strategy. The fingerprint is always computed first; a cache hit
// returns with zero provider calls. Every successful terminal outcome
// is written back to the cache before returning.
func (d *Dispatcher) Dispatch(ctx context.Context, operationID string, op domain.Operation, providerIDs []string, strategy domain.Strategy) (*Outcome, error) {
	fp := cache.Fingerprint(op, providerIDs)
	if payload, ok := d.cache.Get(ctx, fp); ok {
		d.log.Debug().Str("operation", operationID).Msg("cache hit")
		return &Outcome{Payload: payload, CacheHit: true, Queried: 0}, nil
	}

	cands := d.candidates(providerIDs)
	if len(cands) == 0 {
		return nil, ErrNoCandidates
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.DispatchTimeout)
	defer cancel()

	var (
		out *Outcome
		err error
	)
	switch strategy {
	case domain.StrategyQualityFirst:
		out, err = d.qualityFirst(ctx, operationID, op, cands)
	case domain.StrategyRace:
		out, err = d.race(ctx, operationID, op, cands)
	case domain.StrategyConsensus:
		out, err = d.consensus(ctx, operationID, op, cands)
	case domain.StrategyRoundRobin:
		out, err = d.roundRobin(ctx, operationID, op, cands)
	case domain.StrategyRandom:
		out, err = d.random(ctx, operationID, op, cands)
	default:
		return nil, fmt.Errorf("unknown strategy: %q", strategy)
	}
	if err != nil {
		return nil, err
	}

	d.cache.Set(ctx, fp, out.Payload, d.opts.CacheTTL)
	return out, nil
}

// Stats returns a copy of the per-provider rolling stats.
func (d *Dispatcher) Stats() map[string]ProviderStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	out := make(map[string]ProviderStats, len(d.stats))
	for id, s := range d.stats {
		out[id] = *s
	}
	return out
}

// candidates resolves ids to enabled descriptors, preserving order.
func (d *Dispatcher) candidates(ids []string) []registry.Descriptor {
	var out []registry.Descriptor
	for _, id := range ids {
		desc, err := d.reg.Get(id)
		if err != nil || !desc.Enabled {
			continue
		}
		out = append(out, desc)
	}
	return out
}

// qualityFirst tries candidates sequentially in descending quality
// rank, returning the first success.
func (d *Dispatcher) qualityFirst(ctx context.Context, opID string, op domain.Operation, cands []registry.Descriptor) (*Outcome, error) {
	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.ID
	}
	ordered := d.reg.ByQuality(ids)

	var lastErr error
	for i, cand := range ordered {
		res := d.callOne(ctx, cand, opID, op)
		if res.Success() {
			return d.winner(res, i+1), nil
		}
		lastErr = fmt.Errorf("%s: %s", cand.ID, res.Err)
		d.log.Warn().Str("provider", cand.ID).Str("error", res.Err).Msg("provider failed, trying next")
	}
	return nil, &ExhaustedError{Attempts: len(ordered), Last: lastErr}
}

// race calls every candidate concurrently and returns the first
// success. Remaining in-flight calls are abandoned, not awaited; their
// results are discarded via the canceled context.
func (d *Dispatcher) race(ctx context.Context, opID string, op domain.Operation, cands []registry.Descriptor) (*Outcome, error) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan domain.ProviderResult, len(cands))
	for _, cand := range cands {
		go func(c registry.Descriptor) {
			results <- d.callOne(raceCtx, c, opID, op)
		}(cand)
	}

	var lastErr error
	for i := 0; i < len(cands); i++ {
		select {
		case <-ctx.Done():
			return nil, &ExhaustedError{Attempts: i, Last: ctx.Err()}
		case res := <-results:
			if res.Success() {
				return d.winner(res, i+1), nil
			}
			lastErr = fmt.Errorf("%s: %s", res.ProviderID, res.Err)
		}
	}
	return nil, &ExhaustedError{Attempts: len(cands), Last: lastErr}
}

// consensus calls every candidate concurrently and waits for all to
// settle (or the dispatch timeout). Aggregation over the successes
// happens downstream; here only the quorum is enforced.
func (d *Dispatcher) consensus(ctx context.Context, opID string, op domain.Operation, cands []registry.Descriptor) (*Outcome, error) {
	settled := make([]domain.ProviderResult, len(cands))

	var wg sync.WaitGroup
	for i, cand := range cands {
		wg.Add(1)
		go func(idx int, c registry.Descriptor) {
			defer wg.Done()
			settled[idx] = d.callOne(ctx, c, opID, op)
		}(i, cand)
	}
	wg.Wait()

	var successes []domain.ProviderResult
	for _, res := range settled {
		if res.Success() {
			successes = append(successes, res)
		}
	}

	required := d.opts.Quorum
	if required <= 0 {
		required = len(cands)/2 + 1
	}
	if len(successes) < required {
		return nil, &QuorumError{Required: required, Got: len(successes), Queried: len(cands)}
	}

	out := d.winner(successes[0], len(cands))
	out.Results = successes
	out.Queried = len(cands)
	return out, nil
}

// roundRobin advances the persistent rotation index and calls the
// selected provider, with one fallback to the next on failure.
func (d *Dispatcher) roundRobin(ctx context.Context, opID string, op domain.Operation, cands []registry.Descriptor) (*Outcome, error) {
	d.rrMu.Lock()
	idx := d.rrCursor % len(cands)
	d.rrCursor++
	d.rrMu.Unlock()

	res := d.callOne(ctx, cands[idx], opID, op)
	if res.Success() {
		return d.winner(res, 1), nil
	}
	firstErr := fmt.Errorf("%s: %s", res.ProviderID, res.Err)

	if len(cands) > 1 {
		next := cands[(idx+1)%len(cands)]
		res = d.callOne(ctx, next, opID, op)
		if res.Success() {
			return d.winner(res, 2), nil
		}
		return nil, &ExhaustedError{Attempts: 2, Last: fmt.Errorf("%s: %s", res.ProviderID, res.Err)}
	}
	return nil, &ExhaustedError{Attempts: 1, Last: firstErr}
}

// random picks one candidate uniformly, with one reselection from the
// remaining candidates on failure.
func (d *Dispatcher) random(ctx context.Context, opID string, op domain.Operation, cands []registry.Descriptor) (*Outcome, error) {
	idx := rand.IntN(len(cands))

	res := d.callOne(ctx, cands[idx], opID, op)
	if res.Success() {
		return d.winner(res, 1), nil
	}
	firstErr := fmt.Errorf("%s: %s", res.ProviderID, res.Err)

	rest := make([]registry.Descriptor, 0, len(cands)-1)
	rest = append(rest, cands[:idx]...)
	rest = append(rest, cands[idx+1:]...)
	if len(rest) == 0 {
		return nil, &ExhaustedError{Attempts: 1, Last: firstErr}
	}

	res = d.callOne(ctx, rest[rand.IntN(len(rest))], opID, op)
	if res.Success() {
		return d.winner(res, 2), nil
	}
	return nil, &ExhaustedError{Attempts: 2, Last: fmt.Errorf("%s: %s", res.ProviderID, res.Err)}
}

func (d *Dispatcher) winner(res domain.ProviderResult, attempts int) *Outcome {
	return &Outcome{
		Payload:    res.Payload,
		ProviderID: res.ProviderID,
		Attempts:   attempts,
		Usage:      res.Usage,
	}
}
