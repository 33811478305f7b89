package dispatch

import (
	"context"
	"os"
	"time"

	"github.com/joss/ensemble/internal/adapter"
	"github.com/joss/ensemble/internal/domain"
	"github.com/joss/ensemble/internal/estimate"
	"github.com/joss/ensemble/internal/registry"
)

// callOne performs a single provider call under the per-call timeout
// and the provider's concurrency limit, recording latency and rolling
// stats. Failures are captured in the result, never returned.
func (d *Dispatcher) callOne(ctx context.Context, cand registry.Descriptor, opID string, op domain.Operation) domain.ProviderResult {
	res := domain.ProviderResult{ProviderID: cand.ID, OperationID: opID}

	release := d.acquire(ctx, cand)
	if release == nil {
		res.Err = ctx.Err().Error()
		return res
	}
	defer release()

	callCtx, cancel := context.WithTimeout(ctx, d.opts.CallTimeout)
	defer cancel()

	prompt := promptFor(op)
	start := time.Now()
	payload, err := d.call(callCtx, cand, prompt)
	res.Latency = time.Since(start)

	if err != nil {
		res.Err = err.Error()
		d.record(cand.ID, false, res.Latency)
		return res
	}

	res.Payload = payload
	res.Usage = domain.TokenUsage{
		Input:  estimate.Tokens(prompt),
		Output: estimate.Tokens(payload),
	}
	d.record(cand.ID, true, res.Latency)
	return res
}

// acquire takes a slot on the provider's concurrency limiter. Returns
// nil if the context dies while waiting.
func (d *Dispatcher) acquire(ctx context.Context, cand registry.Descriptor) func() {
	if cand.Concurrency <= 0 {
		return func() {}
	}

	d.semMu.Lock()
	sem, ok := d.sems[cand.ID]
	if !ok || cap(sem) != cand.Concurrency {
		sem = make(chan struct{}, cand.Concurrency)
		d.sems[cand.ID] = sem
	}
	d.semMu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }
	case <-ctx.Done():
		return nil
	}
}

func (d *Dispatcher) record(providerID string, success bool, latency time.Duration) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	s, ok := d.stats[providerID]
	if !ok {
		s = &ProviderStats{}
		d.stats[providerID] = s
	}
	if success {
		s.Successes++
	} else {
		s.Failures++
	}
	s.TotalTime += latency
	if total := s.Successes + s.Failures; total > 0 {
		s.AvgLatency = s.TotalTime / time.Duration(total)
	}
}

// AdapterCall is the production CallFunc: it builds the adapter for
// the descriptor's format and submits through it.
func AdapterCall(client adapter.HTTPClient) CallFunc {
	return func(ctx context.Context, cand registry.Descriptor, prompt string) (string, error) {
		a, err := adapter.New(cand.Format, client)
		if err != nil {
			return "", err
		}
		return a.Submit(ctx, prompt, adapter.Config{
			BaseURL:     cand.BaseURL,
			APIKey:      os.Getenv(cand.APIKeyEnv),
			Model:       cand.Model,
			Temperature: 0.3,
			Headers:     cand.Headers,
			Template:    cand.Template,
		})
	}
}
