package registry

import (
	"context"
	"os"
	"time"

	"github.com/joss/ensemble/internal/adapter"
)

// ProbeResult is the outcome of a connectivity test against one backend.
type ProbeResult struct {
	ProviderID string        `json:"provider_id"`
	Success    bool          `json:"success"`
	Output     string        `json:"output,omitempty"`
	Error      string        `json:"error,omitempty"`
	Latency    time.Duration `json:"latency"`
}

// Probe sends a sample prompt through the descriptor's configured
// format and measures latency. Network and backend failures land in
// the result, not in the returned error; the error is reserved for an
// unknown id or format.
func (r *Registry) Probe(ctx context.Context, id, sample string, client adapter.HTTPClient) (ProbeResult, error) {
	d, err := r.Get(id)
	if err != nil {
		return ProbeResult{}, err
	}

	a, err := adapter.New(d.Format, client)
	if err != nil {
		return ProbeResult{}, err
	}

	if sample == "" {
		sample = "Hello"
	}

	res := ProbeResult{ProviderID: id}
	start := time.Now()
	out, err := a.Submit(ctx, sample, adapter.Config{
		BaseURL:     d.BaseURL,
		APIKey:      os.Getenv(d.APIKeyEnv),
		Model:       d.Model,
		MaxTokens:   100,
		Temperature: 0.3,
		Headers:     d.Headers,
		Template:    d.Template,
	})
	res.Latency = time.Since(start)

	if err != nil {
		res.Error = err.Error()
		r.log.Warn().Str("provider", id).Dur("latency", res.Latency).Err(err).Msg("probe failed")
		return res, nil
	}

	res.Success = true
	res.Output = out
	r.log.Info().Str("provider", id).Dur("latency", res.Latency).Msg("probe succeeded")
	return res, nil
}
