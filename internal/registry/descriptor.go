// Package registry holds the configured backend descriptors: a fixed
// set of built-ins plus user-registered custom providers. The custom
// subset is persisted and survives restarts; built-ins cannot be
// removed.
package registry

import (
	"time"

	"github.com/joss/ensemble/internal/adapter"
)

// Descriptor describes one model backend. Immutable except via
// Registry.Update.
type Descriptor struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Format  adapter.Format `json:"format"`
	BaseURL string         `json:"base_url"`
	// APIKeyEnv names the environment variable holding the key, so the
	// key itself never lands in the persisted record.
	APIKeyEnv string `json:"api_key_env"`
	Model     string `json:"model"`

	// Pricing per 1K tokens.
	InputCost  float64 `json:"input_cost"`
	OutputCost float64 `json:"output_cost"`

	// SpeedFactor scales throughput relative to the baseline model.
	SpeedFactor float64 `json:"speed_factor"`
	// Quality in (0,1], used to order QUALITY_FIRST candidates.
	Quality float64 `json:"quality"`

	// Concurrency caps simultaneous in-flight calls. Zero means no cap.
	Concurrency int  `json:"concurrency"`
	Enabled     bool `json:"enabled"`
	BuiltIn     bool `json:"built_in"`

	Headers  map[string]string `json:"headers,omitempty"`
	Template *adapter.Template `json:"template,omitempty"`

	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Patch is a partial descriptor update. Nil fields are left unchanged.
type Patch struct {
	Name        *string
	BaseURL     *string
	APIKeyEnv   *string
	Model       *string
	InputCost   *float64
	OutputCost  *float64
	SpeedFactor *float64
	Quality     *float64
	Concurrency *int
	Enabled     *bool
	Description *string
	Tags        []string
	Template    *adapter.Template
}

// Filter narrows a List call.
type Filter struct {
	BuiltIn     bool // include built-ins
	Custom      bool // include customs
	EnabledOnly bool
}

// AllProviders matches every descriptor.
var AllProviders = Filter{BuiltIn: true, Custom: true}

// builtins mirrors the default backends and their published pricing.
func builtins() map[string]Descriptor {
	now := time.Now().UTC()
	mk := func(d Descriptor) Descriptor {
		d.BuiltIn = true
		d.Enabled = true
		d.CreatedAt = now
		d.UpdatedAt = now
		return d
	}
	return map[string]Descriptor{
		"gpt-4o": mk(Descriptor{
			ID: "gpt-4o", Name: "GPT-4o",
			Format: adapter.FormatOpenAI, BaseURL: "https://api.openai.com/v1",
			APIKeyEnv: "OPENAI_API_KEY", Model: "gpt-4o",
			InputCost: 0.005, OutputCost: 0.015, SpeedFactor: 1.5, Quality: 0.95,
			Concurrency: 4, Tags: []string{"openai", "chat"},
		}),
		"claude-3.5-sonnet": mk(Descriptor{
			ID: "claude-3.5-sonnet", Name: "Claude 3.5 Sonnet",
			Format: adapter.FormatAnthropic, BaseURL: "https://api.anthropic.com/v1",
			APIKeyEnv: "ANTHROPIC_API_KEY", Model: "claude-3-5-sonnet-20241022",
			InputCost: 0.003, OutputCost: 0.015, SpeedFactor: 1.3, Quality: 0.96,
			Concurrency: 4, Tags: []string{"anthropic", "chat"},
		}),
		"gemini-pro": mk(Descriptor{
			ID: "gemini-pro", Name: "Gemini Pro",
			Format: adapter.FormatGoogle, BaseURL: "https://generativelanguage.googleapis.com/v1",
			APIKeyEnv: "GOOGLE_API_KEY", Model: "gemini-pro",
			InputCost: 0.00025, OutputCost: 0.0005, SpeedFactor: 1.4, Quality: 0.88,
			Concurrency: 4, Tags: []string{"google", "chat"},
		}),
		"deepseek-coder": mk(Descriptor{
			ID: "deepseek-coder", Name: "DeepSeek Coder",
			Format: adapter.FormatOpenAI, BaseURL: "https://api.deepseek.com/v1",
			APIKeyEnv: "DEEPSEEK_API_KEY", Model: "deepseek-coder",
			InputCost: 0.0002, OutputCost: 0.0002, SpeedFactor: 1.0, Quality: 0.85,
			Concurrency: 4, Tags: []string{"deepseek", "coder"},
		}),
	}
}
