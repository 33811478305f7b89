// Package adapter implements the closed set of request formats used to
// talk to model backends. Each format turns a prompt into one HTTP call
// and extracts the text payload from the response.
package adapter

import (
	"context"
	"fmt"
	"net/http"
)

// Format identifies a supported request/response wire format.
type Format string

const (
	FormatOpenAI    Format = "openai"
	FormatAnthropic Format = "anthropic"
	FormatGoogle    Format = "google"
	FormatCustom    Format = "custom"
)

// HTTPClient abstracts http.Client so tests can inject fakes.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config carries everything an adapter needs for one call.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Headers     map[string]string
	Template    *Template // only for FormatCustom
}

// Adapter submits a prompt to a backend and returns the raw text response.
type Adapter interface {
	Submit(ctx context.Context, prompt string, cfg Config) (string, error)
}

// New returns the adapter for a format.
func New(f Format, client HTTPClient) (Adapter, error) {
	if client == nil {
		client = &http.Client{}
	}
	switch f {
	case FormatOpenAI:
		return &openAI{client: client}, nil
	case FormatAnthropic:
		return &anthropic{client: client}, nil
	case FormatGoogle:
		return &google{client: client}, nil
	case FormatCustom:
		return &custom{client: client}, nil
	default:
		return nil, fmt.Errorf("unknown request format: %q", f)
	}
}

// Formats lists all supported formats.
var Formats = []Format{FormatOpenAI, FormatAnthropic, FormatGoogle, FormatCustom}

// ParseFormat converts a string into a Format.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown request format: %q", s)
}
