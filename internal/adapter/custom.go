package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Template describes how to call an arbitrary backend through an
// explicit field mapping: a JSON body skeleton plus dot paths naming
// where the prompt and model are injected and where the response text
// is read back from.
type Template struct {
	// Body is the request body skeleton sent as JSON.
	Body map[string]any `json:"body" yaml:"body"`

	// PromptPath is the dot path inside Body that receives the prompt,
	// e.g. "messages.0.content".
	PromptPath string `json:"prompt_path" yaml:"prompt_path"`

	// ModelPath optionally names where the model id goes.
	ModelPath string `json:"model_path,omitempty" yaml:"model_path,omitempty"`

	// ResponsePath is the dot path into the response JSON holding the
	// text payload, e.g. "choices.0.message.content".
	ResponsePath string `json:"response_path" yaml:"response_path"`
}

// Validate checks the template names the mandatory paths.
func (t *Template) Validate() error {
	if t == nil {
		return fmt.Errorf("custom format requires a template")
	}
	if len(t.Body) == 0 {
		return fmt.Errorf("template body is empty")
	}
	if t.PromptPath == "" {
		return fmt.Errorf("template prompt_path is required")
	}
	if t.ResponsePath == "" {
		return fmt.Errorf("template response_path is required")
	}
	return nil
}

type custom struct {
	client HTTPClient
}

func (c *custom) Submit(ctx context.Context, prompt string, cfg Config) (string, error) {
	if err := cfg.Template.Validate(); err != nil {
		return "", err
	}

	body := deepCopy(cfg.Template.Body)
	if err := setPath(body, cfg.Template.PromptPath, prompt); err != nil {
		return "", fmt.Errorf("apply prompt_path: %w", err)
	}
	if cfg.Template.ModelPath != "" {
		if err := setPath(body, cfg.Template.ModelPath, cfg.Model); err != nil {
			return "", fmt.Errorf("apply model_path: %w", err)
		}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", cfg.BaseURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("backend error %d: %s", resp.StatusCode, string(raw))
	}

	var parsed any
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	out, ok := getPath(parsed, cfg.Template.ResponsePath)
	if !ok {
		return "", fmt.Errorf("response_path %q not present in response", cfg.Template.ResponsePath)
	}
	return out, nil
}

func deepCopy(m map[string]any) map[string]any {
	// Round-trip through JSON; template bodies are plain JSON values.
	raw, _ := json.Marshal(m)
	var out map[string]any
	json.Unmarshal(raw, &out)
	return out
}

// setPath writes value at a dot path. Integer segments index arrays.
func setPath(root map[string]any, path, value string) error {
	segs := strings.Split(path, ".")
	var cur any = root
	for i, seg := range segs {
		last := i == len(segs)-1
		switch node := cur.(type) {
		case map[string]any:
			if last {
				node[seg] = value
				return nil
			}
			next, ok := node[seg]
			if !ok {
				return fmt.Errorf("path segment %q not found", seg)
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return fmt.Errorf("bad array index %q", seg)
			}
			if last {
				node[idx] = value
				return nil
			}
			cur = node[idx]
		default:
			return fmt.Errorf("path segment %q hits a scalar", seg)
		}
	}
	return fmt.Errorf("empty path")
}

// getPath reads the string at a dot path. Integer segments index arrays.
func getPath(root any, path string) (string, bool) {
	cur := root
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return "", false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return "", false
			}
			cur = node[idx]
		default:
			return "", false
		}
	}
	s, ok := cur.(string)
	return s, ok
}
