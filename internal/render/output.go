// Package render provides output formatting for terminal consumption.
package render

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/joss/ensemble/internal/cache"
	"github.com/joss/ensemble/internal/dispatch"
	"github.com/joss/ensemble/internal/domain"
	"github.com/joss/ensemble/internal/estimate"
	"github.com/joss/ensemble/internal/registry"
	textutil "github.com/joss/ensemble/internal/strings"
)

// Renderer handles output formatting.
type Renderer struct {
	pretty bool
}

// New creates a new renderer.
func New(pretty bool) *Renderer {
	return &Renderer{pretty: pretty}
}

func stateString(s domain.TaskState) string {
	switch s {
	case domain.TaskCompleted:
		return color.GreenString(string(s))
	case domain.TaskFailed:
		return color.RedString(string(s))
	case domain.TaskRunning:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

// Task formats a full task snapshot.
func (r *Renderer) Task(t domain.Task) string {
	var sb strings.Builder

	if r.pretty {
		sb.WriteString(color.CyanString("Task %s\n", t.ID))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
		fmt.Fprintf(&sb, "  State:     %s\n", stateString(t.State))
		fmt.Fprintf(&sb, "  Kind:      %s\n", t.Operation.Kind)
		fmt.Fprintf(&sb, "  Strategy:  %s\n", t.Strategy)
		fmt.Fprintf(&sb, "  Providers: %s\n", strings.Join(t.Providers, ", "))
		fmt.Fprintf(&sb, "  Progress:  %d%% (%s)\n", t.Progress, t.Stage)
		fmt.Fprintf(&sb, "  Created:   %s\n", t.CreatedAt.Format(time.RFC3339))
		if t.Error != "" {
			fmt.Fprintf(&sb, "  Error:     %s\n", color.RedString(t.Error))
		}
	} else {
		fmt.Fprintf(&sb, "%s state=%s progress=%d stage=%s\n", t.ID, t.State, t.Progress, t.Stage)
		if t.Error != "" {
			fmt.Fprintf(&sb, "error: %s\n", t.Error)
		}
	}

	if t.Result != nil {
		sb.WriteString(r.Result(*t.Result))
	}
	return sb.String()
}

// Tasks formats a task listing, newest first.
func (r *Renderer) Tasks(tasks []domain.Task) string {
	if len(tasks) == 0 {
		return "No tasks found\n"
	}

	var sb strings.Builder
	if r.pretty {
		sb.WriteString(color.CyanString("Tasks\n"))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}
	for _, t := range tasks {
		icon := "○"
		switch t.State {
		case domain.TaskCompleted:
			icon = color.GreenString("✓")
		case domain.TaskFailed:
			icon = color.RedString("✗")
		case domain.TaskRunning:
			icon = color.YellowString("▶")
		}
		fmt.Fprintf(&sb, "%s %s  %-9s %s/%s  %s\n",
			icon, t.ID, t.State, t.Operation.Kind, t.Strategy,
			t.CreatedAt.Format("15:04:05"))
	}
	return sb.String()
}

// Event formats one progress event for streaming output.
func (r *Renderer) Event(ev domain.TaskEvent) string {
	if ev.Error != "" {
		return fmt.Sprintf("[%s] %s %3d%% %s: %s\n",
			ev.At.Format("15:04:05"), ev.State, ev.Progress, ev.Stage, color.RedString(ev.Error))
	}
	return fmt.Sprintf("[%s] %s %3d%% %s\n",
		ev.At.Format("15:04:05"), ev.State, ev.Progress, ev.Stage)
}

// Result formats a task result, including the analysis roadmap when present.
func (r *Renderer) Result(res domain.TaskResult) string {
	var sb strings.Builder

	sb.WriteString("\n")
	if res.CacheHit {
		fmt.Fprintf(&sb, "  %s\n", color.HiBlackString("(served from cache)"))
	} else if res.ProviderID != "" {
		fmt.Fprintf(&sb, "  Provider: %s\n", res.ProviderID)
	}

	if res.Roadmap != nil {
		sb.WriteString(r.Roadmap(*res.Roadmap))
		return sb.String()
	}

	if res.Payload != "" {
		sb.WriteString("\n")
		sb.WriteString(res.Payload)
		if !strings.HasSuffix(res.Payload, "\n") {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// Roadmap formats the ranked suggestion roadmap.
func (r *Renderer) Roadmap(rm domain.Roadmap) string {
	var sb strings.Builder

	if r.pretty {
		sb.WriteString(color.CyanString("\nSuggestion Roadmap (%d items)\n", rm.Total()))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}

	sections := []struct {
		title  string
		groups []domain.SuggestionGroup
	}{
		{"IMMEDIATE", rm.Immediate},
		{"NEAR TERM", rm.NearTerm},
		{"LONGER TERM", rm.LongerTerm},
	}
	for _, sec := range sections {
		if len(sec.groups) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n%s\n", color.YellowString(sec.title))
		for _, g := range sec.groups {
			tag := ""
			if g.Consensus {
				tag = color.GreenString(" [consensus]")
			}
			fmt.Fprintf(&sb, "  %5.1f  [%s]%s %s\n", g.Score, g.Category, tag,
				textutil.TruncateRunes(g.Representative, 90))
			fmt.Fprintf(&sb, "         %s\n",
				color.HiBlackString("confidence %.2f, providers: %s", g.Confidence, strings.Join(g.Providers, ", ")))
		}
	}
	return sb.String()
}

// Providers formats a provider listing.
func (r *Renderer) Providers(descs []registry.Descriptor) string {
	if len(descs) == 0 {
		return "No providers registered\n"
	}

	var sb strings.Builder
	if r.pretty {
		sb.WriteString(color.CyanString("Providers\n"))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}
	for _, d := range descs {
		icon := color.GreenString("✓")
		if !d.Enabled {
			icon = color.HiBlackString("○")
		}
		kind := "custom"
		if d.BuiltIn {
			kind = "builtin"
		}
		fmt.Fprintf(&sb, "%s %-20s %-8s quality=%.1f  $%.4f/$%.4f per 1K\n",
			icon, d.ID, kind, d.Quality, d.InputCost, d.OutputCost)
	}
	return sb.String()
}

// Provider formats one descriptor in detail.
func (r *Renderer) Provider(d registry.Descriptor) string {
	var sb strings.Builder

	sb.WriteString(color.CyanString("Provider %s\n", d.ID))
	sb.WriteString(strings.Repeat("─", 60) + "\n")
	fmt.Fprintf(&sb, "  Name:        %s\n", d.Name)
	fmt.Fprintf(&sb, "  Format:      %s\n", d.Format)
	fmt.Fprintf(&sb, "  Model:       %s\n", d.Model)
	fmt.Fprintf(&sb, "  Base URL:    %s\n", d.BaseURL)
	fmt.Fprintf(&sb, "  Key env:     %s\n", d.APIKeyEnv)
	fmt.Fprintf(&sb, "  Quality:     %.1f\n", d.Quality)
	fmt.Fprintf(&sb, "  Speed:       %.1fx\n", d.SpeedFactor)
	fmt.Fprintf(&sb, "  Cost:        $%.4f in / $%.4f out per 1K tokens\n", d.InputCost, d.OutputCost)
	fmt.Fprintf(&sb, "  Concurrency: %d\n", d.Concurrency)
	fmt.Fprintf(&sb, "  Enabled:     %v\n", d.Enabled)
	fmt.Fprintf(&sb, "  Built-in:    %v\n", d.BuiltIn)
	if d.Description != "" {
		fmt.Fprintf(&sb, "  Description: %s\n", textutil.WordWrap(d.Description, 60))
	}
	if len(d.Tags) > 0 {
		fmt.Fprintf(&sb, "  Tags:        %s\n", strings.Join(d.Tags, ", "))
	}
	return sb.String()
}

// Probe formats a provider connectivity test result.
func (r *Renderer) Probe(res registry.ProbeResult) string {
	if res.Success {
		return fmt.Sprintf("%s %s responded in %s\n",
			color.GreenString("✓"), res.ProviderID, FormatDuration(res.Latency))
	}
	return fmt.Sprintf("%s %s failed after %s: %s\n",
		color.RedString("✗"), res.ProviderID, FormatDuration(res.Latency), res.Error)
}

// Estimate formats a cost/time projection with its alternatives.
func (r *Renderer) Estimate(est estimate.Estimate) string {
	var sb strings.Builder

	sb.WriteString(color.CyanString("Estimate (%s)\n", est.ProviderID))
	sb.WriteString(strings.Repeat("─", 60) + "\n")
	fmt.Fprintf(&sb, "  Tokens:  %d (%d in / %d out)\n", est.TotalTokens, est.InputTokens, est.OutputTokens)
	fmt.Fprintf(&sb, "  Cost:    $%.2f\n", est.CostUSD)
	fmt.Fprintf(&sb, "  Time:    %.1f min\n", est.TimeMinutes)

	if len(est.Alternatives) > 0 {
		sb.WriteString("\n  Cheaper alternatives:\n")
		for _, alt := range est.Alternatives {
			fmt.Fprintf(&sb, "    %-20s $%.2f  (save $%.2f, %.0f%%)  quality=%.1f\n",
				alt.ProviderID, alt.CostUSD, alt.SavingsUSD, alt.SavingsPercent, alt.Quality)
		}
	}
	return sb.String()
}

// CacheStats formats cache counters.
func (r *Renderer) CacheStats(s cache.Stats) string {
	var sb strings.Builder

	sb.WriteString(color.CyanString("Cache (%s)\n", s.Backend))
	sb.WriteString(strings.Repeat("─", 40) + "\n")
	fmt.Fprintf(&sb, "  Entries:  %d\n", s.Entries)
	fmt.Fprintf(&sb, "  Hits:     %d\n", s.Hits)
	fmt.Fprintf(&sb, "  Misses:   %d\n", s.Misses)
	fmt.Fprintf(&sb, "  Sets:     %d\n", s.Sets)
	fmt.Fprintf(&sb, "  Errors:   %d\n", s.Errors)
	fmt.Fprintf(&sb, "  Hit rate: %.1f%%\n", s.HitRate*100)
	return sb.String()
}

// ProviderStats formats the dispatcher's rolling per-provider stats.
func (r *Renderer) ProviderStats(stats map[string]dispatch.ProviderStats) string {
	if len(stats) == 0 {
		return "No calls recorded yet\n"
	}

	ids := make([]string, 0, len(stats))
	for id := range stats {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	sb.WriteString(color.CyanString("Provider Stats\n"))
	sb.WriteString(strings.Repeat("─", 60) + "\n")
	for _, id := range ids {
		s := stats[id]
		fmt.Fprintf(&sb, "  %-20s ok=%d fail=%d avg=%s\n",
			id, s.Successes, s.Failures, FormatDuration(s.AvgLatency))
	}
	return sb.String()
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
