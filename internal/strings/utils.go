// Package strings provides text helpers shared by the renderers.
package strings

import "strings"

// Truncate shortens a string to n characters with ellipsis.
// If n < 4, uses n = 4 to ensure room for "...".
func Truncate(s string, n int) string {
	if n < 4 {
		n = 4
	}
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// TruncateRunes truncates by rune count, not byte count.
// Safer for unicode strings.
func TruncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n < 4 {
		n = 4
	}
	return string(runes[:n-3]) + "..."
}

// WordWrap wraps text to a maximum width, breaking on word boundaries.
// Preserves existing newlines and handles ANSI escape codes.
func WordWrap(s string, width int) string {
	if width <= 0 {
		return s
	}

	var result strings.Builder
	lines := strings.Split(s, "\n")

	for i, line := range lines {
		if i > 0 {
			result.WriteString("\n")
		}

		if line == "" {
			continue
		}

		if visibleLength(line) <= width {
			result.WriteString(line)
			continue
		}

		result.WriteString(wrapLine(line, width))
	}

	return result.String()
}

// wrapLine wraps a single line to width, preserving ANSI codes
func wrapLine(line string, width int) string {
	if width <= 0 {
		return line
	}

	var result strings.Builder
	words := strings.Fields(line)
	currentLen := 0
	lineStart := true

	for _, word := range words {
		wordLen := visibleLength(word)

		// If word alone is longer than width, just add it
		if wordLen > width {
			if !lineStart {
				result.WriteString("\n")
			}
			result.WriteString(word)
			result.WriteString("\n")
			currentLen = 0
			lineStart = true
			continue
		}

		spaceNeeded := wordLen
		if !lineStart {
			spaceNeeded++ // for the space before
		}

		if currentLen+spaceNeeded > width {
			result.WriteString("\n")
			result.WriteString(word)
			currentLen = wordLen
			lineStart = false
		} else {
			if !lineStart {
				result.WriteString(" ")
				currentLen++
			}
			result.WriteString(word)
			currentLen += wordLen
			lineStart = false
		}
	}

	return result.String()
}

// visibleLength calculates string length excluding ANSI escape codes
func visibleLength(s string) int {
	inEscape := false
	count := 0
	for _, r := range s {
		if r == '\x1b' {
			inEscape = true
			continue
		}
		if inEscape {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEscape = false
			}
			continue
		}
		count++
	}
	return count
}
