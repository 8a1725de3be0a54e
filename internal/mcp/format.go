package mcp

import (
	"fmt"
	"strings"
)

// FormatSearchResults renders passages as markdown for the tool's text
// content. Structured clients read the JSON output instead.
func FormatSearchResults(query string, results []PassageOutput) string {
	if len(results) == 0 {
		return fmt.Sprintf("No passages found for %q.", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d passages for %q:\n", len(results), query)
	for i, r := range results {
		sb.WriteString("\n")
		formatPassage(&sb, i+1, r)
	}
	return sb.String()
}

// FormatAnswer renders an answer followed by its numbered sources.
func FormatAnswer(a AskOutput) string {
	var sb strings.Builder
	sb.WriteString(a.Answer)
	if !a.Grounded || len(a.Sources) == 0 {
		return sb.String()
	}
	sb.WriteString("\n\nSources:\n")
	for i, r := range a.Sources {
		fmt.Fprintf(&sb, "%d. %s (score %.2f)\n", i+1, location(r), r.Score)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatPassage(sb *strings.Builder, num int, r PassageOutput) {
	fmt.Fprintf(sb, "## %d. %s (score %.2f)\n\n", num, location(r), r.Score)
	for _, line := range strings.Split(strings.TrimSpace(r.Text), "\n") {
		sb.WriteString("> ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
}

func location(r PassageOutput) string {
	if r.Source == "" {
		return "unknown source"
	}
	if r.Ordinal < 0 {
		return r.Source
	}
	return fmt.Sprintf("%s#%d", r.Source, r.Ordinal)
}
