package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Hit is one retrieved passage as displayed.
type Hit struct {
	Source  string  `json:"source"`
	Ordinal int     `json:"ordinal"`
	Score   float64 `json:"score"`
	Text    string  `json:"text"`
}

// AnswerView is an answer as displayed.
type AnswerView struct {
	Question string `json:"question"`
	Text     string `json:"answer"`
	Grounded bool   `json:"grounded"`
	Sources  []Hit  `json:"sources"`
	Tokens   int    `json:"total_tokens,omitempty"`
}

// AnswerRenderer prints answers and search results.
type AnswerRenderer struct {
	out         io.Writer
	styles      Styles
	showSources bool
	snippetLen  int
}

// NewAnswerRenderer writes to out. Sources are listed when showSources is set.
func NewAnswerRenderer(out io.Writer, noColor, showSources bool) *AnswerRenderer {
	return &AnswerRenderer{
		out:         out,
		styles:      GetStyles(noColor || !IsTTY(out)),
		showSources: showSources,
		snippetLen:  160,
	}
}

// RenderAnswer prints the answer followed by its sources.
func (r *AnswerRenderer) RenderAnswer(v AnswerView) {
	_, _ = fmt.Fprintln(r.out, v.Text)
	if !v.Grounded {
		_, _ = fmt.Fprintln(r.out, r.styles.Warning.Render("(no passage matched the question)"))
		return
	}
	if !r.showSources || len(v.Sources) == 0 {
		return
	}
	_, _ = fmt.Fprintln(r.out)
	_, _ = fmt.Fprintln(r.out, r.styles.Label.Render("Sources:"))
	for i, h := range v.Sources {
		_, _ = fmt.Fprintf(r.out, "  [%d] %s %s\n", i+1, r.location(h), r.styles.Score.Render(fmt.Sprintf("%.3f", h.Score)))
	}
}

// RenderHits prints search results with a snippet of each passage.
func (r *AnswerRenderer) RenderHits(query string, hits []Hit) {
	if len(hits) == 0 {
		_, _ = fmt.Fprintf(r.out, "No passages match %q.\n", query)
		return
	}
	_, _ = fmt.Fprintln(r.out, r.styles.Header.Render(fmt.Sprintf("%d passages for %q", len(hits), query)))
	for i, h := range hits {
		_, _ = fmt.Fprintf(r.out, "\n%d. %s %s\n", i+1, r.location(h), r.styles.Score.Render(fmt.Sprintf("%.3f", h.Score)))
		_, _ = fmt.Fprintln(r.out, r.styles.Quote.Render(Snippet(h.Text, r.snippetLen)))
	}
}

// RenderJSON writes v as indented JSON.
func (r *AnswerRenderer) RenderJSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (r *AnswerRenderer) location(h Hit) string {
	if h.Source == "" {
		return "(unknown source)"
	}
	return fmt.Sprintf("%s#%d", h.Source, h.Ordinal)
}

// Snippet collapses whitespace and cuts s to at most n runes.
func Snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if n <= 0 || len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}
