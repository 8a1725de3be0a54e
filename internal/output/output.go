// Package output formats short status messages for CLI commands that do
// not need a progress display.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Writer prints tagged status lines. Tags are colored unless disabled.
type Writer struct {
	out     io.Writer
	ok      lipgloss.Style
	warn    lipgloss.Style
	err     lipgloss.Style
	key     lipgloss.Style
	noColor bool
}

// New creates a Writer. Color is off when noColor is set.
func New(out io.Writer, noColor bool) *Writer {
	w := &Writer{out: out, noColor: noColor}
	if noColor {
		plain := lipgloss.NewStyle()
		w.ok, w.warn, w.err, w.key = plain, plain, plain, plain
		return w
	}
	w.ok = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	w.warn = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	w.err = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	w.key = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	return w
}

// Status prints msg after tag. An empty tag indents msg instead.
func (w *Writer) Status(tag, msg string) {
	if tag == "" {
		_, _ = fmt.Fprintf(w.out, "     %s\n", msg)
		return
	}
	_, _ = fmt.Fprintf(w.out, "%s %s\n", tag, msg)
}

// Statusf prints a formatted status line.
func (w *Writer) Statusf(tag, format string, args ...any) {
	w.Status(tag, fmt.Sprintf(format, args...))
}

// Success prints msg tagged OK.
func (w *Writer) Success(msg string) {
	w.Status(w.ok.Render("OK  "), msg)
}

// Successf prints a formatted success line.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints msg tagged WARN.
func (w *Writer) Warning(msg string) {
	w.Status(w.warn.Render("WARN"), msg)
}

// Warningf prints a formatted warning line.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints msg tagged FAIL.
func (w *Writer) Error(msg string) {
	w.Status(w.err.Render("FAIL"), msg)
}

// Field prints an indented "key: value" line.
func (w *Writer) Field(key, value string) {
	_, _ = fmt.Fprintf(w.out, "     %s %s\n", w.key.Render(key+":"), value)
}

// Code prints content indented by two spaces between blank lines.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON writes v as indented JSON followed by a newline.
func JSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
