// Package extract turns raw document bytes into plain text.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Aman-CERP/docrag/internal/errors"
)

// Extractor converts one document format to text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, data []byte) (string, error)

// Extract implements Extractor.
func (f ExtractorFunc) Extract(ctx context.Context, data []byte) (string, error) {
	return f(ctx, data)
}

// Registry maps lower-case extensions (with the dot) to extractors.
type Registry struct {
	byExt map[string]Extractor
}

// NewRegistry returns a registry for .txt, .md, .markdown and .pdf.
// A nil runner runs the real pdftotext binary.
func NewRegistry(runner CommandRunner) *Registry {
	r := &Registry{byExt: make(map[string]Extractor)}
	r.Register(".txt", ExtractorFunc(PlainText))
	r.Register(".md", ExtractorFunc(Markdown))
	r.Register(".markdown", ExtractorFunc(Markdown))
	r.Register(".pdf", NewPDF(runner))
	return r
}

// Register adds or replaces the extractor for ext.
func (r *Registry) Register(ext string, e Extractor) {
	r.byExt[normalizeExt(ext)] = e
}

// Supports reports whether ext has an extractor.
func (r *Registry) Supports(ext string) bool {
	_, ok := r.byExt[normalizeExt(ext)]
	return ok
}

// Extensions lists the registered extensions.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.byExt))
	for e := range r.byExt {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// Extract converts data using the extractor registered for ext.
func (r *Registry) Extract(ctx context.Context, ext string, data []byte) (string, error) {
	e, ok := r.byExt[normalizeExt(ext)]
	if !ok {
		return "", errors.New(errors.ErrCodeUnsupportedExtension,
			fmt.Sprintf("no text extractor for %q files", ext), nil).
			WithSuggestion("supported: " + strings.Join(r.Extensions(), ", "))
	}
	return e.Extract(ctx, data)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// PlainText decodes UTF-8 text. A byte-order mark is dropped, line endings
// are normalized to "\n" and invalid sequences become U+FFFD. Binary data
// (NUL bytes in the first 8KB) is rejected.
func PlainText(_ context.Context, data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	head := data
	if len(head) > 8192 {
		head = head[:8192]
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return "", errors.New(errors.ErrCodeFileUnreadable, "file looks binary", nil)
	}

	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return text, nil
}
