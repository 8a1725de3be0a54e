package extract

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docrag/internal/errors"
)

// mockRunner records the pdftotext invocation.
type mockRunner struct {
	output []byte
	err    error

	name     string
	args     []string
	inputPDF []byte
}

func (m *mockRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	m.name = name
	m.args = args
	// The input file is the second to last argument.
	if len(args) >= 2 {
		m.inputPDF, _ = os.ReadFile(args[len(args)-2])
	}
	return m.output, m.err
}

func TestPlainText(t *testing.T) {
	ctx := context.Background()

	got, err := PlainText(ctx, []byte("\xEF\xBB\xBFline one\r\nline two\rthree"))
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\nthree", got)

	got, err = PlainText(ctx, []byte("bad \xff byte"))
	require.NoError(t, err)
	assert.Equal(t, "bad � byte", got)

	_, err = PlainText(ctx, []byte("PK\x03\x04\x00\x00binary"))
	assert.Equal(t, errors.ErrCodeFileUnreadable, errors.GetCode(err))
}

func TestMarkdown_StripsMarkupKeepsParagraphs(t *testing.T) {
	// Given markdown with common constructs
	src := "---\ntitle: Notes\n---\n" +
		"# Heading\n\n" +
		"Some **bold** text with a [link](https://example.com).\n\n" +
		"![diagram](img.png)\n\n" +
		"> quoted line\n\n" +
		"---\n\n" +
		"```go\nfmt.Println(\"hi\")\n```\n\n\n\n" +
		"<!-- hidden -->Tail."

	// When extracting
	got, err := Markdown(context.Background(), []byte(src))
	require.NoError(t, err)

	// Then markup is gone and paragraph breaks survive
	assert.NotContains(t, got, "title: Notes")
	assert.NotContains(t, got, "#")
	assert.NotContains(t, got, "**")
	assert.NotContains(t, got, "https://example.com")
	assert.NotContains(t, got, "```")
	assert.NotContains(t, got, "hidden")
	assert.NotContains(t, got, "\n\n\n")
	assert.Contains(t, got, "Heading\n\nSome bold text with a link.")
	assert.Contains(t, got, "diagram")
	assert.Contains(t, got, "quoted line")
	assert.Contains(t, got, `fmt.Println("hi")`)
	assert.Contains(t, got, "Tail.")
}

func TestPDF_UsesRunner(t *testing.T) {
	// Given a runner that returns two pages
	runner := &mockRunner{output: []byte("Page one.\fPage two.\n")}
	pdf := NewPDF(runner)
	data := []byte("%PDF-1.4 fake")

	// When extracting
	got, err := pdf.Extract(context.Background(), data)
	require.NoError(t, err)

	// Then pdftotext saw the spooled bytes and pages become paragraphs
	assert.Equal(t, PDFTool, runner.name)
	assert.Equal(t, "-", runner.args[len(runner.args)-1])
	assert.Equal(t, data, runner.inputPDF)
	assert.Equal(t, "Page one.\n\nPage two.", got)
}

func TestPDF_RejectsNonPDF(t *testing.T) {
	runner := &mockRunner{}
	_, err := NewPDF(runner).Extract(context.Background(), []byte("plain text"))
	assert.Equal(t, errors.ErrCodeFileUnreadable, errors.GetCode(err))
	assert.Empty(t, runner.name)
}

func TestPDF_RunnerFailure(t *testing.T) {
	runner := &mockRunner{err: errors.New(errors.ErrCodeFileUnreadable, "pdftotext failed", nil)}
	_, err := NewPDF(runner).Extract(context.Background(), []byte("%PDF-1.7"))
	assert.Equal(t, errors.ErrCodeFileUnreadable, errors.GetCode(err))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(&mockRunner{output: []byte("pdf text")})
	ctx := context.Background()

	t.Run("dispatches by extension in any case", func(t *testing.T) {
		got, err := r.Extract(ctx, ".TXT", []byte("hello"))
		require.NoError(t, err)
		assert.Equal(t, "hello", got)

		got, err = r.Extract(ctx, "md", []byte("# Title"))
		require.NoError(t, err)
		assert.Equal(t, "Title", got)

		got, err = r.Extract(ctx, ".pdf", []byte("%PDF-1.4"))
		require.NoError(t, err)
		assert.Equal(t, "pdf text", got)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := r.Extract(ctx, ".docx", []byte("x"))
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeUnsupportedExtension, errors.GetCode(err))
		assert.False(t, errors.IsFatal(err))
	})

	t.Run("register overrides", func(t *testing.T) {
		r.Register("csv", ExtractorFunc(func(context.Context, []byte) (string, error) { return "rows", nil }))
		assert.True(t, r.Supports(".CSV"))
		assert.Contains(t, r.Extensions(), ".csv")
	})
}

func TestExecRunner_MissingTool(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), "docrag-no-such-tool-xyz")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeFileUnreadable, errors.GetCode(err))
}
