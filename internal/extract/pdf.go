package extract

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"os/exec"
	"strings"

	"github.com/Aman-CERP/docrag/internal/errors"
)

// PDFTool is the poppler binary used to extract PDF text.
const PDFTool = "pdftotext"

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements CommandRunner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, errors.New(errors.ErrCodeFileUnreadable, name+" is not installed", err).
			WithSuggestion(InstallInstructions())
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			msg := strings.TrimSpace(stderr.String())
			return nil, errors.New(errors.ErrCodeFileUnreadable, name+" failed: "+msg, err)
		}
		return nil, errors.IOError("run "+name, err)
	}
	return out, nil
}

// InstallInstructions tells the user how to get pdftotext.
func InstallInstructions() string {
	return "install poppler for pdftotext (macOS: brew install poppler, Debian/Ubuntu: apt install poppler-utils)"
}

// PDF extracts text by shelling out to pdftotext. The bytes are spooled to
// a temp file because pdftotext cannot read from stdin.
type PDF struct {
	runner CommandRunner
}

// NewPDF returns a PDF extractor. A nil runner uses ExecRunner.
func NewPDF(runner CommandRunner) *PDF {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &PDF{runner: runner}
}

// Extract implements Extractor.
func (p *PDF) Extract(ctx context.Context, data []byte) (string, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-")) {
		return "", errors.New(errors.ErrCodeFileUnreadable, "not a PDF file", nil)
	}

	tmp, err := os.CreateTemp("", "docrag-*.pdf")
	if err != nil {
		return "", errors.IOError("spool pdf", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", errors.IOError("spool pdf", err)
	}
	if err := tmp.Close(); err != nil {
		return "", errors.IOError("spool pdf", err)
	}

	out, err := p.runner.Run(ctx, PDFTool, "-enc", "UTF-8", "-eol", "unix", tmp.Name(), "-")
	if err != nil {
		return "", err
	}

	// Pages are separated by form feeds; treat them as paragraph breaks.
	text, err := PlainText(ctx, bytes.ReplaceAll(out, []byte("\f"), []byte("\n\n")))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
