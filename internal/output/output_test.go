package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_Tags(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		want  string
	}{
		{"success", func(w *Writer) { w.Success("config written") }, "OK   config written\n"},
		{"successf", func(w *Writer) { w.Successf("%d backups", 3) }, "OK   3 backups\n"},
		{"warning", func(w *Writer) { w.Warning("config exists") }, "WARN config exists\n"},
		{"warningf", func(w *Writer) { w.Warningf("no %s", "file") }, "WARN no file\n"},
		{"error", func(w *Writer) { w.Error("write failed") }, "FAIL write failed\n"},
		{"untagged", func(w *Writer) { w.Status("", "next step") }, "     next step\n"},
		{"custom tag", func(w *Writer) { w.Statusf("INFO", "source: %s", "user") }, "INFO source: user\n"},
		{"field", func(w *Writer) { w.Field("Location", "/tmp/c.yaml") }, "     Location: /tmp/c.yaml\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given a writer without color
			buf := &bytes.Buffer{}
			w := New(buf, true)

			// When writing
			tt.write(w)

			// Then the line is tagged and unstyled
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriter_Code(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf, true).Code("a: 1\nb: 2\n")
	assert.Equal(t, "\n  a: 1\n  b: 2\n\n", buf.String())
}

func TestWriter_Newline(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf, true).Newline()
	assert.Equal(t, "\n", buf.String())
}

func TestWriter_ColorKeepsText(t *testing.T) {
	// Given a colored writer
	buf := &bytes.Buffer{}
	w := New(buf, false)

	// When writing
	w.Success("done")

	// Then the message survives whatever styling the terminal gets
	assert.Contains(t, buf.String(), "OK")
	assert.Contains(t, buf.String(), "done")
}

func TestJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	assert.NoError(t, JSON(buf, map[string]int{"files": 2}))
	assert.Equal(t, "{\n  \"files\": 2\n}\n", buf.String())
}
