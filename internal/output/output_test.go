package output

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_Status_PrintsIconAndMessage(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a status message
	w.Status("→", "Loading pages...")

	// Then: output contains icon and message
	assert.Equal(t, "→ Loading pages...\n", buf.String())
}

func TestWriter_Status_NoIconIndents(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Status("", "detail")

	assert.Equal(t, "   detail\n", buf.String())
}

func TestWriter_Levels(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		want  string
	}{
		{"success", func(w *Writer) { w.Successf("Ingested %d chunks", 3) }, "✓ Ingested 3 chunks\n"},
		{"warning", func(w *Writer) { w.Warningf("%s unreachable", "reranker") }, "! reranker unreachable\n"},
		{"error", func(w *Writer) { w.Errorf("failed: %v", "boom") }, "✗ failed: boom\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.write(New(buf))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriter_BufferIsNeverColored(t *testing.T) {
	// Given: a non-terminal writer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: writing styled output
	w.Heading("Results")
	w.KeyValue("mode", "hybrid")

	// Then: no escape codes
	assert.False(t, w.Color())
	assert.NotContains(t, buf.String(), "\033[")
	assert.Contains(t, buf.String(), "Results\n")
	assert.Contains(t, buf.String(), "mode:")
	assert.Contains(t, buf.String(), "hybrid")
}

func TestWriter_ColorWhenForced(t *testing.T) {
	buf := &bytes.Buffer{}
	w := &Writer{out: buf, useColor: true}

	w.Success("done")

	assert.Contains(t, buf.String(), ansiGreen+"✓"+ansiReset)
}

func TestWriter_Block(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Block("line one\nline two")

	assert.Equal(t, "  line one\n  line two\n", buf.String())
}

func TestWriter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewPlain(buf)

	require.NoError(t, w.JSON(map[string]int{"chunks": 3}))

	var parsed map[string]int
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	assert.Equal(t, 3, parsed["chunks"])
	assert.Contains(t, buf.String(), "\n  \"chunks\"")
}

func TestIsTTY(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
	assert.False(t, IsTTY(nil))

	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.False(t, IsTTY(f))
}

func TestNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, NoColor())
}
