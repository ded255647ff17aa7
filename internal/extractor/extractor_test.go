package extractor

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExtract_RejectsNonPDF(t *testing.T) {
	e := New(testLogger())

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"plain text", []byte("hello world")},
		{"png signature", []byte("\x89PNG\r\n\x1a\n")},
		{"truncated signature", []byte("%PD")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Extract(tt.data)
			assert.ErrorIs(t, err, ErrUnsupportedFormat)
		})
	}
}

func TestExtract_CorruptDocument(t *testing.T) {
	e := New(testLogger())

	// Correct signature, garbage body.
	_, err := e.Extract([]byte("%PDF-1.7 this is not a valid pdf body"))
	assert.ErrorIs(t, err, ErrCorruptDocument)
}

func TestSplitPage(t *testing.T) {
	lines := SplitPage(3, "first line\n\n  second line  \r\n\t\nthird")
	require.Len(t, lines, 3)

	assert.Equal(t, 3, lines[0].Page)
	assert.Equal(t, 1, lines[0].Line)
	assert.Equal(t, "first line", lines[0].Text)

	assert.Equal(t, 2, lines[1].Line)
	assert.Equal(t, "second line", lines[1].Text, "whitespace is trimmed")

	assert.Equal(t, 3, lines[2].Line)
	assert.Equal(t, "third", lines[2].Text)
}

func TestSplitPage_Empty(t *testing.T) {
	assert.Empty(t, SplitPage(1, ""))
	assert.Empty(t, SplitPage(1, "\n\n  \n"))
}
