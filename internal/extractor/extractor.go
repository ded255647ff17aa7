// Package extractor turns raw PDF bytes into an ordered sequence of text
// lines. It uses go-fitz (MuPDF) for text extraction, preserving page and
// reading order for the transaction parser.
package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/clarofin/statements/internal/statement"
)

var (
	// ErrUnsupportedFormat indicates the byte signature is not a PDF.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrCorruptDocument indicates structural PDF parsing failed.
	ErrCorruptDocument = errors.New("corrupt document")
	// ErrEmptyDocument indicates the document yielded zero extractable lines.
	ErrEmptyDocument = errors.New("document contains no extractable text")
)

var pdfSignature = []byte("%PDF-")

// Extractor extracts text lines from PDF documents.
type Extractor struct {
	logger *slog.Logger
}

// New creates an Extractor.
func New(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract converts PDF bytes into ordered RawLines. It reads the input
// buffer only and has no other side effects. Pages that fail text
// extraction are skipped with a warning; the document is only rejected
// when structural parsing fails or no text at all survives.
func (e *Extractor) Extract(data []byte) ([]statement.RawLine, error) {
	if !bytes.HasPrefix(data, pdfSignature) {
		return nil, ErrUnsupportedFormat
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	defer doc.Close()

	var lines []statement.RawLine
	for page := 0; page < doc.NumPage(); page++ {
		text, err := doc.Text(page)
		if err != nil {
			e.logger.Warn("failed to extract text from page", "page", page+1, "error", err)
			continue
		}
		lines = append(lines, SplitPage(page+1, text)...)
	}

	if len(lines) == 0 {
		return nil, ErrEmptyDocument
	}
	return lines, nil
}

// SplitPage breaks a page's text into trimmed, non-empty RawLines in
// reading order.
func SplitPage(page int, text string) []statement.RawLine {
	raw := strings.Split(text, "\n")
	lines := make([]statement.RawLine, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimRight(l, "\r")
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		lines = append(lines, statement.RawLine{
			Page: page,
			Line: len(lines) + 1,
			Text: l,
		})
	}
	return lines
}
