// Package extract turns uploaded file bytes into plain text.
//
// PDFs are read with github.com/ledongthuc/pdf. Plain-text formats (txt,
// markdown, csv, json and anything else sniffed as text/*) are passed
// through after a UTF-8 check. Everything else is rejected with an error
// wrapping rag.ErrExtraction.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/54b3r/docqa-go/internal/rag"
)

// pdfMagic is the signature every PDF file starts with.
var pdfMagic = []byte("%PDF-")

// textExtensions are accepted as text without content sniffing.
var textExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".json":     true,
	".log":      true,
	".yaml":     true,
	".yml":      true,
}

// Extractor converts a named file into text.
// Implementations must be safe to call from multiple goroutines.
type Extractor interface {
	Extract(ctx context.Context, filename string, data []byte) (string, error)
}

// Default is the extractor used by ingestion: PDF and plain text.
type Default struct{}

// New returns the default extractor.
func New() *Default { return &Default{} }

// Extract dispatches on the file signature first and the extension second.
func (Default) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("extract: %q is empty: %w", filename, rag.ErrExtraction)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case bytes.HasPrefix(data, pdfMagic):
		return PDF(data)
	case ext == ".pdf":
		return "", fmt.Errorf("extract: %q has a .pdf extension but no PDF header: %w", filename, rag.ErrExtraction)
	case textExtensions[ext], isText(data):
		return Text(filename, data)
	default:
		return "", fmt.Errorf("extract: %q: unsupported file type %q: %w",
			filename, http.DetectContentType(data), rag.ErrExtraction)
	}
}

// PDF returns the plain text of every page of a PDF document.
func PDF(data []byte) (text string, err error) {
	// The pdf reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("extract: malformed pdf: %v: %w", r, rag.ErrExtraction)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("extract: open pdf: %w: %w", rag.ErrExtraction, err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract: read pdf text: %w: %w", rag.ErrExtraction, err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("extract: read pdf text: %w: %w", rag.ErrExtraction, err)
	}
	return string(b), nil
}

// Text validates data as UTF-8 text, stripping a leading byte order mark.
func Text(filename string, data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", fmt.Errorf("extract: %q is not valid UTF-8: %w", filename, rag.ErrExtraction)
	}
	return string(data), nil
}

func isText(data []byte) bool {
	return strings.HasPrefix(http.DetectContentType(data), "text/")
}
