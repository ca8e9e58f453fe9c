// Package parser extracts plain text from uploaded TXT and PDF files.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Parser errors
var (
	ErrUnsupportedType = errors.New("unsupported file type")
)

// SupportedExtensions lists the accepted upload extensions
var SupportedExtensions = map[string]bool{
	".txt": true,
	".pdf": true,
}

// SupportedContentTypes lists the accepted MIME types when the client
// provides one
var SupportedContentTypes = map[string]bool{
	"text/plain":               true,
	"application/pdf":          true,
	"application/octet-stream": true,
}

// IsSupported reports whether the filename carries an accepted extension
func IsSupported(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// ExtractText converts an uploaded file into plain text. PDF files are
// extracted per page with pages joined by newlines; anything else is
// decoded permissively as UTF-8, dropping invalid byte sequences.
func ExtractText(filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return extractPDF(data)
	case ".txt":
		return decodeText(data), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}
}

// extractPDF extracts text from every page and joins pages with "\n".
// Pages that fail extraction contribute an empty string, mirroring the
// behavior of lenient PDF text extractors.
func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	totalPages := reader.NumPage()
	pages := make([]string, 0, totalPages)
	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}

	return strings.Join(pages, "\n"), nil
}

// decodeText decodes bytes as UTF-8, dropping invalid sequences
func decodeText(data []byte) string {
	return strings.ToValidUTF8(string(data), "")
}
