// Package extract converts uploaded documents into plain text.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	docx "github.com/fumiama/go-docx"
	"github.com/ledongthuc/pdf"
)

// Format identifies a supported document format, derived from the file extension.
type Format string

const (
	FormatText     Format = ".txt"
	FormatMarkdown Format = ".md"
	FormatPDF      Format = ".pdf"
	FormatDOCX     Format = ".docx"
)

// ErrUnsupportedFormat is returned for extensions outside the supported set.
var ErrUnsupportedFormat = errors.New("extract: unsupported document format")

// ErrExtraction wraps failures to parse document content (corrupt or
// mislabelled files).
var ErrExtraction = errors.New("extract: cannot extract text")

// Detect maps a filename to its declared format.
func Detect(filename string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch Format(ext) {
	case FormatText, FormatMarkdown, FormatPDF, FormatDOCX:
		return Format(ext), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// Extract converts raw document bytes of the given format into plain text.
// Markdown is treated as plain text; its markup survives into the chunks the
// same way the retrieval pipeline received it upstream.
func Extract(data []byte, format Format) (string, error) {
	switch format {
	case FormatText, FormatMarkdown:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: file is not valid UTF-8", ErrExtraction)
		}
		return string(data), nil
	case FormatPDF:
		return extractPDF(data)
	case FormatDOCX:
		return extractDOCX(data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(format))
	}
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: parse pdf: %v", ErrExtraction, err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: read pdf text: %v", ErrExtraction, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("%w: read pdf text: %v", ErrExtraction, err)
	}
	return buf.String(), nil
}

// extractDOCX returns the document's paragraph texts joined by newlines.
func extractDOCX(data []byte) (string, error) {
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: parse docx: %v", ErrExtraction, err)
	}
	var paragraphs []string
	for _, item := range doc.Document.Body.Items {
		if p, ok := item.(*docx.Paragraph); ok {
			paragraphs = append(paragraphs, p.String())
		}
	}
	return strings.Join(paragraphs, "\n"), nil
}
