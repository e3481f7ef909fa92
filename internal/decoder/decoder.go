// Package decoder turns uploaded document bytes into normalized plain text.
package decoder

import (
	"errors"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"
)

var (
	// ErrEmptyDocument indicates the document decodes to no indexable text.
	ErrEmptyDocument = errors.New("empty document")
	// ErrDecoding indicates the document bytes could not be decoded.
	ErrDecoding = errors.New("decoding error")
)

// Result holds the decoded document text and any metadata the format
// carries, such as a Markdown title.
type Result struct {
	Text  string
	Title string
}

// Decode converts document bytes to plain text based on content type.
// Supported types: text/plain, text/markdown, application/pdf.
func Decode(contentType string, data []byte) (*Result, error) {
	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}

	switch mediaType {
	case "text/plain", "":
		return decodePlainText(data)
	case "text/markdown":
		return decodeMarkdown(data)
	case "application/pdf":
		return decodePDF(data)
	default:
		return nil, fmt.Errorf("%w: unsupported content type %q", ErrDecoding, contentType)
	}
}

// DetectContentType guesses a content type from a file name extension,
// falling back to text/plain.
func DetectContentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".md"), strings.HasSuffix(name, ".markdown"):
		return "text/markdown"
	case strings.HasSuffix(name, ".pdf"):
		return "application/pdf"
	default:
		return "text/plain"
	}
}

func decodePlainText(data []byte) (*Result, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: not valid UTF-8", ErrDecoding)
	}
	text := normalize(string(data))
	if text == "" {
		return nil, ErrEmptyDocument
	}
	return &Result{Text: text}, nil
}

// normalize collapses whitespace runs into single spaces while keeping
// paragraph breaks, so downstream separators still find them.
func normalize(text string) string {
	paragraphs := strings.Split(text, "\n\n")
	kept := paragraphs[:0]
	for _, p := range paragraphs {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
