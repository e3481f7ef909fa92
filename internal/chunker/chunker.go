// Package chunker splits document text into bounded, overlapping segments
// suitable for embedding and retrieval.
package chunker

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrInvalidConfig indicates a bad chunk size or overlap configuration.
	ErrInvalidConfig = errors.New("invalid chunker configuration")
	// ErrEmptyDocument indicates the input text contains no indexable content.
	ErrEmptyDocument = errors.New("empty document")
)

// Piece is one segment produced by a strategy.
//
// Start and End are offsets into the source text and form a contiguous,
// non-overlapping partition of the document. They are the authoritative span
// for citations. Text may additionally carry the trailing overlap of the
// previous piece as a prefix, so that neighboring context survives into the
// embedding.
type Piece struct {
	Text      string
	Start     int
	End       int
	Oversized bool // single token longer than the chunk size, passed through whole
}

// Strategy splits text into bounded segments. Implementations must be
// deterministic: the same text and configuration always yield the same
// piece sequence.
type Strategy interface {
	Name() string
	Split(ctx context.Context, text string) ([]Piece, error)
}

// validateConfig enforces chunkSize > 0 and 0 <= overlap < chunkSize.
func validateConfig(chunkSize, overlap int) error {
	if chunkSize <= 0 {
		return ErrInvalidConfig
	}
	if overlap < 0 || overlap >= chunkSize {
		return ErrInvalidConfig
	}
	return nil
}

// span is a half-open [start, end) range into the source text.
type span struct {
	start, end int
	oversized  bool
}

// attachOverlap materializes pieces from spans, prepending up to overlap
// characters of the preceding span's tail to each piece's text. The spans
// themselves stay untouched.
func attachOverlap(text string, spans []span, overlap int) []Piece {
	pieces := make([]Piece, 0, len(spans))
	for i, s := range spans {
		prefixStart := s.start
		if i > 0 && overlap > 0 {
			prefixStart = s.start - overlap
			if prev := spans[i-1].start; prefixStart < prev {
				prefixStart = prev
			}
		}
		pieces = append(pieces, Piece{
			Text:      text[prefixStart:s.end],
			Start:     s.start,
			End:       s.end,
			Oversized: s.oversized,
		})
	}
	return pieces
}

// NormalizeWhitespace collapses runs of whitespace into single spaces and
// trims the result. Applied to decoded documents before chunking.
func NormalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
