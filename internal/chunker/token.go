package chunker

import (
	"context"
	"strings"
	"unicode"
)

// Span marks a token's position within the source text.
type Span struct {
	Start int
	End   int
}

// Tokenizer reports token boundaries for a text, in ascending order.
// Implementations must be deterministic.
type Tokenizer interface {
	Spans(text string) []Span
}

// WhitespaceTokenizer treats maximal runs of non-space characters as tokens.
type WhitespaceTokenizer struct{}

// Spans implements Tokenizer.
func (WhitespaceTokenizer) Spans(text string) []Span {
	var spans []Span
	inToken := false
	start := 0
	for i, r := range text {
		if unicode.IsSpace(r) {
			if inToken {
				spans = append(spans, Span{Start: start, End: i})
				inToken = false
			}
			continue
		}
		if !inToken {
			start = i
			inToken = true
		}
	}
	if inToken {
		spans = append(spans, Span{Start: start, End: len(text)})
	}
	return spans
}

// TokenBound splits by counting tokenizer units until the budget is reached,
// backing off to the last whitespace boundary within the budget so chunks do
// not end mid-word under subword tokenizers.
type TokenBound struct {
	budget  int // tokens per chunk
	overlap int // characters of the previous chunk carried into the next chunk's text
	tok     Tokenizer
}

// NewTokenBound creates a token-bounded strategy. A nil tokenizer defaults
// to whitespace tokenization.
func NewTokenBound(budget, overlap int, tok Tokenizer) (*TokenBound, error) {
	if err := validateConfig(budget, overlap); err != nil {
		return nil, err
	}
	if tok == nil {
		tok = WhitespaceTokenizer{}
	}
	return &TokenBound{budget: budget, overlap: overlap, tok: tok}, nil
}

// Name returns the strategy identifier.
func (t *TokenBound) Name() string { return "token" }

// Split partitions text into pieces of at most budget tokens each.
func (t *TokenBound) Split(_ context.Context, text string) ([]Piece, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyDocument
	}
	toks := t.tok.Spans(text)
	if len(toks) == 0 {
		return nil, ErrEmptyDocument
	}

	var spans []span
	start := 0
	i := 0
	for i < len(toks) {
		j := i + t.budget
		if j >= len(toks) {
			spans = append(spans, span{start: start, end: len(text)})
			break
		}
		cutAt := toks[j-1].End
		// A budget boundary that abuts the next token means the tokenizer
		// split inside a word. Back off to the last whitespace, provided the
		// cut still consumes at least one whole token.
		if toks[j].Start == cutAt {
			if ws := lastWhitespace(text, start, cutAt); ws > toks[i].End {
				cutAt = ws
			}
		}
		if cutAt <= start {
			cutAt = toks[j-1].End
		}
		spans = append(spans, span{start: start, end: cutAt})
		start = cutAt
		for i < len(toks) && toks[i].End <= cutAt {
			i++
		}
	}
	return attachOverlap(text, spans, t.overlap), nil
}

// lastWhitespace returns the index just past the last whitespace byte in
// text[start:end), or start if there is none.
func lastWhitespace(text string, start, end int) int {
	for i := end - 1; i > start; i-- {
		if text[i] == ' ' || text[i] == '\n' || text[i] == '\t' {
			return i + 1
		}
	}
	return start
}
