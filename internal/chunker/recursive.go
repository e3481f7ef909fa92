package chunker

import (
	"context"
	"strings"
)

// defaultSeparators orders split points from coarsest to finest:
// paragraph break, line break, sentence break, word break.
var defaultSeparators = []string{"\n\n", "\n", ". ", " "}

// Recursive splits on a priority-ordered separator list, trying the coarsest
// first and recursing into any segment that still exceeds the chunk size.
// A single token longer than the chunk size passes through whole, flagged
// oversized, rather than being broken mid-word.
type Recursive struct {
	chunkSize  int
	overlap    int
	separators []string
}

// NewRecursive creates a recursive strategy with character-based sizing.
func NewRecursive(chunkSize, overlap int) (*Recursive, error) {
	if err := validateConfig(chunkSize, overlap); err != nil {
		return nil, err
	}
	return &Recursive{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: defaultSeparators,
	}, nil
}

// Name returns the strategy identifier.
func (r *Recursive) Name() string { return "recursive" }

// Split partitions text into pieces of at most chunkSize characters.
func (r *Recursive) Split(_ context.Context, text string) ([]Piece, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyDocument
	}
	spans := r.split(text, 0, len(text), r.separators)
	return attachOverlap(text, spans, r.overlap), nil
}

// split partitions text[start:end) into spans, descending through the
// separator list. Resulting spans are contiguous and cover [start, end).
func (r *Recursive) split(text string, start, end int, seps []string) []span {
	if end-start <= r.chunkSize {
		return []span{{start: start, end: end}}
	}
	if len(seps) == 0 {
		return []span{{start: start, end: end, oversized: true}}
	}

	segs := cut(text, start, end, seps[0])
	if len(segs) == 1 {
		return r.split(text, start, end, seps[1:])
	}

	// Greedily merge consecutive segments while the run stays within the
	// chunk size. Segments that are individually too large recurse with the
	// next separator.
	var out []span
	runStart := -1
	flush := func(upto int) {
		if runStart >= 0 && upto > runStart {
			out = append(out, span{start: runStart, end: upto})
		}
		runStart = -1
	}
	for _, sg := range segs {
		if sg.end-sg.start > r.chunkSize {
			flush(sg.start)
			out = append(out, r.split(text, sg.start, sg.end, seps[1:])...)
			continue
		}
		switch {
		case runStart < 0:
			runStart = sg.start
		case sg.end-runStart > r.chunkSize:
			flush(sg.start)
			runStart = sg.start
		}
	}
	flush(end)
	return out
}

// cut splits text[start:end) at every occurrence of sep, keeping the
// separator attached to the preceding segment so the segments partition the
// range exactly.
func cut(text string, start, end int, sep string) []span {
	var segs []span
	pos := start
	for pos < end {
		idx := strings.Index(text[pos:end], sep)
		if idx < 0 {
			segs = append(segs, span{start: pos, end: end})
			break
		}
		segEnd := pos + idx + len(sep)
		segs = append(segs, span{start: pos, end: segEnd})
		pos = segEnd
	}
	return segs
}
