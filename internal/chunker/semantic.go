package chunker

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
)

var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]+`)

// Embedder is the embedding capability the semantic strategy consumes.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Semantic splits at sentence boundaries, then greedily merges adjacent
// sentences into a chunk while their embedding similarity with the chunk's
// running centroid stays above the threshold. A new chunk starts when
// similarity drops below the threshold or the size budget is hit.
type Semantic struct {
	embedder         Embedder
	threshold        float64
	chunkSize        int // max characters per chunk
	overlapSentences int // sentences of the previous chunk carried into the next chunk's text
}

// NewSemantic creates a semantic strategy.
func NewSemantic(embedder Embedder, threshold float64, chunkSize, overlapSentences int) (*Semantic, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: semantic strategy requires an embedder", ErrInvalidConfig)
	}
	if chunkSize <= 0 || overlapSentences < 0 {
		return nil, ErrInvalidConfig
	}
	if threshold < -1 || threshold > 1 {
		return nil, ErrInvalidConfig
	}
	return &Semantic{
		embedder:         embedder,
		threshold:        threshold,
		chunkSize:        chunkSize,
		overlapSentences: overlapSentences,
	}, nil
}

// Name returns the strategy identifier.
func (s *Semantic) Name() string { return "semantic" }

// Split partitions text into semantically coherent pieces.
func (s *Semantic) Split(ctx context.Context, text string) ([]Piece, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyDocument
	}
	sents := sentenceSpans(text)

	texts := make([]string, len(sents))
	for i, sp := range sents {
		texts[i] = strings.TrimSpace(text[sp.start:sp.end])
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed sentences: %w", err)
	}
	if len(vectors) != len(sents) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d sentences", len(vectors), len(sents))
	}

	var pieces []Piece
	chunkFirst := 0
	centroid := newCentroid(vectors[0])
	flush := func(last int) {
		start := sents[chunkFirst].start
		end := sents[last].end
		prefixStart := start
		if len(pieces) > 0 && s.overlapSentences > 0 {
			carry := chunkFirst - s.overlapSentences
			if prev := prevChunkFirst(pieces, sents); carry < prev {
				carry = prev
			}
			prefixStart = sents[carry].start
		}
		pieces = append(pieces, Piece{
			Text:  text[prefixStart:end],
			Start: start,
			End:   end,
		})
	}
	for i := 1; i < len(sents); i++ {
		size := sents[i].end - sents[chunkFirst].start
		if size > s.chunkSize || centroid.similarity(vectors[i]) < s.threshold {
			flush(i - 1)
			chunkFirst = i
			centroid = newCentroid(vectors[i])
			continue
		}
		centroid.add(vectors[i])
	}
	flush(len(sents) - 1)
	return pieces, nil
}

// prevChunkFirst locates the index of the first sentence belonging to the
// most recently flushed piece.
func prevChunkFirst(pieces []Piece, sents []span) int {
	prevStart := pieces[len(pieces)-1].Start
	for i, sp := range sents {
		if sp.start == prevStart {
			return i
		}
	}
	return 0
}

// sentenceSpans returns contiguous sentence spans covering the whole text.
// Text without terminal punctuation collapses to a single span.
func sentenceSpans(text string) []span {
	matches := sentencePattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return []span{{start: 0, end: len(text)}}
	}
	spans := make([]span, len(matches))
	for i, m := range matches {
		spans[i] = span{start: m[0], end: m[1]}
	}
	// Stretch spans so they partition the document: inter-sentence gaps and
	// any trailing remainder attach to the nearest sentence.
	spans[0].start = 0
	for i := 0; i < len(spans)-1; i++ {
		spans[i].end = spans[i+1].start
	}
	spans[len(spans)-1].end = len(text)
	return spans
}

// centroid tracks the running mean of member vectors in float64.
type centroid struct {
	sum []float64
	n   int
}

func newCentroid(v []float32) *centroid {
	c := &centroid{sum: make([]float64, len(v)), n: 1}
	for i, x := range v {
		c.sum[i] = float64(x)
	}
	return c
}

func (c *centroid) add(v []float32) {
	for i, x := range v {
		c.sum[i] += float64(x)
	}
	c.n++
}

// similarity is the cosine similarity between v and the centroid mean.
// Degenerate (zero-norm) inputs score 0.
func (c *centroid) similarity(v []float32) float64 {
	var dot, nc, nv float64
	for i, x := range v {
		mean := c.sum[i] / float64(c.n)
		dot += mean * float64(x)
		nc += mean * mean
		nv += float64(x) * float64(x)
	}
	if nc == 0 || nv == 0 {
		return 0
	}
	return dot / (math.Sqrt(nc) * math.Sqrt(nv))
}
