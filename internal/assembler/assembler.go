// Package assembler packs retrieved chunks into a bounded prompt context
// while tracking provenance.
package assembler

import (
	"strings"

	"github.com/bull/rag-server/internal/index"
)

// Citation is the structured provenance for one included chunk.
type Citation struct {
	DocumentID    string  `json:"document_id"`
	SequenceIndex int     `json:"sequence_index"`
	Score         float64 `json:"score"`
}

// overlapKeepThreshold is the character-range overlap fraction above which
// two chunks of the same document are considered near-duplicates.
const overlapKeepThreshold = 0.5

// Assemble packs chunk texts in descending score order until adding the next
// chunk would exceed maxContextChars. Chunks are never truncated: each fits
// whole or is excluded. Same-document chunks whose character ranges overlap
// more than half are deduplicated, keeping the higher-scored one. The budget
// counts chunk text only, not the joining separators.
func Assemble(results []index.Result, maxContextChars int) (string, []Citation) {
	var (
		parts     []string
		citations []Citation
		included  []index.Chunk
		used      int
	)

	for _, res := range results {
		if isNearDuplicate(res.Chunk, included) {
			continue
		}
		if used+len(res.Chunk.Text) > maxContextChars {
			break
		}
		used += len(res.Chunk.Text)
		parts = append(parts, res.Chunk.Text)
		included = append(included, res.Chunk)
		citations = append(citations, Citation{
			DocumentID:    res.Chunk.DocumentID,
			SequenceIndex: res.Chunk.SequenceIndex,
			Score:         res.Score,
		})
	}

	return strings.Join(parts, "\n\n"), citations
}

// isNearDuplicate reports whether chunk overlaps more than the threshold
// with an already included chunk of the same document. Results arrive in
// descending score order, so the kept chunk is always the higher-scored one.
func isNearDuplicate(chunk index.Chunk, included []index.Chunk) bool {
	for _, prev := range included {
		if prev.DocumentID != chunk.DocumentID {
			continue
		}
		if overlapFraction(chunk, prev) > overlapKeepThreshold {
			return true
		}
	}
	return false
}

// overlapFraction is the intersection of the two character ranges divided by
// the smaller range's length.
func overlapFraction(a, b index.Chunk) float64 {
	lo := max(a.CharStart, b.CharStart)
	hi := min(a.CharEnd, b.CharEnd)
	if hi <= lo {
		return 0
	}
	smaller := min(a.CharEnd-a.CharStart, b.CharEnd-b.CharStart)
	if smaller <= 0 {
		return 0
	}
	return float64(hi-lo) / float64(smaller)
}
