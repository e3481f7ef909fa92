package assembler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/rag-server/internal/index"
)

func result(docID string, seq, charStart, charEnd int, score float64, text string) index.Result {
	return index.Result{
		Chunk: index.Chunk{
			ID:            docID + "-" + strings.Repeat("x", seq+1),
			DocumentID:    docID,
			SequenceIndex: seq,
			Text:          text,
			CharStart:     charStart,
			CharEnd:       charEnd,
		},
		Score: score,
	}
}

func TestAssemble_BudgetStopsAtFirstNonFit(t *testing.T) {
	text := strings.Repeat("a", 1500)
	results := []index.Result{
		result("d1", 0, 0, 1500, 0.9, text),
		result("d2", 0, 0, 1500, 0.8, text),
		result("d3", 0, 0, 1500, 0.7, text),
	}

	contextText, citations := Assemble(results, 3000)

	require.Len(t, citations, 2)
	assert.Equal(t, "d1", citations[0].DocumentID)
	assert.Equal(t, "d2", citations[1].DocumentID)
	// The separator does not count against the budget.
	assert.Equal(t, 2*1500+len("\n\n"), len(contextText))
}

func TestAssemble_ChunksNeverTruncated(t *testing.T) {
	results := []index.Result{
		result("d1", 0, 0, 2000, 0.9, strings.Repeat("a", 2000)),
		result("d1", 1, 2000, 7000, 0.8, strings.Repeat("b", 5000)),
		result("d1", 2, 7000, 7100, 0.7, strings.Repeat("c", 100)),
	}

	contextText, citations := Assemble(results, 4000)

	// The 5000-char chunk does not fit; packing stops there rather than
	// skipping ahead to the smaller chunk.
	require.Len(t, citations, 1)
	assert.Equal(t, 0, citations[0].SequenceIndex)
	assert.NotContains(t, contextText, "b")
	assert.NotContains(t, contextText, "c")
}

func TestAssemble_DeduplicatesOverlappingChunks(t *testing.T) {
	results := []index.Result{
		result("d1", 0, 0, 100, 0.9, "first version of the passage"),
		result("d1", 1, 10, 100, 0.8, "second version of the passage"),
		result("d1", 5, 400, 500, 0.7, "unrelated later passage"),
	}

	contextText, citations := Assemble(results, 10000)

	// Ranges [0,100) and [10,100) overlap 90/90 of the smaller; the
	// higher-scored chunk wins.
	require.Len(t, citations, 2)
	assert.Equal(t, 0, citations[0].SequenceIndex)
	assert.Equal(t, 5, citations[1].SequenceIndex)
	assert.Contains(t, contextText, "first version")
	assert.NotContains(t, contextText, "second version")
}

func TestAssemble_OverlapAcrossDocumentsKept(t *testing.T) {
	results := []index.Result{
		result("d1", 0, 0, 100, 0.9, "from document one"),
		result("d2", 0, 0, 100, 0.8, "from document two"),
	}

	_, citations := Assemble(results, 10000)
	assert.Len(t, citations, 2)
}

func TestAssemble_ModestOverlapKept(t *testing.T) {
	// 40/100 overlap is under the near-duplicate threshold.
	results := []index.Result{
		result("d1", 0, 0, 100, 0.9, "head chunk"),
		result("d1", 1, 60, 160, 0.8, "tail chunk"),
	}

	_, citations := Assemble(results, 10000)
	assert.Len(t, citations, 2)
}

func TestAssemble_Empty(t *testing.T) {
	contextText, citations := Assemble(nil, 4000)
	assert.Empty(t, contextText)
	assert.Empty(t, citations)
}

func TestAssemble_CitationFields(t *testing.T) {
	results := []index.Result{result("d9", 3, 30, 60, 0.42, "cited text")}

	_, citations := Assemble(results, 100)
	require.Len(t, citations, 1)
	assert.Equal(t, Citation{DocumentID: "d9", SequenceIndex: 3, Score: 0.42}, citations[0])
}
