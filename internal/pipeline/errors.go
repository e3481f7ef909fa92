package pipeline

import (
	"errors"

	"github.com/bull/rag-server/internal/chunker"
	"github.com/bull/rag-server/internal/decoder"
	"github.com/bull/rag-server/internal/embedding"
	"github.com/bull/rag-server/internal/generation"
	"github.com/bull/rag-server/internal/index"
)

var (
	// ErrConfig indicates mismatched components at construction time, such
	// as an embedder whose dimension differs from the index. Fatal at
	// startup, never per request.
	ErrConfig = errors.New("invalid pipeline configuration")

	// ErrGenerationTimeout indicates the generation capability did not
	// respond within the configured deadline.
	ErrGenerationTimeout = errors.New("generation timed out")
)

// Kind is the structured failure category surfaced to callers. Every error
// crossing the pipeline boundary maps to exactly one kind.
type Kind string

const (
	KindInvalidConfiguration  Kind = "invalid_configuration"
	KindEmptyDocument         Kind = "empty_document"
	KindDecodingError         Kind = "decoding_error"
	KindDimensionMismatch     Kind = "dimension_mismatch"
	KindDegenerateVector      Kind = "degenerate_vector"
	KindEmbeddingUnavailable  Kind = "embedding_unavailable"
	KindGenerationUnavailable Kind = "generation_unavailable"
	KindGenerationTimeout     Kind = "generation_timeout"
	KindNotFound              Kind = "not_found"
	KindInternal              Kind = "internal"
)

// Classify maps an error from any pipeline component to its failure kind.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrConfig),
		errors.Is(err, chunker.ErrInvalidConfig),
		errors.Is(err, index.ErrInvalidDimension):
		return KindInvalidConfiguration
	case errors.Is(err, decoder.ErrEmptyDocument),
		errors.Is(err, chunker.ErrEmptyDocument):
		return KindEmptyDocument
	case errors.Is(err, decoder.ErrDecoding):
		return KindDecodingError
	case errors.Is(err, index.ErrDimensionMismatch):
		return KindDimensionMismatch
	case errors.Is(err, index.ErrDegenerateVector):
		return KindDegenerateVector
	case errors.Is(err, embedding.ErrUnavailable):
		return KindEmbeddingUnavailable
	case errors.Is(err, ErrGenerationTimeout):
		return KindGenerationTimeout
	case errors.Is(err, generation.ErrUnavailable):
		return KindGenerationUnavailable
	case errors.Is(err, index.ErrDocumentNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}
