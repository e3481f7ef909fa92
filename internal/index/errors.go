package index

import "errors"

var (
	// ErrDimensionMismatch indicates a vector whose length differs from the
	// index dimension. The write is rejected without mutating index state.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrDegenerateVector indicates a zero vector, which has no defined
	// cosine similarity.
	ErrDegenerateVector = errors.New("degenerate zero vector")

	// ErrDocumentNotFound indicates an unknown document ID.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrInvalidDimension indicates a non-positive configured dimension, or
	// a store reopened with a dimension that differs from the one it was
	// created with. Fatal at startup.
	ErrInvalidDimension = errors.New("invalid index dimension")

	// ErrUnreachable indicates a remote index backend that cannot be
	// reached at startup.
	ErrUnreachable = errors.New("vector index unreachable")
)
