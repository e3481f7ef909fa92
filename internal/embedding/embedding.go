// Package embedding defines the embedding capability boundary and its
// OpenAI-backed implementation.
package embedding

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the embedding capability failed. Callers must
// surface this as a retrieval failure, never as a silent empty result.
var ErrUnavailable = errors.New("embedding capability unavailable")

// Embedder converts text into fixed-dimension vectors. The dimension is
// fixed per instance and must match the index it feeds; agreement is checked
// once at construction time, not per call.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension reports the vector dimension this embedder produces.
	Dimension() int
	// ModelName identifies the backing model, for status reporting.
	ModelName() string
}
