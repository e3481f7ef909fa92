// Package generation defines the answer-generation capability boundary and
// its OpenAI-backed implementation.
package generation

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable indicates the generation capability failed.
	ErrUnavailable = errors.New("generation capability unavailable")
)

// Generator produces an answer for a query given assembled context.
// Implementations must honor context cancellation and deadlines, and must be
// safe to invoke twice with the same inputs: the caller retries on failure.
type Generator interface {
	Generate(ctx context.Context, query, contextText string) (string, error)
}
