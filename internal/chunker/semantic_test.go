package chunker

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// topicEmbedder returns one of two orthogonal vectors depending on whether
// the sentence mentions cats.
type topicEmbedder struct{}

func (topicEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if strings.Contains(text, "Cats") || strings.Contains(text, "cats") {
			vectors[i] = []float32{1, 0}
		} else {
			vectors[i] = []float32{0, 1}
		}
	}
	return vectors, nil
}

type failingEmbedder struct{ err error }

func (f failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, f.err
}

// TestSemantic_SplitsOnTopicShift tests that a similarity drop between
// sentences starts a new chunk.
func TestSemantic_SplitsOnTopicShift(t *testing.T) {
	text := "Cats purr. Cats nap. Dogs bark. Dogs run."

	s, err := NewSemantic(topicEmbedder{}, 0.9, 1000, 0)
	if err != nil {
		t.Fatalf("NewSemantic failed: %v", err)
	}
	pieces, err := s.Split(context.Background(), text)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	if len(pieces) != 2 {
		t.Fatalf("Expected 2 pieces, got %d", len(pieces))
	}
	if !strings.Contains(pieces[0].Text, "Cats nap") || strings.Contains(pieces[0].Text, "Dogs") {
		t.Errorf("Piece 0 boundary wrong: %q", pieces[0].Text)
	}
	if !strings.Contains(pieces[1].Text, "Dogs run") {
		t.Errorf("Piece 1 missing content: %q", pieces[1].Text)
	}
	if pieces[0].Start != 0 || pieces[0].End != pieces[1].Start || pieces[1].End != len(text) {
		t.Errorf("Spans do not partition the text: %+v", pieces)
	}
}

// TestSemantic_SentenceOverlap tests that the configured number of previous
// sentences is carried into the next chunk's text.
func TestSemantic_SentenceOverlap(t *testing.T) {
	text := "Cats purr. Cats nap. Dogs bark. Dogs run."

	s, err := NewSemantic(topicEmbedder{}, 0.9, 1000, 1)
	if err != nil {
		t.Fatalf("NewSemantic failed: %v", err)
	}
	pieces, err := s.Split(context.Background(), text)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(pieces) != 2 {
		t.Fatalf("Expected 2 pieces, got %d", len(pieces))
	}

	if !strings.Contains(pieces[1].Text, "Cats nap") {
		t.Errorf("Piece 1 missing carried sentence: %q", pieces[1].Text)
	}
	// Spans stay disjoint even with the textual carry.
	if pieces[1].Start != pieces[0].End {
		t.Errorf("Overlap leaked into spans: piece 0 ends %d, piece 1 starts %d",
			pieces[0].End, pieces[1].Start)
	}
}

// TestSemantic_SizeBudget tests that a chunk never grows beyond chunkSize
// even when every sentence is similar.
func TestSemantic_SizeBudget(t *testing.T) {
	text := strings.Repeat("Cats purr loudly today. ", 10)

	s, err := NewSemantic(topicEmbedder{}, 0.5, 60, 0)
	if err != nil {
		t.Fatalf("NewSemantic failed: %v", err)
	}
	pieces, err := s.Split(context.Background(), text)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	if len(pieces) < 2 {
		t.Fatalf("Expected the budget to force a split, got %d piece(s)", len(pieces))
	}
	for i, p := range pieces {
		if p.End-p.Start > 60+len("Cats purr loudly today. ") {
			t.Errorf("Piece %d span is %d chars, far exceeds the budget", i, p.End-p.Start)
		}
	}
}

// TestSemantic_NoTerminalPunctuation tests that unpunctuated text collapses
// to a single piece.
func TestSemantic_NoTerminalPunctuation(t *testing.T) {
	text := "a note without any sentence punctuation at all"

	s, err := NewSemantic(topicEmbedder{}, 0.9, 1000, 0)
	if err != nil {
		t.Fatalf("NewSemantic failed: %v", err)
	}
	pieces, err := s.Split(context.Background(), text)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(pieces) != 1 || pieces[0].Start != 0 || pieces[0].End != len(text) {
		t.Errorf("Expected one piece covering the text, got %+v", pieces)
	}
}

// TestSemantic_EmbedderFailure tests that embedding errors propagate.
func TestSemantic_EmbedderFailure(t *testing.T) {
	sentinel := errors.New("backend down")
	s, err := NewSemantic(failingEmbedder{err: sentinel}, 0.9, 1000, 0)
	if err != nil {
		t.Fatalf("NewSemantic failed: %v", err)
	}
	if _, err := s.Split(context.Background(), "One. Two."); !errors.Is(err, sentinel) {
		t.Errorf("Expected wrapped embedder error, got %v", err)
	}
}

// TestSemantic_InvalidConfig tests constructor validation.
func TestSemantic_InvalidConfig(t *testing.T) {
	if _, err := NewSemantic(nil, 0.5, 100, 0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for nil embedder, got %v", err)
	}
	if _, err := NewSemantic(topicEmbedder{}, 1.5, 100, 0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for threshold > 1, got %v", err)
	}
	if _, err := NewSemantic(topicEmbedder{}, 0.5, 0, 0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for zero chunk size, got %v", err)
	}
}
