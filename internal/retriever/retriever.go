// Package retriever turns a text query into a ranked, filtered context set.
package retriever

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bull/rag-server/internal/embedding"
	"github.com/bull/rag-server/internal/index"
)

// Confidence aggregates retrieval scores for answer-quality gating.
type Confidence struct {
	Mean float64
	Max  float64
}

// Retriever embeds queries and searches the vector index.
type Retriever struct {
	embedder embedding.Embedder
	idx      index.VectorIndex
	logger   *slog.Logger
}

// New creates a retriever. The embedder and index dimensions must already
// agree; that is the constructor caller's startup-time check.
func New(embedder embedding.Embedder, idx index.VectorIndex, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: embedder, idx: idx, logger: logger}
}

// Retrieve returns up to k results with score >= minScore, ordered by
// descending score. An empty index yields an empty result set and nil error:
// "no context available" is a valid state, distinct from retrieval failure.
// Embedding failures propagate wrapped in embedding.ErrUnavailable.
func (r *Retriever) Retrieve(ctx context.Context, queryText string, k int, minScore float64) ([]index.Result, Confidence, error) {
	vector, err := r.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, Confidence{}, err
	}
	return r.Search(ctx, vector, k, minScore)
}

// EmbedQuery converts the query text into a vector via the embedding
// capability.
func (r *Retriever) EmbedQuery(ctx context.Context, queryText string) ([]float32, error) {
	vectors, err := r.embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for one query", embedding.ErrUnavailable, len(vectors))
	}
	return vectors[0], nil
}

// Search queries the index with an already embedded query vector.
func (r *Retriever) Search(ctx context.Context, vector []float32, k int, minScore float64) ([]index.Result, Confidence, error) {
	results, err := r.idx.Query(ctx, vector, k, index.Filter{})
	if err != nil {
		return nil, Confidence{}, fmt.Errorf("query index: %w", err)
	}

	kept := results[:0]
	for _, res := range results {
		if res.Score >= minScore {
			kept = append(kept, res)
		}
	}
	for i := range kept {
		kept[i].Rank = i + 1
	}

	conf := aggregate(kept)
	r.logger.Debug("retrieved context",
		"results", len(kept), "mean_score", conf.Mean, "max_score", conf.Max)
	return kept, conf, nil
}

// aggregate computes mean and max over the returned scores. No results
// yields the zero Confidence.
func aggregate(results []index.Result) Confidence {
	if len(results) == 0 {
		return Confidence{}
	}
	var sum float64
	max := results[0].Score
	for _, res := range results {
		sum += res.Score
		if res.Score > max {
			max = res.Score
		}
	}
	return Confidence{Mean: sum / float64(len(results)), Max: max}
}
