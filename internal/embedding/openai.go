package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

const (
	// DefaultModel is the OpenAI embedding model used unless overridden.
	DefaultModel = "text-embedding-3-small"

	// DefaultDimension is the vector dimension of text-embedding-3-small.
	DefaultDimension = 1536

	// DefaultBatchSize balances requests-per-minute vs tokens-per-minute
	// rate limits. OpenAI accepts up to 2048 texts per request.
	DefaultBatchSize = 500
)

// OpenAI generates embeddings through the OpenAI API. Requests are batched
// and retried with exponential backoff on rate limit errors.
type OpenAI struct {
	client    *openai.Client
	model     string
	dimension int
	batchSize int
}

// OpenAIOption configures an OpenAI embedder.
type OpenAIOption func(*OpenAI)

// WithModel overrides the embedding model and its dimension.
func WithModel(model string, dimension int) OpenAIOption {
	return func(o *OpenAI) {
		if model != "" && dimension > 0 {
			o.model = model
			o.dimension = dimension
		}
	}
}

// WithBatchSize overrides the per-request batch size.
func WithBatchSize(n int) OpenAIOption {
	return func(o *OpenAI) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// NewOpenAI creates an OpenAI embedder. OPENAI_API_KEY must be set in the
// environment; the client reads it automatically.
func NewOpenAI(opts ...OpenAIOption) (*OpenAI, error) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	client := openai.NewClient()

	o := &OpenAI{
		client:    &client,
		model:     DefaultModel,
		dimension: DefaultDimension,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Client exposes the underlying OpenAI client for components sharing the
// connection, such as the generation capability.
func (o *OpenAI) Client() *openai.Client {
	return o.client
}

// Dimension implements Embedder.
func (o *OpenAI) Dimension() int { return o.dimension }

// ModelName implements Embedder.
func (o *OpenAI) ModelName() string { return o.model }

// Embed implements Embedder. Input is processed in batches; a failed batch
// fails the whole call wrapped in ErrUnavailable.
func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var all [][]float32
	for i := 0; i < len(texts); i += o.batchSize {
		end := min(i+o.batchSize, len(texts))
		batch, err := o.embedBatchWithRetry(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("%w: batch %d-%d: %v", ErrUnavailable, i, end, err)
		}
		all = append(all, batch...)
	}
	return all, nil
}

// embedBatchWithRetry embeds a single batch, retrying with exponential
// backoff on rate limit errors. Other errors fail immediately.
func (o *OpenAI) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32

	operation := func() error {
		resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: o.model,
		})
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		vectors = make([][]float32, len(resp.Data))
		for i, data := range resp.Data {
			vectors[i] = toFloat32(data.Embedding)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))
	return vectors, err
}

// isRateLimitError reports whether err is an HTTP 429 from the API.
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 narrows the API's float64 vectors for storage.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
