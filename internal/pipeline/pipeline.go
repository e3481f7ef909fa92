// Package pipeline orchestrates ingestion and question answering over the
// chunker, embedding index, retriever, assembler, and generation capability.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/bull/rag-server/internal/assembler"
	"github.com/bull/rag-server/internal/chunker"
	"github.com/bull/rag-server/internal/decoder"
	"github.com/bull/rag-server/internal/embedding"
	"github.com/bull/rag-server/internal/generation"
	"github.com/bull/rag-server/internal/index"
	"github.com/bull/rag-server/internal/retriever"
)

// State names a stage of the per-request answer state machine.
type State string

const (
	StateReceived   State = "received"
	StateEmbedding  State = "embedding"
	StateRetrieving State = "retrieving"
	StateAssembling State = "assembling"
	StateGenerating State = "generating"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Config fixes the pipeline's tunables at construction. Nothing here is
// mutated afterwards; per-call overrides are passed explicitly.
type Config struct {
	// K is the default number of chunks to retrieve per question.
	K int
	// MaxContextChars is the default context budget for assembly.
	MaxContextChars int
	// MinScore filters retrieval results below this similarity.
	MinScore float64
	// LowConfidenceThreshold marks answers whose mean retrieval score falls
	// below it. Low confidence is not a failure: the answer is still
	// produced, flagged for the caller.
	LowConfidenceThreshold float64
	// GenerationTimeout bounds the generation call, including its single
	// retry.
	GenerationTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.K <= 0 {
		c.K = 3
	}
	if c.MaxContextChars <= 0 {
		c.MaxContextChars = 4000
	}
	if c.LowConfidenceThreshold <= 0 {
		c.LowConfidenceThreshold = 0.5
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = 30 * time.Second
	}
}

// Pipeline is the core RAG engine. Adapters (HTTP, MCP, CLI) hold no
// pipeline logic; they translate requests into these methods.
type Pipeline struct {
	strategy  chunker.Strategy
	embedder  embedding.Embedder
	generator generation.Generator
	idx       index.VectorIndex
	docs      index.DocumentRegistry
	ret       *retriever.Retriever
	cfg       Config
	logger    *slog.Logger
}

// New wires the pipeline. The embedder and index dimensions must agree;
// a mismatch is a startup configuration error, not a per-call one.
func New(
	strategy chunker.Strategy,
	embedder embedding.Embedder,
	generator generation.Generator,
	idx index.VectorIndex,
	docs index.DocumentRegistry,
	cfg Config,
	logger *slog.Logger,
) (*Pipeline, error) {
	if embedder.Dimension() != idx.Dimension() {
		return nil, fmt.Errorf("%w: embedder dimension %d, index dimension %d",
			ErrConfig, embedder.Dimension(), idx.Dimension())
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		strategy:  strategy,
		embedder:  embedder,
		generator: generator,
		idx:       idx,
		docs:      docs,
		ret:       retriever.New(embedder, idx, logger),
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// IngestRequest describes one document upload.
type IngestRequest struct {
	// DocumentID is optional; a UUID is generated when empty. Re-ingesting
	// an existing ID replaces the document's chunks and vectors.
	DocumentID  string
	SourceURI   string
	ContentType string
	Data        []byte
	Metadata    map[string]string
}

// ItemFailure reports one chunk that failed to index.
type ItemFailure struct {
	ChunkID string `json:"chunk_id"`
	Reason  string `json:"reason"`
}

// IngestResult reports the outcome of one ingestion.
type IngestResult struct {
	DocumentID string               `json:"document_id"`
	ChunkCount int                  `json:"chunk_count"`
	Status     index.DocumentStatus `json:"status"`
	Failed     []ItemFailure        `json:"failed,omitempty"`
}

// Ingest decodes, chunks, embeds, and indexes one document. Per-chunk index
// failures do not abort the rest; they are reported in the result.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	decoded, err := decoder.Decode(req.ContentType, req.Data)
	if err != nil {
		return nil, err
	}

	docID := req.DocumentID
	if docID == "" {
		docID = uuid.New().String()
	}
	metadata := make(map[string]string, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	if decoded.Title != "" && metadata["title"] == "" {
		metadata["title"] = decoded.Title
	}

	doc := &index.Document{
		ID:        docID,
		SourceURI: req.SourceURI,
		Metadata:  metadata,
		Status:    index.StatusPending,
	}
	if err := p.docs.RegisterDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("register document: %w", err)
	}
	// Re-chunking destroys prior chunks; drop any vectors from an earlier
	// ingestion of the same ID.
	if _, err := p.idx.DeleteByDocument(ctx, docID); err != nil {
		return nil, fmt.Errorf("clear previous vectors: %w", err)
	}

	pieces, err := p.strategy.Split(ctx, decoded.Text)
	if err != nil {
		p.markFailed(ctx, docID)
		return nil, err
	}
	if err := p.docs.SetDocumentStatus(ctx, docID, index.StatusChunked); err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}

	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		texts[i] = piece.Text
	}
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		p.markFailed(ctx, docID)
		return nil, err
	}
	if len(vectors) != len(pieces) {
		p.markFailed(ctx, docID)
		return nil, fmt.Errorf("%w: embedder returned %d vectors for %d chunks",
			embedding.ErrUnavailable, len(vectors), len(pieces))
	}

	entries := make([]index.Entry, len(pieces))
	for i, piece := range pieces {
		entries[i] = index.Entry{
			Chunk: index.Chunk{
				ID:            uuid.New().String(),
				DocumentID:    docID,
				SequenceIndex: i,
				Text:          piece.Text,
				CharStart:     piece.Start,
				CharEnd:       piece.End,
				Oversized:     piece.Oversized,
			},
			Vector: vectors[i],
		}
	}

	result := &IngestResult{DocumentID: docID}
	for _, item := range p.idx.UpsertBatch(ctx, entries) {
		if item.Err != nil {
			result.Failed = append(result.Failed, ItemFailure{
				ChunkID: item.ChunkID,
				Reason:  item.Err.Error(),
			})
			continue
		}
		result.ChunkCount++
	}

	result.Status = index.StatusIndexed
	if result.ChunkCount == 0 {
		result.Status = index.StatusFailed
	}
	if err := p.docs.SetDocumentStatus(ctx, docID, result.Status); err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}

	p.logger.Info("ingested document",
		"document_id", docID,
		"source", req.SourceURI,
		"chunks", result.ChunkCount,
		"failed", len(result.Failed),
		"status", result.Status,
	)
	return result, nil
}

func (p *Pipeline) markFailed(ctx context.Context, docID string) {
	if err := p.docs.SetDocumentStatus(ctx, docID, index.StatusFailed); err != nil {
		p.logger.Warn("failed to mark document failed", "document_id", docID, "error", err)
	}
}

// AskOptions override the configured defaults for one question.
type AskOptions struct {
	K               int
	MaxContextChars int
	MinScore        float64
}

// Answer is the structured response to one question.
type Answer struct {
	Answer              string               `json:"answer"`
	Sources             []assembler.Citation `json:"sources"`
	RetrievalConfidence float64              `json:"retrieval_confidence"`
	LowConfidence       bool                 `json:"low_confidence"`
}

// Ask runs the full answer state machine for one question. Weak retrieval
// does not refuse to answer: the response is generated anyway and flagged
// low-confidence, trading silence for availability.
func (p *Pipeline) Ask(ctx context.Context, query string, opts *AskOptions) (*Answer, error) {
	start := time.Now()
	k := p.cfg.K
	maxChars := p.cfg.MaxContextChars
	minScore := p.cfg.MinScore
	if opts != nil {
		if opts.K > 0 {
			k = opts.K
		}
		if opts.MaxContextChars > 0 {
			maxChars = opts.MaxContextChars
		}
		if opts.MinScore > 0 {
			minScore = opts.MinScore
		}
	}
	reqID := uuid.New().String()
	transition := func(s State) {
		p.logger.Debug("ask", "request_id", reqID, "state", s)
	}
	transition(StateReceived)

	transition(StateEmbedding)
	queryVector, err := p.ret.EmbedQuery(ctx, query)
	if err != nil {
		return nil, p.fail(reqID, StateEmbedding, err)
	}

	transition(StateRetrieving)
	results, confidence, err := p.ret.Search(ctx, queryVector, k, minScore)
	if err != nil {
		return nil, p.fail(reqID, StateRetrieving, err)
	}

	transition(StateAssembling)
	contextText, citations := assembler.Assemble(results, maxChars)
	lowConfidence := confidence.Mean < p.cfg.LowConfidenceThreshold
	if lowConfidence {
		p.logger.Debug("low retrieval confidence",
			"request_id", reqID, "mean_score", confidence.Mean,
			"threshold", p.cfg.LowConfidenceThreshold)
	}

	transition(StateGenerating)
	text, err := p.generate(ctx, query, contextText)
	if err != nil {
		return nil, p.fail(reqID, StateGenerating, err)
	}

	transition(StateCompleted)
	if citations == nil {
		citations = []assembler.Citation{}
	}
	p.logger.Info("answered question",
		"request_id", reqID,
		"sources", len(citations),
		"confidence", confidence.Mean,
		"low_confidence", lowConfidence,
		"duration", time.Since(start),
	)
	return &Answer{
		Answer:              text,
		Sources:             citations,
		RetrievalConfidence: confidence.Mean,
		LowConfidence:       lowConfidence,
	}, nil
}

func (p *Pipeline) fail(reqID string, at State, err error) error {
	p.logger.Warn("ask failed",
		"request_id", reqID, "state", StateFailed, "after", at,
		"kind", Classify(err), "error", err)
	return err
}

// generate invokes the generation capability under the configured timeout,
// with at most one retry. The deadline covers both attempts; once it passes
// no background generation lingers.
func (p *Pipeline) generate(ctx context.Context, query, contextText string) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, p.cfg.GenerationTimeout)
	defer cancel()

	var out string
	operation := func() error {
		text, err := p.generator.Generate(genCtx, query, contextText)
		if err != nil {
			if genCtx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		out = text
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, 1), genCtx))
	if err != nil {
		if genCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("%w after %s: %v", ErrGenerationTimeout, p.cfg.GenerationTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", generation.ErrUnavailable, err)
	}
	return out, nil
}

// RemoveResult reports a document deletion.
type RemoveResult struct {
	RemovedChunkCount int `json:"removed_chunk_count"`
}

// RemoveDocument deletes a document and cascades to its chunks and vectors.
func (p *Pipeline) RemoveDocument(ctx context.Context, documentID string) (*RemoveResult, error) {
	if _, err := p.docs.Document(ctx, documentID); err != nil {
		return nil, err
	}
	n, err := p.idx.DeleteByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("delete vectors: %w", err)
	}
	if err := p.docs.RemoveDocument(ctx, documentID); err != nil {
		return nil, fmt.Errorf("remove document: %w", err)
	}
	p.logger.Info("removed document", "document_id", documentID, "chunks", n)
	return &RemoveResult{RemovedChunkCount: n}, nil
}

// StatusResult summarizes the pipeline's index.
type StatusResult struct {
	Documents      int    `json:"documents"`
	Vectors        int    `json:"vectors"`
	Dimension      int    `json:"dimension"`
	EmbeddingModel string `json:"embedding_model"`
	ChunkStrategy  string `json:"chunk_strategy"`
}

// Status reports index contents and fixed configuration.
func (p *Pipeline) Status(ctx context.Context) (*StatusResult, error) {
	docs, err := p.docs.CountDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	vectors, err := p.idx.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count vectors: %w", err)
	}
	return &StatusResult{
		Documents:      docs,
		Vectors:        vectors,
		Dimension:      p.idx.Dimension(),
		EmbeddingModel: p.embedder.ModelName(),
		ChunkStrategy:  p.strategy.Name(),
	}, nil
}
