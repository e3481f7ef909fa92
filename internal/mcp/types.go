// Package mcp exposes the answer pipeline over the Model Context Protocol.
package mcp

import "github.com/bull/rag-server/internal/assembler"

// AskInput defines the input parameters for the ask tool.
type AskInput struct {
	// Query is the natural-language question.
	Query string `json:"query" jsonschema:"required,description=The question to answer from the indexed documents"`
	// MaxResults is the number of chunks to retrieve.
	MaxResults int `json:"max_results,omitempty" jsonschema:"minimum=1,maximum=20,default=3,description=Number of chunks to retrieve"`
	// MinScore is the minimum similarity threshold (0-1).
	MinScore float64 `json:"min_score,omitempty" jsonschema:"minimum=0,maximum=1,description=Minimum similarity score threshold (0-1)"`
}

// AskOutput contains the generated answer with its provenance.
type AskOutput struct {
	// Answer is the generated answer text.
	Answer string `json:"answer"`
	// Sources cites the chunks the answer was grounded on.
	Sources []assembler.Citation `json:"sources"`
	// RetrievalConfidence is the mean similarity of the retrieved chunks.
	RetrievalConfidence float64 `json:"retrieval_confidence"`
	// LowConfidence flags answers whose retrieval support was weak.
	LowConfidence bool `json:"low_confidence"`
}

// IngestInput defines the input parameters for the ingest_document tool.
type IngestInput struct {
	// Content is the raw document text.
	Content string `json:"content" jsonschema:"required,description=The document content to index"`
	// ContentType is the document MIME type.
	ContentType string `json:"content_type,omitempty" jsonschema:"default=text/plain,description=MIME type of the content (text/plain or text/markdown)"`
	// DocumentID replaces an existing document when given.
	DocumentID string `json:"document_id,omitempty" jsonschema:"description=Optional document ID; re-using an ID replaces that document"`
	// SourceURI records where the document came from.
	SourceURI string `json:"source_uri,omitempty" jsonschema:"description=Optional source URI recorded with the document"`
}

// IngestOutput reports the ingestion outcome.
type IngestOutput struct {
	// DocumentID identifies the stored document.
	DocumentID string `json:"document_id"`
	// ChunkCount is the number of chunks indexed.
	ChunkCount int `json:"chunk_count"`
	// Status is the document's final lifecycle status.
	Status string `json:"status"`
}

// RemoveInput defines the input parameters for the remove_document tool.
type RemoveInput struct {
	// DocumentID is the document to delete.
	DocumentID string `json:"document_id" jsonschema:"required,description=The document ID to remove from the index"`
}

// RemoveOutput reports the deletion outcome.
type RemoveOutput struct {
	// RemovedChunkCount is the number of chunks deleted.
	RemovedChunkCount int `json:"removed_chunk_count"`
	// Found indicates whether the document existed.
	Found bool `json:"found"`
}

// StatusInput defines the input parameters for the get_index_status tool.
// The tool takes no parameters.
type StatusInput struct{}

// StatusOutput summarizes the index.
type StatusOutput struct {
	// Documents is the number of registered documents.
	Documents int `json:"documents"`
	// Vectors is the number of indexed chunk vectors.
	Vectors int `json:"vectors"`
	// Dimension is the embedding dimension.
	Dimension int `json:"dimension"`
	// EmbeddingModel is the configured embedding model name.
	EmbeddingModel string `json:"embedding_model"`
	// ChunkStrategy is the configured chunking strategy name.
	ChunkStrategy string `json:"chunk_strategy"`
}
