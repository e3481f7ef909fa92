package index

import "time"

// DocumentStatus tracks a document through the ingestion pipeline.
type DocumentStatus string

const (
	StatusPending DocumentStatus = "pending"
	StatusChunked DocumentStatus = "chunked"
	StatusIndexed DocumentStatus = "indexed"
	StatusFailed  DocumentStatus = "failed"
)

// Document is a registered source document. Chunks reference it by ID;
// deleting the document is the sole trigger for chunk and vector deletion.
type Document struct {
	ID        string
	SourceURI string
	Metadata  map[string]string
	Status    DocumentStatus
	CreatedAt time.Time
}

// Chunk is a bounded contiguous span of a document's text, the unit of
// indexing and retrieval. CharStart/CharEnd are the authoritative
// non-overlapping span for citations; Text may carry overlap from the
// preceding chunk.
type Chunk struct {
	ID            string
	DocumentID    string
	SequenceIndex int
	Text          string
	CharStart     int
	CharEnd       int
	Oversized     bool
}

// Entry pairs a chunk with its embedding vector for indexing.
type Entry struct {
	Chunk  Chunk
	Vector []float32
}

// Result is one retrieval hit. Score is cosine similarity in [-1, 1];
// Rank is the 1-based position after sorting. Results are per-query and
// never persisted.
type Result struct {
	Chunk Chunk
	Score float64
	Rank  int
}

// Filter restricts a query to vectors matching the given metadata.
// The zero value matches everything.
type Filter struct {
	DocumentID string
}

// ItemResult reports the outcome of one entry in a batch upsert.
type ItemResult struct {
	ChunkID string
	Err     error
}

// Status summarizes the index contents.
type Status struct {
	Documents int
	Vectors   int
	Dimension int
}
