// Package index stores chunk vectors and supports k-nearest-neighbor
// retrieval over them. Two backends implement the contract: an embedded
// index durably backed by SQLite, and a remote Qdrant collection.
package index

import (
	"context"
	"math"
)

// VectorIndex is the embedding-index capability. Query results are ordered
// by descending similarity with ties broken by ascending chunk ID, so
// retrieval is deterministic across backends.
type VectorIndex interface {
	// Dimension reports the fixed vector dimension of this index.
	Dimension() int
	// Upsert inserts or replaces one vector. Vectors of the wrong dimension
	// or with zero norm are rejected without mutating index state.
	Upsert(ctx context.Context, entry Entry) error
	// UpsertBatch applies entries independently: a malformed entry does not
	// abort the rest. Outcomes are reported per item, in input order.
	UpsertBatch(ctx context.Context, entries []Entry) []ItemResult
	// DeleteByDocument removes all vectors belonging to a document and
	// returns how many were removed. Concurrent queries see either the old
	// or the new state entirely, never a partial deletion.
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
	// Query returns at most k results matching the filter. Fewer matches
	// are returned without padding; an empty index yields an empty slice.
	Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Result, error)
	// Count reports the number of indexed vectors.
	Count(ctx context.Context) (int, error)
}

// DocumentRegistry tracks registered documents and their pipeline status.
type DocumentRegistry interface {
	RegisterDocument(ctx context.Context, doc *Document) error
	SetDocumentStatus(ctx context.Context, id string, status DocumentStatus) error
	Document(ctx context.Context, id string) (*Document, error)
	RemoveDocument(ctx context.Context, id string) error
	CountDocuments(ctx context.Context) (int, error)
}

// norm returns the L2 magnitude of v, accumulated in float64.
func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// dot returns the inner product of a and b, accumulated in float64.
// Lengths must already agree.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
