//go:build integration

package index

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires a local Qdrant instance:
//
//	docker run -p 6334:6334 qdrant/qdrant

func newQdrantIndex(t *testing.T) *Qdrant {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	collection := fmt.Sprintf("test_chunks_%d", time.Now().UnixNano())
	q, err := NewQdrant(ctx, "localhost", 6334, collection, 2)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestQdrant_UpsertQueryDelete_Integration(t *testing.T) {
	q := newQdrantIndex(t)
	ctx := context.Background()

	// Point IDs must be UUIDs, as the pipeline generates them.
	idA := uuid.New().String()
	idB := uuid.New().String()
	idC := uuid.New().String()

	require.NoError(t, q.Upsert(ctx, entry(idA, "d1", 0, []float32{1, 0})))
	require.NoError(t, q.Upsert(ctx, entry(idB, "d1", 1, []float32{0.6, 0.8})))
	require.NoError(t, q.Upsert(ctx, entry(idC, "d2", 0, []float32{0, 1})))

	results, err := q.Query(ctx, []float32{1, 0}, 3, Filter{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, idA, results[0].Chunk.ID)
	assert.Equal(t, idB, results[1].Chunk.ID)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, "d1", results[0].Chunk.DocumentID)
	assert.Equal(t, "chunk "+idB, results[1].Chunk.Text)

	filtered, err := q.Query(ctx, []float32{1, 0}, 3, Filter{DocumentID: "d2"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, idC, filtered[0].Chunk.ID)

	n, err := q.DeleteByDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestQdrant_ValidationMatchesEmbedded_Integration(t *testing.T) {
	q := newQdrantIndex(t)
	ctx := context.Background()
	id := uuid.New().String()

	assert.ErrorIs(t, q.Upsert(ctx, entry(id, "d1", 0, []float32{1, 0, 0})), ErrDimensionMismatch)
	assert.ErrorIs(t, q.Upsert(ctx, entry(id, "d1", 0, []float32{0, 0})), ErrDegenerateVector)

	_, err := q.Query(ctx, []float32{1, 0, 0}, 3, Filter{})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
