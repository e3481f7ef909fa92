package index

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, dimension int) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	store, err := OpenStore(path, dimension)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

func newTestIndex(t *testing.T) (*Embedded, *Store) {
	t.Helper()
	store, _ := newTestStore(t, 2)
	ix, err := NewEmbedded(context.Background(), store, nil)
	require.NoError(t, err)
	return ix, store
}

func registerDoc(t *testing.T, store *Store, id string) {
	t.Helper()
	require.NoError(t, store.RegisterDocument(context.Background(), &Document{
		ID:        id,
		SourceURI: "test://" + id,
		Status:    StatusPending,
	}))
}

func entry(chunkID, docID string, seq int, vector []float32) Entry {
	return Entry{
		Chunk: Chunk{
			ID:            chunkID,
			DocumentID:    docID,
			SequenceIndex: seq,
			Text:          "chunk " + chunkID,
			CharStart:     seq * 10,
			CharEnd:       seq*10 + 10,
		},
		Vector: vector,
	}
}

func TestEmbedded_QueryRanking(t *testing.T) {
	ix, store := newTestIndex(t)
	ctx := context.Background()
	registerDoc(t, store, "doc")

	// With a unit query (1, 0), the cosine score of a unit vector (x, y)
	// is exactly x.
	require.NoError(t, ix.Upsert(ctx, entry("a", "doc", 0, []float32{0.6, 0.8})))
	require.NoError(t, ix.Upsert(ctx, entry("b", "doc", 1, []float32{0.8, 0.6})))
	require.NoError(t, ix.Upsert(ctx, entry("c", "doc", 2, []float32{1, 0})))

	results, err := ix.Query(ctx, []float32{1, 0}, 3, Filter{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "c", results[0].Chunk.ID)
	assert.Equal(t, "b", results[1].Chunk.ID)
	assert.Equal(t, "a", results[2].Chunk.ID)
	for i, res := range results {
		assert.Equal(t, i+1, res.Rank)
	}
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.InDelta(t, 0.8, results[1].Score, 1e-6)
}

func TestEmbedded_QueryTieBreak(t *testing.T) {
	ix, store := newTestIndex(t)
	ctx := context.Background()
	registerDoc(t, store, "doc")

	// Identical vectors produce identical scores; order falls back to
	// ascending chunk ID.
	same := []float32{0.6, 0.8}
	require.NoError(t, ix.Upsert(ctx, entry("z", "doc", 0, same)))
	require.NoError(t, ix.Upsert(ctx, entry("a", "doc", 1, same)))
	require.NoError(t, ix.Upsert(ctx, entry("m", "doc", 2, same)))

	results, err := ix.Query(ctx, []float32{1, 0}, 3, Filter{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].Chunk.ID)
	assert.Equal(t, "m", results[1].Chunk.ID)
	assert.Equal(t, "z", results[2].Chunk.ID)
}

func TestEmbedded_QueryTruncatesToK(t *testing.T) {
	ix, store := newTestIndex(t)
	ctx := context.Background()
	registerDoc(t, store, "doc")

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("c%d", i)
		require.NoError(t, ix.Upsert(ctx, entry(id, "doc", i, []float32{1, float32(i)})))
	}

	results, err := ix.Query(ctx, []float32{1, 0}, 2, Filter{})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	empty, err := ix.Query(ctx, []float32{1, 0}, 0, Filter{})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestEmbedded_QueryEmptyIndex(t *testing.T) {
	ix, _ := newTestIndex(t)

	results, err := ix.Query(context.Background(), []float32{1, 0}, 3, Filter{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEmbedded_DocumentFilter(t *testing.T) {
	ix, store := newTestIndex(t)
	ctx := context.Background()
	registerDoc(t, store, "d1")
	registerDoc(t, store, "d2")

	require.NoError(t, ix.Upsert(ctx, entry("a", "d1", 0, []float32{1, 0})))
	require.NoError(t, ix.Upsert(ctx, entry("b", "d2", 0, []float32{1, 0})))

	results, err := ix.Query(ctx, []float32{1, 0}, 10, Filter{DocumentID: "d2"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].Chunk.ID)
}

func TestEmbedded_DimensionMismatchDoesNotMutate(t *testing.T) {
	ix, store := newTestIndex(t)
	ctx := context.Background()
	registerDoc(t, store, "doc")

	err := ix.Upsert(ctx, entry("a", "doc", 0, []float32{1, 0, 0}))
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	count, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = ix.Query(ctx, []float32{1, 0, 0}, 3, Filter{})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestEmbedded_DegenerateVector(t *testing.T) {
	ix, store := newTestIndex(t)
	ctx := context.Background()
	registerDoc(t, store, "doc")

	err := ix.Upsert(ctx, entry("a", "doc", 0, []float32{0, 0}))
	assert.ErrorIs(t, err, ErrDegenerateVector)

	_, err = ix.Query(ctx, []float32{0, 0}, 3, Filter{})
	assert.ErrorIs(t, err, ErrDegenerateVector)
}

func TestEmbedded_UpsertBatchPartialFailure(t *testing.T) {
	ix, store := newTestIndex(t)
	ctx := context.Background()
	registerDoc(t, store, "doc")

	results := ix.UpsertBatch(ctx, []Entry{
		entry("good", "doc", 0, []float32{1, 0}),
		entry("bad", "doc", 1, []float32{0, 0}),
		entry("also-good", "doc", 2, []float32{0, 1}),
	})
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, ErrDegenerateVector)
	assert.NoError(t, results[2].Err)

	count, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestEmbedded_UpsertReplacesByChunkID(t *testing.T) {
	ix, store := newTestIndex(t)
	ctx := context.Background()
	registerDoc(t, store, "doc")

	require.NoError(t, ix.Upsert(ctx, entry("a", "doc", 0, []float32{1, 0})))
	require.NoError(t, ix.Upsert(ctx, entry("a", "doc", 0, []float32{0, 1})))

	count, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	results, err := ix.Query(ctx, []float32{0, 1}, 1, Filter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestEmbedded_DeleteByDocument(t *testing.T) {
	ix, store := newTestIndex(t)
	ctx := context.Background()
	registerDoc(t, store, "d1")
	registerDoc(t, store, "d2")

	require.NoError(t, ix.Upsert(ctx, entry("a", "d1", 0, []float32{1, 0})))
	require.NoError(t, ix.Upsert(ctx, entry("b", "d1", 1, []float32{0, 1})))
	require.NoError(t, ix.Upsert(ctx, entry("c", "d2", 0, []float32{1, 0})))

	n, err := ix.DeleteByDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Deleting an unknown document is not an error.
	n, err = ix.DeleteByDocument(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEmbedded_RecoversCommittedState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	store, err := OpenStore(path, 2)
	require.NoError(t, err)
	ix, err := NewEmbedded(ctx, store, nil)
	require.NoError(t, err)
	registerDoc(t, store, "doc")
	require.NoError(t, ix.Upsert(ctx, entry("a", "doc", 0, []float32{0.6, 0.8})))
	require.NoError(t, ix.Upsert(ctx, entry("b", "doc", 1, []float32{1, 0})))
	require.NoError(t, store.Close())

	reopened, err := OpenStore(path, 2)
	require.NoError(t, err)
	defer reopened.Close()
	recovered, err := NewEmbedded(ctx, reopened, nil)
	require.NoError(t, err)

	count, err := recovered.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	results, err := recovered.Query(ctx, []float32{1, 0}, 2, Filter{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "b", results[0].Chunk.ID)
	assert.Equal(t, "chunk a", results[1].Chunk.Text)
	assert.InDelta(t, 0.6, results[1].Score, 1e-6)
}

func TestOpenStore_DimensionFixedAcrossReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")

	store, err := OpenStore(path, 2)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = OpenStore(path, 3)
	assert.ErrorIs(t, err, ErrInvalidDimension)

	_, err = OpenStore(filepath.Join(t.TempDir(), "other.db"), 0)
	assert.ErrorIs(t, err, ErrInvalidDimension)
}

func TestEmbedded_QueriesSeeAllOrNothingDuringDelete(t *testing.T) {
	ix, store := newTestIndex(t)
	ctx := context.Background()
	registerDoc(t, store, "doc")

	const chunks = 4
	for i := 0; i < chunks; i++ {
		id := fmt.Sprintf("c%d", i)
		require.NoError(t, ix.Upsert(ctx, entry(id, "doc", i, []float32{1, float32(i)})))
	}

	// Widen the window between the durable delete and the in-memory removal
	// while concurrent readers hammer the index.
	ix.deleteHook = func() { time.Sleep(50 * time.Millisecond) }

	done := make(chan struct{})
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[int]bool)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				results, err := ix.Query(ctx, []float32{1, 0}, 10, Filter{})
				assert.NoError(t, err)
				mu.Lock()
				seen[len(results)] = true
				mu.Unlock()
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	n, err := ix.DeleteByDocument(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, chunks, n)

	close(done)
	wg.Wait()

	for count := range seen {
		assert.Contains(t, []int{0, chunks}, count,
			"query observed a partially deleted document")
	}
}
