package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Embedded is the in-process vector index. Searches run over an in-memory
// structure guarded by a single reader-writer lock; durability comes from
// the SQLite store, which commits every write before the in-memory state is
// touched. On startup the memory structure is rebuilt from the last
// committed state.
type Embedded struct {
	store  *Store
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]*indexed            // chunk ID -> vector
	byDoc   map[string]map[string]struct{} // document ID -> chunk IDs

	// deleteHook, when set, runs inside DeleteByDocument's write-locked
	// critical section. Tests use it to widen the race window.
	deleteHook func()
}

type indexed struct {
	chunk  Chunk
	vector []float32
	norm   float64
}

// NewEmbedded builds the in-memory index from the store's committed state.
func NewEmbedded(ctx context.Context, store *Store, logger *slog.Logger) (*Embedded, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ix := &Embedded{
		store:   store,
		logger:  logger,
		entries: make(map[string]*indexed),
		byDoc:   make(map[string]map[string]struct{}),
	}

	recovered, err := store.loadEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("recover index: %w", err)
	}
	for _, e := range recovered {
		ix.apply(e)
	}
	if len(recovered) > 0 {
		logger.Info("recovered index", "vectors", len(recovered), "path", store.Path())
	}
	return ix, nil
}

// Dimension implements VectorIndex.
func (ix *Embedded) Dimension() int { return ix.store.dimension }

// Upsert implements VectorIndex. The vector is validated first, committed to
// the store, and only then made visible to queries.
func (ix *Embedded) Upsert(ctx context.Context, entry Entry) error {
	if err := ix.validate(entry.Vector); err != nil {
		return err
	}
	if err := ix.store.putChunk(ctx, entry); err != nil {
		return fmt.Errorf("persist chunk %s: %w", entry.Chunk.ID, err)
	}

	ix.mu.Lock()
	ix.apply(entry)
	ix.mu.Unlock()
	return nil
}

// apply inserts an entry into the in-memory maps. Callers hold the write
// lock (or own the index exclusively during recovery).
func (ix *Embedded) apply(entry Entry) {
	ix.entries[entry.Chunk.ID] = &indexed{
		chunk:  entry.Chunk,
		vector: entry.Vector,
		norm:   norm(entry.Vector),
	}
	docChunks, ok := ix.byDoc[entry.Chunk.DocumentID]
	if !ok {
		docChunks = make(map[string]struct{})
		ix.byDoc[entry.Chunk.DocumentID] = docChunks
	}
	docChunks[entry.Chunk.ID] = struct{}{}
}

// UpsertBatch implements VectorIndex. Entries are applied independently; a
// malformed vector fails its own item only.
func (ix *Embedded) UpsertBatch(ctx context.Context, entries []Entry) []ItemResult {
	results := make([]ItemResult, len(entries))
	for i, e := range entries {
		results[i] = ItemResult{ChunkID: e.Chunk.ID, Err: ix.Upsert(ctx, e)}
	}
	return results
}

// DeleteByDocument implements VectorIndex. The durable delete commits
// first; the in-memory removal then happens atomically under the write
// lock, so queries see either all of the document's vectors or none.
func (ix *Embedded) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	n, err := ix.store.deleteChunksByDocument(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete document %s: %w", documentID, err)
	}

	ix.mu.Lock()
	if ix.deleteHook != nil {
		ix.deleteHook()
	}
	for chunkID := range ix.byDoc[documentID] {
		delete(ix.entries, chunkID)
	}
	delete(ix.byDoc, documentID)
	ix.mu.Unlock()

	return n, nil
}

// Query implements VectorIndex.
func (ix *Embedded) Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Result, error) {
	if err := ix.validate(vector); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Result{}, nil
	}
	qnorm := norm(vector)

	ix.mu.RLock()
	candidates := make([]Result, 0, len(ix.entries))
	for _, e := range ix.entries {
		if filter.DocumentID != "" && e.chunk.DocumentID != filter.DocumentID {
			continue
		}
		candidates = append(candidates, Result{
			Chunk: e.chunk,
			Score: dot(vector, e.vector) / (qnorm * e.norm),
		})
	}
	ix.mu.RUnlock()

	sortResults(candidates)
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
	return candidates, nil
}

// Count implements VectorIndex.
func (ix *Embedded) Count(ctx context.Context) (int, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries), nil
}

// validate rejects vectors of the wrong dimension or with zero norm before
// any state is touched.
func (ix *Embedded) validate(vector []float32) error {
	if len(vector) != ix.store.dimension {
		return fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vector), ix.store.dimension)
	}
	if norm(vector) == 0 {
		return ErrDegenerateVector
	}
	return nil
}

// sortResults orders by descending score, ties broken by ascending chunk ID.
func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
}
