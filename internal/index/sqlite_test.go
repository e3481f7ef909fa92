package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_DocumentLifecycle(t *testing.T) {
	store, _ := newTestStore(t, 2)
	ctx := context.Background()

	doc := &Document{
		ID:        "d1",
		SourceURI: "file://notes.md",
		Status:    StatusPending,
		Metadata:  map[string]string{"title": "Notes"},
	}
	require.NoError(t, store.RegisterDocument(ctx, doc))

	require.NoError(t, store.SetDocumentStatus(ctx, "d1", StatusIndexed))

	got, err := store.Document(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", got.ID)
	assert.Equal(t, "file://notes.md", got.SourceURI)
	assert.Equal(t, StatusIndexed, got.Status)
	assert.Equal(t, "Notes", got.Metadata["title"])
	assert.False(t, got.CreatedAt.IsZero())

	count, err := store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, store.RemoveDocument(ctx, "d1"))
	_, err = store.Document(ctx, "d1")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestStore_UnknownDocument(t *testing.T) {
	store, _ := newTestStore(t, 2)
	ctx := context.Background()

	_, err := store.Document(ctx, "nope")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	assert.ErrorIs(t, store.SetDocumentStatus(ctx, "nope", StatusFailed), ErrDocumentNotFound)
	assert.ErrorIs(t, store.RemoveDocument(ctx, "nope"), ErrDocumentNotFound)
}

func TestStore_RemoveDocumentCascadesToChunks(t *testing.T) {
	store, _ := newTestStore(t, 2)
	ctx := context.Background()
	ix, err := NewEmbedded(ctx, store, nil)
	require.NoError(t, err)

	registerDoc(t, store, "d1")
	require.NoError(t, ix.Upsert(ctx, entry("a", "d1", 0, []float32{1, 0})))

	require.NoError(t, store.RemoveDocument(ctx, "d1"))

	// The chunk row cascades away; a rebuilt index sees nothing.
	entries, err := store.loadEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestVectorEncodingRoundTrip(t *testing.T) {
	v := []float32{0.1, -2.5, 0, 1e-7, 3.4e38}
	assert.Equal(t, v, decodeVector(encodeVector(v)))
}
