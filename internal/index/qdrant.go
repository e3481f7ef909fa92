package index

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// DefaultCollection is the Qdrant collection used unless overridden.
const DefaultCollection = "chunks"

// upsertBatchSize bounds points per Qdrant upsert request.
const upsertBatchSize = 100

// Qdrant implements VectorIndex against a remote Qdrant server. Read
// consistency and durability follow Qdrant's own semantics; result ordering
// is normalized client-side so tie-breaking matches the embedded index.
type Qdrant struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrant connects to Qdrant, verifies health with retry, and ensures the
// collection exists with cosine distance at the given dimension.
func NewQdrant(ctx context.Context, host string, port int, collection string, dimension int) (*Qdrant, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, dimension)
	}
	if collection == "" {
		collection = DefaultCollection
	}

	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	q := &Qdrant{client: client, collection: collection, dimension: dimension}
	if err := q.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if err := q.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return q, nil
}

// healthCheckWithRetry performs health checks with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (q *Qdrant) healthCheckWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return q.Health(ctx)
	}, backoff.WithContext(b, ctx))
}

// Health performs a single health check.
func (q *Qdrant) Health(ctx context.Context) error {
	result, err := q.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// ensureCollection creates the collection if missing. Idempotent.
func (q *Qdrant) ensureCollection(ctx context.Context) error {
	collections, err := q.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, name := range collections {
		if name == q.collection {
			return nil
		}
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	// Payload index for document_id so deletes and filters stay fast.
	_, err = q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: q.collection,
		FieldName:      "document_id",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to create document_id index: %w", err)
	}
	return nil
}

// Close closes the client connection.
func (q *Qdrant) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

// Dimension implements VectorIndex.
func (q *Qdrant) Dimension() int { return q.dimension }

// validate mirrors the embedded index's write validation.
func (q *Qdrant) validate(vector []float32) error {
	if len(vector) != q.dimension {
		return fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vector), q.dimension)
	}
	if norm(vector) == 0 {
		return ErrDegenerateVector
	}
	return nil
}

func (q *Qdrant) point(entry Entry) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(entry.Chunk.ID),
		Vectors: qdrant.NewVectors(entry.Vector...),
		Payload: qdrant.NewValueMap(map[string]any{
			"document_id": entry.Chunk.DocumentID,
			"seq":         entry.Chunk.SequenceIndex,
			"text":        entry.Chunk.Text,
			"char_start":  entry.Chunk.CharStart,
			"char_end":    entry.Chunk.CharEnd,
			"oversized":   entry.Chunk.Oversized,
		}),
	}
}

// upsertWithRetry performs an upsert with exponential backoff.
func (q *Qdrant) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.collection,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		return err
	}, backoff.WithContext(b, ctx))
}

// Upsert implements VectorIndex.
func (q *Qdrant) Upsert(ctx context.Context, entry Entry) error {
	if err := q.validate(entry.Vector); err != nil {
		return err
	}
	return q.upsertWithRetry(ctx, []*qdrant.PointStruct{q.point(entry)})
}

// UpsertBatch implements VectorIndex. Validation failures are reported per
// item; valid points are sent in batches, and a failed request marks only
// the items of that batch.
func (q *Qdrant) UpsertBatch(ctx context.Context, entries []Entry) []ItemResult {
	results := make([]ItemResult, len(entries))

	var points []*qdrant.PointStruct
	var pending []int // indices of entries in the current batch
	flush := func() {
		if len(points) == 0 {
			return
		}
		err := q.upsertWithRetry(ctx, points)
		if err != nil {
			for _, idx := range pending {
				results[idx].Err = fmt.Errorf("upsert batch: %w", err)
			}
		}
		points = points[:0]
		pending = pending[:0]
	}

	for i, e := range entries {
		results[i].ChunkID = e.Chunk.ID
		if err := q.validate(e.Vector); err != nil {
			results[i].Err = err
			continue
		}
		points = append(points, q.point(e))
		pending = append(pending, i)
		if len(points) == upsertBatchSize {
			flush()
		}
	}
	flush()
	return results
}

// DeleteByDocument implements VectorIndex.
func (q *Qdrant) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("document_id", documentID)},
	}

	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count document vectors: %w", err)
	}

	_, err = q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelectorFilter(filter),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete document vectors: %w", err)
	}
	return int(count), nil
}

// Query implements VectorIndex.
func (q *Qdrant) Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Result, error) {
	if err := q.validate(vector); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Result{}, nil
	}

	var qf *qdrant.Filter
	if filter.DocumentID != "" {
		qf = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("document_id", filter.DocumentID)},
		}
	}

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         qf,
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}

	results := make([]Result, 0, len(points))
	for _, p := range points {
		payload := p.Payload
		results = append(results, Result{
			Chunk: Chunk{
				ID:            p.Id.GetUuid(),
				DocumentID:    payload["document_id"].GetStringValue(),
				SequenceIndex: int(payload["seq"].GetIntegerValue()),
				Text:          payload["text"].GetStringValue(),
				CharStart:     int(payload["char_start"].GetIntegerValue()),
				CharEnd:       int(payload["char_end"].GetIntegerValue()),
				Oversized:     payload["oversized"].GetBoolValue(),
			},
			Score: float64(p.Score),
		})
	}

	// Qdrant orders by score but leaves ties backend-defined; normalize.
	sortResults(results)
	for i := range results {
		results[i].Rank = i + 1
	}
	return results, nil
}

// Count implements VectorIndex.
func (q *Qdrant) Count(ctx context.Context) (int, error) {
	collection, err := q.client.GetCollection(ctx, q.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to get collection: %w", err)
	}
	return int(collection.PointsCount), nil
}
