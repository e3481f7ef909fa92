package index

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS index_meta (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	dimension  INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	source_uri TEXT NOT NULL,
	status     TEXT NOT NULL,
	metadata   TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chunks (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	text        TEXT NOT NULL,
	char_start  INTEGER NOT NULL,
	char_end    INTEGER NOT NULL,
	oversized   INTEGER NOT NULL DEFAULT 0,
	vector      BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS chunks_document_id ON chunks(document_id);
`

// Store is the durable layer of the embedded index: a SQLite database in
// WAL journal mode. Upserts and deletes commit before they are acknowledged,
// so a crash mid-write never corrupts previously committed entries; restart
// recovery is simply loading the last committed state.
//
// Store also serves as the document registry.
type Store struct {
	db        *sql.DB
	path      string
	dimension int
}

// OpenStore opens (or creates) the database at path with the given vector
// dimension. Reopening an existing store with a different dimension fails
// with ErrInvalidDimension: dimension is fixed per index instance.
func OpenStore(path string, dimension int) (*Store, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, dimension)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s := &Store{db: db, path: path, dimension: dimension}
	if err := s.checkDimension(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// checkDimension records the dimension on first open and verifies it on
// subsequent opens.
func (s *Store) checkDimension() error {
	var stored int
	err := s.db.QueryRow("SELECT dimension FROM index_meta WHERE id = 1").Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.Exec(
			"INSERT INTO index_meta (id, dimension, created_at) VALUES (1, ?, ?)",
			s.dimension, time.Now().UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("recording dimension: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("reading index meta: %w", err)
	case stored != s.dimension:
		return fmt.Errorf("%w: store has %d, configured %d", ErrInvalidDimension, stored, s.dimension)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Health pings the database.
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RegisterDocument inserts or replaces a document record.
func (s *Store) RegisterDocument(ctx context.Context, doc *Document) error {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (id, source_uri, status, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.SourceURI, string(doc.Status), string(meta), createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

// SetDocumentStatus updates a document's pipeline status.
func (s *Store) SetDocumentStatus(ctx context.Context, id string, status DocumentStatus) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE documents SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// Document fetches a document by ID.
func (s *Store) Document(ctx context.Context, id string) (*Document, error) {
	var doc Document
	var status, meta, createdAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, source_uri, status, metadata, created_at FROM documents WHERE id = ?", id,
	).Scan(&doc.ID, &doc.SourceURI, &status, &meta, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying document: %w", err)
	}
	doc.Status = DocumentStatus(status)
	if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata: %w", err)
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		doc.CreatedAt = t
	}
	return &doc, nil
}

// RemoveDocument deletes a document row; chunk rows cascade.
func (s *Store) RemoveDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// CountDocuments reports the number of registered documents.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

// putChunk durably writes one chunk and its vector. The write is committed
// before this returns.
func (s *Store) putChunk(ctx context.Context, entry Entry) error {
	oversized := 0
	if entry.Chunk.Oversized {
		oversized = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO chunks (id, document_id, seq, text, char_start, char_end, oversized, vector)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Chunk.ID, entry.Chunk.DocumentID, entry.Chunk.SequenceIndex, entry.Chunk.Text,
		entry.Chunk.CharStart, entry.Chunk.CharEnd, oversized, encodeVector(entry.Vector),
	)
	if err != nil {
		return fmt.Errorf("inserting chunk: %w", err)
	}
	return nil
}

// deleteChunksByDocument removes all chunk rows for a document and reports
// how many were deleted.
func (s *Store) deleteChunksByDocument(ctx context.Context, documentID string) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted chunks: %w", err)
	}
	return int(n), nil
}

// loadEntries reads every committed chunk and vector, used to rebuild the
// in-memory index on startup.
func (s *Store) loadEntries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, document_id, seq, text, char_start, char_end, oversized, vector FROM chunks")
	if err != nil {
		return nil, fmt.Errorf("loading chunks: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var oversized int
		var blob []byte
		if err := rows.Scan(&e.Chunk.ID, &e.Chunk.DocumentID, &e.Chunk.SequenceIndex,
			&e.Chunk.Text, &e.Chunk.CharStart, &e.Chunk.CharEnd, &oversized, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		e.Chunk.Oversized = oversized != 0
		e.Vector = decodeVector(blob)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// encodeVector packs a vector as little-endian float32 bits.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

// decodeVector unpacks a vector encoded by encodeVector.
func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v
}
