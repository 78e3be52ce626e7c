package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Document represents a row in the documents table (§3).
type Document struct {
	ID           string     `json:"id"`
	Filename     string     `json:"filename"`
	Filepath     string     `json:"filepath"`
	FileType     string     `json:"fileType"`
	FileSize     int64      `json:"fileSize"`
	MimeType     string     `json:"mimeType"`
	Checksum     string     `json:"checksum"`
	Status       string     `json:"status"`
	ChunkCount   int        `json:"chunkCount"`
	Summary      string     `json:"summary,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	CollectionID string     `json:"collectionId,omitempty"`
	Metadata     Metadata   `json:"metadata"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	IndexedAt    *time.Time `json:"indexedAt,omitempty"`
}

// Chunk represents a row in the chunks table (§3).
type Chunk struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"documentId"`
	Content     string    `json:"content"`
	ChunkIndex  int       `json:"chunkIndex"`
	StartOffset int       `json:"startOffset"`
	EndOffset   int       `json:"endOffset"`
	TokenCount  int       `json:"tokenCount"`
	Metadata    Metadata  `json:"metadata"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Collection represents a row in the collections table, with DocumentCount
// derived at read time rather than stored.
type Collection struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Color         string    `json:"color,omitempty"`
	DocumentCount int       `json:"documentCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// QueryLog represents a row in the query_logs table. Written only by the
// analytics collaborator (§3); the core pipelines never read it back.
type QueryLog struct {
	ID          string    `json:"id"`
	Query       string    `json:"query"`
	QueryType   string    `json:"queryType"`
	Source      string    `json:"source,omitempty"`
	ResultCount int       `json:"resultCount"`
	TopScore    *float64  `json:"topScore,omitempty"`
	LatencyMs   int64     `json:"latencyMs"`
	Metadata    Metadata  `json:"metadata"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Metadata is an open, JSON-serialized attribute bag.
type Metadata map[string]interface{}

// DocumentPatch carries a partial update for updateDocument; nil fields are
// left unchanged.
type DocumentPatch struct {
	Status       *string
	ChunkCount   *int
	Summary      *string
	Tags         *[]string
	CollectionID *string
	Metadata     Metadata
	IndexedAt    *time.Time
}

// Store wraps the SQLite metadata database (§4.7): documents, chunks,
// collections, query_logs. Vectors live in the separate vector store.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at dbPath in WAL mode with
// foreign keys enforced, and runs any pending migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: pinging database: %w", err)
	}

	// SQLite has a single writer; keep the pool small to avoid SQLITE_BUSY
	// storms under concurrent ingestion.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for callers that need raw access
// (diagnostics, analytics collaborator).
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// WithTransaction exposes the transaction helper for multi-step
// read-modify-write sequences owned by callers (§4.7).
func (s *Store) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.inTx(ctx, fn)
}

func marshalMetadata(m Metadata) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("store: marshaling metadata: %w", err)
	}
	return string(b), nil
}

func unmarshalMetadata(raw string) (Metadata, error) {
	if raw == "" {
		return Metadata{}, nil
	}
	var m Metadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("store: unmarshaling metadata: %w", err)
	}
	return m, nil
}

func marshalTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "", nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("store: marshaling tags: %w", err)
	}
	return string(b), nil
}

func unmarshalTags(raw sql.NullString) ([]string, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw.String), &tags); err != nil {
		return nil, fmt.Errorf("store: unmarshaling tags: %w", err)
	}
	return tags, nil
}

const rfc3339 = time.RFC3339Nano

// --- Document operations ---

// InsertDocument inserts a new document row (§4.9 step 4: fresh rows start
// status=pending or processing).
func (s *Store) InsertDocument(ctx context.Context, doc *Document) error {
	metadata, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return err
	}
	tags, err := marshalTags(doc.Tags)
	if err != nil {
		return err
	}
	now := doc.CreatedAt
	if now.IsZero() {
		now = doc.UpdatedAt
	}

	var collectionID sql.NullString
	if doc.CollectionID != "" {
		collectionID = sql.NullString{String: doc.CollectionID, Valid: true}
	}
	var indexedAt sql.NullString
	if doc.IndexedAt != nil {
		indexedAt = sql.NullString{String: doc.IndexedAt.Format(rfc3339), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, filename, filepath, file_type, file_size, mime_type, checksum,
			status, chunk_count, summary, tags, collection_id, metadata, created_at, updated_at, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.Filename, doc.Filepath, doc.FileType, doc.FileSize, doc.MimeType, doc.Checksum,
		doc.Status, doc.ChunkCount, doc.Summary, tags, collectionID, metadata,
		now.Format(rfc3339), now.Format(rfc3339), indexedAt)
	return err
}

// UpdateDocument applies a partial update (§4.7, §4.9 steps 11-12).
func (s *Store) UpdateDocument(ctx context.Context, id string, patch DocumentPatch) error {
	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC().Format(rfc3339)}

	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *patch.Status)
	}
	if patch.ChunkCount != nil {
		sets = append(sets, "chunk_count = ?")
		args = append(args, *patch.ChunkCount)
	}
	if patch.Summary != nil {
		sets = append(sets, "summary = ?")
		args = append(args, *patch.Summary)
	}
	if patch.Tags != nil {
		tags, err := marshalTags(*patch.Tags)
		if err != nil {
			return err
		}
		sets = append(sets, "tags = ?")
		args = append(args, tags)
	}
	if patch.CollectionID != nil {
		sets = append(sets, "collection_id = ?")
		args = append(args, *patch.CollectionID)
	}
	if patch.Metadata != nil {
		metadata, err := marshalMetadata(patch.Metadata)
		if err != nil {
			return err
		}
		sets = append(sets, "metadata = ?")
		args = append(args, metadata)
	}
	if patch.IndexedAt != nil {
		sets = append(sets, "indexed_at = ?")
		args = append(args, patch.IndexedAt.Format(rfc3339))
	}

	query := "UPDATE documents SET "
	for i, set := range sets {
		if i > 0 {
			query += ", "
		}
		query += set
	}
	query += " WHERE id = ?"
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanDocument(row interface {
	Scan(dest ...interface{}) error
}) (*Document, error) {
	doc := &Document{}
	var mimeType, summary sql.NullString
	var tags sql.NullString
	var collectionID sql.NullString
	var metadata string
	var createdAt, updatedAt string
	var indexedAt sql.NullString

	if err := row.Scan(&doc.ID, &doc.Filename, &doc.Filepath, &doc.FileType, &doc.FileSize,
		&mimeType, &doc.Checksum, &doc.Status, &doc.ChunkCount, &summary, &tags, &collectionID,
		&metadata, &createdAt, &updatedAt, &indexedAt); err != nil {
		return nil, err
	}

	doc.MimeType = mimeType.String
	doc.Summary = summary.String
	doc.CollectionID = collectionID.String

	parsedTags, err := unmarshalTags(tags)
	if err != nil {
		return nil, err
	}
	doc.Tags = parsedTags

	m, err := unmarshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	doc.Metadata = m

	doc.CreatedAt, _ = time.Parse(rfc3339, createdAt)
	doc.UpdatedAt, _ = time.Parse(rfc3339, updatedAt)
	if indexedAt.Valid {
		t, err := time.Parse(rfc3339, indexedAt.String)
		if err == nil {
			doc.IndexedAt = &t
		}
	}
	return doc, nil
}

const documentColumns = `id, filename, filepath, file_type, file_size, mime_type, checksum,
	status, chunk_count, summary, tags, collection_id, metadata, created_at, updated_at, indexed_at`

// GetDocumentByID retrieves a document by id. Returns sql.ErrNoRows if absent.
func (s *Store) GetDocumentByID(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// GetDocumentByPath retrieves a document by its unique filepath.
func (s *Store) GetDocumentByPath(ctx context.Context, path string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE filepath = ?`, path)
	return scanDocument(row)
}

// GetAllDocuments returns every document, newest first.
func (s *Store) GetAllDocuments(ctx context.Context) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document; chunks cascade via the foreign key.
// Callers must have already removed the document's vectors from the vector
// store first (§4.9's delete ordering: vector store -> chunks -> document).
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// --- Chunk operations ---

// InsertChunks inserts a batch of chunks in a single transaction (§4.9 step 9).
func (s *Store) InsertChunks(ctx context.Context, chunks []*Chunk) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (id, document_id, content, chunk_index, start_offset, end_offset,
				token_count, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, c := range chunks {
			metadata, err := marshalMetadata(c.Metadata)
			if err != nil {
				return err
			}
			createdAt := c.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now().UTC()
			}
			if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.Content, c.ChunkIndex,
				c.StartOffset, c.EndOffset, c.TokenCount, metadata, createdAt.Format(rfc3339)); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetChunksByDocumentID returns a document's chunks ordered by chunkIndex.
func (s *Store) GetChunksByDocumentID(ctx context.Context, documentID string) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, content, chunk_index, start_offset, end_offset, token_count, metadata, created_at
		FROM chunks WHERE document_id = ? ORDER BY chunk_index ASC
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		var c Chunk
		var metadata, createdAt string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Content, &c.ChunkIndex, &c.StartOffset,
			&c.EndOffset, &c.TokenCount, &metadata, &createdAt); err != nil {
			return nil, err
		}
		m, err := unmarshalMetadata(metadata)
		if err != nil {
			return nil, err
		}
		c.Metadata = m
		c.CreatedAt, _ = time.Parse(rfc3339, createdAt)
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// DeleteChunksByDocumentID removes all chunks for a document without
// touching the document row itself.
func (s *Store) DeleteChunksByDocumentID(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID)
	return err
}

// --- Collection operations ---

// InsertCollection inserts a new collection.
func (s *Store) InsertCollection(ctx context.Context, c *Collection) error {
	now := c.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collections (id, name, description, color, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, c.Name, c.Description, c.Color, now.Format(rfc3339), now.Format(rfc3339))
	return err
}

// GetCollectionByName retrieves a collection by its unique name, with
// documentCount derived from the documents table.
func (s *Store) GetCollectionByName(ctx context.Context, name string) (*Collection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.name, c.description, c.color, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM documents d WHERE d.collection_id = c.id) AS document_count
		FROM collections c WHERE c.name = ?
	`, name)

	var c Collection
	var description, color sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&c.ID, &c.Name, &description, &color, &createdAt, &updatedAt, &c.DocumentCount); err != nil {
		return nil, err
	}
	c.Description = description.String
	c.Color = color.String
	c.CreatedAt, _ = time.Parse(rfc3339, createdAt)
	c.UpdatedAt, _ = time.Parse(rfc3339, updatedAt)
	return &c, nil
}

// ListCollections returns every collection with derived documentCount.
func (s *Store) ListCollections(ctx context.Context) ([]*Collection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.description, c.color, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM documents d WHERE d.collection_id = c.id) AS document_count
		FROM collections c ORDER BY c.name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var collections []*Collection
	for rows.Next() {
		var c Collection
		var description, color sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&c.ID, &c.Name, &description, &color, &createdAt, &updatedAt, &c.DocumentCount); err != nil {
			return nil, err
		}
		c.Description = description.String
		c.Color = color.String
		c.CreatedAt, _ = time.Parse(rfc3339, createdAt)
		c.UpdatedAt, _ = time.Parse(rfc3339, updatedAt)
		collections = append(collections, &c)
	}
	return collections, rows.Err()
}

// --- Query log operations ---

// InsertQueryLog appends a query log row. Written by the analytics
// collaborator only; the core pipelines never read it back (§3).
func (s *Store) InsertQueryLog(ctx context.Context, q *QueryLog) error {
	metadata, err := marshalMetadata(q.Metadata)
	if err != nil {
		return err
	}
	now := q.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO query_logs (id, query, query_type, source, result_count, top_score, latency_ms, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, q.ID, q.Query, q.QueryType, q.Source, q.ResultCount, q.TopScore, q.LatencyMs, metadata, now.Format(rfc3339))
	return err
}
