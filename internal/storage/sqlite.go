// Package storage provides the SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/tsunagu/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		file_name TEXT NOT NULL,
		file_path TEXT NOT NULL,
		file_size INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		total_pages INTEGER NOT NULL DEFAULT 0,
		total_chunks INTEGER NOT NULL DEFAULT 0,
		indexed_chunks INTEGER NOT NULL DEFAULT 0,
		retry_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		indexed_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);

	CREATE TABLE IF NOT EXISTS document_chunks (
		chunk_id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		page_number INTEGER NOT NULL,
		content TEXT NOT NULL,
		normalized_content TEXT NOT NULL,
		anchor_y REAL NOT NULL DEFAULT 0,
		rect_top REAL NOT NULL DEFAULT 0,
		rect_left REAL NOT NULL DEFAULT 0,
		rect_width REAL NOT NULL DEFAULT 0,
		rect_height REAL NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON document_chunks(document_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_document_index ON document_chunks(document_id, chunk_index);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateDocument inserts a document in UPLOADED state unless a status is already set.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc.Status == "" {
		doc.Status = models.StatusUploaded
	}
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, file_name, file_path, file_size, status, progress,
		 total_pages, total_chunks, indexed_chunks, retry_count, error_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.FileName, doc.FilePath, doc.FileSize, doc.Status, doc.Progress,
		doc.TotalPages, doc.TotalChunks, doc.IndexedChunks, doc.RetryCount, doc.ErrorMessage,
		doc.CreatedAt, doc.UpdatedAt,
	)
	return err
}

const documentColumns = `id, file_name, file_path, file_size, status, progress,
	total_pages, total_chunks, indexed_chunks, retry_count, error_message,
	indexed_at, created_at, updated_at`

func scanDocument(row interface{ Scan(...interface{}) error }) (*models.Document, error) {
	var doc models.Document
	var status string
	err := row.Scan(&doc.ID, &doc.FileName, &doc.FilePath, &doc.FileSize, &status, &doc.Progress,
		&doc.TotalPages, &doc.TotalChunks, &doc.IndexedChunks, &doc.RetryCount, &doc.ErrorMessage,
		&doc.IndexedAt, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	doc.Status = models.DocumentStatus(status)
	return &doc, nil
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// DeleteDocument removes a document by ID. Chunks are deleted separately.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

// ListDocuments returns documents with offset and limit, newest first.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// MarkProcessing moves a document into PROCESSING and resets progress and counters.
func (s *SQLiteStorage) MarkProcessing(ctx context.Context, id string) error {
	return s.transition(ctx, id,
		`UPDATE documents SET status = ?, progress = 0, indexed_chunks = 0, error_message = '', updated_at = ?
		 WHERE id = ?`,
		models.StatusProcessing, time.Now(), id)
}

// MarkIndexing moves a document into INDEXING and records extraction totals.
func (s *SQLiteStorage) MarkIndexing(ctx context.Context, id string, totalPages, totalChunks int) error {
	return s.transition(ctx, id,
		`UPDATE documents SET status = ?, total_pages = ?, total_chunks = ?, indexed_chunks = 0, updated_at = ?
		 WHERE id = ?`,
		models.StatusIndexing, totalPages, totalChunks, time.Now(), id)
}

// UpdateProgress records how many chunks have been indexed so far and derives
// the progress percentage from the stored total.
func (s *SQLiteStorage) UpdateProgress(ctx context.Context, id string, indexedChunks int) error {
	return s.transition(ctx, id,
		`UPDATE documents SET indexed_chunks = ?,
		 progress = CASE WHEN total_chunks > 0 THEN MIN(100, (? * 100) / total_chunks) ELSE 0 END,
		 updated_at = ?
		 WHERE id = ?`,
		indexedChunks, indexedChunks, time.Now(), id)
}

// MarkCompleted moves a document into COMPLETED with progress 100 and stamps indexed_at.
func (s *SQLiteStorage) MarkCompleted(ctx context.Context, id string) error {
	now := time.Now()
	return s.transition(ctx, id,
		`UPDATE documents SET status = ?, progress = 100, indexed_chunks = total_chunks,
		 error_message = '', indexed_at = ?, updated_at = ?
		 WHERE id = ?`,
		models.StatusCompleted, now, now, id)
}

// MarkFailed moves a document into FAILED, records the reason, and increments retry_count.
func (s *SQLiteStorage) MarkFailed(ctx context.Context, id string, reason string) error {
	return s.transition(ctx, id,
		`UPDATE documents SET status = ?, error_message = ?, retry_count = retry_count + 1, updated_at = ?
		 WHERE id = ?`,
		models.StatusFailed, reason, time.Now(), id)
}

// MarkDeleting moves a document into DELETING ahead of index and row removal.
func (s *SQLiteStorage) MarkDeleting(ctx context.Context, id string) error {
	return s.transition(ctx, id,
		`UPDATE documents SET status = ?, updated_at = ? WHERE id = ?`,
		models.StatusDeleting, time.Now(), id)
}

// ResetForRetry returns a FAILED document to UPLOADED so it can be
// reprocessed. The retry counter is kept.
func (s *SQLiteStorage) ResetForRetry(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, progress = 0, indexed_chunks = 0, error_message = '', updated_at = ?
		 WHERE id = ? AND status = ?`,
		models.StatusUploaded, time.Now(), id, models.StatusFailed)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document %s is not in a failed state", id)
	}
	return nil
}

func (s *SQLiteStorage) transition(ctx context.Context, id, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

const chunkColumns = `chunk_id, document_id, chunk_index, page_number, content,
	normalized_content, anchor_y, rect_top, rect_left, rect_width, rect_height`

func scanChunk(row interface{ Scan(...interface{}) error }) (*models.Chunk, error) {
	var c models.Chunk
	err := row.Scan(&c.ChunkID, &c.DocumentID, &c.ChunkIndex, &c.PageNumber, &c.Content,
		&c.NormalizedContent, &c.AnchorY, &c.RectTop, &c.RectLeft, &c.RectWidth, &c.RectHeight)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetChunk returns a chunk by ID.
func (s *SQLiteStorage) GetChunk(ctx context.Context, chunkID string) (*models.Chunk, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM document_chunks WHERE chunk_id = ?`, chunkID)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chunk %s: %w", chunkID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetChunksByDocumentID returns all chunks for a document ordered by chunk_index.
func (s *SQLiteStorage) GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM document_chunks WHERE document_id = ? ORDER BY chunk_index`,
		docID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// BatchCreateChunks upserts chunks in a transaction. Re-indexing a chunk ID
// overwrites the previous row.
func (s *SQLiteStorage) BatchCreateChunks(ctx context.Context, chunks []*models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO document_chunks
		 (chunk_id, document_id, chunk_index, page_number, content, normalized_content,
		  anchor_y, rect_top, rect_left, rect_width, rect_height, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ChunkID, c.DocumentID, c.ChunkIndex, c.PageNumber,
			c.Content, c.NormalizedContent, c.AnchorY, c.RectTop, c.RectLeft, c.RectWidth, c.RectHeight, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteChunksByDocumentID removes all chunks for a document.
func (s *SQLiteStorage) DeleteChunksByDocumentID(ctx context.Context, docID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, docID)
	return err
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// CountChunks returns the total number of chunks.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
