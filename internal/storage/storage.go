// Package storage defines the persistence interface for documents and chunks.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/tsunagu/internal/models"
)

// ErrNotFound is returned when a document or chunk does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines document and chunk persistence operations.
// Lifecycle transitions update both status and progress atomically so that
// readers always see a consistent (status, progress) pair.
type Storage interface {
	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)

	// Lifecycle transitions
	MarkProcessing(ctx context.Context, id string) error
	MarkIndexing(ctx context.Context, id string, totalPages, totalChunks int) error
	UpdateProgress(ctx context.Context, id string, indexedChunks int) error
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, reason string) error
	MarkDeleting(ctx context.Context, id string) error
	ResetForRetry(ctx context.Context, id string) error

	// Chunk operations
	GetChunk(ctx context.Context, chunkID string) (*models.Chunk, error)
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error)
	BatchCreateChunks(ctx context.Context, chunks []*models.Chunk) error
	DeleteChunksByDocumentID(ctx context.Context, docID string) error

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
