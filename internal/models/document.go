package models

import "time"

// DocumentStatus is the ingestion lifecycle state of a document.
type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "UPLOADED"
	StatusProcessing DocumentStatus = "PROCESSING"
	StatusIndexing   DocumentStatus = "INDEXING"
	StatusCompleted  DocumentStatus = "COMPLETED"
	StatusFailed     DocumentStatus = "FAILED"
	StatusDeleting   DocumentStatus = "DELETING"
)

// Document is the metadata record for an ingested PDF. Chunks reference it by ID
// and are deleted together with it.
type Document struct {
	ID            string         `json:"id" db:"id"`
	FileName      string         `json:"fileName" db:"file_name"`
	FilePath      string         `json:"filePath" db:"file_path"`
	FileSize      int64          `json:"fileSize" db:"file_size"`
	Status        DocumentStatus `json:"status" db:"status"`
	Progress      int            `json:"progress" db:"progress"`
	TotalPages    int            `json:"totalPages" db:"total_pages"`
	TotalChunks   int            `json:"totalChunks" db:"total_chunks"`
	IndexedChunks int            `json:"indexedChunks" db:"indexed_chunks"`
	RetryCount    int            `json:"retryCount" db:"retry_count"`
	ErrorMessage  string         `json:"errorMessage,omitempty" db:"error_message"`
	IndexedAt     *time.Time     `json:"indexedAt,omitempty" db:"indexed_at"`
	CreatedAt     time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time      `json:"updatedAt" db:"updated_at"`
}
