// Package vector provides chunk embedding storage and similarity search.
package vector

import "context"

// VectorIndex stores chunk embeddings keyed by chunk ID.
// Get supports per-candidate rescoring during hybrid retrieval; Search is the
// pure nearest-neighbor path.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Get(id string) ([]float32, bool)
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Remove(ctx context.Context, ids []string) error
	Save(path string) error
	Load(path string) error
	Size() int
	Close() error
}

// VectorResult is a single vector search hit; ID is the chunk ID.
type VectorResult struct {
	ID    string
	Score float64 // cosine similarity in [-1, 1]
}
