// Package keyword provides lexical (BM25) chunk indexing and ranked search.
package keyword

import (
	"context"

	"github.com/hyperjump/tsunagu/internal/models"
)

// Boosts are the weights of the four lexical ranking signals. A chunk matches
// when at least one signal matches; signal scores are additive.
type Boosts struct {
	// Phrase boosts chunks containing the query as an exact phrase.
	Phrase float64
	// And boosts chunks containing every query term.
	And float64
	// Coverage boosts chunks containing at least CoverageRatio of the terms.
	Coverage      float64
	CoverageRatio float64
	// Fuzzy is applied only when the query has at most FuzzyMaxTerms terms,
	// with the given maximum edit distance.
	Fuzzy         float64
	FuzzyMaxTerms int
	Fuzziness     int
}

// ChunkQuery is a ranked lexical search over one document's chunks.
type ChunkQuery struct {
	DocumentID string
	// Text is the normalized query text.
	Text   string
	Limit  int
	Boosts Boosts
}

// Hit is a single lexical search hit: the stored chunk, its BM25-derived
// score, and the highlighted content fragment (match terms wrapped in <em>).
type Hit struct {
	Chunk    models.Chunk
	Score    float64
	Fragment string
}

// Index defines lexical chunk index operations.
type Index interface {
	// Upsert indexes chunks in one batch; re-indexing a chunk ID replaces it.
	Upsert(ctx context.Context, chunks []*models.Chunk) error
	Search(ctx context.Context, q *ChunkQuery) ([]*Hit, error)
	DeleteByDocument(ctx context.Context, documentID string) error
	// DocCount returns the total number of chunks in the index.
	DocCount() (uint64, error)
	Close() error
}
