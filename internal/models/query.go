package models

import "fmt"

// RelatedQuery is a related-passages request scoped to one document.
// ExcludeChunkID, when set, is the chunk the query text was selected from;
// the ranker down-weights it so a passage never dominantly relates to itself.
type RelatedQuery struct {
	DocumentID     string `json:"documentId"`
	Query          string `json:"query"`
	ExcludeChunkID string `json:"excludeChunkId,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

// Validate checks required fields and normalizes the limit.
func (q *RelatedQuery) Validate() error {
	if q.DocumentID == "" {
		return fmt.Errorf("documentId cannot be empty")
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	return nil
}
