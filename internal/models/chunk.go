// Package models defines core data structures for chunks, documents, queries,
// and retrieval results.
package models

// Chunk is the persisted retrieval unit: one paragraph (or text window) of a
// document with its normalized text and page-fraction geometry.
// ChunkIndex values for a document are contiguous starting at 0 across all
// pages. Geometry coordinates lie in [0,1]; RectWidth/RectHeight are >= 0.
type Chunk struct {
	DocumentID        string    `json:"documentId"`
	ChunkID           string    `json:"chunkId"`
	ChunkIndex        int       `json:"chunkIndex"`
	PageNumber        int       `json:"pageNumber"`
	Content           string    `json:"content"`
	NormalizedContent string    `json:"normalizedContent"`
	AnchorY           float64   `json:"anchorY"`
	RectTop           float64   `json:"rectTop"`
	RectLeft          float64   `json:"rectLeft"`
	RectWidth         float64   `json:"rectWidth"`
	RectHeight        float64   `json:"rectHeight"`
	Embedding         []float32 `json:"-"`
}

// Rect returns the chunk's bounding box.
func (c *Chunk) Rect() Rect {
	return Rect{Top: c.RectTop, Left: c.RectLeft, Width: c.RectWidth, Height: c.RectHeight}
}
