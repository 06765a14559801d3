package models

// RelatedResult is a ranked, read-only projection returned from a related-passages
// query. MatchedText is the literal span the lexical ranker highlighted, or empty
// when only vector similarity matched (no literal span to re-locate).
// The Rect* fields carry the source chunk's geometry for direct use as a
// fallback highlight rectangle.
type RelatedResult struct {
	ChunkID     string  `json:"chunkId"`
	DocumentID  string  `json:"documentId"`
	PageNumber  int     `json:"pageNumber"`
	Snippet     string  `json:"snippet"`
	MatchedText string  `json:"matchedText"`
	Score       float64 `json:"score"`
	Confidence  float64 `json:"confidence"`
	AnchorY     float64 `json:"anchorY"`
	RectTop     float64 `json:"rectTop"`
	RectLeft    float64 `json:"rectLeft"`
	RectWidth   float64 `json:"rectWidth"`
	RectHeight  float64 `json:"rectHeight"`
}

// FallbackRect returns the stored chunk geometry as a highlight rectangle.
func (r *RelatedResult) FallbackRect() HighlightRect {
	return HighlightRect{
		PageNumber: r.PageNumber,
		X:          r.RectLeft,
		Y:          r.RectTop,
		Width:      r.RectWidth,
		Height:     r.RectHeight,
	}
}

// HighlightRect is a rectangle to draw on a rendered page, in [0,1]
// page-fraction units relative to the page surface.
type HighlightRect struct {
	PageNumber int     `json:"pageNumber"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}
