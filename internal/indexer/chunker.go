// Package indexer provides chunking and the document ingestion pipeline.
package indexer

import (
	"strings"

	"github.com/google/uuid"

	"github.com/hyperjump/tsunagu/internal/config"
	"github.com/hyperjump/tsunagu/internal/models"
)

// PageContent is one extracted page ready for chunking.
type PageContent struct {
	PageNumber int
	Paragraphs []models.Paragraph
}

// Chunker converts one page into chunks. Chunk indices are assigned
// contiguously starting at startIndex so they stay monotone across pages.
type Chunker interface {
	ChunkPage(documentID string, page PageContent, startIndex int) []*models.Chunk
}

// NewChunker returns the chunker for the configured policy: "window" for
// fixed-size sliding windows, paragraph-geometry chunking otherwise.
func NewChunker(cfg config.ChunkingConfig) Chunker {
	if cfg.Policy == "window" {
		return NewWindowChunker(cfg.WindowSize, cfg.WindowOverlap)
	}
	return NewParagraphChunker()
}

// ParagraphChunker emits one chunk per extracted paragraph, carrying the
// paragraph's bounding box so highlights can be reconstructed later.
type ParagraphChunker struct{}

// NewParagraphChunker creates a paragraph-geometry chunker.
func NewParagraphChunker() *ParagraphChunker {
	return &ParagraphChunker{}
}

// ChunkPage converts each paragraph into a chunk with its geometry.
func (c *ParagraphChunker) ChunkPage(documentID string, page PageContent, startIndex int) []*models.Chunk {
	chunks := make([]*models.Chunk, 0, len(page.Paragraphs))
	for i, p := range page.Paragraphs {
		chunks = append(chunks, &models.Chunk{
			DocumentID:        documentID,
			ChunkID:           uuid.New().String(),
			ChunkIndex:        startIndex + i,
			PageNumber:        page.PageNumber,
			Content:           p.Text,
			NormalizedContent: Normalize(p.Text),
			AnchorY:           p.Rect.Top,
			RectTop:           p.Rect.Top,
			RectLeft:          p.Rect.Left,
			RectWidth:         p.Rect.Width,
			RectHeight:        p.Rect.Height,
		})
	}
	return chunks
}

// WindowChunker slides a fixed-size character window over the page text.
// Windows carry no geometry; highlight reconstruction falls back to
// text-layer search for them.
type WindowChunker struct {
	size    int
	overlap int
}

// NewWindowChunker creates a sliding-window chunker with the given window
// size and overlap in characters.
func NewWindowChunker(size, overlap int) *WindowChunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 10
	}
	return &WindowChunker{size: size, overlap: overlap}
}

// ChunkPage joins the page's paragraph texts and cuts overlapping windows.
func (c *WindowChunker) ChunkPage(documentID string, page PageContent, startIndex int) []*models.Chunk {
	parts := make([]string, 0, len(page.Paragraphs))
	for _, p := range page.Paragraphs {
		parts = append(parts, p.Text)
	}
	text := []rune(Normalize(strings.Join(parts, " ")))
	if len(text) == 0 {
		return nil
	}

	step := c.size - c.overlap
	var chunks []*models.Chunk
	for i := 0; i < len(text); i += step {
		end := i + c.size
		if end > len(text) {
			end = len(text)
		}
		window := strings.TrimSpace(string(text[i:end]))
		if window != "" {
			chunks = append(chunks, &models.Chunk{
				DocumentID:        documentID,
				ChunkID:           uuid.New().String(),
				ChunkIndex:        startIndex + len(chunks),
				PageNumber:        page.PageNumber,
				Content:           window,
				NormalizedContent: window,
			})
		}
		if end >= len(text) {
			break
		}
	}
	return chunks
}
