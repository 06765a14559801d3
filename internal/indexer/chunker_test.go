package indexer

import (
	"strings"
	"testing"

	"github.com/hyperjump/tsunagu/internal/config"
	"github.com/hyperjump/tsunagu/internal/models"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{"lowercases", "Hello World", "hello world"},
		{"trims", "  padded  ", "padded"},
		{"collapses runs", "a\t\tb\n\nc   d", "a b c d"},
		{"empty", "", ""},
		{"whitespace only", " \t\n ", ""},
		{"unicode kept", "Tsunagu 繋ぐ", "tsunagu 繋ぐ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.expected)
			}
		})
	}
}

func paragraph(text string, top float64) models.Paragraph {
	return models.Paragraph{
		Text: text,
		Rect: models.Rect{Top: top, Left: 0.1, Width: 0.8, Height: 0.05},
	}
}

func TestParagraphChunker(t *testing.T) {
	c := NewParagraphChunker()
	page := PageContent{
		PageNumber: 3,
		Paragraphs: []models.Paragraph{
			paragraph("First Paragraph", 0.10),
			paragraph("Second paragraph", 0.30),
		},
	}
	chunks := c.ChunkPage("doc-1", page, 7)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}

	if chunks[0].ChunkIndex != 7 || chunks[1].ChunkIndex != 8 {
		t.Errorf("indices not contiguous from startIndex: %d, %d",
			chunks[0].ChunkIndex, chunks[1].ChunkIndex)
	}
	if chunks[0].ChunkID == chunks[1].ChunkID || chunks[0].ChunkID == "" {
		t.Error("chunk IDs must be unique and non-empty")
	}
	for _, c := range chunks {
		if c.DocumentID != "doc-1" || c.PageNumber != 3 {
			t.Errorf("chunk metadata wrong: %+v", c)
		}
	}
	if chunks[0].NormalizedContent != "first paragraph" {
		t.Errorf("normalized content = %q", chunks[0].NormalizedContent)
	}
	if chunks[0].AnchorY != 0.10 || chunks[0].RectTop != 0.10 {
		t.Errorf("anchor should equal rect top: anchorY=%f rectTop=%f",
			chunks[0].AnchorY, chunks[0].RectTop)
	}
	if chunks[1].RectTop != 0.30 {
		t.Errorf("second chunk keeps its own geometry: %f", chunks[1].RectTop)
	}
}

func TestWindowChunker_windowsAndOverlap(t *testing.T) {
	c := NewWindowChunker(10, 4)
	text := "abcdefghijklmnopqrst" // 20 runes
	page := PageContent{PageNumber: 1, Paragraphs: []models.Paragraph{{Text: text}}}

	chunks := c.ChunkPage("doc-1", page, 0)
	// step = 6: windows start at 0, 6, 12; the last reaches the end of text.
	if len(chunks) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(chunks))
	}
	if chunks[0].Content != "abcdefghij" {
		t.Errorf("first window = %q", chunks[0].Content)
	}
	if chunks[1].Content != "ghijklmnop" {
		t.Errorf("second window should overlap by 4: %q", chunks[1].Content)
	}
	if chunks[2].Content != "mnopqrst" {
		t.Errorf("tail window = %q", chunks[2].Content)
	}
	for i, ch := range chunks {
		if ch.ChunkIndex != i {
			t.Errorf("window %d has index %d", i, ch.ChunkIndex)
		}
		if ch.RectWidth != 0 || ch.RectHeight != 0 {
			t.Errorf("window chunks carry no geometry: %+v", ch)
		}
	}
}

func TestWindowChunker_normalizesJoinedText(t *testing.T) {
	c := NewWindowChunker(1000, 150)
	page := PageContent{PageNumber: 1, Paragraphs: []models.Paragraph{
		{Text: "First  Part"},
		{Text: "Second\tPart"},
	}}
	chunks := c.ChunkPage("doc-1", page, 0)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 window, got %d", len(chunks))
	}
	if chunks[0].Content != "first part second part" {
		t.Errorf("window text = %q", chunks[0].Content)
	}
	if chunks[0].NormalizedContent != chunks[0].Content {
		t.Error("window content is already normalized")
	}
}

func TestWindowChunker_emptyPage(t *testing.T) {
	c := NewWindowChunker(100, 10)
	if got := c.ChunkPage("doc-1", PageContent{PageNumber: 1}, 0); got != nil {
		t.Errorf("empty page should yield no chunks, got %d", len(got))
	}
}

func TestWindowChunker_defaults(t *testing.T) {
	c := NewWindowChunker(0, -1)
	if c.size != 1000 {
		t.Errorf("default size = %d", c.size)
	}
	if c.overlap != 100 {
		t.Errorf("default overlap = %d", c.overlap)
	}
}

func TestNewChunker_policySelection(t *testing.T) {
	if _, ok := NewChunker(config.ChunkingConfig{Policy: "window", WindowSize: 500}).(*WindowChunker); !ok {
		t.Error("policy window should select WindowChunker")
	}
	if _, ok := NewChunker(config.ChunkingConfig{}).(*ParagraphChunker); !ok {
		t.Error("default policy should select ParagraphChunker")
	}
}

func TestChunkIndicesMonotoneAcrossPages(t *testing.T) {
	c := NewParagraphChunker()
	var all []*models.Chunk
	next := 0
	for page := 1; page <= 3; page++ {
		pc := PageContent{PageNumber: page, Paragraphs: []models.Paragraph{
			paragraph("one", 0.1), paragraph("two", 0.2),
		}}
		chunks := c.ChunkPage("doc-1", pc, next)
		next += len(chunks)
		all = append(all, chunks...)
	}
	for i, ch := range all {
		if ch.ChunkIndex != i {
			t.Fatalf("chunk %d has index %d", i, ch.ChunkIndex)
		}
	}
	if !strings.HasPrefix(all[0].NormalizedContent, "one") {
		t.Errorf("unexpected content: %q", all[0].NormalizedContent)
	}
}
