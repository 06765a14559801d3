// Package extract reads positioned text runs and page geometry from PDF files.
package extract

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"

	"github.com/hyperjump/tsunagu/internal/models"
)

// Page holds one page's native viewport and its positioned text runs.
type Page struct {
	Number   int
	Viewport models.Viewport
	Runs     []models.TextRun
}

// ReadFile reads the PDF at path and returns its pages with positioned runs.
func ReadFile(path string) ([]Page, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return Read(content)
}

// Read parses PDF content and returns one Page per document page, in order.
// Pages without extractable text yield an empty run slice, not an error.
func Read(content []byte) ([]Page, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	numPages := r.NumPage()
	pages := make([]Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		p := r.Page(i)
		page := Page{Number: i}
		if p.V.IsNull() {
			pages = append(pages, page)
			continue
		}
		page.Viewport = pageViewport(p)
		for _, t := range p.Content().Text {
			page.Runs = append(page.Runs, models.TextRun{
				Text:      t.S,
				BaselineX: t.X,
				BaselineY: t.Y,
				Width:     t.W,
				Height:    t.FontSize,
			})
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// pageViewport resolves the page's MediaBox, walking up the page tree since
// the entry may be inherited from an ancestor node.
func pageViewport(p pdf.Page) models.Viewport {
	v := p.V
	for !v.IsNull() {
		if mb := v.Key("MediaBox"); !mb.IsNull() && mb.Len() == 4 {
			return models.Viewport{
				Width:  mb.Index(2).Float64() - mb.Index(0).Float64(),
				Height: mb.Index(3).Float64() - mb.Index(1).Float64(),
			}
		}
		v = v.Key("Parent")
	}
	// US Letter in points; only reached for malformed page trees.
	return models.Viewport{Width: 612, Height: 792}
}
