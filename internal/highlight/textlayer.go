// Package highlight reconstructs on-page rectangles for retrieved passages
// by re-locating their matched text inside a rendered page's text layer.
package highlight

import (
	"context"
	"strings"

	"github.com/hyperjump/tsunagu/internal/indexer"
)

// TextNode is one positioned node of a page's text layer, mirroring a run of
// rendered glyphs. Geometry is in [0,1] page fractions with top-left origin.
type TextNode struct {
	Text   string
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// TextLayer is a point-in-time snapshot of one page's text layer.
type TextLayer struct {
	PageNumber int
	Nodes      []TextNode
}

// SnapshotProvider yields successive snapshots of a page's text layer. A
// renderer that has not finished laying out the page may return an empty or
// partial snapshot; the reconstructor polls until the layer is usable or its
// retry budget runs out.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, pageNumber int) (*TextLayer, error)
}

// nodeSpan records which character range of the page text a node owns.
type nodeSpan struct {
	node       int // index into TextLayer.Nodes
	start, end int // rune offsets into the page text, end exclusive
}

// pageText is the concatenated, normalized text of a layer plus the offset
// range owned by each contributing node.
type pageText struct {
	runes []rune
	spans []nodeSpan
}

// buildPageText normalizes each node's text and concatenates them with
// single spaces, remembering per-node offset ranges. Nodes that normalize to
// empty are skipped.
func buildPageText(layer *TextLayer) *pageText {
	pt := &pageText{}
	var b []rune
	for i, node := range layer.Nodes {
		norm := indexer.Normalize(node.Text)
		if norm == "" {
			continue
		}
		if len(b) > 0 {
			b = append(b, ' ')
		}
		start := len(b)
		b = append(b, []rune(norm)...)
		pt.spans = append(pt.spans, nodeSpan{node: i, start: start, end: len(b)})
	}
	pt.runes = b
	return pt
}

func (pt *pageText) text() string {
	return string(pt.runes)
}

// occurrences returns the rune offsets of every occurrence of needle.
func (pt *pageText) occurrences(needle string) []int {
	text := pt.text()
	var out []int
	from := 0
	for {
		i := strings.Index(text[from:], needle)
		if i < 0 {
			return out
		}
		byteOff := from + i
		out = append(out, len([]rune(text[:byteOff])))
		from = byteOff + 1
	}
}
