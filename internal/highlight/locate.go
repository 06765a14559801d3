package highlight

import (
	"math"
	"sort"
	"strings"

	"github.com/hyperjump/tsunagu/internal/config"
	"github.com/hyperjump/tsunagu/internal/indexer"
	"github.com/hyperjump/tsunagu/internal/models"
)

// candidate is one possible placement of the matched text: the rectangles of
// a single occurrence, whichever fallback tier produced it.
type candidate struct {
	rects []models.HighlightRect
}

func (c candidate) centerY() float64 {
	if len(c.rects) == 0 {
		return 0
	}
	var sum float64
	for _, r := range c.rects {
		sum += r.Y + r.Height/2
	}
	return sum / float64(len(c.rects))
}

// locate runs the pure geometric search over one snapshot: phrase tier, then
// per-token tier, then anchor-line tier. The returned rectangles are merged
// and padded; nil means this snapshot could not place the text at all.
func locate(result *models.RelatedResult, layer *TextLayer, cfg config.HighlightConfig) []models.HighlightRect {
	if layer == nil || len(layer.Nodes) == 0 {
		return nil
	}
	pt := buildPageText(layer)
	if len(pt.runes) == 0 {
		return nil
	}
	needle := indexer.Normalize(result.MatchedText)

	var candidates []candidate
	if needle != "" {
		candidates = phraseCandidates(pt, layer, needle)
		if len(candidates) == 0 {
			candidates = tokenCandidates(pt, layer, needle)
		}
	}
	if len(candidates) == 0 {
		candidates = anchorLineCandidates(layer, result.AnchorY, cfg.MergeLineTolerance)
	}
	if len(candidates) == 0 {
		return nil
	}

	best := closestToAnchor(candidates, result.AnchorY)
	merged := mergeRects(best.rects, cfg.MergeLineTolerance, cfg.MergeGapTolerance)
	return padRects(merged, cfg.PadX, cfg.PadY)
}

// phraseCandidates finds every whole-phrase occurrence and maps each back to
// per-node rectangles, slicing nodes horizontally where an occurrence covers
// only part of a node's text.
func phraseCandidates(pt *pageText, layer *TextLayer, needle string) []candidate {
	needleLen := len([]rune(needle))
	var out []candidate
	for _, start := range pt.occurrences(needle) {
		end := start + needleLen
		var rects []models.HighlightRect
		for _, span := range pt.spans {
			if span.end <= start || span.start >= end {
				continue
			}
			rects = append(rects, sliceNode(layer, span, start, end))
		}
		if len(rects) > 0 {
			out = append(out, candidate{rects: rects})
		}
	}
	return out
}

// sliceNode returns the part of a node's rectangle covered by the rune range
// [start, end), prorated by character position within the node.
func sliceNode(layer *TextLayer, span nodeSpan, start, end int) models.HighlightRect {
	node := layer.Nodes[span.node]
	from, to := start, end
	if from < span.start {
		from = span.start
	}
	if to > span.end {
		to = span.end
	}
	total := float64(span.end - span.start)
	startFrac := float64(from-span.start) / total
	endFrac := float64(to-span.start) / total
	return models.HighlightRect{
		PageNumber: layer.PageNumber,
		X:          node.X + node.Width*startFrac,
		Y:          node.Y,
		Width:      node.Width * (endFrac - startFrac),
		Height:     node.Height,
	}
}

// tokenCandidates searches for each token of the needle independently; every
// token occurrence becomes its own candidate.
func tokenCandidates(pt *pageText, layer *TextLayer, needle string) []candidate {
	var out []candidate
	for _, token := range strings.Fields(needle) {
		out = append(out, phraseCandidates(pt, layer, token)...)
	}
	return out
}

// anchorLineCandidates selects the node vertically closest to anchorY plus
// every node sharing its visual line, as one candidate.
func anchorLineCandidates(layer *TextLayer, anchorY, lineTolerance float64) []candidate {
	bestIdx := -1
	bestDist := math.Inf(1)
	for i, node := range layer.Nodes {
		if strings.TrimSpace(node.Text) == "" {
			continue
		}
		d := math.Abs(node.Y + node.Height/2 - anchorY)
		if d < bestDist {
			bestDist = d
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return nil
	}
	lineY := layer.Nodes[bestIdx].Y + layer.Nodes[bestIdx].Height/2
	var rects []models.HighlightRect
	for _, node := range layer.Nodes {
		if strings.TrimSpace(node.Text) == "" {
			continue
		}
		if math.Abs(node.Y+node.Height/2-lineY) <= lineTolerance {
			rects = append(rects, models.HighlightRect{
				PageNumber: layer.PageNumber,
				X:          node.X,
				Y:          node.Y,
				Width:      node.Width,
				Height:     node.Height,
			})
		}
	}
	return []candidate{{rects: rects}}
}

// closestToAnchor picks the candidate whose vertical center is nearest
// anchorY, disambiguating repeated phrases on one page.
func closestToAnchor(candidates []candidate, anchorY float64) candidate {
	best := candidates[0]
	bestDist := math.Abs(best.centerY() - anchorY)
	for _, c := range candidates[1:] {
		if d := math.Abs(c.centerY() - anchorY); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best
}

// mergeRects coalesces rectangles on the same visual line whose horizontal
// gap (or overlap) is within gapTolerance.
func mergeRects(rects []models.HighlightRect, lineTolerance, gapTolerance float64) []models.HighlightRect {
	if len(rects) <= 1 {
		return rects
	}
	sorted := make([]models.HighlightRect, len(rects))
	copy(sorted, rects)
	sort.Slice(sorted, func(i, j int) bool {
		ci := sorted[i].Y + sorted[i].Height/2
		cj := sorted[j].Y + sorted[j].Height/2
		if math.Abs(ci-cj) > lineTolerance {
			return ci < cj
		}
		return sorted[i].X < sorted[j].X
	})

	out := []models.HighlightRect{sorted[0]}
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		sameLine := math.Abs((last.Y+last.Height/2)-(r.Y+r.Height/2)) <= lineTolerance
		gap := r.X - (last.X + last.Width)
		if sameLine && gap <= gapTolerance {
			right := math.Max(last.X+last.Width, r.X+r.Width)
			top := math.Min(last.Y, r.Y)
			bottom := math.Max(last.Y+last.Height, r.Y+r.Height)
			last.X = math.Min(last.X, r.X)
			last.Width = right - last.X
			last.Y = top
			last.Height = bottom - top
		} else {
			out = append(out, r)
		}
	}
	return out
}

// padRects inflates each rectangle by the configured padding, clamped to the
// page.
func padRects(rects []models.HighlightRect, padX, padY float64) []models.HighlightRect {
	out := make([]models.HighlightRect, len(rects))
	for i, r := range rects {
		x := clamp01(r.X - padX)
		y := clamp01(r.Y - padY)
		out[i] = models.HighlightRect{
			PageNumber: r.PageNumber,
			X:          x,
			Y:          y,
			Width:      math.Min(r.Width+2*padX, 1-x),
			Height:     math.Min(r.Height+2*padY, 1-y),
		}
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
