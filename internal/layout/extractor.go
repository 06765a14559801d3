// Package layout groups positioned text runs into lines and paragraphs with
// normalized bounding boxes. It is a pure function of its inputs plus the
// configured tolerances.
package layout

import (
	"math"
	"sort"
	"strings"

	"github.com/hyperjump/tsunagu/internal/config"
	"github.com/hyperjump/tsunagu/internal/models"
)

// Extractor converts one page of positioned runs into paragraphs.
type Extractor struct {
	cfg config.LayoutConfig
}

// NewExtractor creates an extractor with the given tolerances.
func NewExtractor(cfg config.LayoutConfig) *Extractor {
	return &Extractor{cfg: cfg}
}

// ExtractPage groups runs into lines, lines into paragraphs, and computes each
// paragraph's bounding box in page-fraction units (top-left origin).
// A page with zero extractable runs yields zero paragraphs, not an error.
func (e *Extractor) ExtractPage(runs []models.TextRun, vp models.Viewport) []models.Paragraph {
	if vp.Width <= 0 || vp.Height <= 0 {
		return nil
	}
	filtered := make([]models.TextRun, 0, len(runs))
	for _, r := range runs {
		if strings.TrimSpace(r.Text) != "" {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) == 0 {
		return nil
	}

	// Top of page first (PDF origin is bottom-left, so descending Y).
	// Runs whose baselines differ by no more than YJitter belong to the same
	// visual line and are ordered left to right instead.
	sort.SliceStable(filtered, func(i, j int) bool {
		a, b := filtered[i], filtered[j]
		if math.Abs(b.BaselineY-a.BaselineY) > e.cfg.YJitter {
			return a.BaselineY > b.BaselineY
		}
		return a.BaselineX < b.BaselineX
	})

	lines := groupLines(filtered, e.cfg.LineBreak)
	groups := groupParagraphs(lines, e.cfg.ParagraphBreak)

	paragraphs := make([]models.Paragraph, 0, len(groups))
	for _, g := range groups {
		if p, ok := buildParagraph(g, vp); ok {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

// groupLines walks sorted runs and starts a new line whenever the baseline
// differs from the previous run's baseline by more than lineBreak.
func groupLines(runs []models.TextRun, lineBreak float64) []models.Line {
	var lines []models.Line
	var current []models.TextRun
	lastY := math.NaN()

	for _, r := range runs {
		if math.IsNaN(lastY) || math.Abs(r.BaselineY-lastY) < lineBreak {
			current = append(current, r)
		} else {
			lines = append(lines, models.Line{Runs: current})
			current = []models.TextRun{r}
		}
		lastY = r.BaselineY
	}
	if len(current) > 0 {
		lines = append(lines, models.Line{Runs: current})
	}
	return lines
}

// groupParagraphs walks lines top to bottom and starts a new paragraph when
// the gap between consecutive line baselines exceeds paragraphBreak.
func groupParagraphs(lines []models.Line, paragraphBreak float64) [][]models.Line {
	var groups [][]models.Line
	var current []models.Line
	lastY := math.NaN()

	for _, line := range lines {
		y := line.BaselineY()
		if math.IsNaN(lastY) || math.Abs(lastY-y) < paragraphBreak {
			current = append(current, line)
		} else {
			groups = append(groups, current)
			current = []models.Line{line}
		}
		lastY = y
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// buildParagraph computes the union bounding box over all runs, converts it
// from native page units to page fractions with a top-left origin, and
// concatenates the run texts. Returns ok=false for an empty paragraph.
func buildParagraph(lines []models.Line, vp models.Viewport) (models.Paragraph, bool) {
	minTop := math.Inf(1)
	maxBottom := math.Inf(-1)
	minLeft := math.Inf(1)
	maxRight := math.Inf(-1)

	var parts []string
	for _, line := range lines {
		for _, r := range line.Runs {
			text := strings.TrimSpace(r.Text)
			if text == "" {
				continue
			}
			top := 1 - (r.BaselineY+r.Height)/vp.Height
			bottom := 1 - r.BaselineY/vp.Height
			left := r.BaselineX / vp.Width
			right := (r.BaselineX + r.Width) / vp.Width

			minTop = math.Min(minTop, top)
			maxBottom = math.Max(maxBottom, bottom)
			minLeft = math.Min(minLeft, left)
			maxRight = math.Max(maxRight, right)

			parts = append(parts, text)
		}
	}

	text := strings.TrimSpace(strings.Join(parts, " "))
	if text == "" {
		return models.Paragraph{}, false
	}

	top := clamp01(minTop)
	left := clamp01(minLeft)
	width := math.Max(0, maxRight-minLeft)
	height := math.Max(0, maxBottom-minTop)
	// Keep the box inside the page.
	width = math.Min(width, 1-left)
	height = math.Min(height, 1-top)

	return models.Paragraph{
		Lines: lines,
		Text:  text,
		Rect:  models.Rect{Top: top, Left: left, Width: width, Height: height},
	}, true
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
