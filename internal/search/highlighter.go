package search

import (
	"regexp"
	"strings"

	"github.com/hyperjump/tsunagu/internal/indexer"
	"github.com/hyperjump/tsunagu/internal/models"
)

var emTag = regexp.MustCompile(`<em>(.*?)</em>`)

// matchedTextFromFragment returns the first term the highlighter marked in
// the fragment, falling back to the raw query when there is no fragment
// (e.g. fuzzy-only matches produce none).
func matchedTextFromFragment(fragment, rawQuery string) string {
	if m := emTag.FindStringSubmatch(fragment); m != nil {
		if text := strings.TrimSpace(m[1]); text != "" {
			return text
		}
	}
	return rawQuery
}

// snippet returns the highlighted fragment when present (with <em> markers
// kept for display), otherwise the head of the chunk content.
func snippet(fragment, content string, maxLen int) string {
	if fragment != "" {
		return fragment
	}
	runes := []rune(content)
	if maxLen <= 0 || len(runes) <= maxLen {
		return content
	}
	return string(runes[:maxLen]) + "..."
}

// narrowRect shrinks the result's rect horizontally to the portion of the
// chunk the matched text occupies, assuming characters spread uniformly
// across the chunk box. The full chunk rect is kept when the chunk has no
// geometry or the matched text cannot be located in it.
func narrowRect(r *models.RelatedResult, chunk *models.Chunk, matched string) {
	if chunk.RectWidth <= 0 || chunk.NormalizedContent == "" {
		return
	}
	needle := indexer.Normalize(matched)
	if needle == "" {
		return
	}
	idx := strings.Index(chunk.NormalizedContent, needle)
	if idx < 0 {
		return
	}

	total := float64(len([]rune(chunk.NormalizedContent)))
	start := float64(len([]rune(chunk.NormalizedContent[:idx])))
	length := float64(len([]rune(needle)))

	r.RectLeft = chunk.RectLeft + chunk.RectWidth*(start/total)
	r.RectWidth = chunk.RectWidth * (length / total)
}
