package highlight

import (
	"context"
	"strings"
	"time"

	"github.com/hyperjump/tsunagu/internal/config"
	"github.com/hyperjump/tsunagu/internal/models"
)

// Reconstructor maps retrieved passages back onto page rectangles. The
// geometric search itself is pure (see locate); Reconstruct adds the bounded
// polling loop needed because a live text layer may not be populated yet
// when the query result arrives.
type Reconstructor struct {
	cfg config.HighlightConfig
}

// NewReconstructor creates a reconstructor with the given tolerances and
// retry schedule.
func NewReconstructor(cfg config.HighlightConfig) *Reconstructor {
	return &Reconstructor{cfg: cfg}
}

// Reconstruct returns the rectangles to highlight for result, polling
// provider until the text layer can be matched or the retry budget is
// exhausted. Cancelling ctx stops the loop; a stale search should be
// cancelled when a newer query arrives.
//
// An empty slice is a soft miss: the caller should still scroll to the
// anchor, just not draw a box.
func (r *Reconstructor) Reconstruct(ctx context.Context, result *models.RelatedResult, provider SnapshotProvider) []models.HighlightRect {
	// No literal span was reported by retrieval (hybrid/vector-only match):
	// there is nothing to search for, so use the stored chunk rect directly.
	if !strings.Contains(result.Snippet, "<em>") {
		return r.fallback(result)
	}

	interval := time.Duration(r.cfg.RetryIntervalMS) * time.Millisecond
	for attempt := 0; attempt < r.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(interval):
			}
		}
		layer, err := provider.Snapshot(ctx, result.PageNumber)
		if err != nil {
			continue
		}
		if rects := locate(result, layer, r.cfg); len(rects) > 0 {
			return rects
		}
	}
	return r.fallback(result)
}

// Locate runs one pass of the geometric search over an already-captured
// snapshot, with no polling.
func (r *Reconstructor) Locate(result *models.RelatedResult, layer *TextLayer) []models.HighlightRect {
	return locate(result, layer, r.cfg)
}

// fallback returns the stored chunk rectangle, padded, or nothing when the
// chunk carried no geometry.
func (r *Reconstructor) fallback(result *models.RelatedResult) []models.HighlightRect {
	rect := result.FallbackRect()
	if rect.Width <= 0 || rect.Height <= 0 {
		return nil
	}
	return padRects([]models.HighlightRect{rect}, r.cfg.PadX, r.cfg.PadY)
}
