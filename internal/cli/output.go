// Package cli provides output formatting for the Tsunagu command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// WriteRelatedResults writes ranked related-passage results to w in the given
// format. Use OutputJSON for parseable output consumable by other apps.
func WriteRelatedResults(w io.Writer, results []*models.RelatedResult, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	default:
		writeRelatedResultsText(w, results)
		return nil
	}
}

func writeRelatedResultsText(w io.Writer, results []*models.RelatedResult) {
	fmt.Fprintf(w, "\nFound %d related passages\n\n", len(results))
	for i, result := range results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f | Confidence: %.3f | Page: %d\n",
			i+1, result.Score, result.Confidence, result.PageNumber)
		fmt.Fprintf(w, "Chunk: %s\n", result.ChunkID)
		if result.MatchedText != "" {
			fmt.Fprintf(w, "Matched: %q\n", utils.Truncate(result.MatchedText, 80))
		}
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(stripEmphasis(result.Snippet), 200))
	}
}

// WriteDocuments writes a document listing to w in the given format.
func WriteDocuments(w io.Writer, docs []*models.Document, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	default:
		for _, doc := range docs {
			fmt.Fprintf(w, "%-36s  %-10s  %3d%%  %s\n", doc.ID, doc.Status, doc.Progress, doc.FileName)
			if doc.ErrorMessage != "" {
				fmt.Fprintf(w, "%38s%s\n", "", utils.Truncate(doc.ErrorMessage, 120))
			}
		}
		return nil
	}
}

// stripEmphasis removes the <em> markers the lexical highlighter leaves in
// snippets. JSON output keeps them so callers can re-locate the span.
func stripEmphasis(s string) string {
	s = strings.ReplaceAll(s, "<em>", "")
	return strings.ReplaceAll(s, "</em>", "")
}
