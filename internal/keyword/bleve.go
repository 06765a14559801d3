// Package keyword provides the Bleve implementation of the chunk Index.
package keyword

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/tsunagu/internal/models"
)

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve chunk index at path.
// An existing index is opened and reused; if the mapping changes in code,
// remove the index directory to force a full re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so the four ranking
	// signals match literal words; stemming would make phrase and fuzzy
	// matching diverge from the text shown to the user.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)

	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("documentId", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("chunkId", keywordFieldMapping)

	// Stored but unanalyzed payload fields so hits carry full chunk records.
	storedText := bleve.NewKeywordFieldMapping()
	storedText.IncludeInAll = false
	docMapping.AddFieldMappingsAt("normalizedContent", storedText)
	numericFieldMapping := bleve.NewNumericFieldMapping()
	for _, f := range []string{"chunkIndex", "pageNumber", "anchorY", "rectTop", "rectLeft", "rectWidth", "rectHeight"} {
		docMapping.AddFieldMappingsAt(f, numericFieldMapping)
	}

	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Upsert indexes chunks in one batch keyed by chunk ID.
func (b *BleveIndex) Upsert(ctx context.Context, chunks []*models.Chunk) error {
	batch := b.index.NewBatch()
	for _, c := range chunks {
		if err := batch.Index(c.ChunkID, chunkDoc(c)); err != nil {
			return fmt.Errorf("failed to batch chunk %s: %w", c.ChunkID, err)
		}
	}
	return b.index.Batch(batch)
}

func chunkDoc(c *models.Chunk) map[string]interface{} {
	return map[string]interface{}{
		"documentId":        c.DocumentID,
		"chunkId":           c.ChunkID,
		"chunkIndex":        c.ChunkIndex,
		"pageNumber":        c.PageNumber,
		"content":           c.Content,
		"normalizedContent": c.NormalizedContent,
		"anchorY":           c.AnchorY,
		"rectTop":           c.RectTop,
		"rectLeft":          c.RectLeft,
		"rectWidth":         c.RectWidth,
		"rectHeight":        c.RectHeight,
	}
}

// Search runs the four-signal disjunctive ranking over one document's chunks:
// exact phrase, all-terms AND, coverage OR (at least CoverageRatio of terms),
// and fuzzy for short queries. Any single signal is enough to match; scores
// add up, so a chunk matching the phrase also collects the AND and coverage
// contributions. Results are ordered by score descending, page ascending.
func (b *BleveIndex) Search(ctx context.Context, q *ChunkQuery) ([]*Hit, error) {
	terms := strings.Fields(q.Text)
	if len(terms) == 0 {
		return nil, nil
	}

	signals := make([]blevequery.Query, 0, 4)

	phrase := bleve.NewMatchPhraseQuery(q.Text)
	phrase.SetField("content")
	phrase.SetBoost(q.Boosts.Phrase)
	signals = append(signals, phrase)

	and := bleve.NewMatchQuery(q.Text)
	and.SetField("content")
	and.SetOperator(blevequery.MatchQueryOperatorAnd)
	and.SetBoost(q.Boosts.And)
	signals = append(signals, and)

	perTerm := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		tq := bleve.NewMatchQuery(term)
		tq.SetField("content")
		perTerm = append(perTerm, tq)
	}
	coverage := bleve.NewDisjunctionQuery(perTerm...)
	coverage.SetMin(math.Ceil(q.Boosts.CoverageRatio * float64(len(terms))))
	coverage.SetBoost(q.Boosts.Coverage)
	signals = append(signals, coverage)

	// Fuzzy matching over many terms produces noise faster than recall, so it
	// only participates for short queries.
	if len(terms) <= q.Boosts.FuzzyMaxTerms {
		fuzzy := bleve.NewMatchQuery(q.Text)
		fuzzy.SetField("content")
		fuzzy.SetFuzziness(q.Boosts.Fuzziness)
		fuzzy.SetBoost(q.Boosts.Fuzzy)
		signals = append(signals, fuzzy)
	}

	anySignal := bleve.NewDisjunctionQuery(signals...)
	anySignal.SetMin(1)

	docFilter := bleve.NewTermQuery(q.DocumentID)
	docFilter.SetField("documentId")

	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(docFilter, anySignal))
	req.Size = q.Limit
	req.Fields = []string{"*"}
	req.SortBy([]string{"-_score", "pageNumber"})
	req.Highlight = bleve.NewHighlightWithStyle("html")
	req.Highlight.AddField("content")

	results, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	out := make([]*Hit, 0, len(results.Hits))
	for _, hit := range results.Hits {
		h := &Hit{Score: hit.Score, Chunk: chunkFromFields(hit.ID, hit.Fields)}
		if frags, ok := hit.Fragments["content"]; ok && len(frags) > 0 {
			h.Fragment = emphasisTags.Replace(frags[0])
		}
		out = append(out, h)
	}
	return out, nil
}

// Bleve's html highlighter wraps matches in <mark> tags; the fragment
// contract downstream (matchedText extraction, highlight reconstruction)
// is <em> spans, so the tags are rewritten on the way out.
var emphasisTags = strings.NewReplacer("<mark>", "<em>", "</mark>", "</em>")

func chunkFromFields(id string, fields map[string]interface{}) models.Chunk {
	return models.Chunk{
		ChunkID:           id,
		DocumentID:        fieldString(fields, "documentId"),
		ChunkIndex:        int(fieldFloat(fields, "chunkIndex")),
		PageNumber:        int(fieldFloat(fields, "pageNumber")),
		Content:           fieldString(fields, "content"),
		NormalizedContent: fieldString(fields, "normalizedContent"),
		AnchorY:           fieldFloat(fields, "anchorY"),
		RectTop:           fieldFloat(fields, "rectTop"),
		RectLeft:          fieldFloat(fields, "rectLeft"),
		RectWidth:         fieldFloat(fields, "rectWidth"),
		RectHeight:        fieldFloat(fields, "rectHeight"),
	}
}

func fieldString(fields map[string]interface{}, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

func fieldFloat(fields map[string]interface{}, key string) float64 {
	if v, ok := fields[key].(float64); ok {
		return v
	}
	return 0
}

// DeleteByDocument removes every chunk of the given document from the index.
func (b *BleveIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	docFilter := bleve.NewTermQuery(documentID)
	docFilter.SetField("documentId")

	for {
		req := bleve.NewSearchRequest(docFilter)
		req.Size = 1000
		results, err := b.index.Search(req)
		if err != nil {
			return fmt.Errorf("Bleve delete scan failed: %w", err)
		}
		if len(results.Hits) == 0 {
			return nil
		}
		batch := b.index.NewBatch()
		for _, hit := range results.Hits {
			batch.Delete(hit.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("Bleve delete batch failed: %w", err)
		}
	}
}

// DocCount returns the total number of chunks in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
