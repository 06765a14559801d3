// Package integration provides end-to-end tests (requires real storage and indices).
package integration

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/tsunagu/internal/config"
	"github.com/hyperjump/tsunagu/internal/embedding"
	"github.com/hyperjump/tsunagu/internal/highlight"
	"github.com/hyperjump/tsunagu/internal/indexer"
	"github.com/hyperjump/tsunagu/internal/keyword"
	"github.com/hyperjump/tsunagu/internal/layout"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/search"
	"github.com/hyperjump/tsunagu/internal/storage"
	"github.com/hyperjump/tsunagu/internal/vector"
)

// a4 is a typical PDF page in native units.
var a4 = models.Viewport{Width: 595, Height: 842}

// testPage is one synthetic page of positioned runs, standing in for the
// output of PDF extraction.
type testPage struct {
	number int
	runs   []models.TextRun
}

func testDocumentPages() []testPage {
	return []testPage{
		{number: 1, runs: []models.TextRun{
			// Paragraph near the top of page 1, two lines 15 units apart.
			{Text: "Attention mechanisms let a model weigh", BaselineX: 60, BaselineY: 760, Width: 300, Height: 12},
			{Text: "distant token pairs when encoding a sequence.", BaselineX: 60, BaselineY: 745, Width: 330, Height: 12},
			// Separate paragraph well below (gap 145 units).
			{Text: "Convolutional layers slide small filters across", BaselineX: 60, BaselineY: 600, Width: 320, Height: 12},
			{Text: "the image to detect local patterns.", BaselineX: 60, BaselineY: 585, Width: 260, Height: 12},
		}},
		{number: 2, runs: []models.TextRun{
			{Text: "Self attention computes pairwise scores", BaselineX: 60, BaselineY: 760, Width: 290, Height: 12},
			{Text: "between all tokens in the sequence.", BaselineX: 60, BaselineY: 745, Width: 270, Height: 12},
		}},
	}
}

type fixture struct {
	cfg      *config.Config
	storage  storage.Storage
	keyword  keyword.Index
	vectors  vector.VectorIndex
	embedder embedding.Embedder
	engine   *search.Engine
}

func newFixture(t *testing.T, withEmbedder bool) *fixture {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = filepath.Join(dir, "db.sqlite")
	cfg.Storage.BleveIndexPath = filepath.Join(dir, "bleve")
	cfg.Storage.VectorIndexPath = filepath.Join(dir, "vectors")

	st, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	kw, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = kw.Close() })

	vi, err := vector.NewMemoryIndex(32)
	if err != nil {
		t.Fatal(err)
	}

	var embedder embedding.Embedder
	if withEmbedder {
		embedder = embedding.NewMockEmbedder(32)
		t.Cleanup(func() { _ = embedder.Close() })
	}

	return &fixture{
		cfg:      cfg,
		storage:  st,
		keyword:  kw,
		vectors:  vi,
		embedder: embedder,
		engine:   search.NewEngine(kw, vi, embedder, &cfg.Search),
	}
}

// indexPages runs the synthetic pages through layout analysis and paragraph
// chunking, then registers the chunks across storage and both indices, the
// way a completed ingestion would.
func (f *fixture) indexPages(t *testing.T, docID string, pages []testPage) []*models.Chunk {
	t.Helper()
	ctx := context.Background()

	doc := &models.Document{ID: docID, FileName: docID + ".pdf", FilePath: "/tmp/" + docID + ".pdf", Status: models.StatusCompleted}
	if err := f.storage.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}

	extractor := layout.NewExtractor(f.cfg.Layout)
	chunker := indexer.NewParagraphChunker()

	var chunks []*models.Chunk
	for _, page := range pages {
		paragraphs := extractor.ExtractPage(page.runs, a4)
		pageChunks := chunker.ChunkPage(docID, indexer.PageContent{
			PageNumber: page.number,
			Paragraphs: paragraphs,
		}, len(chunks))
		chunks = append(chunks, pageChunks...)
	}
	if err := f.storage.BatchCreateChunks(ctx, chunks); err != nil {
		t.Fatal(err)
	}
	if err := f.keyword.Upsert(ctx, chunks); err != nil {
		t.Fatal(err)
	}

	if f.embedder != nil {
		texts := make([]string, len(chunks))
		ids := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.NormalizedContent
			ids[i] = c.ChunkID
		}
		vecs, err := f.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.vectors.Add(ctx, ids, vecs); err != nil {
			t.Fatal(err)
		}
	}
	return chunks
}

// layerProvider serves text-layer snapshots built from the synthetic runs,
// misbehaving for the first few calls to exercise the retry loop.
type layerProvider struct {
	layers      map[int]*highlight.TextLayer
	emptyBefore int
	calls       int
}

func newLayerProvider(pages []testPage, emptyBefore int) *layerProvider {
	layers := make(map[int]*highlight.TextLayer)
	for _, page := range pages {
		layer := &highlight.TextLayer{PageNumber: page.number}
		for _, r := range page.runs {
			layer.Nodes = append(layer.Nodes, highlight.TextNode{
				Text:   r.Text,
				X:      r.BaselineX / a4.Width,
				Y:      1 - (r.BaselineY+r.Height)/a4.Height,
				Width:  r.Width / a4.Width,
				Height: r.Height / a4.Height,
			})
		}
		layers[page.number] = layer
	}
	return &layerProvider{layers: layers, emptyBefore: emptyBefore}
}

func (p *layerProvider) Snapshot(_ context.Context, pageNumber int) (*highlight.TextLayer, error) {
	p.calls++
	if p.calls <= p.emptyBefore {
		return &highlight.TextLayer{PageNumber: pageNumber}, nil
	}
	return p.layers[pageNumber], nil
}

func TestIntegration_RelatedPassagesWithHighlights(t *testing.T) {
	f := newFixture(t, true)
	pages := testDocumentPages()
	f.indexPages(t, "doc1", pages)
	ctx := context.Background()

	results, err := f.engine.FindRelated(ctx, &models.RelatedQuery{
		DocumentID: "doc1",
		Query:      "attention token pairs",
		Limit:      5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) < 2 {
		t.Fatalf("expected the two attention passages, got %d results", len(results))
	}

	if results[0].Confidence != 1.0 {
		t.Errorf("top confidence = %f, want exactly 1.0", results[0].Confidence)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted by score: %f after %f", results[i].Score, results[i-1].Score)
		}
		if results[i].Confidence > 1.0 {
			t.Errorf("confidence above 1.0: %f", results[i].Confidence)
		}
	}

	// The page 1 attention paragraph carries all three query terms verbatim,
	// so it must be among the results regardless of how the mock embedder's
	// cosine component orders the attention passages against each other.
	var match *models.RelatedResult
	for _, r := range results {
		if r.PageNumber == 1 {
			match = r
			break
		}
	}
	if match == nil {
		t.Fatal("page 1 attention paragraph missing from results")
	}
	if !strings.Contains(match.Snippet, "<em>") {
		t.Errorf("lexical match should carry a highlighted snippet: %q", match.Snippet)
	}
	if match.RectWidth <= 0 || match.RectHeight <= 0 {
		t.Errorf("paragraph chunk should carry geometry: %+v", match)
	}
	// That paragraph sits near the top of its page.
	if match.RectTop > 0.2 {
		t.Errorf("anchor rect top = %f, want near page top", match.RectTop)
	}

	// Reconstruct highlight rectangles against a text layer that is empty on
	// the first snapshot, as a still-rendering page would be.
	provider := newLayerProvider(pages, 1)
	rec := highlight.NewReconstructor(f.cfg.Highlight)
	rects := rec.Reconstruct(ctx, match, provider)
	if len(rects) == 0 {
		t.Fatal("expected highlight rectangles for a lexical match")
	}
	if provider.calls < 2 {
		t.Errorf("empty first snapshot should have been retried, calls = %d", provider.calls)
	}
	for _, r := range rects {
		if r.PageNumber != match.PageNumber {
			t.Errorf("rect on page %d, want %d", r.PageNumber, match.PageNumber)
		}
		if r.X < 0 || r.Y < 0 || r.X+r.Width > 1 || r.Y+r.Height > 1 {
			t.Errorf("rect outside page: %+v", r)
		}
	}
	// The highlight lands inside the matched paragraph's vertical band,
	// allowing for padding.
	band := match.RectTop + match.RectHeight + 0.02
	for _, r := range rects {
		if r.Y > band {
			t.Errorf("rect y = %f outside paragraph band (top %f, height %f)", r.Y, match.RectTop, match.RectHeight)
		}
	}
}

func TestIntegration_LexicalOnlyWithoutEmbedder(t *testing.T) {
	f := newFixture(t, false)
	pages := testDocumentPages()
	f.indexPages(t, "doc1", pages)

	results, err := f.engine.FindRelated(context.Background(), &models.RelatedQuery{
		DocumentID: "doc1",
		Query:      "convolutional layers detect local patterns",
		Limit:      5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("expected lexical results without an embedder")
	}
	top := results[0]
	if top.PageNumber != 1 {
		t.Errorf("page = %d", top.PageNumber)
	}
	if !strings.Contains(strings.ToLower(top.Snippet), "convolutional") {
		t.Errorf("snippet = %q", top.Snippet)
	}
	if top.Confidence != 1.0 {
		t.Errorf("confidence = %f", top.Confidence)
	}
}

func TestIntegration_DocumentScoping(t *testing.T) {
	f := newFixture(t, false)
	f.indexPages(t, "doc1", testDocumentPages())
	f.indexPages(t, "doc2", []testPage{
		{number: 1, runs: []models.TextRun{
			{Text: "Attention mechanisms in a different paper entirely.", BaselineX: 60, BaselineY: 760, Width: 340, Height: 12},
		}},
	})

	results, err := f.engine.FindRelated(context.Background(), &models.RelatedQuery{
		DocumentID: "doc2",
		Query:      "attention mechanisms",
		Limit:      10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected only doc2's single chunk, got %d", len(results))
	}
	if results[0].DocumentID != "doc2" {
		t.Errorf("result leaked from %s", results[0].DocumentID)
	}
}
