package search

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/hyperjump/tsunagu/internal/config"
	"github.com/hyperjump/tsunagu/internal/embedding"
	"github.com/hyperjump/tsunagu/internal/keyword"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/vector"
)

// fakeKeywordIndex returns canned hits and records the last query.
type fakeKeywordIndex struct {
	hits      []*keyword.Hit
	err       error
	lastQuery *keyword.ChunkQuery
}

func (f *fakeKeywordIndex) Upsert(ctx context.Context, chunks []*models.Chunk) error { return nil }
func (f *fakeKeywordIndex) Search(ctx context.Context, q *keyword.ChunkQuery) ([]*keyword.Hit, error) {
	f.lastQuery = q
	if f.err != nil {
		return nil, f.err
	}
	if q.Limit < len(f.hits) {
		return f.hits[:q.Limit], nil
	}
	return f.hits, nil
}
func (f *fakeKeywordIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	return nil
}
func (f *fakeKeywordIndex) DocCount() (uint64, error) { return uint64(len(f.hits)), nil }
func (f *fakeKeywordIndex) Close() error              { return nil }

func searchConfig() *config.SearchConfig {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return &cfg.Search
}

func hit(chunkID string, page int, score float64, content string) *keyword.Hit {
	return &keyword.Hit{
		Chunk: models.Chunk{
			ChunkID:           chunkID,
			DocumentID:        "doc-1",
			PageNumber:        page,
			Content:           content,
			NormalizedContent: strings.ToLower(content),
			AnchorY:           0.3,
			RectTop:           0.3,
			RectLeft:          0.1,
			RectWidth:         0.8,
			RectHeight:        0.1,
		},
		Score:    score,
		Fragment: "",
	}
}

func newLexicalEngine(hits ...*keyword.Hit) (*Engine, *fakeKeywordIndex) {
	fk := &fakeKeywordIndex{hits: hits}
	vi, _ := vector.NewMemoryIndex(8)
	return NewEngine(fk, vi, nil, searchConfig()), fk
}

func TestFindRelated_lexicalRankingAndConfidence(t *testing.T) {
	e, _ := newLexicalEngine(
		hit("low", 1, 2.0, "a weaker match"),
		hit("high", 4, 8.0, "a stronger match"),
	)
	results, err := e.FindRelated(context.Background(), &models.RelatedQuery{
		DocumentID: "doc-1",
		Query:      "match",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ChunkID != "high" {
		t.Errorf("best score should rank first, got %s", results[0].ChunkID)
	}
	if results[0].Confidence != 1.0 {
		t.Errorf("top confidence = %f, want exactly 1.0", results[0].Confidence)
	}
	want := math.Round(2.0/8.0*1000) / 1000
	if results[1].Confidence != want {
		t.Errorf("second confidence = %f, want %f", results[1].Confidence, want)
	}
}

func TestFindRelated_pageNumberBreaksTies(t *testing.T) {
	e, _ := newLexicalEngine(
		hit("later-page", 9, 3.0, "same strength"),
		hit("earlier-page", 2, 3.0, "same strength"),
	)
	results, err := e.FindRelated(context.Background(), &models.RelatedQuery{
		DocumentID: "doc-1",
		Query:      "strength",
	})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].ChunkID != "earlier-page" {
		t.Errorf("equal scores should order by page: got %s first", results[0].ChunkID)
	}
}

func TestFindRelated_selfMatchPenaltyIsSoft(t *testing.T) {
	// The excluded chunk scores far above everything else; after the penalty
	// it drops below the neighbor but is still present.
	e, fk := newLexicalEngine(
		hit("self", 1, 10.0, "the selected passage itself"),
		hit("neighbor", 2, 4.0, "a related passage"),
	)
	results, err := e.FindRelated(context.Background(), &models.RelatedQuery{
		DocumentID:     "doc-1",
		Query:          "passage",
		ExcludeChunkID: "self",
		Limit:          2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].ChunkID != "neighbor" {
		t.Errorf("penalized self-match should not rank first: %s", results[0].ChunkID)
	}
	found := false
	for _, r := range results {
		if r.ChunkID == "self" {
			found = true
			if want := 10.0 * 0.05; math.Abs(r.Score-want) > 1e-9 {
				t.Errorf("self score = %f, want %f", r.Score, want)
			}
		}
	}
	if !found {
		t.Error("penalty must down-weight, not exclude, the source chunk")
	}
	// One extra candidate is fetched to compensate for the penalized slot.
	if fk.lastQuery.Limit != 3 {
		t.Errorf("candidate limit = %d, want limit+1", fk.lastQuery.Limit)
	}
}

func TestFindRelated_emptyQueryYieldsEmptyResults(t *testing.T) {
	e, fk := newLexicalEngine(hit("c1", 1, 1.0, "content"))
	for _, q := range []string{"", "   ", "\t\n"} {
		results, err := e.FindRelated(context.Background(), &models.RelatedQuery{
			DocumentID: "doc-1",
			Query:      q,
		})
		if err != nil {
			t.Fatalf("query %q: %v", q, err)
		}
		if len(results) != 0 {
			t.Errorf("query %q: expected empty results", q)
		}
	}
	if fk.lastQuery != nil {
		t.Error("blank queries must not reach the index")
	}
}

func TestFindRelated_missingDocumentIDRejected(t *testing.T) {
	e, _ := newLexicalEngine()
	if _, err := e.FindRelated(context.Background(), &models.RelatedQuery{Query: "x"}); err == nil {
		t.Error("expected validation error")
	}
}

func TestFindRelated_indexFailureWrapsErrRetrievalUnavailable(t *testing.T) {
	fk := &fakeKeywordIndex{err: errors.New("index corrupted")}
	vi, _ := vector.NewMemoryIndex(8)
	e := NewEngine(fk, vi, nil, searchConfig())

	_, err := e.FindRelated(context.Background(), &models.RelatedQuery{
		DocumentID: "doc-1",
		Query:      "anything",
	})
	if !errors.Is(err, ErrRetrievalUnavailable) {
		t.Errorf("expected ErrRetrievalUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "index corrupted") {
		t.Errorf("cause missing from error: %v", err)
	}
}

func TestFindRelated_limitClampedToMax(t *testing.T) {
	e, fk := newLexicalEngine(hit("c1", 1, 1.0, "content"))
	_, err := e.FindRelated(context.Background(), &models.RelatedQuery{
		DocumentID: "doc-1",
		Query:      "content",
		Limit:      10000,
	})
	if err != nil {
		t.Fatal(err)
	}
	if fk.lastQuery.Limit > searchConfig().MaxLimit+1 {
		t.Errorf("limit not clamped: %d", fk.lastQuery.Limit)
	}
}

func TestFindRelated_hybridBlendsVectorAndLexical(t *testing.T) {
	embedder := NewTestEmbedder()
	ctx := context.Background()

	// "similar" gets the embedding of text close to the query; "different"
	// gets an unrelated one. Lexical scores are equal so the vector component
	// decides the order.
	queryText := "attention weighs token pairs"
	simVec, _ := embedder.Embed(ctx, queryText)
	diffVec, _ := embedder.Embed(ctx, "an entirely unrelated passage about cooking")

	vi, _ := vector.NewMemoryIndex(len(simVec))
	if err := vi.Add(ctx, []string{"similar", "different"}, [][]float32{simVec, diffVec}); err != nil {
		t.Fatal(err)
	}

	fk := &fakeKeywordIndex{hits: []*keyword.Hit{
		hit("different", 1, 4.0, "token pairs appear here"),
		hit("similar", 2, 4.0, "attention weighs token pairs"),
	}}
	e := NewEngine(fk, vi, embedder, searchConfig())

	results, err := e.FindRelated(ctx, &models.RelatedQuery{
		DocumentID: "doc-1",
		Query:      queryText,
	})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].ChunkID != "similar" {
		t.Errorf("vector component should promote the semantically close chunk, got %s", results[0].ChunkID)
	}
	// Hybrid scores are a convex blend of two unit-range components.
	for _, r := range results {
		if r.Score < 0 || r.Score > 1 {
			t.Errorf("hybrid score out of unit range: %f", r.Score)
		}
	}
}

func TestFindRelated_chunkWithoutEmbeddingKeepsLexicalScore(t *testing.T) {
	embedder := NewTestEmbedder()
	vi, _ := vector.NewMemoryIndex(embedder.Dimensions())

	fk := &fakeKeywordIndex{hits: []*keyword.Hit{
		hit("no-vector", 1, 6.0, "matching text without a stored embedding"),
	}}
	cfg := searchConfig()
	e := NewEngine(fk, vi, embedder, cfg)

	results, err := e.FindRelated(context.Background(), &models.RelatedQuery{
		DocumentID: "doc-1",
		Query:      "matching text",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatal("chunk must not be excluded for lacking an embedding")
	}
	want := 6.0 / (6.0 + cfg.BM25Saturation)
	if math.Abs(results[0].Score-want) > 1e-9 {
		t.Errorf("score = %f, want saturated lexical %f", results[0].Score, want)
	}
}

// failingEmbedder always errors, simulating a down model server.
type failingEmbedder struct{}

func (f *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("connection refused")
}
func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("connection refused")
}
func (f *failingEmbedder) Dimensions() int { return 8 }
func (f *failingEmbedder) Close() error    { return nil }

func TestFindRelated_embedderFailureDegradesToLexical(t *testing.T) {
	fk := &fakeKeywordIndex{hits: []*keyword.Hit{hit("c1", 1, 3.0, "content")}}
	vi, _ := vector.NewMemoryIndex(8)
	e := NewEngine(fk, vi, &failingEmbedder{}, searchConfig())

	results, err := e.FindRelated(context.Background(), &models.RelatedQuery{
		DocumentID: "doc-1",
		Query:      "content",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Score != 3.0 {
		t.Errorf("embedder failure should fall back to raw lexical scores: %+v", results)
	}
}

// NewTestEmbedder returns the deterministic mock embedder used across engine tests.
func NewTestEmbedder() embedding.Embedder {
	return embedding.NewMockEmbedder(32)
}
