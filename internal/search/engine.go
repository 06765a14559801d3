// Package search provides hybrid related-passage retrieval over a document's
// chunks.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/tsunagu/internal/config"
	"github.com/hyperjump/tsunagu/internal/embedding"
	"github.com/hyperjump/tsunagu/internal/indexer"
	"github.com/hyperjump/tsunagu/internal/keyword"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/vector"
)

// ErrRetrievalUnavailable is returned when the lexical index cannot serve the
// query at all, as opposed to serving it with zero hits.
var ErrRetrievalUnavailable = errors.New("retrieval unavailable")

// Engine ranks a document's chunks against a query passage. Lexical ranking
// always runs; when an embedder is configured, lexical candidates are
// rescored with cosine similarity into a hybrid score.
type Engine struct {
	keywordIndex keyword.Index
	vectorIndex  vector.VectorIndex
	embedder     embedding.Embedder // nil disables the semantic component
	cfg          *config.SearchConfig
	logger       *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a logger for retrieval diagnostics.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a retrieval engine. embedder may be nil for lexical-only
// ranking.
func NewEngine(
	keywordIndex keyword.Index,
	vectorIndex vector.VectorIndex,
	embedder embedding.Embedder,
	cfg *config.SearchConfig,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		keywordIndex: keywordIndex,
		vectorIndex:  vectorIndex,
		embedder:     embedder,
		cfg:          cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FindRelated returns the chunks of q.DocumentID most related to q.Query,
// ordered by score descending with page number as tie-breaker. An empty or
// whitespace-only query yields empty results, not an error.
func (e *Engine) FindRelated(ctx context.Context, q *models.RelatedQuery) ([]*models.RelatedResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if q.Limit > e.cfg.MaxLimit {
		q.Limit = e.cfg.MaxLimit
	}

	normalized := indexer.Normalize(q.Query)
	if normalized == "" {
		return []*models.RelatedResult{}, nil
	}

	// Fetch one extra candidate when a chunk is excluded: the penalty may
	// push it below a hit that would otherwise sit just outside the window.
	candidates := q.Limit
	if q.ExcludeChunkID != "" {
		candidates++
	}

	hits, err := e.keywordIndex.Search(ctx, &keyword.ChunkQuery{
		DocumentID: q.DocumentID,
		Text:       normalized,
		Limit:      candidates,
		Boosts: keyword.Boosts{
			Phrase:        e.cfg.PhraseBoost,
			And:           e.cfg.AndBoost,
			Coverage:      e.cfg.CoverageBoost,
			CoverageRatio: e.cfg.CoverageRatio,
			Fuzzy:         e.cfg.FuzzyBoost,
			FuzzyMaxTerms: e.cfg.FuzzyMaxTerms,
			Fuzziness:     e.cfg.Fuzziness,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalUnavailable, err)
	}
	if len(hits) == 0 {
		return []*models.RelatedResult{}, nil
	}

	queryEmbedding := e.embedQuery(ctx, normalized)

	results := make([]*models.RelatedResult, 0, len(hits))
	for _, hit := range hits {
		score := hit.Score
		if queryEmbedding != nil {
			score = e.hybridScore(hit, queryEmbedding)
		}
		// Soft self-match penalty: the source chunk trivially matches its own
		// text, but a strong enough neighbor may still outrank it elsewhere
		// in the document.
		if q.ExcludeChunkID != "" && hit.Chunk.ChunkID == q.ExcludeChunkID {
			score *= e.cfg.SelfMatchPenalty
		}
		results = append(results, e.buildResult(hit, q.Query, score))
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].PageNumber < results[j].PageNumber
	})
	if len(results) > q.Limit {
		results = results[:q.Limit]
	}

	// Confidence is relative to the best hit of this query.
	top := results[0].Score
	for _, r := range results {
		if top > 0 {
			r.Confidence = roundTo3(r.Score / top)
		}
	}
	return results, nil
}

// embedQuery returns the query embedding, or nil when embeddings are
// disabled or the embedder fails; retrieval then degrades to lexical-only.
func (e *Engine) embedQuery(ctx context.Context, text string) []float32 {
	if e.embedder == nil {
		return nil
	}
	emb, err := e.embedder.Embed(ctx, text)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("query embedding failed, ranking lexical-only", zap.Error(err))
		}
		return nil
	}
	return emb
}

// hybridScore blends the chunk's cosine similarity with the saturated BM25
// score. A candidate without a stored vector keeps its saturated lexical
// score alone; it is never excluded for lacking an embedding.
func (e *Engine) hybridScore(hit *keyword.Hit, queryEmbedding []float32) float64 {
	lexical := saturate(hit.Score, e.cfg.BM25Saturation)
	vec, ok := e.vectorIndex.Get(hit.Chunk.ChunkID)
	if !ok {
		return lexical
	}
	semantic := cosineToUnit(vector.Cosine(queryEmbedding, vec))
	return e.cfg.VectorWeight*semantic + e.cfg.LexicalWeight*lexical
}

func (e *Engine) buildResult(hit *keyword.Hit, rawQuery string, score float64) *models.RelatedResult {
	matched := matchedTextFromFragment(hit.Fragment, rawQuery)
	rect := hit.Chunk.Rect()
	r := &models.RelatedResult{
		ChunkID:     hit.Chunk.ChunkID,
		DocumentID:  hit.Chunk.DocumentID,
		PageNumber:  hit.Chunk.PageNumber,
		Snippet:     snippet(hit.Fragment, hit.Chunk.Content, e.cfg.SnippetLength),
		MatchedText: matched,
		Score:       score,
		AnchorY:     hit.Chunk.AnchorY,
		RectTop:     rect.Top,
		RectLeft:    rect.Left,
		RectWidth:   rect.Width,
		RectHeight:  rect.Height,
	}
	narrowRect(r, &hit.Chunk, matched)
	return r
}
