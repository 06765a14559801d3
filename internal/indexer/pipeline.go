package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/tsunagu/internal/embedding"
	"github.com/hyperjump/tsunagu/internal/events"
	"github.com/hyperjump/tsunagu/internal/extract"
	"github.com/hyperjump/tsunagu/internal/fileid"
	"github.com/hyperjump/tsunagu/internal/keyword"
	"github.com/hyperjump/tsunagu/internal/layout"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/storage"
	"github.com/hyperjump/tsunagu/internal/vector"
)

// ErrNoExtractableText is returned when a document yields zero chunks, e.g.
// a scanned PDF with no text layer.
var ErrNoExtractableText = errors.New("no extractable text")

// Pipeline runs document ingestion: extract, group into paragraphs, chunk,
// embed, and index into storage, keyword, and vector indices.
//
// Lifecycle: a document moves UPLOADED -> PROCESSING -> INDEXING ->
// COMPLETED, or to FAILED with the reason recorded. Every transition is
// published on the event bus.
type Pipeline struct {
	storage      storage.Storage
	keywordIndex keyword.Index
	vectorIndex  vector.VectorIndex
	embedder     embedding.Embedder // nil disables embeddings
	layout       *layout.Extractor
	chunker      Chunker
	bus          *events.Bus
	batchSize    int
	logger       *zap.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets a logger for ingestion progress and warnings.
func WithLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline creates an ingestion pipeline. embedder may be nil, in which
// case chunks are indexed without embeddings and retrieval is lexical-only.
func NewPipeline(
	st storage.Storage,
	keywordIndex keyword.Index,
	vectorIndex vector.VectorIndex,
	embedder embedding.Embedder,
	layoutExtractor *layout.Extractor,
	chunker Chunker,
	bus *events.Bus,
	batchSize int,
	opts ...PipelineOption,
) *Pipeline {
	if batchSize <= 0 {
		batchSize = 50
	}
	p := &Pipeline{
		storage:      st,
		keywordIndex: keywordIndex,
		vectorIndex:  vectorIndex,
		embedder:     embedder,
		layout:       layoutExtractor,
		chunker:      chunker,
		bus:          bus,
		batchSize:    batchSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IngestFile registers the PDF at path (if not yet known) and processes it.
// The document ID is derived from the absolute path, so re-dropping the same
// file updates the same document. Unchanged completed files are skipped.
// Returns the document ID.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}
	if !strings.EqualFold(filepath.Ext(absPath), ".pdf") {
		return "", fmt.Errorf("not a PDF file: %s", absPath)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("not a regular file: %s", absPath)
	}

	docID := fileid.FileDocID(absPath)
	doc, err := p.storage.GetDocument(ctx, docID)
	switch {
	case err == nil:
		if unchangedSinceIndexing(doc, info) {
			if p.logger != nil {
				p.logger.Debug("skipping unchanged file", zap.String("path", absPath))
			}
			return docID, nil
		}
	case errors.Is(err, storage.ErrNotFound):
		doc = &models.Document{
			ID:       docID,
			FileName: filepath.Base(absPath),
			FilePath: absPath,
			FileSize: info.Size(),
			Status:   models.StatusUploaded,
		}
		if err := p.storage.CreateDocument(ctx, doc); err != nil {
			return "", fmt.Errorf("create document: %w", err)
		}
	default:
		return "", fmt.Errorf("get document: %w", err)
	}

	return docID, p.IngestDocument(ctx, docID)
}

func unchangedSinceIndexing(doc *models.Document, info os.FileInfo) bool {
	return doc.Status == models.StatusCompleted &&
		doc.FileSize == info.Size() &&
		doc.IndexedAt != nil &&
		info.ModTime().Before(*doc.IndexedAt)
}

// IngestDocument processes an already registered document through the full
// lifecycle. On failure the document is marked FAILED with the reason, its
// retry count is incremented, and the error is returned.
func (p *Pipeline) IngestDocument(ctx context.Context, docID string) error {
	doc, err := p.storage.GetDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}

	if err := p.storage.MarkProcessing(ctx, docID); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	p.publish(events.DocumentProcessing, docID, models.StatusProcessing, 0, "")

	pages, err := extract.ReadFile(doc.FilePath)
	if err != nil {
		return p.fail(ctx, docID, fmt.Errorf("extract pages: %w", err))
	}

	var chunks []*models.Chunk
	for _, page := range pages {
		paragraphs := p.layout.ExtractPage(page.Runs, page.Viewport)
		pageChunks := p.chunker.ChunkPage(docID, PageContent{
			PageNumber: page.Number,
			Paragraphs: paragraphs,
		}, len(chunks))
		chunks = append(chunks, pageChunks...)
	}
	if len(chunks) == 0 {
		return p.fail(ctx, docID, fmt.Errorf("document %s: %w", docID, ErrNoExtractableText))
	}

	// Clear previous index entries so re-processing replaces rather than
	// accumulates (chunk IDs are new on every run).
	if err := p.removeFromIndices(ctx, docID); err != nil {
		return p.fail(ctx, docID, err)
	}

	if err := p.storage.MarkIndexing(ctx, docID, len(pages), len(chunks)); err != nil {
		return p.fail(ctx, docID, fmt.Errorf("mark indexing: %w", err))
	}
	p.publish(events.DocumentIndexing, docID, models.StatusIndexing, 0, "")

	embedder := p.embedder
	indexed := 0
	for start := 0; start < len(chunks); start += p.batchSize {
		if err := ctx.Err(); err != nil {
			return p.fail(ctx, docID, err)
		}
		end := start + p.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		// Embeddings are best-effort: on failure the document still indexes,
		// retrieval just degrades to lexical-only scoring for these chunks.
		if embedder != nil {
			if err := p.embedBatch(ctx, embedder, batch); err != nil {
				if p.logger != nil {
					p.logger.Warn("embedding unavailable, continuing lexical-only",
						zap.String("doc_id", docID), zap.Error(err))
				}
				embedder = nil
			}
		}

		if err := p.storage.BatchCreateChunks(ctx, batch); err != nil {
			return p.fail(ctx, docID, fmt.Errorf("store chunks: %w", err))
		}
		if err := p.keywordIndex.Upsert(ctx, batch); err != nil {
			return p.fail(ctx, docID, fmt.Errorf("index keywords: %w", err))
		}
		if err := p.addVectors(ctx, batch); err != nil {
			return p.fail(ctx, docID, fmt.Errorf("index vectors: %w", err))
		}

		indexed += len(batch)
		if err := p.storage.UpdateProgress(ctx, docID, indexed); err != nil {
			return p.fail(ctx, docID, fmt.Errorf("update progress: %w", err))
		}
		p.publish(events.DocumentProgress, docID, models.StatusIndexing, indexed*100/len(chunks), "")
	}

	if err := p.storage.MarkCompleted(ctx, docID); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	p.publish(events.DocumentCompleted, docID, models.StatusCompleted, 100, "")
	if p.logger != nil {
		p.logger.Info("document indexed",
			zap.String("doc_id", docID),
			zap.Int("pages", len(pages)),
			zap.Int("chunks", len(chunks)))
	}
	return nil
}

func (p *Pipeline) embedBatch(ctx context.Context, embedder embedding.Embedder, batch []*models.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.NormalizedContent
	}
	embeddings, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	for i := range batch {
		batch[i].Embedding = embeddings[i]
	}
	return nil
}

func (p *Pipeline) addVectors(ctx context.Context, batch []*models.Chunk) error {
	var ids []string
	var vecs [][]float32
	for _, c := range batch {
		if len(c.Embedding) > 0 {
			ids = append(ids, c.ChunkID)
			vecs = append(vecs, c.Embedding)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return p.vectorIndex.Add(ctx, ids, vecs)
}

func (p *Pipeline) removeFromIndices(ctx context.Context, docID string) error {
	if err := p.keywordIndex.DeleteByDocument(ctx, docID); err != nil {
		return fmt.Errorf("clear keyword index: %w", err)
	}
	old, err := p.storage.GetChunksByDocumentID(ctx, docID)
	if err != nil {
		return fmt.Errorf("get chunks: %w", err)
	}
	if len(old) > 0 {
		ids := make([]string, len(old))
		for i, c := range old {
			ids[i] = c.ChunkID
		}
		if err := p.vectorIndex.Remove(ctx, ids); err != nil {
			return fmt.Errorf("clear vector index: %w", err)
		}
	}
	if err := p.storage.DeleteChunksByDocumentID(ctx, docID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

func (p *Pipeline) fail(ctx context.Context, docID string, cause error) error {
	if err := p.storage.MarkFailed(ctx, docID, cause.Error()); err != nil && p.logger != nil {
		p.logger.Error("mark failed", zap.String("doc_id", docID), zap.Error(err))
	}
	p.publish(events.DocumentFailed, docID, models.StatusFailed, 0, cause.Error())
	if p.logger != nil {
		p.logger.Error("document processing failed", zap.String("doc_id", docID), zap.Error(cause))
	}
	return cause
}

// DeleteDocument removes a document from all indices and storage.
func (p *Pipeline) DeleteDocument(ctx context.Context, docID string) error {
	if err := p.storage.MarkDeleting(ctx, docID); err != nil {
		return fmt.Errorf("mark deleting: %w", err)
	}
	if err := p.removeFromIndices(ctx, docID); err != nil {
		return err
	}
	if err := p.storage.DeleteDocument(ctx, docID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	p.publish(events.DocumentDeleted, docID, models.StatusDeleting, 0, "")
	if p.logger != nil {
		p.logger.Debug("document deleted", zap.String("doc_id", docID))
	}
	return nil
}

// DeletePath removes the document previously ingested from path.
func (p *Pipeline) DeletePath(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	return p.DeleteDocument(ctx, fileid.FileDocID(absPath))
}

// IngestDirectory walks dir recursively and ingests every PDF. Returns the
// number of files processed and the first error encountered.
func (p *Pipeline) IngestDirectory(ctx context.Context, dir string) (int, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	n := 0
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".pdf") {
			return nil
		}
		if _, err := p.IngestFile(ctx, path); err != nil {
			if p.logger != nil {
				p.logger.Warn("ingest failed", zap.String("path", path), zap.Error(err))
			}
			return nil
		}
		n++
		return nil
	})
	return n, err
}

func (p *Pipeline) publish(t events.EventType, docID string, status models.DocumentStatus, progress int, msg string) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(events.Event{
		Type:       t,
		DocumentID: docID,
		Status:     status,
		Progress:   progress,
		Message:    msg,
	})
}
