package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/tsunagu/internal/config"
	"github.com/hyperjump/tsunagu/internal/events"
	"github.com/hyperjump/tsunagu/internal/fileid"
	"github.com/hyperjump/tsunagu/internal/keyword"
	"github.com/hyperjump/tsunagu/internal/layout"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/storage"
	"github.com/hyperjump/tsunagu/internal/vector"
)

type pipelineFixture struct {
	pipeline *Pipeline
	storage  storage.Storage
	keyword  keyword.Index
	vectors  vector.VectorIndex
	bus      *events.Bus
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	dir := t.TempDir()

	st, err := storage.NewSQLiteStorage(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	kw, err := keyword.NewBleveIndex(filepath.Join(dir, "bleve"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = kw.Close() })

	vi, err := vector.NewMemoryIndex(8)
	if err != nil {
		t.Fatal(err)
	}

	bus := events.NewBus()
	t.Cleanup(bus.Close)

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)

	p := NewPipeline(st, kw, vi, nil,
		layout.NewExtractor(cfg.Layout),
		NewParagraphChunker(),
		bus, 50)
	return &pipelineFixture{pipeline: p, storage: st, keyword: kw, vectors: vi, bus: bus}
}

func TestIngestFile_rejectsNonPDF(t *testing.T) {
	f := newPipelineFixture(t)
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("plain text"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := f.pipeline.IngestFile(context.Background(), path); err == nil {
		t.Error("non-PDF path should be rejected")
	}
}

func TestIngestFile_missingFile(t *testing.T) {
	f := newPipelineFixture(t)
	if _, err := f.pipeline.IngestFile(context.Background(), filepath.Join(t.TempDir(), "ghost.pdf")); err == nil {
		t.Error("missing file should be rejected")
	}
}

func TestIngestFile_corruptPDFMarksFailed(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "broken.pdf")
	if err := os.WriteFile(path, []byte("not really a pdf"), 0644); err != nil {
		t.Fatal(err)
	}

	sub := f.bus.Subscribe(16)
	defer f.bus.Unsubscribe(sub)

	docID, err := f.pipeline.IngestFile(ctx, path)
	if err == nil {
		t.Fatal("corrupt PDF should fail ingestion")
	}
	if docID == "" {
		t.Fatal("document ID should be returned even on failure")
	}

	doc, getErr := f.storage.GetDocument(ctx, docID)
	if getErr != nil {
		t.Fatal(getErr)
	}
	if doc.Status != models.StatusFailed {
		t.Errorf("status = %s, want FAILED", doc.Status)
	}
	if doc.ErrorMessage == "" {
		t.Error("failure reason should be recorded")
	}
	if doc.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", doc.RetryCount)
	}

	sawProcessing, sawFailed := false, false
	deadline := time.After(time.Second)
	for !(sawProcessing && sawFailed) {
		select {
		case ev := <-sub.C:
			switch ev.Type {
			case events.DocumentProcessing:
				sawProcessing = true
			case events.DocumentFailed:
				sawFailed = true
				if ev.Message == "" {
					t.Error("failed event should carry the reason")
				}
			}
		case <-deadline:
			t.Fatalf("lifecycle events missing: processing=%v failed=%v", sawProcessing, sawFailed)
		}
	}
}

func TestIngestDocument_unknownDocument(t *testing.T) {
	f := newPipelineFixture(t)
	err := f.pipeline.IngestDocument(context.Background(), "no-such-doc")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

// seedIndexedDocument registers a document with chunks across storage and
// both indices, as a completed ingestion would have left them.
func seedIndexedDocument(t *testing.T, f *pipelineFixture, docID string) {
	t.Helper()
	ctx := context.Background()
	doc := &models.Document{ID: docID, FileName: "a.pdf", FilePath: "/tmp/a.pdf", Status: models.StatusCompleted}
	if err := f.storage.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	chunks := []*models.Chunk{
		{ChunkID: docID + "-c0", DocumentID: docID, ChunkIndex: 0, PageNumber: 1,
			Content: "alpha beta gamma", NormalizedContent: "alpha beta gamma"},
		{ChunkID: docID + "-c1", DocumentID: docID, ChunkIndex: 1, PageNumber: 2,
			Content: "delta epsilon", NormalizedContent: "delta epsilon"},
	}
	if err := f.storage.BatchCreateChunks(ctx, chunks); err != nil {
		t.Fatal(err)
	}
	if err := f.keyword.Upsert(ctx, chunks); err != nil {
		t.Fatal(err)
	}
	vecs := [][]float32{{1, 0, 0, 0, 0, 0, 0, 0}, {0, 1, 0, 0, 0, 0, 0, 0}}
	if err := f.vectors.Add(ctx, []string{chunks[0].ChunkID, chunks[1].ChunkID}, vecs); err != nil {
		t.Fatal(err)
	}
}

func TestDeleteDocument_clearsStorageAndIndices(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	seedIndexedDocument(t, f, "doc-del")

	sub := f.bus.Subscribe(16)
	defer f.bus.Unsubscribe(sub)

	if err := f.pipeline.DeleteDocument(ctx, "doc-del"); err != nil {
		t.Fatal(err)
	}

	if _, err := f.storage.GetDocument(ctx, "doc-del"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("document row should be gone, got %v", err)
	}
	count, _ := f.storage.CountChunks(ctx)
	if count != 0 {
		t.Errorf("chunk rows left behind: %d", count)
	}
	kwCount, _ := f.keyword.DocCount()
	if kwCount != 0 {
		t.Errorf("keyword entries left behind: %d", kwCount)
	}
	if f.vectors.Size() != 0 {
		t.Errorf("vectors left behind: %d", f.vectors.Size())
	}

	select {
	case ev := <-sub.C:
		if ev.Type != events.DocumentDeleted {
			t.Errorf("event type = %s", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no deletion event published")
	}
}

func TestDeleteDocument_unknownDocument(t *testing.T) {
	f := newPipelineFixture(t)
	if err := f.pipeline.DeleteDocument(context.Background(), "ghost"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestDeletePath_usesPathDerivedID(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "watched.pdf")
	absPath, err := filepath.Abs(path)
	if err != nil {
		t.Fatal(err)
	}
	docID := fileid.FileDocID(absPath)
	seedIndexedDocument(t, f, docID)

	if err := f.pipeline.DeletePath(ctx, path); err != nil {
		t.Fatal(err)
	}
	if _, err := f.storage.GetDocument(ctx, docID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("document should be removed by path, got %v", err)
	}
}
