package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"studyrag/model"
	"studyrag/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu             sync.Mutex
	docs           map[uuid.UUID]*types.Document
	records        map[uuid.UUID][]types.VectorRecord
	deleteCalls    int
	upsertErr      error
	upsertFailures int
	upsertCalls    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:    make(map[uuid.UUID]*types.Document),
		records: make(map[uuid.UUID][]types.VectorRecord),
	}
}

func (f *fakeStore) CreateDocument(_ context.Context, doc types.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.ID] = &doc
	return nil
}

func (f *fakeStore) GetDocumentByID(_ context.Context, docID uuid.UUID) (*types.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[docID]
	if !ok {
		return nil, types.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (f *fakeStore) SetDocumentStatus(_ context.Context, docID uuid.UUID, status types.IngestStatus, failReason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc, ok := f.docs[docID]; ok {
		doc.Status = status
		doc.FailReason = failReason
	}
	return nil
}

func (f *fakeStore) SetDocumentCounts(_ context.Context, docID uuid.UUID, pages, chunks, failed int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc, ok := f.docs[docID]; ok {
		doc.PageCount = pages
		doc.ChunkCount = chunks
		doc.FailedChunks = failed
	}
	return nil
}

func (f *fakeStore) CanAccess(_ context.Context, userID, docID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[docID]
	return ok && doc.UserID == userID, nil
}

func (f *fakeStore) Upsert(_ context.Context, namespace uuid.UUID, records []types.VectorRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	if f.upsertFailures > 0 {
		f.upsertFailures--
		return model.NewTransient("vectorstore", errors.New("connection reset"))
	}
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.records[namespace] = append(f.records[namespace], records...)
	return nil
}

func (f *fakeStore) Query(_ context.Context, namespace uuid.UUID, _ []float32, topK int) ([]types.Match, error) {
	return nil, nil
}

func (f *fakeStore) ListChunks(_ context.Context, namespace uuid.UUID) ([]types.Chunk, error) {
	return nil, nil
}

func (f *fakeStore) DeleteNamespace(_ context.Context, namespace uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	delete(f.records, namespace)
	return nil
}

func (f *fakeStore) SaveFlashcard(_ context.Context, _ types.Flashcard) error {
	return nil
}

func (f *fakeStore) GetFlashcardByID(_ context.Context, _ uuid.UUID) (*types.Flashcard, error) {
	return nil, types.ErrNotFound
}

func (f *fakeStore) storedCount(namespace uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records[namespace])
}

func (f *fakeStore) doc(docID uuid.UUID) types.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.docs[docID]
}

type fakeExtractor struct {
	pages   []types.Page
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeExtractor) Extract(ctx context.Context, sourceURL string) ([]types.Page, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}

type fakeEmbedder struct {
	failOn  string
	failAll bool
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.failAll || (f.failOn != "" && strings.Contains(text, f.failOn)) {
		return nil, errors.New("embedding blew up")
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return 3 }

func testPages(n int) []types.Page {
	pages := make([]types.Page, n)
	for i := range pages {
		pages[i] = types.Page{
			Number: i + 1,
			Text:   fmt.Sprintf("page %d says: %s", i+1, strings.Repeat("useful study material ", 30)),
		}
	}
	return pages
}

func newTestOrchestrator(db *fakeStore, extractor TextExtractor, embedder *fakeEmbedder) *Orchestrator {
	chunker := NewChunker(ChunkerConfig{Window: 200, Overlap: 40, MinFragment: 20})
	cfg := OrchestratorConfig{Workers: 2, BatchSize: 4}
	return NewOrchestrator(db, extractor, embedder, chunker, cfg, slog.New(slog.DiscardHandler))
}

func seedDoc(db *fakeStore) types.Document {
	doc := types.Document{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		SourceURL: "http://example.com/doc.pdf",
		Status:    types.StatusIngesting,
	}
	db.CreateDocument(context.Background(), doc)
	return doc
}

func TestIngestionSuccess(t *testing.T) {
	db := newFakeStore()
	o := newTestOrchestrator(db, &fakeExtractor{pages: testPages(3)}, &fakeEmbedder{})
	doc := seedDoc(db)

	o.run(context.Background(), doc)

	got := db.doc(doc.ID)
	assert.Equal(t, types.StatusReady, got.Status)
	assert.Equal(t, 3, got.PageCount)
	assert.Equal(t, 0, got.FailedChunks)
	assert.Equal(t, got.ChunkCount, db.storedCount(doc.ID))
	assert.Greater(t, got.ChunkCount, 0)
}

func TestIngestionPartialFailureStillReady(t *testing.T) {
	db := newFakeStore()
	o := newTestOrchestrator(db, &fakeExtractor{pages: testPages(3)}, &fakeEmbedder{failOn: "page 2"})
	doc := seedDoc(db)

	o.run(context.Background(), doc)

	got := db.doc(doc.ID)
	assert.Equal(t, types.StatusReady, got.Status)
	assert.Greater(t, got.FailedChunks, 0)
	assert.Greater(t, got.ChunkCount, 0)
}

func TestIngestionAllEmbedsFail(t *testing.T) {
	db := newFakeStore()
	o := newTestOrchestrator(db, &fakeExtractor{pages: testPages(2)}, &fakeEmbedder{failAll: true})
	doc := seedDoc(db)

	o.run(context.Background(), doc)

	got := db.doc(doc.ID)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, types.FailEmbeddingOrStorage, got.FailReason)
}

func TestIngestionToleratesImageOnlyPage(t *testing.T) {
	pages := testPages(3)
	pages[1].Text = "   "
	db := newFakeStore()
	o := newTestOrchestrator(db, &fakeExtractor{pages: pages}, &fakeEmbedder{})
	doc := seedDoc(db)

	o.run(context.Background(), doc)

	got := db.doc(doc.ID)
	assert.Equal(t, types.StatusReady, got.Status)
	assert.Equal(t, 3, got.PageCount)
	assert.Equal(t, 0, got.FailedChunks)
	assert.Greater(t, got.ChunkCount, 0)

	db.mu.Lock()
	for _, r := range db.records[doc.ID] {
		assert.NotEqual(t, 2, r.Page)
	}
	db.mu.Unlock()
}

func TestIngestionRetriesTransientUpsert(t *testing.T) {
	db := newFakeStore()
	db.upsertFailures = 1
	o := newTestOrchestrator(db, &fakeExtractor{pages: testPages(2)}, &fakeEmbedder{})
	o.retry = model.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	doc := seedDoc(db)

	o.run(context.Background(), doc)

	got := db.doc(doc.ID)
	assert.Equal(t, types.StatusReady, got.Status)
	assert.Equal(t, 0, got.FailedChunks)
	assert.Equal(t, got.ChunkCount, db.storedCount(doc.ID))
	db.mu.Lock()
	calls := db.upsertCalls
	db.mu.Unlock()
	assert.GreaterOrEqual(t, calls, 2)
}

func TestIngestionStorageFailure(t *testing.T) {
	db := newFakeStore()
	db.upsertErr = errors.New("db down")
	o := newTestOrchestrator(db, &fakeExtractor{pages: testPages(2)}, &fakeEmbedder{})
	doc := seedDoc(db)

	o.run(context.Background(), doc)

	got := db.doc(doc.ID)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, types.FailEmbeddingOrStorage, got.FailReason)
}

func TestIngestionSourceUnreachable(t *testing.T) {
	db := newFakeStore()
	extractor := &fakeExtractor{err: &FetchError{URL: "http://example.com/doc.pdf", Err: errors.New("connection refused")}}
	o := newTestOrchestrator(db, extractor, &fakeEmbedder{})
	doc := seedDoc(db)

	o.run(context.Background(), doc)

	got := db.doc(doc.ID)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, types.FailSourceUnreachable, got.FailReason)
}

func TestIngestionNoExtractableText(t *testing.T) {
	db := newFakeStore()
	extractor := &fakeExtractor{err: &ExtractionError{Err: ErrNoExtractableText}}
	o := newTestOrchestrator(db, extractor, &fakeEmbedder{})
	doc := seedDoc(db)

	o.run(context.Background(), doc)

	got := db.doc(doc.ID)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, types.FailNoExtractableText, got.FailReason)
}

func TestTriggerRejectsConcurrentIngestion(t *testing.T) {
	db := newFakeStore()
	extractor := &fakeExtractor{
		pages:   testPages(1),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	o := newTestOrchestrator(db, extractor, &fakeEmbedder{})

	doc := types.Document{ID: uuid.New(), UserID: uuid.New(), SourceURL: "http://example.com/doc.pdf"}
	require.NoError(t, o.Trigger(context.Background(), doc))

	<-extractor.started
	err := o.Trigger(context.Background(), doc)
	assert.ErrorIs(t, err, types.ErrIngestionInProgress)

	close(extractor.release)
	require.Eventually(t, func() bool {
		return db.doc(doc.ID).Status == types.StatusReady
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReIngestionReplacesNamespace(t *testing.T) {
	db := newFakeStore()
	o := newTestOrchestrator(db, &fakeExtractor{pages: testPages(2)}, &fakeEmbedder{})
	doc := seedDoc(db)

	o.run(context.Background(), doc)
	first := db.storedCount(doc.ID)
	require.Greater(t, first, 0)

	o.run(context.Background(), doc)
	assert.Equal(t, first, db.storedCount(doc.ID))
	db.mu.Lock()
	deletes := db.deleteCalls
	db.mu.Unlock()
	assert.Equal(t, 2, deletes)
}

func TestTriggerSurvivesCallerCancel(t *testing.T) {
	db := newFakeStore()
	o := newTestOrchestrator(db, &fakeExtractor{pages: testPages(1)}, &fakeEmbedder{})

	ctx, cancel := context.WithCancel(context.Background())
	doc := types.Document{ID: uuid.New(), UserID: uuid.New(), SourceURL: "http://example.com/doc.pdf"}
	require.NoError(t, o.Trigger(ctx, doc))
	cancel()

	require.Eventually(t, func() bool {
		return db.doc(doc.ID).Status == types.StatusReady
	}, 2*time.Second, 10*time.Millisecond)
}
