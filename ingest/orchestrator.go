package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"studyrag/model"
	"studyrag/store"
	"studyrag/types"

	"github.com/google/uuid"
)

type OrchestratorConfig struct {
	Workers   int
	BatchSize int
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		Workers:   4,
		BatchSize: 16,
	}
}

// Orchestrator drives a document through extraction, chunking,
// embedding and storage. At most one ingestion runs per document at a
// time.
type Orchestrator struct {
	store     store.DBStorer
	extractor TextExtractor
	embedder  model.Embedder
	chunker   *Chunker
	cfg       OrchestratorConfig
	retry     model.RetryPolicy
	log       *slog.Logger

	mu       sync.Mutex
	inflight map[uuid.UUID]bool
}

func NewOrchestrator(db store.DBStorer, extractor TextExtractor, embedder model.Embedder, chunker *Chunker, cfg OrchestratorConfig, log *slog.Logger) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg = DefaultOrchestratorConfig()
	}
	return &Orchestrator{
		store:     db,
		extractor: extractor,
		embedder:  embedder,
		chunker:   chunker,
		cfg:       cfg,
		retry:     model.DefaultRetryPolicy(),
		log:       log,
		inflight:  make(map[uuid.UUID]bool),
	}
}

// Trigger records the document and starts its ingestion in the
// background. The background run outlives the request context.
func (o *Orchestrator) Trigger(ctx context.Context, doc types.Document) error {
	o.mu.Lock()
	if o.inflight[doc.ID] {
		o.mu.Unlock()
		return types.ErrIngestionInProgress
	}
	o.inflight[doc.ID] = true
	o.mu.Unlock()

	now := time.Now().UTC()
	doc.Status = types.StatusPending
	doc.FailReason = ""
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	if err := o.store.CreateDocument(ctx, doc); err != nil {
		o.release(doc.ID)
		return err
	}
	if err := o.store.SetDocumentStatus(ctx, doc.ID, types.StatusIngesting, ""); err != nil {
		o.release(doc.ID)
		return err
	}

	bg := context.WithoutCancel(ctx)
	go func() {
		defer o.release(doc.ID)
		o.run(bg, doc)
	}()

	return nil
}

func (o *Orchestrator) release(docID uuid.UUID) {
	o.mu.Lock()
	delete(o.inflight, docID)
	o.mu.Unlock()
}

func (o *Orchestrator) run(ctx context.Context, doc types.Document) {
	log := o.log.With("doc_id", doc.ID)
	log.Info("ingestion started", "source_url", doc.SourceURL)

	pages, err := o.extractor.Extract(ctx, doc.SourceURL)
	if err != nil {
		reason := classifyExtractFailure(err)
		log.Error("extraction failed", "reason", reason, "error", err)
		o.fail(ctx, doc.ID, reason)
		return
	}

	drafts := o.chunker.Split(pages)
	if len(drafts) == 0 {
		log.Error("no chunks produced")
		o.fail(ctx, doc.ID, types.FailNoExtractableText)
		return
	}

	// Re-ingestion replaces the namespace wholesale.
	err = o.retry.Do(ctx, func(ctx context.Context) error {
		return o.store.DeleteNamespace(ctx, doc.ID)
	})
	if err != nil {
		log.Error("namespace delete failed", "error", err)
		o.fail(ctx, doc.ID, types.FailEmbeddingOrStorage)
		return
	}

	records, failed := o.embedAll(ctx, drafts)

	stored := 0
	for start := 0; start < len(records); start += o.cfg.BatchSize {
		end := start + o.cfg.BatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]
		err := o.retry.Do(ctx, func(ctx context.Context) error {
			return o.store.Upsert(ctx, doc.ID, batch)
		})
		if err != nil {
			log.Error("batch upsert failed", "size", len(batch), "error", err)
			failed += len(batch)
			continue
		}
		stored += len(batch)
	}

	if err := o.store.SetDocumentCounts(ctx, doc.ID, len(pages), stored, failed); err != nil {
		log.Error("counts update failed", "error", err)
	}

	if stored == 0 {
		log.Error("ingestion failed", "failed_chunks", failed)
		o.fail(ctx, doc.ID, types.FailEmbeddingOrStorage)
		return
	}

	if err := o.store.SetDocumentStatus(ctx, doc.ID, types.StatusReady, ""); err != nil {
		log.Error("status update failed", "error", err)
		return
	}
	log.Info("ingestion complete", "pages", len(pages), "chunks", stored, "failed_chunks", failed)
}

// embedAll fans chunk drafts out to a worker pool. A chunk whose
// embedding fails is counted and skipped, not fatal.
func (o *Orchestrator) embedAll(ctx context.Context, drafts []types.ChunkDraft) ([]types.VectorRecord, int) {
	type job struct {
		ordinal int
		draft   types.ChunkDraft
	}

	jobs := make(chan job)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var records []types.VectorRecord
	failed := 0

	for w := 0; w < o.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				vec, err := o.embedder.Embed(ctx, j.draft.Text)
				if err != nil {
					o.log.Warn("chunk embedding failed", "ordinal", j.ordinal, "error", err)
					mu.Lock()
					failed++
					mu.Unlock()
					continue
				}
				mu.Lock()
				records = append(records, types.VectorRecord{
					ChunkID:     uuid.New(),
					Ordinal:     j.ordinal,
					Page:        j.draft.Page,
					StartOffset: j.draft.StartOffset,
					EndOffset:   j.draft.EndOffset,
					Text:        j.draft.Text,
					Vector:      vec,
				})
				mu.Unlock()
			}
		}()
	}

	for i, d := range drafts {
		jobs <- job{ordinal: i, draft: d}
	}
	close(jobs)
	wg.Wait()

	return records, failed
}

func (o *Orchestrator) fail(ctx context.Context, docID uuid.UUID, reason string) {
	if err := o.store.SetDocumentStatus(ctx, docID, types.StatusFailed, reason); err != nil {
		o.log.Error("status update failed", "doc_id", docID, "error", err)
	}
}

func classifyExtractFailure(err error) string {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return types.FailSourceUnreachable
	}
	return types.FailNoExtractableText
}
