package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/digvijay2003/contract-intelligence-api/internal/chunking"
	"github.com/digvijay2003/contract-intelligence-api/internal/clients/pinecone"
	"github.com/digvijay2003/contract-intelligence-api/internal/logger"
	"github.com/digvijay2003/contract-intelligence-api/internal/observability/metrics"
	pkgerrors "github.com/digvijay2003/contract-intelligence-api/internal/pkg/errors"
	"github.com/digvijay2003/contract-intelligence-api/internal/repos"
	"github.com/digvijay2003/contract-intelligence-api/internal/resilience"
	"github.com/digvijay2003/contract-intelligence-api/internal/types"
)

const (
	maxUploadBytes = 20 << 20
	embedBatchSize = 64
)

var allowedExtensions = map[string]bool{
	".pdf": true,
	".txt": true,
	".md":  true,
}

// PipelineService owns the document lifecycle: it accepts uploads,
// claims pending documents, runs extraction and audit, and moves each
// document through pending -> processing -> completed/failed.
type PipelineService interface {
	// CreateFromUpload stores the raw file and registers a PENDING
	// document. Processing happens asynchronously via workers.
	CreateFromUpload(ctx context.Context, filename, mimeType string, data []byte) (*types.Document, error)

	// ProcessDocument claims the given document and runs the full
	// pipeline on it. Returns pkg/errors.ErrNotFound when the document
	// does not exist and nil (without processing) when the claim lost.
	ProcessDocument(ctx context.Context, documentID uuid.UUID) error

	// Reprocess purges a COMPLETED or FAILED document's derived records
	// and re-queues it as PENDING.
	Reprocess(ctx context.Context, documentID uuid.UUID) (*types.Document, error)

	// RecoverStranded fails every document left in PROCESSING by a
	// previous run. Call it once at startup, before StartWorkers.
	RecoverStranded(ctx context.Context) error

	// StartWorkers launches n claim loops that poll for pending
	// documents until ctx is cancelled.
	StartWorkers(ctx context.Context, n int)
}

type pipelineService struct {
	db         *gorm.DB
	log        *logger.Logger
	recorder   metrics.Recorder
	exec       *resilience.Executor
	storage    StorageService
	chunker    *chunking.Chunker
	embedder   Embedder
	vectors    pinecone.VectorStore
	extraction ExtractionService
	audit      AuditService

	docs     repos.DocumentRepo
	chunks   repos.DocumentChunkRepo
	fields   repos.ExtractedFieldRepo
	findings repos.AuditFindingRepo

	pollInterval time.Duration
}

func NewPipelineService(
	db *gorm.DB,
	baseLog *logger.Logger,
	recorder metrics.Recorder,
	exec *resilience.Executor,
	storage StorageService,
	chunker *chunking.Chunker,
	embedder Embedder,
	vectors pinecone.VectorStore,
	extraction ExtractionService,
	audit AuditService,
	docRepo repos.DocumentRepo,
	chunkRepo repos.DocumentChunkRepo,
	fieldRepo repos.ExtractedFieldRepo,
	findingRepo repos.AuditFindingRepo,
) PipelineService {
	return &pipelineService{
		db:           db,
		log:          baseLog.With("service", "PipelineService"),
		recorder:     recorder,
		exec:         exec,
		storage:      storage,
		chunker:      chunker,
		embedder:     embedder,
		vectors:      vectors,
		extraction:   extraction,
		audit:        audit,
		docs:         docRepo,
		chunks:       chunkRepo,
		fields:       fieldRepo,
		findings:     findingRepo,
		pollInterval: time.Second,
	}
}

func (s *pipelineService) CreateFromUpload(ctx context.Context, filename, mimeType string, data []byte) (*types.Document, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." {
		return nil, fmt.Errorf("%w: filename is required", pkgerrors.ErrValidation)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: uploaded file is empty", pkgerrors.ErrValidation)
	}
	if len(data) > maxUploadBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", pkgerrors.ErrValidation, maxUploadBytes)
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !allowedExtensions[ext] {
		return nil, fmt.Errorf("%w: unsupported file type %q", pkgerrors.ErrValidation, ext)
	}

	id := uuid.New()
	path, err := s.storage.Save(id, name, data)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	doc := &types.Document{
		ID:          id,
		Filename:    name,
		StoragePath: path,
		SizeBytes:   int64(len(data)),
		MimeType:    mimeType,
		Status:      types.StatusPending,
		UploadedAt:  time.Now().UTC(),
	}
	if _, err := s.docs.Create(ctx, nil, []*types.Document{doc}); err != nil {
		// Best effort: don't leave an orphaned file behind.
		if rmErr := s.storage.Remove(path); rmErr != nil {
			s.log.Warn("Failed to remove stored file after create error", "path", path, "error", rmErr)
		}
		return nil, fmt.Errorf("create document: %w", err)
	}
	s.log.Info("Registered uploaded document", "document_id", id, "filename", name, "size_bytes", len(data))
	return doc, nil
}

func (s *pipelineService) ProcessDocument(ctx context.Context, documentID uuid.UUID) error {
	doc, err := s.docs.GetByID(ctx, nil, documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("%w: document %s", pkgerrors.ErrNotFound, documentID)
	}
	claimed, err := s.docs.UpdateStatusIf(ctx, nil, documentID, types.StatusPending, types.StatusProcessing, nil)
	if err != nil {
		return fmt.Errorf("claim document: %w", err)
	}
	if !claimed {
		s.log.Info("Document not pending; skipping", "document_id", documentID, "status", doc.Status)
		return nil
	}
	return s.process(ctx, doc)
}

// process runs the pipeline on an already-claimed document. Any error
// before commit flips the document to FAILED with the reason recorded.
func (s *pipelineService) process(ctx context.Context, doc *types.Document) error {
	started := time.Now()
	log := s.log.With("document_id", doc.ID)
	log.Info("Processing document", "filename", doc.Filename)

	if err := s.runPipeline(ctx, doc, log); err != nil {
		s.fail(doc.ID, err, log)
		s.recorder.DocumentProcessed(string(types.StatusFailed))
		return err
	}

	s.recorder.DocumentProcessed(string(types.StatusCompleted))
	log.Info("Document processing completed", "duration", time.Since(started).String())
	return nil
}

func (s *pipelineService) runPipeline(ctx context.Context, doc *types.Document, log *logger.Logger) error {
	data, err := s.storage.Read(doc.StoragePath)
	if err != nil {
		return fmt.Errorf("read stored file: %w", err)
	}

	stage := time.Now()
	extracted, err := ExtractText(doc.Filename, doc.MimeType, data)
	if err != nil {
		return fmt.Errorf("extract text: %w", err)
	}
	s.recorder.ProcessingStage("text_extract", time.Since(stage).Seconds())

	stage = time.Now()
	pieces := s.chunker.Split(extracted.FullText, extracted.PageStarts)
	if len(pieces) == 0 {
		return fmt.Errorf("%w: document produced no chunks", pkgerrors.ErrEmptyInput)
	}
	s.recorder.ProcessingStage("chunk", time.Since(stage).Seconds())

	chunkRows := make([]*types.DocumentChunk, len(pieces))
	for i, p := range pieces {
		chunkRows[i] = &types.DocumentChunk{
			ID:         uuid.New(),
			DocumentID: doc.ID,
			ChunkIndex: i,
			Text:       p.Text,
			Span:       p.Span,
		}
	}

	stage = time.Now()
	vectors, err := s.embedChunks(ctx, doc.ID, chunkRows)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	s.recorder.ProcessingStage("embed", time.Since(stage).Seconds())

	stage = time.Now()
	field, err := s.extraction.Extract(ctx, doc.ID, extracted.FullText)
	if err != nil {
		return fmt.Errorf("extract fields: %w", err)
	}
	s.recorder.ProcessingStage("llm_extract", time.Since(stage).Seconds())

	stage = time.Now()
	findings := s.audit.Evaluate(ctx, doc.ID, extracted.FullText, extracted.PageStarts, field)
	s.recorder.ProcessingStage("audit", time.Since(stage).Seconds())
	log.Info("Audit evaluated", "findings", len(findings))

	processedAt := time.Now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.docs.SetExtractedText(ctx, tx, doc.ID, extracted.FullText, extracted.PageCount); err != nil {
			return err
		}
		// Re-extraction supersedes any earlier run's derived records.
		if err := s.chunks.DeleteByDocumentID(ctx, tx, doc.ID); err != nil {
			return err
		}
		if err := s.fields.DeleteByDocumentID(ctx, tx, doc.ID); err != nil {
			return err
		}
		if err := s.findings.DeleteByDocumentID(ctx, tx, doc.ID); err != nil {
			return err
		}
		if _, err := s.chunks.Create(ctx, tx, chunkRows); err != nil {
			return err
		}
		if _, err := s.fields.Create(ctx, tx, []*types.ExtractedField{field}); err != nil {
			return err
		}
		if len(findings) > 0 {
			if _, err := s.findings.Create(ctx, tx, findings); err != nil {
				return err
			}
		}
		ok, err := s.docs.UpdateStatusIf(ctx, tx, doc.ID, types.StatusProcessing, types.StatusCompleted, map[string]interface{}{
			"processed_at":   processedAt,
			"failure_reason": "",
		})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("document %s left processing state mid-flight", doc.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist results: %w", err)
	}

	// Index push happens after commit so the relational store is never
	// behind the vector index. A push failure leaves the document
	// COMPLETED; retrieval filters on status, not index presence.
	if err := s.pushVectors(ctx, doc.ID, vectors); err != nil {
		log.Warn("Vector index push failed; document remains completed", "error", err)
	}
	return nil
}

func (s *pipelineService) embedChunks(ctx context.Context, documentID uuid.UUID, chunks []*types.DocumentChunk) ([]pinecone.Vector, error) {
	vectors := make([]pinecone.Vector, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		inputs := make([]string, len(batch))
		for i, c := range batch {
			inputs[i] = c.Text
		}

		var embeddings [][]float32
		err := s.exec.Execute(ctx, "embed_chunks", func(ctx context.Context) error {
			var embedErr error
			embeddings, embedErr = s.embedder.Embed(ctx, inputs)
			return embedErr
		}, resilience.RecoverableClassifier)
		if err != nil {
			return nil, err
		}
		if len(embeddings) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch: got %d for %d chunks", len(embeddings), len(batch))
		}
		for i, c := range batch {
			vectors = append(vectors, pinecone.Vector{
				ID:     c.ID.String(),
				Values: embeddings[i],
				Metadata: map[string]any{
					"document_id": documentID.String(),
					"chunk_index": c.ChunkIndex,
				},
			})
		}
	}
	return vectors, nil
}

func (s *pipelineService) pushVectors(ctx context.Context, documentID uuid.UUID, vectors []pinecone.Vector) error {
	if s.vectors == nil || len(vectors) == 0 {
		return nil
	}
	// Drop any rows left from a previous run of this document first.
	if err := s.vectors.DeleteByDocumentID(ctx, documentID.String()); err != nil {
		s.log.Warn("Failed to clear old vectors before push", "document_id", documentID, "error", err)
	}
	return s.exec.Execute(ctx, "vector_upsert", func(ctx context.Context) error {
		return s.vectors.Upsert(ctx, vectors)
	}, resilience.RecoverableClassifier)
}

// fail writes the terminal FAILED status. The attempt may have died
// because its context was cancelled, so the write runs on its own
// short deadline; otherwise the document would stay PROCESSING with
// no way back.
func (s *pipelineService) fail(documentID uuid.UUID, cause error, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reason := cause.Error()
	if len(reason) > 1024 {
		reason = reason[:1024]
	}
	ok, err := s.docs.UpdateStatusIf(ctx, nil, documentID, types.StatusProcessing, types.StatusFailed, map[string]interface{}{
		"failure_reason": reason,
	})
	if err != nil {
		log.Error("Failed to mark document failed", "error", err, "cause", cause)
		return
	}
	if !ok {
		log.Warn("Document no longer processing while marking failed", "cause", cause)
		return
	}
	log.Warn("Document processing failed", "reason", reason)
}

func (s *pipelineService) Reprocess(ctx context.Context, documentID uuid.UUID) (*types.Document, error) {
	doc, err := s.docs.GetByID(ctx, nil, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document %s", pkgerrors.ErrNotFound, documentID)
	}
	if doc.Status != types.StatusCompleted && doc.Status != types.StatusFailed {
		return nil, fmt.Errorf("%w: cannot reprocess document in status %s", pkgerrors.ErrValidation, doc.Status)
	}
	from := doc.Status

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.chunks.DeleteByDocumentID(ctx, tx, documentID); err != nil {
			return err
		}
		if err := s.fields.DeleteByDocumentID(ctx, tx, documentID); err != nil {
			return err
		}
		if err := s.findings.DeleteByDocumentID(ctx, tx, documentID); err != nil {
			return err
		}
		ok, err := s.docs.UpdateStatusIf(ctx, tx, documentID, from, types.StatusPending, map[string]interface{}{
			"full_text":      "",
			"page_count":     0,
			"processed_at":   nil,
			"failure_reason": "",
		})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: document status changed during reprocess", pkgerrors.ErrValidation)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.vectors != nil {
		if err := s.vectors.DeleteByDocumentID(ctx, documentID.String()); err != nil {
			s.log.Warn("Failed to clear vectors during reprocess", "document_id", documentID, "error", err)
		}
	}

	fresh, err := s.docs.GetByID(ctx, nil, documentID)
	if err != nil {
		return nil, fmt.Errorf("reload document: %w", err)
	}
	s.log.Info("Document queued for reprocessing", "document_id", documentID)
	return fresh, nil
}

func (s *pipelineService) RecoverStranded(ctx context.Context) error {
	moved, err := s.docs.FailStranded(ctx, nil, "processing interrupted by restart")
	if err != nil {
		return fmt.Errorf("recover stranded documents: %w", err)
	}
	if moved > 0 {
		s.log.Warn("Failed documents stranded in processing by a previous run", "count", moved)
	}
	return nil
}

func (s *pipelineService) StartWorkers(ctx context.Context, n int) {
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		go s.workerLoop(ctx, i)
	}
	s.log.Info("Pipeline workers started", "count", n)
}

func (s *pipelineService) workerLoop(ctx context.Context, worker int) {
	log := s.log.With("worker", worker)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("Worker stopping", "reason", ctx.Err())
			return
		case <-ticker.C:
			for {
				doc, err := s.docs.ClaimNextPending(ctx, nil)
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						log.Error("Failed to claim pending document", "error", err)
					}
					break
				}
				if doc == nil {
					break
				}
				if err := s.process(ctx, doc); err != nil {
					log.Warn("Pipeline run failed", "document_id", doc.ID, "error", err)
				}
			}
		}
	}
}
