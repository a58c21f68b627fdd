package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/digvijay2003/contract-intelligence-api/internal/chunking"
	"github.com/digvijay2003/contract-intelligence-api/internal/clients/pinecone"
	"github.com/digvijay2003/contract-intelligence-api/internal/observability/metrics"
	pkgerrors "github.com/digvijay2003/contract-intelligence-api/internal/pkg/errors"
	"github.com/digvijay2003/contract-intelligence-api/internal/repos"
	"github.com/digvijay2003/contract-intelligence-api/internal/types"
)

type fakeVectorStore struct {
	upserted []pinecone.Vector
	deleted  []string
	failNext bool
}

func (f *fakeVectorStore) Upsert(ctx context.Context, vectors []pinecone.Vector) error {
	if f.failNext {
		return fmt.Errorf("index down: %w", pkgerrors.ErrServiceUnavailable)
	}
	f.upserted = append(f.upserted, vectors...)
	return nil
}

func (f *fakeVectorStore) QueryIDs(ctx context.Context, q []float32, topK int, filter map[string]any) ([]pinecone.ScoredID, error) {
	out := make([]pinecone.ScoredID, 0, topK)
	for i, v := range f.upserted {
		if i == topK {
			break
		}
		out = append(out, pinecone.ScoredID{ID: v.ID, Score: 1.0 - float64(i)*0.01})
	}
	return out, nil
}

func (f *fakeVectorStore) DeleteByDocumentID(ctx context.Context, documentID string) error {
	f.deleted = append(f.deleted, documentID)
	return nil
}

type fakeExtraction struct {
	err    error
	cancel context.CancelFunc
	calls  int
}

func (f *fakeExtraction) Extract(ctx context.Context, documentID uuid.UUID, fullText string) (*types.ExtractedField, error) {
	f.calls++
	if f.cancel != nil {
		f.cancel()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &types.ExtractedField{
		ID:              uuid.New(),
		DocumentID:      documentID,
		GoverningLaw:    "Delaware",
		ExtractionModel: "test-model",
	}, nil
}

type pipelineFixture struct {
	db         *gorm.DB
	pipeline   PipelineService
	docs       repos.DocumentRepo
	chunks     repos.DocumentChunkRepo
	fields     repos.ExtractedFieldRepo
	findings   repos.AuditFindingRepo
	vectors    *fakeVectorStore
	extraction *fakeExtraction
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	t.Setenv("UPLOAD_DIR", t.TempDir())

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&types.Document{},
		&types.DocumentChunk{},
		&types.ExtractedField{},
		&types.AuditFinding{},
		&types.QueryLog{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log := newTestLogger(t)
	docs := repos.NewDocumentRepo(db, log)
	chunks := repos.NewDocumentChunkRepo(db, log)
	fields := repos.NewExtractedFieldRepo(db, log)
	findings := repos.NewAuditFindingRepo(db, log)

	storage, err := NewStorageService(log)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	chunker, err := chunking.NewChunker(800, 100)
	if err != nil {
		t.Fatalf("chunker: %v", err)
	}

	vectors := &fakeVectorStore{}
	extraction := &fakeExtraction{}
	audit := NewAuditService(log, metrics.Noop{}, DefaultCatalog())

	pipeline := NewPipelineService(
		db, log, metrics.Noop{}, newTestExecutor(t),
		storage, chunker, &fakeAIClient{}, vectors, extraction, audit,
		docs, chunks, fields, findings,
	)
	return &pipelineFixture{
		db: db, pipeline: pipeline,
		docs: docs, chunks: chunks, fields: fields, findings: findings,
		vectors: vectors, extraction: extraction,
	}
}

func contractText() string {
	return "MASTER SERVICES AGREEMENT between Acme Corp and Globex LLC. " +
		"The Supplier shall bear unlimited liability for any breach. " +
		strings.Repeat("Each party shall perform its obligations in good faith. ", 40) +
		"\fPayment is due net 90 days. This Agreement shall automatically renew annually. " +
		strings.Repeat("The parties agree to the terms herein. ", 40)
}

func (fx *pipelineFixture) upload(t *testing.T, name, body string) *types.Document {
	t.Helper()
	doc, err := fx.pipeline.CreateFromUpload(context.Background(), name, "text/plain", []byte(body))
	if err != nil {
		t.Fatalf("CreateFromUpload: %v", err)
	}
	if doc.Status != types.StatusPending {
		t.Fatalf("fresh upload status = %s, want pending", doc.Status)
	}
	return doc
}

func TestPipeline_FullRunCompletesDocument(t *testing.T) {
	fx := newPipelineFixture(t)
	ctx := context.Background()
	doc := fx.upload(t, "contract.txt", contractText())

	if err := fx.pipeline.ProcessDocument(ctx, doc.ID); err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}

	got, err := fx.docs.GetByID(ctx, nil, doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", got.Status, got.FailureReason)
	}
	if got.FullText == "" || got.PageCount != 2 {
		t.Fatalf("full text/page count not recorded: pages=%d", got.PageCount)
	}
	if got.ProcessedAt == nil {
		t.Fatalf("processed_at not set")
	}

	chunks, err := fx.chunks.GetByDocumentID(ctx, nil, doc.ID)
	if err != nil {
		t.Fatalf("chunks: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatalf("no chunks persisted")
	}
	for _, c := range chunks {
		if got.FullText[c.Span.CharStart:c.Span.CharEnd] != c.Text {
			t.Fatalf("chunk %d text does not match its span", c.ChunkIndex)
		}
	}

	field, err := fx.fields.GetByDocumentID(ctx, nil, doc.ID)
	if err != nil {
		t.Fatalf("fields: %v", err)
	}
	if field == nil || field.GoverningLaw != "Delaware" {
		t.Fatalf("extracted field not persisted: %+v", field)
	}

	findings, err := fx.findings.GetByDocumentID(ctx, nil, doc.ID)
	if err != nil {
		t.Fatalf("findings: %v", err)
	}
	if len(findings) == 0 {
		t.Fatalf("risky contract should produce findings")
	}
	for _, f := range findings {
		if f.Span != nil && got.FullText[f.Span.CharStart:f.Span.CharEnd] != f.EvidenceText {
			t.Fatalf("finding %s evidence does not match its span", f.RuleID)
		}
	}

	if len(fx.vectors.upserted) != len(chunks) {
		t.Fatalf("vector count %d != chunk count %d", len(fx.vectors.upserted), len(chunks))
	}
}

func TestPipeline_WhitespaceOnlyDocumentFails(t *testing.T) {
	fx := newPipelineFixture(t)
	ctx := context.Background()
	doc := fx.upload(t, "blank.txt", "   \n\n   ")

	if err := fx.pipeline.ProcessDocument(ctx, doc.ID); err == nil {
		t.Fatalf("expected processing failure for blank document")
	}

	got, _ := fx.docs.GetByID(ctx, nil, doc.ID)
	if got.Status != types.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.FailureReason == "" {
		t.Fatalf("failure reason not recorded")
	}
	chunks, _ := fx.chunks.GetByDocumentID(ctx, nil, doc.ID)
	if len(chunks) != 0 {
		t.Fatalf("failed document must not keep chunks")
	}
}

func TestPipeline_ExtractionFailureLeavesNoPartialRecords(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.extraction.err = fmt.Errorf("model down: %w", pkgerrors.ErrServiceUnavailable)
	ctx := context.Background()
	doc := fx.upload(t, "contract.txt", contractText())

	if err := fx.pipeline.ProcessDocument(ctx, doc.ID); err == nil {
		t.Fatalf("expected processing failure")
	}

	got, _ := fx.docs.GetByID(ctx, nil, doc.ID)
	if got.Status != types.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.FullText != "" {
		t.Fatalf("failed run must not persist full text")
	}
	chunks, _ := fx.chunks.GetByDocumentID(ctx, nil, doc.ID)
	field, _ := fx.fields.GetByDocumentID(ctx, nil, doc.ID)
	findings, _ := fx.findings.GetByDocumentID(ctx, nil, doc.ID)
	if len(chunks) != 0 || field != nil || len(findings) != 0 {
		t.Fatalf("failed run left partial records: chunks=%d field=%v findings=%d",
			len(chunks), field, len(findings))
	}
}

func TestPipeline_ClaimIsExclusive(t *testing.T) {
	fx := newPipelineFixture(t)
	ctx := context.Background()
	doc := fx.upload(t, "contract.txt", contractText())

	ok, err := fx.docs.UpdateStatusIf(ctx, nil, doc.ID, types.StatusPending, types.StatusProcessing, nil)
	if err != nil || !ok {
		t.Fatalf("manual claim failed: ok=%v err=%v", ok, err)
	}

	// A second processor must lose the claim and do nothing.
	if err := fx.pipeline.ProcessDocument(ctx, doc.ID); err != nil {
		t.Fatalf("losing a claim is not an error: %v", err)
	}
	if fx.extraction.calls != 0 {
		t.Fatalf("losing processor still ran extraction")
	}
	got, _ := fx.docs.GetByID(ctx, nil, doc.ID)
	if got.Status != types.StatusProcessing {
		t.Fatalf("status = %s, want processing", got.Status)
	}
}

func TestPipeline_CancelledRunStillEndsFailed(t *testing.T) {
	fx := newPipelineFixture(t)
	doc := fx.upload(t, "contract.txt", contractText())

	// Extraction kills the run's context mid-call, the way a worker
	// shutdown would. The terminal status write must still land.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.extraction.cancel = cancel

	if err := fx.pipeline.ProcessDocument(ctx, doc.ID); err == nil {
		t.Fatalf("expected error from cancelled run")
	}

	got, err := fx.docs.GetByID(context.Background(), nil, doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.FailureReason == "" {
		t.Fatalf("failure reason not recorded")
	}

	// A failed document is recoverable through the normal path.
	fx.extraction.cancel = nil
	requeued, err := fx.pipeline.Reprocess(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("Reprocess after cancelled run: %v", err)
	}
	if requeued.Status != types.StatusPending {
		t.Fatalf("requeued status = %s, want pending", requeued.Status)
	}
}

func TestPipeline_RecoverStrandedFailsProcessingDocuments(t *testing.T) {
	fx := newPipelineFixture(t)
	ctx := context.Background()
	stranded := fx.upload(t, "stranded.txt", contractText())
	waiting := fx.upload(t, "waiting.txt", contractText())

	// Simulate a crash: a claim from a previous run with no worker
	// left to finish it.
	ok, err := fx.docs.UpdateStatusIf(ctx, nil, stranded.ID, types.StatusPending, types.StatusProcessing, nil)
	if err != nil || !ok {
		t.Fatalf("manual claim failed: ok=%v err=%v", ok, err)
	}

	if err := fx.pipeline.RecoverStranded(ctx); err != nil {
		t.Fatalf("RecoverStranded: %v", err)
	}

	got, _ := fx.docs.GetByID(ctx, nil, stranded.ID)
	if got.Status != types.StatusFailed {
		t.Fatalf("stranded status = %s, want failed", got.Status)
	}
	if got.FailureReason == "" {
		t.Fatalf("stranded document has no failure reason")
	}
	untouched, _ := fx.docs.GetByID(ctx, nil, waiting.ID)
	if untouched.Status != types.StatusPending {
		t.Fatalf("pending document moved to %s", untouched.Status)
	}

	if _, err := fx.pipeline.Reprocess(ctx, stranded.ID); err != nil {
		t.Fatalf("Reprocess after recovery: %v", err)
	}
}

func TestPipeline_ReprocessPurgesDerivedRecords(t *testing.T) {
	fx := newPipelineFixture(t)
	ctx := context.Background()
	doc := fx.upload(t, "contract.txt", contractText())
	if err := fx.pipeline.ProcessDocument(ctx, doc.ID); err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}

	requeued, err := fx.pipeline.Reprocess(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Reprocess: %v", err)
	}
	if requeued.Status != types.StatusPending {
		t.Fatalf("status = %s, want pending", requeued.Status)
	}
	if requeued.FullText != "" || requeued.PageCount != 0 || requeued.ProcessedAt != nil {
		t.Fatalf("derived document state not cleared: %+v", requeued)
	}

	chunks, _ := fx.chunks.GetByDocumentID(ctx, nil, doc.ID)
	field, _ := fx.fields.GetByDocumentID(ctx, nil, doc.ID)
	findings, _ := fx.findings.GetByDocumentID(ctx, nil, doc.ID)
	if len(chunks) != 0 || field != nil || len(findings) != 0 {
		t.Fatalf("reprocess left derived records behind")
	}
	if len(fx.vectors.deleted) == 0 || fx.vectors.deleted[len(fx.vectors.deleted)-1] != doc.ID.String() {
		t.Fatalf("reprocess did not purge the vector index")
	}

	// The requeued document runs through the pipeline again cleanly.
	if err := fx.pipeline.ProcessDocument(ctx, doc.ID); err != nil {
		t.Fatalf("second run: %v", err)
	}
	got, _ := fx.docs.GetByID(ctx, nil, doc.ID)
	if got.Status != types.StatusCompleted {
		t.Fatalf("second run status = %s, want completed", got.Status)
	}
}

func TestPipeline_ReprocessRejectsActiveDocument(t *testing.T) {
	fx := newPipelineFixture(t)
	ctx := context.Background()
	doc := fx.upload(t, "contract.txt", contractText())

	if _, err := fx.pipeline.Reprocess(ctx, doc.ID); err == nil {
		t.Fatalf("reprocessing a pending document must fail")
	}
	if _, err := fx.pipeline.Reprocess(ctx, uuid.New()); err == nil {
		t.Fatalf("reprocessing a missing document must fail")
	}
}

func TestPipeline_VectorPushFailureKeepsDocumentCompleted(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.vectors.failNext = true
	ctx := context.Background()
	doc := fx.upload(t, "contract.txt", contractText())

	if err := fx.pipeline.ProcessDocument(ctx, doc.ID); err != nil {
		t.Fatalf("index push failure must not fail the run: %v", err)
	}
	got, _ := fx.docs.GetByID(ctx, nil, doc.ID)
	if got.Status != types.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
}

func TestPipeline_CreateFromUploadValidation(t *testing.T) {
	fx := newPipelineFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		file string
		body []byte
	}{
		{"empty body", "a.txt", nil},
		{"unsupported extension", "a.exe", []byte("x")},
		{"missing name", "", []byte("x")},
	}
	for _, tc := range cases {
		if _, err := fx.pipeline.CreateFromUpload(ctx, tc.file, "text/plain", tc.body); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestPipeline_ClaimNextPendingOrdersByUpload(t *testing.T) {
	fx := newPipelineFixture(t)
	ctx := context.Background()
	first := fx.upload(t, "first.txt", contractText())
	second := fx.upload(t, "second.txt", contractText())

	claimed, err := fx.docs.ClaimNextPending(ctx, nil)
	if err != nil {
		t.Fatalf("ClaimNextPending: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("expected oldest pending document first")
	}
	if claimed.Status != types.StatusProcessing {
		t.Fatalf("claimed status = %s, want processing", claimed.Status)
	}

	claimed2, err := fx.docs.ClaimNextPending(ctx, nil)
	if err != nil {
		t.Fatalf("ClaimNextPending: %v", err)
	}
	if claimed2 == nil || claimed2.ID != second.ID {
		t.Fatalf("expected the second document on the next claim")
	}

	claimed3, err := fx.docs.ClaimNextPending(ctx, nil)
	if err != nil {
		t.Fatalf("ClaimNextPending: %v", err)
	}
	if claimed3 != nil {
		t.Fatalf("no pending documents should remain")
	}
}
