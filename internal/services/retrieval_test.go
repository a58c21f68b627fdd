package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/digvijay2003/contract-intelligence-api/internal/clients/pinecone"
	"github.com/digvijay2003/contract-intelligence-api/internal/repos"
	"github.com/digvijay2003/contract-intelligence-api/internal/types"
)

func seedCompletedDocument(t *testing.T, fx *pipelineFixture, status types.DocumentStatus, chunkTexts []string) (*types.Document, []*types.DocumentChunk) {
	t.Helper()
	ctx := context.Background()
	doc := &types.Document{
		ID:          uuid.New(),
		Filename:    "seeded.txt",
		StoragePath: "unused",
		Status:      status,
		UploadedAt:  time.Now().UTC(),
	}
	if _, err := fx.docs.Create(ctx, nil, []*types.Document{doc}); err != nil {
		t.Fatalf("seed document: %v", err)
	}
	chunks := make([]*types.DocumentChunk, len(chunkTexts))
	offset := 0
	for i, text := range chunkTexts {
		chunks[i] = &types.DocumentChunk{
			ID:         uuid.New(),
			DocumentID: doc.ID,
			ChunkIndex: i,
			Text:       text,
			Span:       types.NewSpan(0, offset, offset+len(text)),
		}
		offset += len(text)
	}
	if _, err := fx.chunks.Create(ctx, nil, chunks); err != nil {
		t.Fatalf("seed chunks: %v", err)
	}
	return doc, chunks
}

func newRetrieval(t *testing.T, fx *pipelineFixture, topK int) RetrievalService {
	t.Helper()
	log := newTestLogger(t)
	return NewRetrievalService(fx.db, log, &fakeAIClient{}, fx.vectors,
		repos.NewDocumentChunkRepo(fx.db, log), repos.NewDocumentRepo(fx.db, log), topK)
}

func TestRetrieve_ReturnsRankedChunks(t *testing.T) {
	fx := newPipelineFixture(t)
	_, chunks := seedCompletedDocument(t, fx, types.StatusCompleted,
		[]string{"payment terms clause", "termination clause", "liability clause"})
	for _, c := range chunks {
		fx.vectors.upserted = append(fx.vectors.upserted, vectorFor(c.ID))
	}

	got, err := newRetrieval(t, fx, 4).Retrieve(context.Background(), "when is payment due?", nil, 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected topK=2 results, got %d", len(got))
	}
	if got[0].Chunk.ID != chunks[0].ID {
		t.Fatalf("results not in index rank order")
	}
	if got[0].Score < got[1].Score {
		t.Fatalf("scores out of order: %f < %f", got[0].Score, got[1].Score)
	}
}

func TestRetrieve_DropsChunksOfUnfinishedDocuments(t *testing.T) {
	fx := newPipelineFixture(t)
	_, done := seedCompletedDocument(t, fx, types.StatusCompleted, []string{"final text"})
	_, wip := seedCompletedDocument(t, fx, types.StatusProcessing, []string{"half-indexed text"})

	// The index still holds the in-flight document's vector first.
	fx.vectors.upserted = append(fx.vectors.upserted, vectorFor(wip[0].ID), vectorFor(done[0].ID))

	got, err := newRetrieval(t, fx, 4).Retrieve(context.Background(), "anything", nil, 4)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected only the completed document's chunk, got %d", len(got))
	}
	if got[0].Chunk.ID != done[0].ID {
		t.Fatalf("wrong chunk survived the status filter")
	}
}

func TestRetrieve_EmptyQueryRejected(t *testing.T) {
	fx := newPipelineFixture(t)
	if _, err := newRetrieval(t, fx, 4).Retrieve(context.Background(), "  ", nil, 4); err == nil {
		t.Fatalf("expected error for empty query")
	}
}

func TestRetrieve_EmptyIndexYieldsEmptyResult(t *testing.T) {
	fx := newPipelineFixture(t)
	got, err := newRetrieval(t, fx, 4).Retrieve(context.Background(), "question", nil, 4)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no results, got %d", len(got))
	}
}

func vectorFor(id uuid.UUID) pinecone.Vector {
	return pinecone.Vector{ID: id.String(), Values: []float32{1, 0, 0}}
}
