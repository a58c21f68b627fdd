package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/digvijay2003/contract-intelligence-api/internal/clients/pinecone"
	"github.com/digvijay2003/contract-intelligence-api/internal/logger"
	"github.com/digvijay2003/contract-intelligence-api/internal/repos"
	"github.com/digvijay2003/contract-intelligence-api/internal/types"
)

// Embedder is the embedding capability shared by indexing and
// querying; both sides must use the same embedding space.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// RetrievedChunk is one ranked retrieval result.
type RetrievedChunk struct {
	Chunk *types.DocumentChunk `json:"chunk"`
	Score float64              `json:"score"`
}

// RetrievalService embeds a query, asks the vector index for the
// nearest chunks, and returns them ranked. Chunks whose document is
// not COMPLETED are dropped so callers never see stale or partial
// indexes. Failures propagate; retrying is the caller's decision.
type RetrievalService interface {
	Retrieve(ctx context.Context, query string, documentIDs []uuid.UUID, topK int) ([]RetrievedChunk, error)
}

type retrievalService struct {
	db       *gorm.DB
	log      *logger.Logger
	embedder Embedder
	vectors  pinecone.VectorStore
	chunks   repos.DocumentChunkRepo
	docs     repos.DocumentRepo
	topK     int
}

func NewRetrievalService(
	db *gorm.DB,
	baseLog *logger.Logger,
	embedder Embedder,
	vectors pinecone.VectorStore,
	chunkRepo repos.DocumentChunkRepo,
	docRepo repos.DocumentRepo,
	topK int,
) RetrievalService {
	if topK <= 0 {
		topK = 4
	}
	return &retrievalService{
		db:       db,
		log:      baseLog.With("service", "RetrievalService"),
		embedder: embedder,
		vectors:  vectors,
		chunks:   chunkRepo,
		docs:     docRepo,
		topK:     topK,
	}
}

func (s *retrievalService) Retrieve(ctx context.Context, query string, documentIDs []uuid.UUID, topK int) ([]RetrievedChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if topK <= 0 {
		topK = s.topK
	}

	embeddings, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("embed query: expected 1 vector, got %d", len(embeddings))
	}

	var filter map[string]any
	if len(documentIDs) > 0 {
		ids := make([]string, len(documentIDs))
		for i, id := range documentIDs {
			ids[i] = id.String()
		}
		filter = map[string]any{"document_id": map[string]any{"$in": ids}}
	}

	// Over-fetch to survive the completed-only filter below.
	matches, err := s.vectors.QueryIDs(ctx, embeddings[0], topK*2, filter)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	if len(matches) == 0 {
		return []RetrievedChunk{}, nil
	}

	chunkIDs := make([]uuid.UUID, 0, len(matches))
	scoreByID := make(map[uuid.UUID]float64, len(matches))
	for _, m := range matches {
		id, parseErr := uuid.Parse(m.ID)
		if parseErr != nil {
			s.log.Warn("Vector index returned non-uuid chunk id; skipping", "id", m.ID)
			continue
		}
		chunkIDs = append(chunkIDs, id)
		scoreByID[id] = m.Score
	}

	chunks, err := s.chunks.GetByIDs(ctx, nil, chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	docIDSet := make(map[uuid.UUID]struct{})
	for _, c := range chunks {
		docIDSet[c.DocumentID] = struct{}{}
	}
	docIDs := make([]uuid.UUID, 0, len(docIDSet))
	for id := range docIDSet {
		docIDs = append(docIDs, id)
	}
	documents, err := s.docs.GetByIDs(ctx, nil, docIDs)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	completed := make(map[uuid.UUID]bool, len(documents))
	for _, d := range documents {
		completed[d.ID] = d.Status == types.StatusCompleted
	}

	byID := make(map[uuid.UUID]*types.DocumentChunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	// Rank by index order (matches are already sorted by similarity).
	out := make([]RetrievedChunk, 0, topK)
	for _, id := range chunkIDs {
		c, ok := byID[id]
		if !ok || !completed[c.DocumentID] {
			continue
		}
		out = append(out, RetrievedChunk{Chunk: c, Score: scoreByID[id]})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}
