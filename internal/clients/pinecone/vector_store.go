package pinecone

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/digvijay2003/contract-intelligence-api/internal/logger"
)

// VectorStore is the narrow index surface the pipeline and the
// retrieval gateway share: upsert chunk vectors, query nearest ids,
// purge everything belonging to one document.
type VectorStore interface {
	Upsert(ctx context.Context, vectors []Vector) error
	QueryIDs(ctx context.Context, q []float32, topK int, filter map[string]any) ([]ScoredID, error)
	DeleteByDocumentID(ctx context.Context, documentID string) error
}

type ScoredID struct {
	ID    string
	Score float64
}

type vectorStore struct {
	log       *logger.Logger
	pc        Client
	indexName string
	indexHost string
	namespace string
}

func NewVectorStore(log *logger.Logger, pc Client) (VectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if pc == nil {
		return nil, fmt.Errorf("pinecone client required")
	}

	indexName := strings.TrimSpace(os.Getenv("PINECONE_INDEX_NAME"))
	if indexName == "" {
		indexName = "contract-intelligence"
	}

	host := strings.TrimSpace(os.Getenv("PINECONE_INDEX_HOST"))

	namespace := strings.TrimSpace(os.Getenv("PINECONE_NAMESPACE"))
	if namespace == "" {
		namespace = "contracts"
	}

	// If host missing, bootstrap via describe_index (fine for local/dev; avoid in prod).
	if host == "" {
		desc, err := pc.DescribeIndex(context.Background(), indexName)
		if err != nil {
			return nil, fmt.Errorf("pinecone describe_index failed: %w", err)
		}
		host = strings.TrimSpace(desc.Host)
		if host == "" {
			return nil, fmt.Errorf("pinecone describe_index returned empty host")
		}
		log.Warn("PINECONE_INDEX_HOST not set; resolved via describe_index (avoid this in production)",
			"index_name", indexName,
			"index_host", host,
		)
	}

	return &vectorStore{
		log:       log.With("service", "PineconeVectorStore"),
		pc:        pc,
		indexName: indexName,
		indexHost: host,
		namespace: namespace,
	}, nil
}

func (s *vectorStore) Upsert(ctx context.Context, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	_, err := s.pc.UpsertVectors(ctx, s.indexHost, UpsertRequest{
		Namespace: s.namespace,
		Vectors:   vectors,
	})
	return err
}

func (s *vectorStore) QueryIDs(ctx context.Context, q []float32, topK int, filter map[string]any) ([]ScoredID, error) {
	resp, err := s.pc.Query(ctx, s.indexHost, QueryRequest{
		Namespace:       s.namespace,
		Vector:          q,
		TopK:            topK,
		Filter:          filter,
		IncludeMetadata: false,
	})
	if err != nil {
		return nil, err
	}
	out := make([]ScoredID, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		out = append(out, ScoredID{ID: m.ID, Score: m.Score})
	}
	return out, nil
}

func (s *vectorStore) DeleteByDocumentID(ctx context.Context, documentID string) error {
	if strings.TrimSpace(documentID) == "" {
		return nil
	}
	return s.pc.DeleteVectors(ctx, s.indexHost, DeleteRequest{
		Namespace: s.namespace,
		Filter:    map[string]any{"document_id": map[string]any{"$eq": documentID}},
	})
}
