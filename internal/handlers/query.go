package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/digvijay2003/contract-intelligence-api/internal/logger"
	"github.com/digvijay2003/contract-intelligence-api/internal/observability/metrics"
	"github.com/digvijay2003/contract-intelligence-api/internal/repos"
	"github.com/digvijay2003/contract-intelligence-api/internal/services"
	"github.com/digvijay2003/contract-intelligence-api/internal/types"
)

type QueryRequest struct {
	Question    string   `json:"question" binding:"required"`
	DocumentIDs []string `json:"document_ids"`
	TopK        int      `json:"top_k"`
}

type QueryResponse struct {
	Question  string                    `json:"question"`
	Chunks    []services.RetrievedChunk `json:"chunks"`
	LatencyMS int64                     `json:"latency_ms"`
}

type QueryHandler struct {
	log       *logger.Logger
	metrics   metrics.Recorder
	retrieval services.RetrievalService
	queryLogs repos.QueryLogRepo
}

func NewQueryHandler(log *logger.Logger, recorder metrics.Recorder, retrieval services.RetrievalService, queryLogs repos.QueryLogRepo) *QueryHandler {
	return &QueryHandler{
		log:       log.With("handler", "QueryHandler"),
		metrics:   recorder,
		retrieval: retrieval,
		queryLogs: queryLogs,
	}
}

func (h *QueryHandler) Query(c *gin.Context) {
	started := time.Now()

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		RespondError(c, http.StatusBadRequest, "empty_question", nil)
		return
	}

	docIDs := make([]uuid.UUID, 0, len(req.DocumentIDs))
	for _, raw := range req.DocumentIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
			return
		}
		docIDs = append(docIDs, id)
	}

	chunks, err := h.retrieval.Retrieve(c.Request.Context(), req.Question, docIDs, req.TopK)
	if err != nil {
		h.log.Error("Query retrieval failed", "error", err)
		RespondError(c, http.StatusBadGateway, "retrieval_failed", err)
		return
	}

	latency := time.Since(started)
	h.metrics.QueryServed(latency.Seconds())
	h.writeQueryLog(c, req, chunks, latency)

	RespondOK(c, QueryResponse{
		Question:  req.Question,
		Chunks:    chunks,
		LatencyMS: latency.Milliseconds(),
	})
}

func (h *QueryHandler) History(c *gin.Context) {
	sessionID := c.GetHeader("X-Session-ID")
	if sessionID == "" {
		RespondError(c, http.StatusBadRequest, "missing_session", nil)
		return
	}
	logs, err := h.queryLogs.ListBySessionID(c.Request.Context(), nil, sessionID, 50)
	if err != nil {
		h.log.Error("Query history lookup failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "history_failed", err)
		return
	}
	RespondOK(c, gin.H{"queries": logs})
}

// writeQueryLog appends the served query to the audit trail. Logging
// is best effort; a write failure never fails the query itself.
func (h *QueryHandler) writeQueryLog(c *gin.Context, req QueryRequest, chunks []services.RetrievedChunk, latency time.Duration) {
	answer := make([]string, 0, len(chunks))
	seen := make(map[string]struct{})
	for _, rc := range chunks {
		docID := rc.Chunk.DocumentID.String()
		if _, ok := seen[docID]; !ok {
			seen[docID] = struct{}{}
		}
		answer = append(answer, rc.Chunk.Text)
	}
	docIDs := make([]string, 0, len(seen))
	for id := range seen {
		docIDs = append(docIDs, id)
	}
	idsJSON, err := json.Marshal(docIDs)
	if err != nil {
		idsJSON = []byte("[]")
	}

	entry := &types.QueryLog{
		ID:          uuid.New(),
		SessionID:   c.GetHeader("X-Session-ID"),
		Question:    req.Question,
		Answer:      strings.Join(answer, "\n---\n"),
		DocumentIDs: datatypes.JSON(idsJSON),
		LatencyMS:   latency.Milliseconds(),
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := h.queryLogs.Create(c.Request.Context(), nil, []*types.QueryLog{entry}); err != nil {
		h.log.Warn("Failed to write query log", "error", err)
	}
}
