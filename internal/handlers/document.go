package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/digvijay2003/contract-intelligence-api/internal/logger"
	pkgerrors "github.com/digvijay2003/contract-intelligence-api/internal/pkg/errors"
	"github.com/digvijay2003/contract-intelligence-api/internal/repos"
	"github.com/digvijay2003/contract-intelligence-api/internal/services"
)

type DocumentHandler struct {
	log      *logger.Logger
	pipeline services.PipelineService
	docs     repos.DocumentRepo
	chunks   repos.DocumentChunkRepo
	fields   repos.ExtractedFieldRepo
	findings repos.AuditFindingRepo
}

func NewDocumentHandler(
	log *logger.Logger,
	pipeline services.PipelineService,
	docs repos.DocumentRepo,
	chunks repos.DocumentChunkRepo,
	fields repos.ExtractedFieldRepo,
	findings repos.AuditFindingRepo,
) *DocumentHandler {
	return &DocumentHandler{
		log:      log.With("handler", "DocumentHandler"),
		pipeline: pipeline,
		docs:     docs,
		chunks:   chunks,
		fields:   fields,
		findings: findings,
	}
}

// Upload accepts a multipart file, registers a PENDING document, and
// acks immediately. Workers pick the document up asynchronously.
func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "missing_file", err)
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}

	doc, err := h.pipeline.CreateFromUpload(c.Request.Context(), fileHeader.Filename, fileHeader.Header.Get("Content-Type"), data)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrValidation) {
			RespondError(c, http.StatusUnprocessableEntity, "invalid_upload", err)
			return
		}
		h.log.Error("Upload failed", "error", err, "filename", fileHeader.Filename)
		RespondError(c, http.StatusInternalServerError, "upload_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"document": doc})
}

func (h *DocumentHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	documents, err := h.docs.List(c.Request.Context(), nil, limit, offset)
	if err != nil {
		h.log.Error("List documents failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "list_documents_failed", err)
		return
	}
	RespondOK(c, gin.H{"documents": documents})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := h.documentID(c)
	if !ok {
		return
	}
	doc, err := h.docs.GetByID(c.Request.Context(), nil, id)
	if err != nil {
		h.log.Error("Get document failed", "error", err, "document_id", id)
		RespondError(c, http.StatusInternalServerError, "load_document_failed", err)
		return
	}
	if doc == nil {
		RespondError(c, http.StatusNotFound, "document_not_found", nil)
		return
	}
	RespondOK(c, gin.H{"document": doc})
}

func (h *DocumentHandler) GetFields(c *gin.Context) {
	id, ok := h.documentID(c)
	if !ok {
		return
	}
	field, err := h.fields.GetByDocumentID(c.Request.Context(), nil, id)
	if err != nil {
		h.log.Error("Get extracted fields failed", "error", err, "document_id", id)
		RespondError(c, http.StatusInternalServerError, "load_fields_failed", err)
		return
	}
	if field == nil {
		RespondError(c, http.StatusNotFound, "fields_not_found", nil)
		return
	}
	RespondOK(c, gin.H{"fields": field})
}

func (h *DocumentHandler) GetFindings(c *gin.Context) {
	id, ok := h.documentID(c)
	if !ok {
		return
	}
	findings, err := h.findings.GetByDocumentID(c.Request.Context(), nil, id)
	if err != nil {
		h.log.Error("Get audit findings failed", "error", err, "document_id", id)
		RespondError(c, http.StatusInternalServerError, "load_findings_failed", err)
		return
	}
	RespondOK(c, gin.H{"findings": findings})
}

func (h *DocumentHandler) GetChunks(c *gin.Context) {
	id, ok := h.documentID(c)
	if !ok {
		return
	}
	chunks, err := h.chunks.GetByDocumentID(c.Request.Context(), nil, id)
	if err != nil {
		h.log.Error("Get chunks failed", "error", err, "document_id", id)
		RespondError(c, http.StatusInternalServerError, "load_chunks_failed", err)
		return
	}
	RespondOK(c, gin.H{"chunks": chunks})
}

func (h *DocumentHandler) Reprocess(c *gin.Context) {
	id, ok := h.documentID(c)
	if !ok {
		return
	}
	doc, err := h.pipeline.Reprocess(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, pkgerrors.ErrNotFound):
			RespondError(c, http.StatusNotFound, "document_not_found", err)
		case errors.Is(err, pkgerrors.ErrValidation):
			RespondError(c, http.StatusConflict, "invalid_state", err)
		default:
			h.log.Error("Reprocess failed", "error", err, "document_id", id)
			RespondError(c, http.StatusInternalServerError, "reprocess_failed", err)
		}
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"document": doc})
}

func (h *DocumentHandler) documentID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return uuid.Nil, false
	}
	return id, true
}
