package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/conceptgraph-backend/internal/gatekeeper"
	"github.com/yungbote/conceptgraph-backend/internal/http/response"
	"github.com/yungbote/conceptgraph-backend/internal/pipeline"
	"github.com/yungbote/conceptgraph-backend/internal/pkg/logger"
	"github.com/yungbote/conceptgraph-backend/internal/platform/ctxutil"
)

type DocumentHandler struct {
	log  *logger.Logger
	orch *pipeline.Orchestrator
}

func NewDocumentHandler(log *logger.Logger, orch *pipeline.Orchestrator) *DocumentHandler {
	return &DocumentHandler{log: log.With("Handler", "DocumentHandler"), orch: orch}
}

type processDocumentRequest struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text" binding:"required"`
	Language   string `json:"language"`
	Profile    string `json:"profile"`
	Domain     string `json:"domain"`
	TrustLevel string `json:"trust_level"`
}

// ProcessDocument runs the full pipeline synchronously and returns the run
// result, partial or complete. A run that ends in its error state is still a
// 200: the caller inspects final_state.
func (h *DocumentHandler) ProcessDocument(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.TenantID == "" {
		response.RespondError(c, http.StatusForbidden, "forbidden", errors.New("no tenant in request context"))
		return
	}

	var req processDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	var docID uuid.UUID
	if req.DocumentID != "" {
		parsed, err := uuid.Parse(req.DocumentID)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
		docID = parsed
	}

	result := h.orch.Process(c.Request.Context(), pipeline.Request{
		DocumentID:  docID,
		TenantID:    rd.TenantID,
		Text:        req.Text,
		Language:    req.Language,
		ProfileName: req.Profile,
		MatchCtx: gatekeeper.MatchContext{
			Domain:     req.Domain,
			TrustLevel: req.TrustLevel,
			Language:   req.Language,
		},
	})
	response.RespondOK(c, result)
}
