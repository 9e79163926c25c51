package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/conceptgraph-backend/internal/http/response"
	"github.com/yungbote/conceptgraph-backend/internal/ontology"
	pkgerrors "github.com/yungbote/conceptgraph-backend/internal/pkg/errors"
	"github.com/yungbote/conceptgraph-backend/internal/pkg/logger"
	"github.com/yungbote/conceptgraph-backend/internal/platform/ctxutil"
)

// OntologyHandler exposes the curation surface: pending review listings,
// validation, and deprecation with optional cascade migration.
type OntologyHandler struct {
	log *logger.Logger
	svc *ontology.Service
}

func NewOntologyHandler(log *logger.Logger, svc *ontology.Service) *OntologyHandler {
	return &OntologyHandler{log: log.With("Handler", "OntologyHandler"), svc: svc}
}

func (h *OntologyHandler) ListPending(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	entries, err := h.svc.ListPending(c.Request.Context(), tenantID, limitFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"entries": entries})
}

func (h *OntologyHandler) ListDeprecated(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	entries, err := h.svc.ListDeprecated(c.Request.Context(), tenantID, limitFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"entries": entries})
}

func (h *OntologyHandler) Validate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	entry, err := h.svc.Validate(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, entry)
}

func (h *OntologyHandler) Deprecate(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	var req ontology.DeprecateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.svc.Deprecate(c.Request.Context(), tenantID, req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, res)
}

func (h *OntologyHandler) Rollback(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	var req ontology.RollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.svc.Rollback(c.Request.Context(), tenantID, req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, res)
}

func tenantFrom(c *gin.Context) (string, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.TenantID == "" {
		response.RespondError(c, http.StatusForbidden, "forbidden", errors.New("no tenant in request context"))
		return "", false
	}
	return rd.TenantID, true
}

func limitFrom(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		return 100
	}
	return limit
}

func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pkgerrors.ErrNotFound):
		response.RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, pkgerrors.ErrInvalidArgument):
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
	default:
		response.RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}
