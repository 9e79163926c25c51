package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/conceptgraph-backend/internal/dispatch"
	"github.com/yungbote/conceptgraph-backend/internal/http/response"
	"github.com/yungbote/conceptgraph-backend/internal/pkg/logger"
)

// DispatchHandler exposes the dispatcher's per-tier queue snapshot.
type DispatchHandler struct {
	log        *logger.Logger
	dispatcher *dispatch.Dispatcher
}

func NewDispatchHandler(log *logger.Logger, dispatcher *dispatch.Dispatcher) *DispatchHandler {
	return &DispatchHandler{log: log.With("Handler", "DispatchHandler"), dispatcher: dispatcher}
}

func (h *DispatchHandler) Stats(c *gin.Context) {
	response.RespondOK(c, gin.H{"tiers": h.dispatcher.QueueStats()})
}
