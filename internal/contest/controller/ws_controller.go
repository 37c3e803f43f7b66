package controller

import (
	"github.com/gin-gonic/gin"

	"arena/internal/gateway"
	"arena/pkg/utils/logger"

	"go.uber.org/zap"
)

// WSController upgrades websocket connections into the gateway hub.
type WSController struct {
	hub *gateway.Hub
}

// NewWSController creates a new WSController.
func NewWSController(hub *gateway.Hub) *WSController {
	return &WSController{hub: hub}
}

// Serve upgrades the request. Authentication happens in-band over the
// socket, so the HTTP side is open.
func (h *WSController) Serve(c *gin.Context) {
	if err := h.hub.Serve(c.Writer, c.Request); err != nil {
		logger.Warn(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
	}
}
