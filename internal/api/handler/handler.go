package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gopherchat/backend/internal/chathub"
	"gopherchat/backend/internal/config"
	"gopherchat/backend/internal/storage"
)

// Handler carries the chat server's dependencies into gin handlers.
type Handler struct {
	Hub     *chathub.Hub
	Storage storage.Storage
	Auth    config.AuthConfig
}

func NewHandler(hub *chathub.Hub, s storage.Storage, auth config.AuthConfig) *Handler {
	return &Handler{Hub: hub, Storage: s, Auth: auth}
}

// Health is the chat server's liveness probe.
func (h *Handler) Health(c *gin.Context) {
	if err := h.Storage.Healthcheck(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "chat"})
}

// APIResponse is the uniform REST envelope.
type APIResponse struct {
	Code     int         `json:"code"`
	Status   string      `json:"status"`
	Message  string      `json:"message"`
	Response interface{} `json:"response"`
}
