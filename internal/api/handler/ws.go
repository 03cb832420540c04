package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"gopherchat/backend/internal/chathub"
	"gopherchat/backend/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allows any origin. Tighten in production.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades the chat connection for /ws/:userID. The token
// (Authorization header or ?token=) must belong to that user; an invalid
// session is refused at upgrade time and never reaches the hub.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	userID := c.Param("userID")
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user ID required"})
		return
	}

	tokenString := c.Query("token")
	if tokenString == "" {
		auth := c.GetHeader("Authorization")
		tokenString = strings.TrimPrefix(auth, "Bearer ")
	}
	subject, err := h.validateToken(tokenString)
	if err != nil || subject != userID {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	user, err := h.Storage.GetUserByID(userID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.L().Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := chathub.NewWebSocketClient(h.Hub, conn, user.ID, user.Username)
	h.Hub.RegisterCh <- client
	client.Run()
}
