package handler

import (
	"math/rand"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gopherchat/backend/internal/models"
)

// GetConversation returns one page of history between two users, oldest
// first. The client merges it with live messages by tempId/id upsert.
func (h *Handler) GetConversation(c *gin.Context) {
	toUserID := c.Param("toUserID")
	fromUserID := c.Param("fromUserID")
	if toUserID == "" || fromUserID == "" {
		c.JSON(http.StatusBadRequest, APIResponse{
			Code: http.StatusBadRequest, Status: http.StatusText(http.StatusBadRequest),
			Message: "both user IDs are required",
		})
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	messages, err := h.Storage.GetConversation(toUserID, fromUserID, page)
	if err != nil {
		c.JSON(http.StatusInternalServerError, APIResponse{
			Code: http.StatusInternalServerError, Status: http.StatusText(http.StatusInternalServerError),
			Message: "failed to load conversation",
		})
		return
	}

	payloads := make([]models.MessagePayload, 0, len(messages))
	for _, m := range messages {
		payloads = append(payloads, m.Payload(models.DeliverySent))
	}

	c.JSON(http.StatusOK, APIResponse{
		Code: http.StatusOK, Status: http.StatusText(http.StatusOK),
		Response: payloads,
	})
}

// JoinRandomChat picks a random online peer for the caller to talk to.
func (h *Handler) JoinRandomChat(c *gin.Context) {
	userID := c.Param("userID")

	online := h.Hub.OnlineUsers(userID)
	if len(online) == 0 {
		c.JSON(http.StatusOK, APIResponse{
			Code: http.StatusOK, Status: http.StatusText(http.StatusOK),
			Message: "nobody else is online",
		})
		return
	}

	pick := online[rand.Intn(len(online))]
	c.JSON(http.StatusOK, APIResponse{
		Code: http.StatusOK, Status: http.StatusText(http.StatusOK),
		Response: pick,
	})
}
