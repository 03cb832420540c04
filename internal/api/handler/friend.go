package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"gopherchat/backend/internal/models"
)

type friendRequestPayload struct {
	TargetUsername string `json:"targetUsername" binding:"required"`
}

// SendFriendRequest creates a pending edge and notifies the target over
// the chat plane.
func (h *Handler) SendFriendRequest(c *gin.Context) {
	fromUserID := c.Param("fromUserID")

	var req friendRequestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{
			Code: http.StatusBadRequest, Status: http.StatusText(http.StatusBadRequest),
			Message: "target username required",
		})
		return
	}

	target, err := h.Storage.GetUserByUsername(req.TargetUsername)
	if err != nil {
		c.JSON(http.StatusNotFound, APIResponse{
			Code: http.StatusNotFound, Status: http.StatusText(http.StatusNotFound),
			Message: "user not found",
		})
		return
	}

	if friends, err := h.Storage.AreFriends(fromUserID, target.ID); err == nil && friends {
		c.JSON(http.StatusBadRequest, APIResponse{
			Code: http.StatusBadRequest, Status: http.StatusText(http.StatusBadRequest),
			Message: "already friends",
		})
		return
	}

	if err := h.Storage.CreateFriendRequest(fromUserID, target.ID); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{
			Code: http.StatusBadRequest, Status: http.StatusText(http.StatusBadRequest),
			Message: err.Error(),
		})
		return
	}

	h.notifyUser(target.ID, fromUserID, "friend_request", "sent you a friend request")

	c.JSON(http.StatusOK, APIResponse{
		Code: http.StatusOK, Status: http.StatusText(http.StatusOK),
		Message: "friend request sent",
	})
}

// AcceptFriendRequest flips the pending request to accepted and notifies
// the original requester.
func (h *Handler) AcceptFriendRequest(c *gin.Context) {
	requesterID := c.Param("requesterID")
	myUserID := c.Param("myUserID")

	if err := h.Storage.AcceptFriendRequest(requesterID, myUserID); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{
			Code: http.StatusBadRequest, Status: http.StatusText(http.StatusBadRequest),
			Message: "could not accept request",
		})
		return
	}

	h.notifyUser(requesterID, myUserID, "friend_accept", "accepted your friend request")

	c.JSON(http.StatusOK, APIResponse{
		Code: http.StatusOK, Status: http.StatusText(http.StatusOK),
		Message: "friend request accepted",
	})
}

// RejectFriendRequest declines a pending request. The requester is not
// notified; from their side the request simply stays unanswered.
func (h *Handler) RejectFriendRequest(c *gin.Context) {
	requesterID := c.Param("requesterID")
	myUserID := c.Param("myUserID")

	if err := h.Storage.RejectFriendRequest(requesterID, myUserID); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{
			Code: http.StatusBadRequest, Status: http.StatusText(http.StatusBadRequest),
			Message: "could not reject request",
		})
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Code: http.StatusOK, Status: http.StatusText(http.StatusOK),
		Message: "friend request rejected",
	})
}

func (h *Handler) GetPendingRequests(c *gin.Context) {
	requests, err := h.Storage.GetPendingRequests(c.Param("userID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, APIResponse{
			Code: http.StatusInternalServerError, Status: http.StatusText(http.StatusInternalServerError),
			Message: "error fetching requests",
		})
		return
	}
	c.JSON(http.StatusOK, APIResponse{
		Code: http.StatusOK, Status: http.StatusText(http.StatusOK),
		Response: requests,
	})
}

func (h *Handler) GetFriendList(c *gin.Context) {
	userID := c.Param("userID")
	friends, err := h.Storage.GetFriendList(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, APIResponse{
			Code: http.StatusInternalServerError, Status: http.StatusText(http.StatusInternalServerError),
			Message: "error fetching friends",
		})
		return
	}

	// Presence comes from the registry, not storage.
	infos := make([]models.UserInfo, 0, len(friends))
	for _, friend := range friends {
		status := models.StatusOffline
		if h.Hub.IsOnline(friend.ID) {
			status = models.StatusOnline
		}
		infos = append(infos, friend.Info(status))
	}

	c.JSON(http.StatusOK, APIResponse{
		Code: http.StatusOK, Status: http.StatusText(http.StatusOK),
		Response: infos,
	})
}

// notifyUser pushes a notification frame to one user over the chat plane.
// Best-effort: an offline target simply misses it.
func (h *Handler) notifyUser(toUserID, fromUserID, notifType, text string) {
	sender, err := h.Storage.GetUserByID(fromUserID)
	if err != nil {
		return
	}
	notif := models.NotificationPayload{
		ID:        uuid.New().String(),
		Type:      notifType,
		Message:   sender.Username + " " + text,
		FromUser:  sender.Username,
		Timestamp: time.Now(),
	}
	h.Storage.Publish(models.NewWSMessage(models.EventNotification, notif, toUserID))
}
