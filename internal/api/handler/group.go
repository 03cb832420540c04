package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"gopherchat/backend/internal/models"
)

type createGroupRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	CreatorID   string   `json:"creatorID" binding:"required"`
	MemberIDs   []string `json:"memberIDs"`
}

type groupMessageRequest struct {
	GroupID    string `json:"groupID" binding:"required"`
	FromUserID string `json:"fromUserID" binding:"required"`
	Message    string `json:"message" binding:"required"`
	Type       string `json:"type"`
	TempID     string `json:"tempId"`
}

type startGroupCallRequest struct {
	GroupID  string `json:"groupID" binding:"required"`
	CallerID string `json:"callerID" binding:"required"`
}

// CreateGroup creates a group; the creator is always a member.
func (h *Handler) CreateGroup(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{
			Code: http.StatusBadRequest, Status: http.StatusText(http.StatusBadRequest),
			Message: "name and creator are required",
		})
		return
	}

	memberIDs := []string{req.CreatorID}
	for _, id := range req.MemberIDs {
		if id == req.CreatorID {
			continue
		}
		if _, err := h.Storage.GetUserByID(id); err != nil {
			continue
		}
		memberIDs = append(memberIDs, id)
	}

	group := models.Group{
		Name:        req.Name,
		Description: req.Description,
		CreatorID:   req.CreatorID,
		MemberIDs:   memberIDs,
	}
	if err := h.Storage.SaveGroup(&group); err != nil {
		c.JSON(http.StatusInternalServerError, APIResponse{
			Code: http.StatusInternalServerError, Status: http.StatusText(http.StatusInternalServerError),
			Message: "could not create group",
		})
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Code: http.StatusOK, Status: http.StatusText(http.StatusOK),
		Response: group,
	})
}

func (h *Handler) GetUserGroups(c *gin.Context) {
	groups, err := h.Storage.GetGroupsForUser(c.Param("userID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, APIResponse{
			Code: http.StatusInternalServerError, Status: http.StatusText(http.StatusInternalServerError),
			Message: "error fetching groups",
		})
		return
	}
	c.JSON(http.StatusOK, APIResponse{
		Code: http.StatusOK, Status: http.StatusText(http.StatusOK),
		Response: groups,
	})
}

func (h *Handler) GetGroupDetails(c *gin.Context) {
	group, err := h.Storage.GetGroupByID(c.Param("groupID"))
	if err != nil {
		c.JSON(http.StatusNotFound, APIResponse{
			Code: http.StatusNotFound, Status: http.StatusText(http.StatusNotFound),
			Message: "group not found",
		})
		return
	}
	c.JSON(http.StatusOK, APIResponse{
		Code: http.StatusOK, Status: http.StatusText(http.StatusOK),
		Response: group,
	})
}

type addMemberRequest struct {
	GroupID string `json:"groupID" binding:"required"`
	UserID  string `json:"userID" binding:"required"`
}

func (h *Handler) AddGroupMember(c *gin.Context) {
	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{
			Code: http.StatusBadRequest, Status: http.StatusText(http.StatusBadRequest),
			Message: "group and user are required",
		})
		return
	}

	group, err := h.Storage.GetGroupByID(req.GroupID)
	if err != nil {
		c.JSON(http.StatusNotFound, APIResponse{
			Code: http.StatusNotFound, Status: http.StatusText(http.StatusNotFound),
			Message: "group not found",
		})
		return
	}
	if group.HasMember(req.UserID) {
		c.JSON(http.StatusBadRequest, APIResponse{
			Code: http.StatusBadRequest, Status: http.StatusText(http.StatusBadRequest),
			Message: "user is already a member",
		})
		return
	}
	if _, err := h.Storage.GetUserByID(req.UserID); err != nil {
		c.JSON(http.StatusNotFound, APIResponse{
			Code: http.StatusNotFound, Status: http.StatusText(http.StatusNotFound),
			Message: "user not found",
		})
		return
	}

	group.MemberIDs = append(group.MemberIDs, req.UserID)
	if err := h.Storage.SaveGroup(group); err != nil {
		c.JSON(http.StatusInternalServerError, APIResponse{
			Code: http.StatusInternalServerError, Status: http.StatusText(http.StatusInternalServerError),
			Message: "could not add member",
		})
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Code: http.StatusOK, Status: http.StatusText(http.StatusOK),
		Message: "member added",
	})
}

func (h *Handler) RemoveGroupMember(c *gin.Context) {
	group, err := h.Storage.GetGroupByID(c.Param("groupID"))
	if err != nil {
		c.JSON(http.StatusNotFound, APIResponse{
			Code: http.StatusNotFound, Status: http.StatusText(http.StatusNotFound),
			Message: "group not found",
		})
		return
	}

	userID := c.Param("userID")
	kept := group.MemberIDs[:0]
	for _, id := range group.MemberIDs {
		if id != userID {
			kept = append(kept, id)
		}
	}
	group.MemberIDs = kept

	if err := h.Storage.SaveGroup(group); err != nil {
		c.JSON(http.StatusInternalServerError, APIResponse{
			Code: http.StatusInternalServerError, Status: http.StatusText(http.StatusInternalServerError),
			Message: "could not remove member",
		})
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Code: http.StatusOK, Status: http.StatusText(http.StatusOK),
		Message: "member removed",
	})
}

func (h *Handler) DeleteGroup(c *gin.Context) {
	groupID := c.Param("groupID")
	group, err := h.Storage.GetGroupByID(groupID)
	if err != nil {
		c.JSON(http.StatusNotFound, APIResponse{
			Code: http.StatusNotFound, Status: http.StatusText(http.StatusNotFound),
			Message: "group not found",
		})
		return
	}
	if group.CreatorID != c.Query("requesterID") {
		c.JSON(http.StatusForbidden, APIResponse{
			Code: http.StatusForbidden, Status: http.StatusText(http.StatusForbidden),
			Message: "only the creator can delete a group",
		})
		return
	}

	if err := h.Storage.DeleteGroup(groupID); err != nil {
		c.JSON(http.StatusInternalServerError, APIResponse{
			Code: http.StatusInternalServerError, Status: http.StatusText(http.StatusInternalServerError),
			Message: "could not delete group",
		})
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Code: http.StatusOK, Status: http.StatusText(http.StatusOK),
		Message: "group deleted",
	})
}

func (h *Handler) GetGroupMessages(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	messages, err := h.Storage.GetGroupMessages(c.Param("groupID"), page)
	if err != nil {
		c.JSON(http.StatusInternalServerError, APIResponse{
			Code: http.StatusInternalServerError, Status: http.StatusText(http.StatusInternalServerError),
			Message: "error fetching messages",
		})
		return
	}
	c.JSON(http.StatusOK, APIResponse{
		Code: http.StatusOK, Status: http.StatusText(http.StatusOK),
		Response: messages,
	})
}

// SendGroupMessage persists a group message and fans it out to every other
// online member over the chat plane. It follows the same
// validate-persist-deliver-echo pipeline as direct messages.
func (h *Handler) SendGroupMessage(c *gin.Context) {
	var req groupMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{
			Code: http.StatusBadRequest, Status: http.StatusText(http.StatusBadRequest),
			Message: "group, sender and message are required",
		})
		return
	}

	group, err := h.Storage.GetGroupByID(req.GroupID)
	if err != nil {
		c.JSON(http.StatusNotFound, APIResponse{
			Code: http.StatusNotFound, Status: http.StatusText(http.StatusNotFound),
			Message: "group not found",
		})
		return
	}
	if !group.HasMember(req.FromUserID) {
		c.JSON(http.StatusForbidden, APIResponse{
			Code: http.StatusForbidden, Status: http.StatusText(http.StatusForbidden),
			Message: "sender is not a member",
		})
		return
	}

	msgType := req.Type
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	msg := models.GroupMessage{
		TempID:     req.TempID,
		GroupID:    req.GroupID,
		FromUserID: req.FromUserID,
		Body:       req.Message,
		Type:       msgType,
	}
	if err := h.Storage.SaveGroupMessage(&msg); err != nil {
		c.JSON(http.StatusInternalServerError, APIResponse{
			Code: http.StatusInternalServerError, Status: http.StatusText(http.StatusInternalServerError),
			Message: "could not store message",
		})
		return
	}

	// Fan out to each member, sender included: the echo is the sender's
	// acknowledgment.
	for _, memberID := range group.MemberIDs {
		h.Storage.Publish(models.NewWSMessage("group-message-response", msg, memberID))
	}

	c.JSON(http.StatusOK, APIResponse{
		Code: http.StatusOK, Status: http.StatusText(http.StatusOK),
		Response: msg,
	})
}

// StartGroupVideoCall allocates a signaling room for a group call and
// invites every member over the chat plane.
func (h *Handler) StartGroupVideoCall(c *gin.Context) {
	var req startGroupCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{
			Code: http.StatusBadRequest, Status: http.StatusText(http.StatusBadRequest),
			Message: "group and caller are required",
		})
		return
	}

	group, err := h.Storage.GetGroupByID(req.GroupID)
	if err != nil {
		c.JSON(http.StatusNotFound, APIResponse{
			Code: http.StatusNotFound, Status: http.StatusText(http.StatusNotFound),
			Message: "group not found",
		})
		return
	}
	if !group.HasMember(req.CallerID) {
		c.JSON(http.StatusForbidden, APIResponse{
			Code: http.StatusForbidden, Status: http.StatusText(http.StatusForbidden),
			Message: "caller is not a member",
		})
		return
	}

	caller, err := h.Storage.GetUserByID(req.CallerID)
	if err != nil {
		c.JSON(http.StatusNotFound, APIResponse{
			Code: http.StatusNotFound, Status: http.StatusText(http.StatusNotFound),
			Message: "caller not found",
		})
		return
	}

	roomID := uuid.New().String()
	for _, memberID := range group.MemberIDs {
		if memberID == req.CallerID {
			continue
		}
		notif := models.NotificationPayload{
			ID:        uuid.New().String(),
			Type:      "incoming_group_call",
			Message:   caller.Username + " started a call in " + group.Name,
			FromUser:  caller.Username,
			RoomID:    roomID,
			Timestamp: time.Now(),
		}
		h.Storage.Publish(models.NewWSMessage(models.EventNotification, notif, memberID))
	}

	c.JSON(http.StatusOK, APIResponse{
		Code: http.StatusOK, Status: http.StatusText(http.StatusOK),
		Response: gin.H{"roomId": roomID, "type": models.RoomTypeGroup, "groupId": group.ID},
	})
}
