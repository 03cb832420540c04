package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"gopherchat/backend/internal/config"
	"gopherchat/backend/internal/logging"
	"gopherchat/backend/internal/models"
	"gopherchat/backend/internal/videohub"
)

// VideoHandler carries the signaling service's dependencies. It is served
// by a separate binary from the chat Handler; the two planes are
// independently addressable.
type VideoHandler struct {
	Hub   *videohub.Hub
	Store *videohub.RedisRoomStore
	WSCfg config.WebSocketConfig
}

func NewVideoHandler(hub *videohub.Hub, store *videohub.RedisRoomStore, wsCfg config.WebSocketConfig) *VideoHandler {
	return &VideoHandler{Hub: hub, Store: store, WSCfg: wsCfg}
}

// ServeSignaling upgrades /ws/:roomID?userId=x into a signaling
// connection. Joining the hub implicitly creates the room.
func (h *VideoHandler) ServeSignaling(c *gin.Context) {
	roomID := c.Param("roomID")
	userID := c.Query("userId")
	if roomID == "" || userID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "roomId and userId required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.L().Warn().Err(err).Msg("signaling upgrade failed")
		return
	}

	peer := videohub.NewWebSocketPeer(h.Hub, conn, roomID, userID, h.WSCfg)
	h.Hub.Join(roomID, peer)
	peer.Run()
}

// GetRoomParticipants answers from the redis mirror so any node can serve
// it.
func (h *VideoHandler) GetRoomParticipants(c *gin.Context) {
	roomID := c.Param("roomID")
	participants, err := h.Store.Participants(roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load participants"})
		return
	}
	meta, err := h.Store.Metadata(roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"roomId":       roomID,
		"participants": participants,
		"count":        len(participants),
		"meta":         meta,
	})
}

// ListActiveRooms returns the IDs of rooms with at least one participant.
func (h *VideoHandler) ListActiveRooms(c *gin.Context) {
	rooms, err := h.Store.ActiveRooms()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rooms"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms, "count": len(rooms)})
}

// CreateRoom pre-registers room metadata ahead of the first signaling
// connection.
func (h *VideoHandler) CreateRoom(c *gin.Context) {
	var req models.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.CreatorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "creatorId required"})
		return
	}

	roomID := req.RoomID
	if roomID == "" {
		roomID = uuid.New().String()
	}
	roomType := req.Type
	if roomType == "" {
		roomType = models.RoomTypePeer
	}

	if err := h.Store.InitRoom(roomID, req.CreatorID, roomType, req.GroupID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"roomId":    roomID,
		"creatorId": req.CreatorID,
		"created":   true,
	})
}

// DeleteRoom force-closes a call: every connection is dropped and the
// tracking keys removed.
func (h *VideoHandler) DeleteRoom(c *gin.Context) {
	roomID := c.Param("roomID")
	h.Hub.CloseRoom(roomID)
	// The hub only touches the store for rooms it hosts; clear the keys
	// unconditionally so pre-registered empty rooms are removed too.
	if err := h.Store.DeleteRoom(roomID); err != nil {
		logging.L().Warn().Err(err).Str("room_id", roomID).Msg("room store delete")
	}
	c.JSON(http.StatusOK, gin.H{"roomId": roomID, "deleted": true})
}

// Health is the signaling service's liveness probe.
func (h *VideoHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "video-signaling"})
}
