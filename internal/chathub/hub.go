package chathub

import (
	"sync"

	"gopherchat/backend/internal/config"
	"gopherchat/backend/internal/logging"
	"gopherchat/backend/internal/models"
	"gopherchat/backend/internal/storage"
)

// Hub owns the connection registry: the map from userID to live connection
// is mutated nowhere else. It is also the presence source of truth; a user
// is online exactly when the registry holds a connection for them.
//
// Registration is last-writer-wins: a second connection for the same user
// supersedes the first, and the superseded transport is closed to stop
// socket leaks from duplicate tabs and reconnect races.
type Hub struct {
	RegisterCh   chan Client
	UnregisterCh chan Client
	IncomingCh   chan Inbound

	clients map[string]Client
	mu      sync.RWMutex

	storage storage.Storage
	router  *Router
	wsCfg   config.WebSocketConfig
}

func NewHub(s storage.Storage, wsCfg config.WebSocketConfig) *Hub {
	h := &Hub{
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		IncomingCh:   make(chan Inbound, 64),
		clients:      make(map[string]Client),
		storage:      s,
		wsCfg:        wsCfg,
	}
	h.router = NewRouter(h, s)
	return h
}

// Router exposes the message router bound to this hub.
func (h *Hub) Router() *Router {
	return h.router
}

// Config returns the websocket timing settings shared with client pumps.
func (h *Hub) Config() config.WebSocketConfig {
	return h.wsCfg
}

// Run is the hub's dispatch loop. All registry mutations funnel through it,
// so per-user join/leave ordering is the order the loop observes. Delivery
// to individual connections goes through buffered per-client channels and
// never blocks this loop.
func (h *Hub) Run() {
	events := h.storage.Subscribe()

	for {
		select {
		case client := <-h.RegisterCh:
			h.handleRegister(client)

		case client := <-h.UnregisterCh:
			h.handleUnregister(client)

		case in := <-h.IncomingCh:
			h.router.HandleFrame(in.Client, in.Message)

		case frame, ok := <-events:
			if !ok {
				logging.L().Error().Msg("pub/sub stream closed, hub stopping")
				return
			}
			h.BroadcastLocal(frame)
		}
	}
}

func (h *Hub) handleRegister(client Client) {
	userID := client.GetUserID()

	h.mu.Lock()
	old, superseded := h.clients[userID]
	h.clients[userID] = client
	h.mu.Unlock()

	if superseded {
		old.Close()
		logging.L().Info().Str("user_id", userID).Msg("superseded duplicate connection")
	}

	// Bootstrap sequence: the new connection gets the full online roster
	// before any incremental diff.
	snapshot := models.NewWSMessage(models.EventChatList, models.ChatListPayload{
		Type:     models.ChatListMine,
		ChatList: h.OnlineUsers(userID),
	}, userID)
	h.EmitLocal(userID, snapshot)

	// Peers learn about the join only on a fresh connection, not when a
	// duplicate tab replaces an existing one.
	if !superseded {
		joined := models.UserInfo{
			UserID:   userID,
			Username: client.GetUsername(),
			Status:   models.StatusOnline,
		}
		frame := models.NewWSMessage(models.EventChatList, models.ChatListPayload{
			Type: models.ChatListNewUserJoined,
			User: &joined,
		}, "")
		frame.ExcludeID = userID
		if err := h.storage.Publish(frame); err != nil {
			logging.L().Error().Err(err).Str("user_id", userID).Msg("publish join event")
		}
	}

	h.flushOffline(userID)

	logging.L().Info().Str("user_id", userID).Msg("client registered")
}

// flushOffline replays messages queued while the user was away. Replay is
// at-least-once; the client upsert dedupes by tempId/id.
func (h *Hub) flushOffline(userID string) {
	queued, err := h.storage.FlushOffline(userID)
	if err != nil {
		logging.L().Error().Err(err).Str("user_id", userID).Msg("flush offline queue")
		return
	}
	for _, payload := range queued {
		h.EmitLocal(userID, models.NewWSMessage(models.EventMessageResp, payload, userID))
	}
}

// handleUnregister removes the client if it is still the registered entry
// for its user. A superseded connection's late unregister is a no-op, which
// keeps join/leave ordering correct across connection epochs. Unregister is
// idempotent.
func (h *Hub) handleUnregister(client Client) {
	userID := client.GetUserID()

	h.mu.Lock()
	current, ok := h.clients[userID]
	if !ok || current != client {
		h.mu.Unlock()
		return
	}
	delete(h.clients, userID)
	h.mu.Unlock()

	client.Close()

	left := models.UserInfo{
		UserID:   userID,
		Username: client.GetUsername(),
		Status:   models.StatusOffline,
	}
	frame := models.NewWSMessage(models.EventChatList, models.ChatListPayload{
		Type: models.ChatListUserDisconnected,
		User: &left,
	}, "")
	frame.ExcludeID = userID
	if err := h.storage.Publish(frame); err != nil {
		logging.L().Error().Err(err).Str("user_id", userID).Msg("publish leave event")
	}

	logging.L().Info().Str("user_id", userID).Msg("client unregistered")
}

// IsOnline reports whether a user has a registered connection on this node.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// OnlineUsers returns a consistent snapshot of the roster, excluding the
// given user.
func (h *Hub) OnlineUsers(exceptUserID string) []models.UserInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]models.UserInfo, 0, len(h.clients))
	for userID, client := range h.clients {
		if userID == exceptUserID {
			continue
		}
		users = append(users, models.UserInfo{
			UserID:   userID,
			Username: client.GetUsername(),
			Status:   models.StatusOnline,
		})
	}
	return users
}

// EmitLocal sends a frame to one locally connected user. Delivery is
// best-effort: a full send buffer means the consumer is too slow to keep,
// and the connection is scheduled for unregister rather than allowed to
// stall the caller. Returns false when the user is not connected here.
func (h *Hub) EmitLocal(userID string, frame models.WSMessage) bool {
	h.mu.RLock()
	client, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	select {
	case client.GetSendChannel() <- frame:
		return true
	default:
		logging.L().Warn().Str("user_id", userID).Msg("send buffer full, dropping connection")
		go func() { h.UnregisterCh <- client }()
		return false
	}
}

// BroadcastLocal routes a fan-out frame to local connections. A frame with
// a TargetID goes to that user only; otherwise it goes to everyone except
// ExcludeID. Failure to reach one peer never aborts delivery to the rest.
func (h *Hub) BroadcastLocal(frame models.WSMessage) {
	if frame.TargetID != "" {
		h.EmitLocal(frame.TargetID, frame)
		return
	}

	h.mu.RLock()
	targets := make([]Client, 0, len(h.clients))
	for userID, client := range h.clients {
		if userID == frame.ExcludeID {
			continue
		}
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		select {
		case client.GetSendChannel() <- frame:
		default:
			slow := client
			logging.L().Warn().Str("user_id", slow.GetUserID()).Msg("send buffer full, dropping connection")
			go func() { h.UnregisterCh <- slow }()
		}
	}
}
