package videohub

import (
	"sync"
	"time"

	"gopherchat/backend/internal/logging"
	"gopherchat/backend/internal/models"
)

// RoomStore mirrors room membership into shared storage so the REST
// surface can answer participant queries without touching hub internals.
type RoomStore interface {
	InitRoom(roomID, creatorID, roomType, groupID string) error
	AddUser(roomID, userID string) error
	RemoveUser(roomID, userID string) error
	DeleteRoom(roomID string) error
	Participants(roomID string) ([]string, error)
}

// Peer is one signaling connection, keyed by (roomID, userID).
type Peer interface {
	GetUserID() string
	GetSendChannel() chan<- models.SignalMessage
	Run()
	Close()
}

// room is the live state of one call. Created implicitly by the first
// join, destroyed when the last participant leaves. The peer/group
// distinction lives in the redis room metadata, not here; relay rules are
// identical for both.
type room struct {
	peers  map[string]Peer
	joined map[string]int64
}

// Hub owns every active room roster; nothing else mutates call state. It
// relays offers, answers and ICE candidates between peers without ever
// inspecting their contents.
//
// Offer initiation policy: on join the hub broadcasts user-joined to the
// members already present, and those members initiate offers toward the
// joiner (existing-initiates-to-new). The joiner never needs the roster up
// front, and exactly one initiation path fires per peer pair.
type Hub struct {
	rooms map[string]*room
	mu    sync.RWMutex
	store RoomStore
}

func NewHub(store RoomStore) *Hub {
	return &Hub{rooms: make(map[string]*room), store: store}
}

// Join adds a peer to a room, creating the room on first join, and
// announces the arrival to existing members.
func (h *Hub) Join(roomID string, peer Peer) {
	userID := peer.GetUserID()

	h.mu.Lock()
	rm, ok := h.rooms[roomID]
	if !ok {
		rm = &room{
			peers:  make(map[string]Peer),
			joined: make(map[string]int64),
		}
		h.rooms[roomID] = rm
	}
	if old, dup := rm.peers[userID]; dup {
		old.Close()
	}
	rm.peers[userID] = peer
	rm.joined[userID] = time.Now().Unix()
	h.mu.Unlock()

	if err := h.store.AddUser(roomID, userID); err != nil {
		logging.L().Warn().Err(err).Str("room_id", roomID).Msg("room store add")
	}

	h.broadcast(roomID, userID, models.SignalMessage{
		Type:   models.SignalUserJoined,
		UserID: userID,
		RoomID: roomID,
	})

	logging.L().Info().Str("room_id", roomID).Str("user_id", userID).Msg("peer joined room")
}

// Leave removes a peer, announces the departure, and garbage-collects the
// room when its roster empties. Idempotent, and keyed by the peer itself:
// a superseded connection's late teardown must not evict the replacement
// that took its (room, user) slot.
func (h *Hub) Leave(roomID string, peer Peer) {
	userID := peer.GetUserID()

	h.mu.Lock()
	rm, ok := h.rooms[roomID]
	if !ok {
		h.mu.Unlock()
		return
	}
	current, present := rm.peers[userID]
	if !present || current != peer {
		h.mu.Unlock()
		return
	}
	delete(rm.peers, userID)
	delete(rm.joined, userID)
	empty := len(rm.peers) == 0
	if empty {
		delete(h.rooms, roomID)
	}
	h.mu.Unlock()

	peer.Close()

	if err := h.store.RemoveUser(roomID, userID); err != nil {
		logging.L().Warn().Err(err).Str("room_id", roomID).Msg("room store remove")
	}

	if !empty {
		h.broadcast(roomID, userID, models.SignalMessage{
			Type:   models.SignalUserLeft,
			UserID: userID,
			RoomID: roomID,
		})
	}

	logging.L().Info().Str("room_id", roomID).Str("user_id", userID).Bool("room_destroyed", empty).Msg("peer left room")
}

// HandleSignal routes one client-to-server signaling frame. The sender
// identity always comes from the connection, not the payload.
func (h *Hub) HandleSignal(roomID, senderID string, msg models.SignalMessage) {
	msg.UserID = senderID
	msg.RoomID = roomID

	switch msg.Type {
	case models.SignalOffer, models.SignalAnswer, models.SignalICECandidate:
		// Fire-and-forget relay: a missing target means the peer already
		// left, and WebRTC's own retry handles the loss.
		if msg.TargetID != "" {
			h.sendTo(roomID, msg.TargetID, msg)
		}

	case models.SignalRequestOffer:
		// Accepted but ignored: offer initiation is driven by the
		// user-joined broadcast, and honoring both paths would race two
		// simultaneous offers per peer pair.

	default:
		logging.L().Debug().Str("type", msg.Type).Msg("unknown signal type")
	}
}

// Participants returns the live roster of a room.
func (h *Hub) Participants(roomID string) []models.RoomParticipant {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rm, ok := h.rooms[roomID]
	if !ok {
		return nil
	}
	participants := make([]models.RoomParticipant, 0, len(rm.peers))
	for userID := range rm.peers {
		participants = append(participants, models.RoomParticipant{
			UserID:   userID,
			JoinedAt: rm.joined[userID],
		})
	}
	return participants
}

// CloseRoom force-closes every connection in a room and removes it.
func (h *Hub) CloseRoom(roomID string) {
	h.mu.Lock()
	rm, ok := h.rooms[roomID]
	if ok {
		delete(h.rooms, roomID)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	for _, peer := range rm.peers {
		peer.Close()
	}
	if err := h.store.DeleteRoom(roomID); err != nil {
		logging.L().Warn().Err(err).Str("room_id", roomID).Msg("room store delete")
	}
}

func (h *Hub) sendTo(roomID, userID string, msg models.SignalMessage) {
	h.mu.RLock()
	var peer Peer
	if rm, ok := h.rooms[roomID]; ok {
		peer = rm.peers[userID]
	}
	h.mu.RUnlock()
	if peer == nil {
		return
	}

	select {
	case peer.GetSendChannel() <- msg:
	default:
		logging.L().Warn().Str("room_id", roomID).Str("user_id", userID).Msg("signal buffer full, dropping peer")
		h.Leave(roomID, peer)
	}
}

// broadcast fans a frame out to every room member except the sender.
// Self-message suppression keeps broadcast relays from feeding back.
func (h *Hub) broadcast(roomID, exceptUserID string, msg models.SignalMessage) {
	h.mu.RLock()
	rm, ok := h.rooms[roomID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make(map[string]Peer, len(rm.peers))
	for userID, peer := range rm.peers {
		if userID == exceptUserID {
			continue
		}
		targets[userID] = peer
	}
	h.mu.RUnlock()

	for userID, peer := range targets {
		select {
		case peer.GetSendChannel() <- msg:
		default:
			logging.L().Warn().Str("room_id", roomID).Str("user_id", userID).Msg("signal buffer full, dropping peer")
			h.Leave(roomID, peer)
		}
	}
}
