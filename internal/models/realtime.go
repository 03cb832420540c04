package models

import (
	"encoding/json"
	"time"
)

// Chat socket event types. Client-to-server: EventMessage, EventTyping,
// EventDisconnect. Server-to-client: the *-response types and
// EventNotification.
const (
	EventMessage      = "message"
	EventTyping       = "typing"
	EventDisconnect   = "disconnect"
	EventChatList     = "chatlist-response"
	EventMessageResp  = "message-response"
	EventTypingResp   = "typing-response"
	EventNotification = "notification"
)

// Chat-list response sub-kinds.
const (
	ChatListMine             = "my-chatlist"
	ChatListNewUserJoined    = "new-user-joined"
	ChatListUserDisconnected = "user-disconnected"
)

// WSMessage is the envelope for every frame on the chat socket. TargetID is
// only meaningful on the server side: it routes redis-relayed frames to a
// single user, and an empty TargetID means broadcast.
type WSMessage struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	TargetID string          `json:"targetID,omitempty"`
	// ExcludeID suppresses delivery to one user on broadcast frames, so a
	// presence event is never echoed back to its own subject.
	ExcludeID string `json:"excludeID,omitempty"`
}

// NewWSMessage marshals data into a WSMessage envelope. Marshal failures
// are impossible for the payload types used here, so they are swallowed.
func NewWSMessage(msgType string, data interface{}, targetID string) WSMessage {
	payload, _ := json.Marshal(data)
	return WSMessage{Type: msgType, Payload: payload, TargetID: targetID}
}

// ChatListPayload carries presence events. For the my-chatlist snapshot
// ChatList is set; for incremental join/leave events User is set.
type ChatListPayload struct {
	Type     string     `json:"type"`
	ChatList []UserInfo `json:"chatlist,omitempty"`
	User     *UserInfo  `json:"user,omitempty"`
}

// TypingPayload is relayed verbatim between peers. The server keeps no
// typing state; timeout enforcement is the sender's job.
type TypingPayload struct {
	FromUserID string `json:"fromUserID"`
	ToUserID   string `json:"toUserID"`
	IsTyping   bool   `json:"isTyping"`
}

// SendRequest is the client-to-server message payload.
type SendRequest struct {
	FromUserID string `json:"fromUserID"`
	ToUserID   string `json:"toUserID"`
	Message    string `json:"message"`
	Type       string `json:"type,omitempty"`
	TempID     string `json:"tempId,omitempty"`
}

// NotificationPayload is an out-of-band alert (new message, friend events,
// incoming call) pushed over the chat socket.
type NotificationPayload struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	FromUser  string    `json:"fromUser,omitempty"`
	RoomID    string    `json:"roomId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
