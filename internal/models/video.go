package models

import "encoding/json"

// Video room kinds.
const (
	RoomTypePeer  = "peer"
	RoomTypeGroup = "group"
)

// Signaling event types. The hub routes these blindly; it never inspects
// SDP or ICE contents.
const (
	SignalUserJoined   = "user-joined"
	SignalUserLeft     = "user-left"
	SignalOffer        = "offer"
	SignalAnswer       = "answer"
	SignalICECandidate = "ice-candidate"
	SignalRequestOffer = "request-offer"
)

// SignalMessage is the envelope for every frame on the video socket.
type SignalMessage struct {
	Type     string          `json:"type"`
	UserID   string          `json:"userId"`
	TargetID string          `json:"targetId,omitempty"`
	RoomID   string          `json:"roomId"`
	SDP      *SessionDesc    `json:"sdp,omitempty"`
	ICE      *ICECandidate   `json:"ice,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// SessionDesc is an opaque SDP blob.
type SessionDesc struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate is an opaque connectivity candidate.
type ICECandidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex int    `json:"sdpMLineIndex"`
}

// RoomParticipant is one user in an active call.
type RoomParticipant struct {
	UserID      string `json:"userId"`
	Username    string `json:"username,omitempty"`
	JoinedAt    int64  `json:"joinedAt"`
	AudioMuted  bool   `json:"audioMuted"`
	VideoMuted  bool   `json:"videoMuted"`
	IsScreening bool   `json:"isScreening"`
}

// CreateRoomRequest creates a video call room ahead of the first signaling
// connection. RoomID is optional; one is generated when absent.
type CreateRoomRequest struct {
	RoomID    string `json:"roomId"`
	CreatorID string `json:"creatorId"`
	GroupID   string `json:"groupId,omitempty"`
	Type      string `json:"type"`
}
