package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Friend request states. Accept is a one-way transition; there is no
// un-accept.
const (
	FriendPending  = "pending"
	FriendAccepted = "accepted"
	FriendRejected = "rejected"
)

// FriendRequest is a directed edge in the friend graph. A pair of users is
// considered friends once a request between them, in either direction, is
// accepted.
type FriendRequest struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	FromUserID string    `gorm:"type:text;not null;index:idx_friend_pair" json:"fromUserID"`
	ToUserID   string    `gorm:"type:text;not null;index:idx_friend_pair" json:"toUserID"`
	Status     string    `gorm:"type:text;not null;default:pending" json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"-"`
}

func (fr *FriendRequest) BeforeCreate(tx *gorm.DB) (err error) {
	if fr.ID == "" {
		fr.ID = uuid.New().String()
	}
	return
}

// PendingRequest is the wire shape of an incoming friend request.
type PendingRequest struct {
	RequestID    string    `json:"requestId"`
	FromUserID   string    `json:"fromUserID"`
	FromUsername string    `json:"fromUsername"`
	CreatedAt    time.Time `json:"createdAt"`
}
