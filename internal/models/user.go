package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Presence status values. Status is derived from registry membership,
// never written to the database.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusAway    = "away"
)

// User represents a registered account. The ID is immutable; the username
// may change. Online status is not a column here on purpose: the connection
// registry is the source of truth for presence.
type User struct {
	ID           string    `gorm:"primaryKey" json:"userID"`
	Username     string    `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
}

// BeforeCreate is a GORM hook that assigns a UUID if the ID is unset.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// UserInfo is the wire shape for a user in presence payloads and API
// responses.
type UserInfo struct {
	UserID   string `json:"userID"`
	Username string `json:"username"`
	Status   string `json:"status"`
}

// Info returns the wire shape for u with the given presence status.
func (u *User) Info(status string) UserInfo {
	return UserInfo{UserID: u.ID, Username: u.Username, Status: status}
}
