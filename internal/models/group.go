package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Group is a named multi-user chat. MemberIDs always contains the creator.
type Group struct {
	ID          string         `gorm:"primaryKey" json:"groupID"`
	Name        string         `gorm:"not null" json:"name"`
	Description string         `json:"description,omitempty"`
	CreatorID   string         `gorm:"type:text;not null;index" json:"creatorID"`
	MemberIDs   pq.StringArray `gorm:"type:text[]" json:"memberIDs"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"-"`
}

func (g *Group) BeforeCreate(tx *gorm.DB) (err error) {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	return
}

// HasMember reports whether userID belongs to the group.
func (g *Group) HasMember(userID string) bool {
	for _, id := range g.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// GroupMessage is a persisted message addressed to a group. It mirrors
// Message but is keyed by group rather than by recipient.
type GroupMessage struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	TempID     string    `gorm:"index" json:"tempId,omitempty"`
	GroupID    string    `gorm:"type:text;not null;index" json:"groupID"`
	FromUserID string    `gorm:"type:text;not null" json:"fromUserID"`
	Body       string    `gorm:"type:text;not null" json:"message"`
	Type       string    `gorm:"type:text;not null;default:text" json:"type"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (m *GroupMessage) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return
}
