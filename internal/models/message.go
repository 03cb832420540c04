package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message kinds.
const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeFile   = "file"
	MessageTypeSystem = "system"
)

// Delivery status values. Only "sent" is ever assigned by the server; the
// remaining values belong to the client-side optimistic state machine.
const (
	DeliverySending   = "sending"
	DeliverySent      = "sent"
	DeliveryDelivered = "delivered"
	DeliveryRead      = "read"
	DeliveryFailed    = "failed"
)

// Message is a persisted direct message. ID is assigned once on first
// successful persistence and never changes. TempID is the client-generated
// correlation token; it is stored and echoed verbatim so the sender can
// reconcile its optimistic copy, but carries no server-side meaning.
type Message struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	TempID     string    `gorm:"index" json:"tempId,omitempty"`
	FromUserID string    `gorm:"type:text;not null;index:idx_conversation" json:"fromUserID"`
	ToUserID   string    `gorm:"type:text;not null;index:idx_conversation" json:"toUserID"`
	Body       string    `gorm:"type:text;not null" json:"message"`
	Type       string    `gorm:"type:text;not null;default:text" json:"type"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return
}

// MessagePayload is the wire shape of a delivered or echoed message.
// Status is always set by the router, not read from storage.
type MessagePayload struct {
	ID         string    `json:"id"`
	TempID     string    `json:"tempId,omitempty"`
	FromUserID string    `json:"fromUserID"`
	ToUserID   string    `json:"toUserID"`
	Message    string    `json:"message"`
	Type       string    `json:"type"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Payload converts a persisted message to its wire shape.
func (m *Message) Payload(status string) MessagePayload {
	return MessagePayload{
		ID:         m.ID,
		TempID:     m.TempID,
		FromUserID: m.FromUserID,
		ToUserID:   m.ToUserID,
		Message:    m.Body,
		Type:       m.Type,
		Status:     status,
		CreatedAt:  m.CreatedAt,
	}
}
