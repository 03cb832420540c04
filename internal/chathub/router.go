package chathub

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"gopherchat/backend/internal/logging"
	"gopherchat/backend/internal/models"
	"gopherchat/backend/internal/storage"
)

var (
	// ErrInvalidMessage rejects empty bodies, self-sends and malformed
	// envelopes. Nothing is persisted or delivered.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrPersistence means storage refused the write. The message is
	// neither delivered nor echoed with "sent"; the sender gets a failed
	// echo so its optimistic entry can resolve without waiting for a
	// timeout.
	ErrPersistence = errors.New("persistence failed")
)

// Router validates, persists and delivers direct messages, and relays
// typing events. It holds no state of its own; messages are write-once in
// storage and presence lives in the hub.
type Router struct {
	hub     *Hub
	storage storage.Storage
}

func NewRouter(hub *Hub, s storage.Storage) *Router {
	return &Router{hub: hub, storage: s}
}

// HandleFrame dispatches one client-to-server frame.
func (r *Router) HandleFrame(client Client, frame models.WSMessage) {
	switch frame.Type {
	case models.EventMessage:
		var req models.SendRequest
		if err := json.Unmarshal(frame.Payload, &req); err != nil {
			logging.L().Warn().Err(err).Str("user_id", client.GetUserID()).Msg("malformed message payload")
			return
		}
		// The connection's identity wins over whatever the payload claims.
		req.FromUserID = client.GetUserID()
		if err := r.Send(req); err != nil {
			logging.L().Warn().Err(err).Str("user_id", client.GetUserID()).Msg("send rejected")
		}

	case models.EventTyping:
		var payload models.TypingPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			logging.L().Warn().Err(err).Str("user_id", client.GetUserID()).Msg("malformed typing payload")
			return
		}
		payload.FromUserID = client.GetUserID()
		r.Typing(payload)

	case models.EventDisconnect:
		// Explicit client-side goodbye; the read pump will also fire
		// unregister when the transport closes, which is idempotent.
		go func() { r.hub.UnregisterCh <- client }()

	default:
		logging.L().Debug().Str("type", frame.Type).Msg("unknown frame type")
	}
}

// Send runs the full delivery pipeline: validate, persist, deliver, echo.
// The echo is the sender's only acknowledgment and is never skipped on the
// success path.
func (r *Router) Send(req models.SendRequest) error {
	if strings.TrimSpace(req.Message) == "" || req.FromUserID == "" || req.ToUserID == "" {
		return fmt.Errorf("%w: empty body or missing party", ErrInvalidMessage)
	}
	if req.FromUserID == req.ToUserID {
		return fmt.Errorf("%w: cannot message yourself", ErrInvalidMessage)
	}

	msgType := req.Type
	if msgType == "" {
		msgType = models.MessageTypeText
	}

	msg := models.Message{
		TempID:     req.TempID,
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
		Body:       req.Message,
		Type:       msgType,
	}
	if err := r.storage.SaveMessage(&msg); err != nil {
		// Failure is detectable synchronously here, so tell the sender
		// rather than leaving it to time out.
		failed := msg.Payload(models.DeliveryFailed)
		failed.CreatedAt = time.Now()
		r.hub.EmitLocal(req.FromUserID, models.NewWSMessage(models.EventMessageResp, failed, req.FromUserID))
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	payload := msg.Payload(models.DeliverySent)

	// Recipient first. If they are offline the push is skipped and the
	// message waits in the offline queue for their next register.
	if r.hub.IsOnline(req.ToUserID) {
		if err := r.storage.Publish(models.NewWSMessage(models.EventMessageResp, payload, req.ToUserID)); err != nil {
			logging.L().Error().Err(err).Str("message_id", msg.ID).Msg("publish delivery")
		}
	} else if err := r.storage.QueueOffline(req.ToUserID, payload); err != nil {
		logging.L().Error().Err(err).Str("message_id", msg.ID).Msg("queue offline")
	}

	// Echo the identical persisted copy to the sender so it can reconcile
	// its tempId-keyed optimistic entry to the durable id.
	if err := r.storage.Publish(models.NewWSMessage(models.EventMessageResp, payload, req.FromUserID)); err != nil {
		logging.L().Error().Err(err).Str("message_id", msg.ID).Msg("publish echo")
	}

	r.notify(req.ToUserID, req.FromUserID)
	return nil
}

// Typing forwards a typing event to its recipient. No persistence, no
// timeout tracking; frames for offline recipients are silently dropped.
func (r *Router) Typing(payload models.TypingPayload) {
	if payload.ToUserID == "" || payload.FromUserID == payload.ToUserID {
		return
	}
	if err := r.storage.Publish(models.NewWSMessage(models.EventTypingResp, payload, payload.ToUserID)); err != nil {
		logging.L().Error().Err(err).Msg("publish typing")
	}
}

func (r *Router) notify(toUserID, fromUserID string) {
	sender, err := r.storage.GetUserByID(fromUserID)
	if err != nil {
		return
	}
	notif := models.NotificationPayload{
		ID:        uuid.New().String(),
		Type:      "new_message",
		Message:   "New message from " + sender.Username,
		FromUser:  sender.Username,
		Timestamp: time.Now(),
	}
	if err := r.storage.Publish(models.NewWSMessage(models.EventNotification, notif, toUserID)); err != nil {
		logging.L().Error().Err(err).Msg("publish notification")
	}
}
