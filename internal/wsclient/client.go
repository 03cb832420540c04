package wsclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"gopherchat/backend/internal/config"
	"gopherchat/backend/internal/logging"
	"gopherchat/backend/internal/models"
)

// Connection states.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

// Defaults for the reconnect loop and acknowledgment timeout. The retry
// interval is deliberately flat, not exponential.
const (
	DefaultReconnectInterval = 3 * time.Second
	DefaultAckTimeout        = 10 * time.Second
)

// ErrNotConnected is returned by Send while the transport is down.
// Messages are never queued client-side; they fail fast and the caller
// decides whether to retry.
var ErrNotConnected = errors.New("wsclient: not connected")

// Event is one server-to-client occurrence surfaced to the application.
type Event struct {
	Type         string
	Roster       []models.UserInfo
	User         *models.UserInfo
	Message      *models.MessagePayload
	Typing       *models.TypingPayload
	Notification *models.NotificationPayload
	State        ConnState
}

// Event types surfaced on the Events channel.
const (
	EventStateChange  = "state-change"
	EventRoster       = "roster"
	EventUserJoined   = "user-joined"
	EventUserLeft     = "user-left"
	EventMessage      = "message"
	EventTyping       = "typing"
	EventNotification = "notification"
)

// wireConn is the slice of *websocket.Conn the client needs; tests swap in
// an in-memory pipe.
type wireConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialFunc opens one transport attempt.
type DialFunc func() (wireConn, error)

// Client implements the delivery-guarantee layer: an explicit reconnect
// state machine (Disconnected -> Connecting -> Connected) driven by a
// timer, an optimistic store reconciled by tempId upsert, and sender-side
// typing debounce. On every successful (re)connect the server pushes a
// fresh roster snapshot; the client assumes nothing survives a reconnect.
type Client struct {
	UserID string
	Events chan Event

	store  *Store
	typing *typingNotifier

	dial              DialFunc
	reconnectInterval time.Duration
	ackTimeout        time.Duration

	mu      sync.Mutex
	state   ConnState
	conn    wireConn
	pending map[string]*time.Timer // tempID -> ack deadline
	done    chan struct{}
	stopped bool
}

// Option tweaks client construction.
type Option func(*Client)

func WithReconnectInterval(d time.Duration) Option {
	return func(c *Client) { c.reconnectInterval = d }
}

func WithAckTimeout(d time.Duration) Option {
	return func(c *Client) { c.ackTimeout = d }
}

func WithTypingWindow(d time.Duration) Option {
	return func(c *Client) { c.typing = newTypingNotifier(d, c.sendTyping) }
}

// WithDialFunc replaces the transport dialer.
func WithDialFunc(dial DialFunc) Option {
	return func(c *Client) { c.dial = dial }
}

// WithConfig applies the client section of the shared config file.
func WithConfig(cfg config.ClientConfig) Option {
	return func(c *Client) {
		if cfg.ReconnectInterval > 0 {
			c.reconnectInterval = cfg.ReconnectInterval
		}
		if cfg.AckTimeout > 0 {
			c.ackTimeout = cfg.AckTimeout
		}
		if cfg.TypingWindow > 0 {
			c.typing = newTypingNotifier(cfg.TypingWindow, c.sendTyping)
		}
	}
}

// New builds a client for wsURL, which must already carry the user ID and
// session token.
func New(userID, wsURL string, opts ...Option) *Client {
	c := &Client{
		UserID:            userID,
		Events:            make(chan Event, 256),
		store:             NewStore(),
		reconnectInterval: DefaultReconnectInterval,
		ackTimeout:        DefaultAckTimeout,
		pending:           make(map[string]*time.Timer),
		done:              make(chan struct{}),
	}
	c.dial = func() (wireConn, error) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	c.typing = newTypingNotifier(DefaultTypingWindow, c.sendTyping)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store exposes the optimistic message state.
func (c *Client) Store() *Store {
	return c.store
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run drives the connect/read/reconnect loop until Close is called.
// Intended to run on its own goroutine.
func (c *Client) Run() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.setState(StateConnecting)
		conn, err := c.dial()
		if err != nil {
			c.setState(StateDisconnected)
			select {
			case <-c.done:
				return
			case <-time.After(c.reconnectInterval):
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setState(StateConnected)

		c.readLoop(conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		c.setState(StateDisconnected)

		select {
		case <-c.done:
			return
		case <-time.After(c.reconnectInterval):
		}
	}
}

// Close stops the reconnect loop and drops the transport.
func (c *Client) Close() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	close(c.done)
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Send performs an optimistic send: the message enters the local store in
// "sending" state before the frame leaves, and flips to "sent" only when
// the server's echo arrives. No echo within the ack timeout flips it to
// "failed"; the timeout is the only failure signal. While disconnected
// the entry is recorded as failed immediately.
func (c *Client) Send(toUserID, body, msgType string) (string, error) {
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	tempID := uuid.New().String()

	local := models.MessagePayload{
		TempID:     tempID,
		FromUserID: c.UserID,
		ToUserID:   toUserID,
		Message:    body,
		Type:       msgType,
		Status:     models.DeliverySending,
		CreatedAt:  time.Now(),
	}

	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		local.Status = models.DeliveryFailed
		c.store.Upsert(toUserID, local)
		return tempID, ErrNotConnected
	}

	c.store.Upsert(toUserID, local)
	c.typing.Stop(toUserID)

	frame := models.NewWSMessage(models.EventMessage, models.SendRequest{
		FromUserID: c.UserID,
		ToUserID:   toUserID,
		Message:    body,
		Type:       msgType,
		TempID:     tempID,
	}, "")
	if err := c.writeFrame(conn, frame); err != nil {
		c.store.SetStatus(toUserID, tempID, models.DeliveryFailed)
		return tempID, fmt.Errorf("wsclient send: %w", err)
	}

	c.armAckTimer(toUserID, tempID)
	return tempID, nil
}

// Typing records keystroke activity toward a peer; the debounce emits the
// wire events.
func (c *Client) Typing(toUserID string) {
	c.typing.Input(toUserID)
}

// StopTyping ends a typing burst immediately.
func (c *Client) StopTyping(toUserID string) {
	c.typing.Stop(toUserID)
}

// MergeHistory folds a fetched conversation page into the store.
func (c *Client) MergeHistory(peerID string, history []models.MessagePayload) {
	c.store.Merge(peerID, history)
}

func (c *Client) sendTyping(peerID string, isTyping bool) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	frame := models.NewWSMessage(models.EventTyping, models.TypingPayload{
		FromUserID: c.UserID,
		ToUserID:   peerID,
		IsTyping:   isTyping,
	}, "")
	if err := c.writeFrame(conn, frame); err != nil {
		logging.L().Debug().Err(err).Msg("typing frame dropped")
	}
}

func (c *Client) writeFrame(conn wireConn, frame models.WSMessage) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) armAckTimer(peerID, tempID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[tempID] = time.AfterFunc(c.ackTimeout, func() {
		c.mu.Lock()
		delete(c.pending, tempID)
		c.mu.Unlock()
		c.store.SetStatus(peerID, tempID, models.DeliveryFailed)
	})
}

func (c *Client) resolveAck(tempID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if timer, ok := c.pending[tempID]; ok {
		timer.Stop()
		delete(c.pending, tempID)
	}
}

func (c *Client) setState(state ConnState) {
	c.mu.Lock()
	if c.state == state {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.mu.Unlock()

	c.emit(Event{Type: EventStateChange, State: state})
}

func (c *Client) readLoop(conn wireConn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return
		}

		var frame models.WSMessage
		if err := json.Unmarshal(data, &frame); err != nil {
			logging.L().Debug().Err(err).Msg("dropping malformed frame")
			continue
		}
		c.handleFrame(frame)
	}
}

func (c *Client) handleFrame(frame models.WSMessage) {
	switch frame.Type {
	case models.EventChatList:
		var payload models.ChatListPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return
		}
		switch payload.Type {
		case models.ChatListMine:
			c.emit(Event{Type: EventRoster, Roster: payload.ChatList})
		case models.ChatListNewUserJoined:
			c.emit(Event{Type: EventUserJoined, User: payload.User})
		case models.ChatListUserDisconnected:
			c.emit(Event{Type: EventUserLeft, User: payload.User})
		}

	case models.EventMessageResp:
		var msg models.MessagePayload
		if err := json.Unmarshal(frame.Payload, &msg); err != nil {
			return
		}
		// The peer key is always the other party, for sent and received
		// messages alike.
		peerID := msg.FromUserID
		if msg.FromUserID == c.UserID {
			peerID = msg.ToUserID
			c.resolveAck(msg.TempID)
		}
		c.store.Upsert(peerID, msg)
		c.emit(Event{Type: EventMessage, Message: &msg})

	case models.EventTypingResp:
		var payload models.TypingPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return
		}
		c.emit(Event{Type: EventTyping, Typing: &payload})

	case models.EventNotification:
		var payload models.NotificationPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return
		}
		c.emit(Event{Type: EventNotification, Notification: &payload})
	}
}

// emit hands an event to the application. The channel is generously
// buffered; if the application stops consuming, old events are dropped in
// favor of new ones.
func (c *Client) emit(event Event) {
	select {
	case c.Events <- event:
	default:
		select {
		case <-c.Events:
		default:
		}
		select {
		case c.Events <- event:
		default:
		}
	}
}
