package chathub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gopherchat/backend/internal/config"
	"gopherchat/backend/internal/logging"
	"gopherchat/backend/internal/models"
)

// WebSocketClient implements Client over a gorilla connection.
type WebSocketClient struct {
	UserID   string
	Username string
	Conn     *websocket.Conn
	Hub      *Hub
	Send     chan models.WSMessage

	cfg       config.WebSocketConfig
	closeOnce sync.Once
}

// NewWebSocketClient builds a client with a send buffer sized per config.
func NewWebSocketClient(hub *Hub, conn *websocket.Conn, userID, username string) *WebSocketClient {
	cfg := hub.Config()
	return &WebSocketClient{
		UserID:   userID,
		Username: username,
		Conn:     conn,
		Hub:      hub,
		Send:     make(chan models.WSMessage, cfg.SendBuffer),
		cfg:      cfg,
	}
}

func (c *WebSocketClient) GetUserID() string                       { return c.UserID }
func (c *WebSocketClient) GetUsername() string                     { return c.Username }
func (c *WebSocketClient) GetSendChannel() chan<- models.WSMessage { return c.Send }

// Run starts the pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close closes the send channel, stopping the write pump; the read pump
// stops when the write pump closes the connection. Safe to call more than
// once.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() {
		close(c.Send)
	})
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.UnregisterCh <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, payload, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.L().Warn().Err(err).Str("user_id", c.UserID).Msg("read error")
			}
			break
		}

		var frame models.WSMessage
		if err := json.Unmarshal(payload, &frame); err != nil {
			logging.L().Warn().Err(err).Str("user_id", c.UserID).Msg("dropping malformed frame")
			continue
		}

		c.Hub.IncomingCh <- Inbound{Client: c, Message: frame}
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			json.NewEncoder(w).Encode(frame)

			// Coalesce whatever else is queued into this frame.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				json.NewEncoder(w).Encode(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
