package videohub

import (
	"time"

	"github.com/gorilla/websocket"

	"gopherchat/backend/internal/config"
	"gopherchat/backend/internal/logging"
	"gopherchat/backend/internal/models"
)

// WebSocketPeer implements Peer over a gorilla connection. Unlike a chat
// client it is bound to a (roomID, userID) pair and lives only as long as
// the call.
type WebSocketPeer struct {
	UserID string
	RoomID string
	Conn   *websocket.Conn
	Hub    *Hub
	Send   chan models.SignalMessage

	cfg  config.WebSocketConfig
	done chan struct{}
}

func NewWebSocketPeer(hub *Hub, conn *websocket.Conn, roomID, userID string, cfg config.WebSocketConfig) *WebSocketPeer {
	return &WebSocketPeer{
		UserID: userID,
		RoomID: roomID,
		Conn:   conn,
		Hub:    hub,
		Send:   make(chan models.SignalMessage, cfg.SendBuffer),
		cfg:    cfg,
		done:   make(chan struct{}),
	}
}

func (p *WebSocketPeer) GetUserID() string { return p.UserID }

func (p *WebSocketPeer) GetSendChannel() chan<- models.SignalMessage { return p.Send }

func (p *WebSocketPeer) Run() {
	go p.writePump()
	go p.readPump()
}

// Close signals the pumps to stop. The send channel itself stays open so a
// racing relay never panics; undelivered frames are simply dropped, which
// the signaling contract allows.
func (p *WebSocketPeer) Close() {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
}

func (p *WebSocketPeer) readPump() {
	defer func() {
		p.Hub.Leave(p.RoomID, p)
		p.Conn.Close()
	}()

	p.Conn.SetReadLimit(p.cfg.MaxMessageSize)
	p.Conn.SetReadDeadline(time.Now().Add(p.cfg.PongWait))
	p.Conn.SetPongHandler(func(string) error {
		p.Conn.SetReadDeadline(time.Now().Add(p.cfg.PongWait))
		return nil
	})

	for {
		var msg models.SignalMessage
		if err := p.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.L().Warn().Err(err).Str("user_id", p.UserID).Msg("signal read error")
			}
			break
		}
		p.Hub.HandleSignal(p.RoomID, p.UserID, msg)
	}
}

func (p *WebSocketPeer) writePump() {
	ticker := time.NewTicker(p.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		p.Conn.Close()
	}()

	for {
		select {
		case msg := <-p.Send:
			p.Conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteWait))
			if err := p.Conn.WriteJSON(msg); err != nil {
				return
			}

		case <-p.done:
			p.Conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteWait))
			p.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			p.Conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteWait))
			if err := p.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
