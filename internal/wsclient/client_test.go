package wsclient

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopherchat/backend/internal/models"
)

var errConnClosed = errors.New("fake conn closed")

// fakeConn is an in-memory transport. Frames pushed to inbound come out of
// ReadMessage; frames the client writes land on written.
type fakeConn struct {
	inbound   chan []byte
	written   chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		written: make(chan []byte, 16),
		done:    make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.inbound:
		return 1, data, nil
	case <-f.done:
		return 0, nil, errConnClosed
	}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-f.done:
		return errConnClosed
	case f.written <- data:
		return nil
	}
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.done) })
	return nil
}

// serverPush injects a server-to-client frame.
func (f *fakeConn) serverPush(t *testing.T, frame models.WSMessage) {
	t.Helper()
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	f.inbound <- data
}

func (f *fakeConn) nextWritten(t *testing.T) models.WSMessage {
	t.Helper()
	select {
	case data := <-f.written:
		var frame models.WSMessage
		require.NoError(t, json.Unmarshal(data, &frame))
		return frame
	case <-time.After(time.Second):
		t.Fatal("client wrote no frame")
		return models.WSMessage{}
	}
}

func waitState(t *testing.T, c *Client, want ConnState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("client never reached state %d", want)
}

func waitEvent(t *testing.T, c *Client, eventType string) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.Events:
			if ev.Type == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %q event", eventType)
			return Event{}
		}
	}
}

func TestClient_ReconnectsAfterFailedDials(t *testing.T) {
	var attempts atomic.Int32
	conn := newFakeConn()
	dial := func() (wireConn, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("connection refused")
		}
		return conn, nil
	}

	c := New("alice", "ws://unused",
		WithDialFunc(dial),
		WithReconnectInterval(10*time.Millisecond))
	go c.Run()
	defer c.Close()

	waitState(t, c, StateConnected)
	assert.GreaterOrEqual(t, attempts.Load(), int32(3))
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	first := newFakeConn()
	second := newFakeConn()
	conns := make(chan *fakeConn, 2)
	conns <- first
	conns <- second

	c := New("alice", "ws://unused",
		WithDialFunc(func() (wireConn, error) { return <-conns, nil }),
		WithReconnectInterval(10*time.Millisecond))
	go c.Run()
	defer c.Close()

	waitState(t, c, StateConnected)

	// Server drops the connection; the client must come back on its own.
	first.Close()
	for _, want := range []ConnState{StateDisconnected, StateConnected} {
		for {
			ev := waitEvent(t, c, EventStateChange)
			if ev.State == want {
				break
			}
		}
	}

	// The new transport is live.
	_, err := c.Send("bob", "hello again", "")
	require.NoError(t, err)
	frame := second.nextWritten(t)
	assert.Equal(t, models.EventMessage, frame.Type)
}

func TestClient_SendFailsFastWhenDisconnected(t *testing.T) {
	c := New("alice", "ws://unused",
		WithDialFunc(func() (wireConn, error) { return nil, errors.New("refused") }),
		WithReconnectInterval(time.Minute))
	go c.Run()
	defer c.Close()

	tempID, err := c.Send("bob", "hi", "")
	assert.ErrorIs(t, err, ErrNotConnected)

	// The failure is visible in local state immediately.
	msgs := c.Store().Messages("bob")
	require.Len(t, msgs, 1)
	assert.Equal(t, tempID, msgs[0].TempID)
	assert.Equal(t, models.DeliveryFailed, msgs[0].Status)
}

func TestClient_SendAndEchoReconciliation(t *testing.T) {
	conn := newFakeConn()
	c := New("alice", "ws://unused",
		WithDialFunc(func() (wireConn, error) { return conn, nil }))
	go c.Run()
	defer c.Close()
	waitState(t, c, StateConnected)

	tempID, err := c.Send("bob", "hi", "")
	require.NoError(t, err)

	// The wire frame carries the tempId for reconciliation.
	frame := conn.nextWritten(t)
	assert.Equal(t, models.EventMessage, frame.Type)
	var req models.SendRequest
	require.NoError(t, json.Unmarshal(frame.Payload, &req))
	assert.Equal(t, tempID, req.TempID)
	assert.Equal(t, "bob", req.ToUserID)

	// Until the echo arrives the entry stays provisional.
	msgs := c.Store().Messages("bob")
	require.Len(t, msgs, 1)
	assert.Equal(t, models.DeliverySending, msgs[0].Status)
	assert.Empty(t, msgs[0].ID)

	conn.serverPush(t, models.NewWSMessage(models.EventMessageResp, models.MessagePayload{
		ID:         "m1",
		TempID:     tempID,
		FromUserID: "alice",
		ToUserID:   "bob",
		Message:    "hi",
		Status:     models.DeliverySent,
		CreatedAt:  time.Now(),
	}, ""))

	waitEvent(t, c, EventMessage)
	msgs = c.Store().Messages("bob")
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, models.DeliverySent, msgs[0].Status)
}

func TestClient_MissingEchoTimesOutAsFailed(t *testing.T) {
	conn := newFakeConn()
	c := New("alice", "ws://unused",
		WithDialFunc(func() (wireConn, error) { return conn, nil }),
		WithAckTimeout(30*time.Millisecond))
	go c.Run()
	defer c.Close()
	waitState(t, c, StateConnected)

	_, err := c.Send("bob", "hi", "")
	require.NoError(t, err)
	conn.nextWritten(t)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if c.Store().Messages("bob")[0].Status == models.DeliveryFailed {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("message never marked failed")
}

func TestClient_RosterAndIncomingMessages(t *testing.T) {
	conn := newFakeConn()
	c := New("alice", "ws://unused",
		WithDialFunc(func() (wireConn, error) { return conn, nil }))
	go c.Run()
	defer c.Close()
	waitState(t, c, StateConnected)

	conn.serverPush(t, models.NewWSMessage(models.EventChatList, models.ChatListPayload{
		Type: models.ChatListMine,
		ChatList: []models.UserInfo{
			{UserID: "bob", Username: "bob-name", Status: models.StatusOnline},
		},
	}, ""))

	ev := waitEvent(t, c, EventRoster)
	require.Len(t, ev.Roster, 1)
	assert.Equal(t, "bob", ev.Roster[0].UserID)

	// An incoming message from bob lands in bob's conversation.
	conn.serverPush(t, models.NewWSMessage(models.EventMessageResp, models.MessagePayload{
		ID:         "m7",
		FromUserID: "bob",
		ToUserID:   "alice",
		Message:    "hey",
		Status:     models.DeliverySent,
		CreatedAt:  time.Now(),
	}, ""))

	waitEvent(t, c, EventMessage)
	msgs := c.Store().Messages("bob")
	require.Len(t, msgs, 1)
	assert.Equal(t, "m7", msgs[0].ID)
}

func TestClient_TypingDebounceOnWire(t *testing.T) {
	conn := newFakeConn()
	c := New("alice", "ws://unused",
		WithDialFunc(func() (wireConn, error) { return conn, nil }),
		WithTypingWindow(40*time.Millisecond))
	go c.Run()
	defer c.Close()
	waitState(t, c, StateConnected)

	c.Typing("bob")
	c.Typing("bob")
	c.Typing("bob")

	frame := conn.nextWritten(t)
	assert.Equal(t, models.EventTyping, frame.Type)
	var payload models.TypingPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.True(t, payload.IsTyping)

	// The burst ends with exactly one typing(false).
	frame = conn.nextWritten(t)
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.False(t, payload.IsTyping)

	select {
	case data := <-conn.written:
		t.Fatalf("unexpected extra frame: %s", data)
	case <-time.After(80 * time.Millisecond):
	}
}
