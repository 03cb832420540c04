package chathub_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gopherchat/backend/internal/chathub"
	"gopherchat/backend/internal/config"
	"gopherchat/backend/internal/models"
)

func newTestHub(s *MockStorage) *chathub.Hub {
	return chathub.NewHub(s, config.WebSocketConfig{SendBuffer: 32})
}

// recvFrame pops the next frame a client received, failing on timeout.
func recvFrame(t *testing.T, c *MockClient) models.WSMessage {
	t.Helper()
	select {
	case frame := <-c.RecvChannel:
		return frame
	case <-time.After(time.Second):
		t.Fatalf("client %s received no frame", c.GetUserID())
		return models.WSMessage{}
	}
}

// waitFor drains frames until one of the given type arrives.
func waitFor(t *testing.T, c *MockClient, frameType string) models.WSMessage {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case frame := <-c.RecvChannel:
			if frame.Type == frameType {
				return frame
			}
		case <-deadline:
			t.Fatalf("client %s never received %q", c.GetUserID(), frameType)
			return models.WSMessage{}
		}
	}
}

func decodeChatList(t *testing.T, frame models.WSMessage) models.ChatListPayload {
	t.Helper()
	var payload models.ChatListPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	return payload
}

func TestHub_RegisterAndPresence(t *testing.T) {
	storageMock := newMockStorage()
	storageMock.On("FlushOffline", mock.AnythingOfType("string")).Return([]models.MessagePayload{}, nil)
	storageMock.On("Publish", mock.AnythingOfType("models.WSMessage")).Return(nil)

	hub := newTestHub(storageMock)
	go hub.Run()

	alice := newMockClient("alice")
	hub.RegisterCh <- alice

	snapshot := decodeChatList(t, waitFor(t, alice, models.EventChatList))
	assert.Equal(t, models.ChatListMine, snapshot.Type)
	assert.Empty(t, snapshot.ChatList)

	// Let the loopback drain alice's join event before bob appears.
	time.Sleep(50 * time.Millisecond)

	bob := newMockClient("bob")
	hub.RegisterCh <- bob

	// Bob's snapshot already contains alice.
	snapshot = decodeChatList(t, waitFor(t, bob, models.EventChatList))
	assert.Equal(t, models.ChatListMine, snapshot.Type)
	require.Len(t, snapshot.ChatList, 1)
	assert.Equal(t, "alice", snapshot.ChatList[0].UserID)
	assert.Equal(t, models.StatusOnline, snapshot.ChatList[0].Status)

	// Alice sees bob join; bob must not see his own join event.
	joined := decodeChatList(t, waitFor(t, alice, models.EventChatList))
	assert.Equal(t, models.ChatListNewUserJoined, joined.Type)
	require.NotNil(t, joined.User)
	assert.Equal(t, "bob", joined.User.UserID)

	assert.True(t, hub.IsOnline("alice"))
	assert.True(t, hub.IsOnline("bob"))

	hub.UnregisterCh <- bob

	left := decodeChatList(t, waitFor(t, alice, models.EventChatList))
	assert.Equal(t, models.ChatListUserDisconnected, left.Type)
	require.NotNil(t, left.User)
	assert.Equal(t, "bob", left.User.UserID)
	assert.Equal(t, models.StatusOffline, left.User.Status)

	assert.False(t, hub.IsOnline("bob"))
}

func TestHub_DuplicateConnectionSupersedes(t *testing.T) {
	storageMock := newMockStorage()
	storageMock.On("FlushOffline", "alice").Return([]models.MessagePayload{}, nil)
	storageMock.On("Publish", mock.AnythingOfType("models.WSMessage")).Return(nil)

	hub := newTestHub(storageMock)
	go hub.Run()

	first := newMockClient("alice")
	second := newMockClient("alice")

	hub.RegisterCh <- first
	waitFor(t, first, models.EventChatList)

	hub.RegisterCh <- second
	waitFor(t, second, models.EventChatList)

	assert.True(t, first.IsClosed())
	assert.True(t, hub.IsOnline("alice"))

	// Only the fresh connection announced a join; the supersede did not.
	storageMock.AssertNumberOfCalls(t, "Publish", 1)

	// The superseded connection's late unregister must not flip presence
	// or announce a leave.
	hub.UnregisterCh <- first
	time.Sleep(50 * time.Millisecond)

	assert.True(t, hub.IsOnline("alice"))
	storageMock.AssertNumberOfCalls(t, "Publish", 1)
}

func TestHub_OfflineReplayOnRegister(t *testing.T) {
	queued := []models.MessagePayload{
		{ID: "m1", TempID: "t1", FromUserID: "bob", ToUserID: "alice", Message: "hi", Status: models.DeliverySent},
		{ID: "m2", TempID: "t2", FromUserID: "bob", ToUserID: "alice", Message: "there", Status: models.DeliverySent},
	}

	storageMock := newMockStorage()
	storageMock.On("FlushOffline", "alice").Return(queued, nil)
	storageMock.On("Publish", mock.AnythingOfType("models.WSMessage")).Return(nil)

	hub := newTestHub(storageMock)
	go hub.Run()

	alice := newMockClient("alice")
	hub.RegisterCh <- alice

	waitFor(t, alice, models.EventChatList)

	for _, want := range queued {
		frame := waitFor(t, alice, models.EventMessageResp)
		var got models.MessagePayload
		require.NoError(t, json.Unmarshal(frame.Payload, &got))
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Message, got.Message)
	}
}

func TestHub_OnlineUsersExcludesSelf(t *testing.T) {
	storageMock := newMockStorage()
	storageMock.On("FlushOffline", mock.AnythingOfType("string")).Return([]models.MessagePayload{}, nil)
	storageMock.On("Publish", mock.AnythingOfType("models.WSMessage")).Return(nil)

	hub := newTestHub(storageMock)
	go hub.Run()

	hub.RegisterCh <- newMockClient("alice")
	hub.RegisterCh <- newMockClient("bob")
	time.Sleep(50 * time.Millisecond)

	roster := hub.OnlineUsers("alice")
	require.Len(t, roster, 1)
	assert.Equal(t, "bob", roster[0].UserID)
}
