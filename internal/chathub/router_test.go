package chathub_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gopherchat/backend/internal/chathub"
	"gopherchat/backend/internal/models"
)

func sendFrame(req models.SendRequest) models.WSMessage {
	return models.NewWSMessage(models.EventMessage, req, "")
}

func TestRouter_SendDeliversAndEchoes(t *testing.T) {
	storageMock := newMockStorage()
	storageMock.On("FlushOffline", mock.AnythingOfType("string")).Return([]models.MessagePayload{}, nil)
	storageMock.On("Publish", mock.AnythingOfType("models.WSMessage")).Return(nil)
	storageMock.On("SaveMessage", mock.AnythingOfType("*models.Message")).Run(func(args mock.Arguments) {
		msg := args.Get(0).(*models.Message)
		msg.ID = "m1"
		msg.CreatedAt = time.Now()
	}).Return(nil)
	storageMock.On("GetUserByID", "alice").Return(&models.User{ID: "alice", Username: "alice-name"}, nil)

	hub := newTestHub(storageMock)
	go hub.Run()

	alice := newMockClient("alice")
	bob := newMockClient("bob")
	hub.RegisterCh <- alice
	time.Sleep(50 * time.Millisecond)
	hub.RegisterCh <- bob
	time.Sleep(50 * time.Millisecond)

	hub.IncomingCh <- chathub.Inbound{
		Client:  alice,
		Message: sendFrame(models.SendRequest{ToUserID: "bob", Message: "hi", TempID: "t1"}),
	}

	// Recipient gets the persisted copy.
	frame := waitFor(t, bob, models.EventMessageResp)
	var delivered models.MessagePayload
	require.NoError(t, json.Unmarshal(frame.Payload, &delivered))
	assert.Equal(t, "m1", delivered.ID)
	assert.Equal(t, "t1", delivered.TempID)
	assert.Equal(t, "alice", delivered.FromUserID)
	assert.Equal(t, models.DeliverySent, delivered.Status)

	// Sender gets the identical echo, which is its only ack.
	frame = waitFor(t, alice, models.EventMessageResp)
	var echo models.MessagePayload
	require.NoError(t, json.Unmarshal(frame.Payload, &echo))
	assert.Equal(t, delivered.ID, echo.ID)
	assert.Equal(t, delivered.TempID, echo.TempID)
	assert.Equal(t, models.DeliverySent, echo.Status)

	// Recipient also gets an out-of-band notification.
	frame = waitFor(t, bob, models.EventNotification)
	var notif models.NotificationPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &notif))
	assert.Equal(t, "new_message", notif.Type)

	storageMock.AssertNotCalled(t, "QueueOffline", mock.Anything, mock.Anything)
}

func TestRouter_SendToOfflineRecipientQueues(t *testing.T) {
	storageMock := newMockStorage()
	storageMock.On("FlushOffline", "alice").Return([]models.MessagePayload{}, nil)
	storageMock.On("Publish", mock.AnythingOfType("models.WSMessage")).Return(nil)
	storageMock.On("SaveMessage", mock.AnythingOfType("*models.Message")).Run(func(args mock.Arguments) {
		args.Get(0).(*models.Message).ID = "m2"
	}).Return(nil)
	storageMock.On("QueueOffline", "bob", mock.AnythingOfType("models.MessagePayload")).Return(nil)
	storageMock.On("GetUserByID", "alice").Return(&models.User{ID: "alice", Username: "alice-name"}, nil)

	hub := newTestHub(storageMock)
	go hub.Run()

	alice := newMockClient("alice")
	hub.RegisterCh <- alice
	time.Sleep(50 * time.Millisecond)

	hub.IncomingCh <- chathub.Inbound{
		Client:  alice,
		Message: sendFrame(models.SendRequest{ToUserID: "bob", Message: "hi", TempID: "t2"}),
	}

	// Sender still gets the ack even though the recipient is away.
	frame := waitFor(t, alice, models.EventMessageResp)
	var echo models.MessagePayload
	require.NoError(t, json.Unmarshal(frame.Payload, &echo))
	assert.Equal(t, "m2", echo.ID)
	assert.Equal(t, models.DeliverySent, echo.Status)

	storageMock.AssertCalled(t, "QueueOffline", "bob", mock.AnythingOfType("models.MessagePayload"))
}

func TestRouter_RejectsInvalidMessages(t *testing.T) {
	storageMock := newMockStorage()
	hub := newTestHub(storageMock)
	router := hub.Router()

	cases := []models.SendRequest{
		{FromUserID: "alice", ToUserID: "bob", Message: "   "},
		{FromUserID: "alice", Message: "hi"},
		{ToUserID: "bob", Message: "hi"},
		{FromUserID: "alice", ToUserID: "alice", Message: "hi"},
	}
	for _, req := range cases {
		err := router.Send(req)
		assert.ErrorIs(t, err, chathub.ErrInvalidMessage)
	}

	storageMock.AssertNotCalled(t, "SaveMessage", mock.Anything)
}

func TestRouter_PersistenceFailureEmitsFailedEcho(t *testing.T) {
	storageMock := newMockStorage()
	storageMock.On("FlushOffline", mock.AnythingOfType("string")).Return([]models.MessagePayload{}, nil)
	storageMock.On("Publish", mock.AnythingOfType("models.WSMessage")).Return(nil)
	storageMock.On("SaveMessage", mock.AnythingOfType("*models.Message")).Return(assert.AnError)

	hub := newTestHub(storageMock)
	go hub.Run()

	alice := newMockClient("alice")
	bob := newMockClient("bob")
	hub.RegisterCh <- alice
	time.Sleep(50 * time.Millisecond)
	hub.RegisterCh <- bob
	time.Sleep(50 * time.Millisecond)

	err := hub.Router().Send(models.SendRequest{
		FromUserID: "alice", ToUserID: "bob", Message: "hi", TempID: "t3",
	})
	require.ErrorIs(t, err, chathub.ErrPersistence)

	frame := waitFor(t, alice, models.EventMessageResp)
	var echo models.MessagePayload
	require.NoError(t, json.Unmarshal(frame.Payload, &echo))
	assert.Equal(t, "t3", echo.TempID)
	assert.Equal(t, models.DeliveryFailed, echo.Status)

	// The recipient must see nothing.
	time.Sleep(100 * time.Millisecond)
	for {
		select {
		case frame := <-bob.RecvChannel:
			assert.NotEqual(t, models.EventMessageResp, frame.Type)
			continue
		default:
		}
		break
	}
}

func TestRouter_TypingRelay(t *testing.T) {
	storageMock := newMockStorage()
	storageMock.On("FlushOffline", mock.AnythingOfType("string")).Return([]models.MessagePayload{}, nil)
	storageMock.On("Publish", mock.AnythingOfType("models.WSMessage")).Return(nil)

	hub := newTestHub(storageMock)
	go hub.Run()

	alice := newMockClient("alice")
	bob := newMockClient("bob")
	hub.RegisterCh <- alice
	time.Sleep(50 * time.Millisecond)
	hub.RegisterCh <- bob
	time.Sleep(50 * time.Millisecond)

	hub.IncomingCh <- chathub.Inbound{
		Client: alice,
		Message: models.NewWSMessage(models.EventTyping, models.TypingPayload{
			ToUserID: "bob",
			IsTyping: true,
		}, ""),
	}

	frame := waitFor(t, bob, models.EventTypingResp)
	var payload models.TypingPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, "alice", payload.FromUserID)
	assert.True(t, payload.IsTyping)
}
