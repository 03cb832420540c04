package chathub_test

import (
	"sync/atomic"

	"github.com/stretchr/testify/mock"

	"gopherchat/backend/internal/models"
)

// MockStorage loops Publish back into the Subscribe channel, standing in
// for the redis pub/sub round trip.
type MockStorage struct {
	mock.Mock
	events chan models.WSMessage
}

func newMockStorage() *MockStorage {
	return &MockStorage{events: make(chan models.WSMessage, 64)}
}

func (m *MockStorage) CreateUser(user *models.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockStorage) GetUserByID(userID string) (*models.User, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) GetUserByUsername(username string) (*models.User, error) {
	args := m.Called(username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) SaveMessage(msg *models.Message) error {
	args := m.Called(msg)
	return args.Error(0)
}

func (m *MockStorage) GetConversation(userA, userB string, page int) ([]models.Message, error) {
	args := m.Called(userA, userB, page)
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockStorage) QueueOffline(userID string, payload models.MessagePayload) error {
	args := m.Called(userID, payload)
	return args.Error(0)
}

func (m *MockStorage) FlushOffline(userID string) ([]models.MessagePayload, error) {
	args := m.Called(userID)
	return args.Get(0).([]models.MessagePayload), args.Error(1)
}

func (m *MockStorage) CreateFriendRequest(fromUserID, toUserID string) error {
	args := m.Called(fromUserID, toUserID)
	return args.Error(0)
}

func (m *MockStorage) AcceptFriendRequest(fromUserID, toUserID string) error {
	args := m.Called(fromUserID, toUserID)
	return args.Error(0)
}

func (m *MockStorage) RejectFriendRequest(fromUserID, toUserID string) error {
	args := m.Called(fromUserID, toUserID)
	return args.Error(0)
}

func (m *MockStorage) GetPendingRequests(userID string) ([]models.PendingRequest, error) {
	args := m.Called(userID)
	return args.Get(0).([]models.PendingRequest), args.Error(1)
}

func (m *MockStorage) GetFriendList(userID string) ([]models.User, error) {
	args := m.Called(userID)
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockStorage) AreFriends(userA, userB string) (bool, error) {
	args := m.Called(userA, userB)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) SaveGroup(group *models.Group) error {
	args := m.Called(group)
	return args.Error(0)
}

func (m *MockStorage) GetGroupByID(groupID string) (*models.Group, error) {
	args := m.Called(groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Group), args.Error(1)
}

func (m *MockStorage) GetGroupsForUser(userID string) ([]models.Group, error) {
	args := m.Called(userID)
	return args.Get(0).([]models.Group), args.Error(1)
}

func (m *MockStorage) DeleteGroup(groupID string) error {
	args := m.Called(groupID)
	return args.Error(0)
}

func (m *MockStorage) SaveGroupMessage(msg *models.GroupMessage) error {
	args := m.Called(msg)
	return args.Error(0)
}

func (m *MockStorage) GetGroupMessages(groupID string, page int) ([]models.GroupMessage, error) {
	args := m.Called(groupID, page)
	return args.Get(0).([]models.GroupMessage), args.Error(1)
}

func (m *MockStorage) Publish(msg models.WSMessage) error {
	args := m.Called(msg)
	m.events <- msg
	return args.Error(0)
}

func (m *MockStorage) Subscribe() <-chan models.WSMessage {
	return m.events
}

func (m *MockStorage) Healthcheck() error {
	return nil
}

// MockClient is an in-memory connection; frames the hub sends land on
// RecvChannel.
type MockClient struct {
	userID      string
	username    string
	RecvChannel chan models.WSMessage
	closed      atomic.Bool
}

func newMockClient(userID string) *MockClient {
	return &MockClient{
		userID:      userID,
		username:    userID + "-name",
		RecvChannel: make(chan models.WSMessage, 32),
	}
}

func (c *MockClient) GetUserID() string   { return c.userID }
func (c *MockClient) GetUsername() string { return c.username }

func (c *MockClient) GetSendChannel() chan<- models.WSMessage { return c.RecvChannel }

func (c *MockClient) Run() {}

func (c *MockClient) Close() { c.closed.Store(true) }

func (c *MockClient) IsClosed() bool { return c.closed.Load() }
