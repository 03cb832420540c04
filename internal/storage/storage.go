package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"gopherchat/backend/internal/logging"
	"gopherchat/backend/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("storage: not found")

// ConversationPageSize is the number of messages returned per history page.
const ConversationPageSize = 50

// Storage is the persistence boundary the realtime core depends on.
// Everything behind it is an external collaborator: the hub never touches
// gorm or redis directly.
type Storage interface {
	CreateUser(user *models.User) error
	GetUserByID(userID string) (*models.User, error)
	GetUserByUsername(username string) (*models.User, error)

	SaveMessage(msg *models.Message) error
	GetConversation(userA, userB string, page int) ([]models.Message, error)
	QueueOffline(userID string, payload models.MessagePayload) error
	FlushOffline(userID string) ([]models.MessagePayload, error)

	CreateFriendRequest(fromUserID, toUserID string) error
	AcceptFriendRequest(fromUserID, toUserID string) error
	RejectFriendRequest(fromUserID, toUserID string) error
	GetPendingRequests(userID string) ([]models.PendingRequest, error)
	GetFriendList(userID string) ([]models.User, error)
	AreFriends(userA, userB string) (bool, error)

	SaveGroup(group *models.Group) error
	GetGroupByID(groupID string) (*models.Group, error)
	GetGroupsForUser(userID string) ([]models.Group, error)
	DeleteGroup(groupID string) error
	SaveGroupMessage(msg *models.GroupMessage) error
	GetGroupMessages(groupID string, page int) ([]models.GroupMessage, error)

	Publish(msg models.WSMessage) error
	Subscribe() <-chan models.WSMessage

	Healthcheck() error
}

// eventsChannel is the redis pub/sub channel every hub node shares.
const eventsChannel = "chat:events"

// offlineKey is the redis list holding messages queued for an offline user.
func offlineKey(userID string) string {
	return "offline:" + userID
}

// Service implements Storage on PostgreSQL (durable state) and Redis
// (fan-out and offline queues).
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	Ctx   context.Context
}

func NewService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{DB: db, Redis: rdb, Ctx: context.Background()}
}

// ---- users ----

func (s *Service) CreateUser(user *models.User) error {
	return s.DB.Create(user).Error
}

func (s *Service) GetUserByID(userID string) (*models.User, error) {
	var user models.User
	err := s.DB.First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	err := s.DB.First(&user, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ---- messages ----

// SaveMessage persists msg, filling in its durable ID and CreatedAt.
func (s *Service) SaveMessage(msg *models.Message) error {
	if err := s.DB.Create(msg).Error; err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// GetConversation returns one page of the message history between two
// users, ordered by CreatedAt with ID as the tiebreaker. Page numbers start
// at 1.
func (s *Service) GetConversation(userA, userB string, page int) ([]models.Message, error) {
	if page < 1 {
		page = 1
	}
	var messages []models.Message
	err := s.DB.
		Where("(from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?)",
			userA, userB, userB, userA).
		Order("created_at asc, id asc").
		Offset((page - 1) * ConversationPageSize).
		Limit(ConversationPageSize).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// QueueOffline appends a message payload to the recipient's offline list.
// The list is flushed on the recipient's next register; the client's upsert
// dedupes any copy it already received.
func (s *Service) QueueOffline(userID string, payload models.MessagePayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.Redis.RPush(s.Ctx, offlineKey(userID), data).Err()
}

// FlushOffline drains and returns the user's offline queue.
func (s *Service) FlushOffline(userID string) ([]models.MessagePayload, error) {
	key := offlineKey(userID)
	raw, err := s.Redis.LRange(s.Ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	payloads := make([]models.MessagePayload, 0, len(raw))
	for _, item := range raw {
		var p models.MessagePayload
		if err := json.Unmarshal([]byte(item), &p); err != nil {
			logging.L().Warn().Err(err).Str("user_id", userID).Msg("dropping malformed offline message")
			continue
		}
		payloads = append(payloads, p)
	}

	if err := s.Redis.Del(s.Ctx, key).Err(); err != nil {
		return nil, err
	}
	return payloads, nil
}

// ---- friend graph ----

func (s *Service) CreateFriendRequest(fromUserID, toUserID string) error {
	if fromUserID == toUserID {
		return errors.New("cannot befriend yourself")
	}

	var count int64
	err := s.DB.Model(&models.FriendRequest{}).
		Where("(from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?)",
			fromUserID, toUserID, toUserID, fromUserID).
		Where("status IN ?", []string{models.FriendPending, models.FriendAccepted}).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return errors.New("request already exists")
	}

	return s.DB.Create(&models.FriendRequest{
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Status:     models.FriendPending,
	}).Error
}

// AcceptFriendRequest flips the pending request from fromUserID to
// toUserID to accepted. The transition is one-way.
func (s *Service) AcceptFriendRequest(fromUserID, toUserID string) error {
	result := s.DB.Model(&models.FriendRequest{}).
		Where("from_user_id = ? AND to_user_id = ? AND status = ?",
			fromUserID, toUserID, models.FriendPending).
		Update("status", models.FriendAccepted)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RejectFriendRequest flips the pending request from fromUserID to
// toUserID to rejected. A rejected pair can request again later.
func (s *Service) RejectFriendRequest(fromUserID, toUserID string) error {
	result := s.DB.Model(&models.FriendRequest{}).
		Where("from_user_id = ? AND to_user_id = ? AND status = ?",
			fromUserID, toUserID, models.FriendPending).
		Update("status", models.FriendRejected)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) GetPendingRequests(userID string) ([]models.PendingRequest, error) {
	var requests []models.FriendRequest
	err := s.DB.
		Where("to_user_id = ? AND status = ?", userID, models.FriendPending).
		Order("created_at asc").
		Find(&requests).Error
	if err != nil {
		return nil, err
	}

	pending := make([]models.PendingRequest, 0, len(requests))
	for _, req := range requests {
		sender, err := s.GetUserByID(req.FromUserID)
		if err != nil {
			continue
		}
		pending = append(pending, models.PendingRequest{
			RequestID:    req.ID,
			FromUserID:   req.FromUserID,
			FromUsername: sender.Username,
			CreatedAt:    req.CreatedAt,
		})
	}
	return pending, nil
}

func (s *Service) GetFriendList(userID string) ([]models.User, error) {
	var requests []models.FriendRequest
	err := s.DB.
		Where("(from_user_id = ? OR to_user_id = ?) AND status = ?",
			userID, userID, models.FriendAccepted).
		Find(&requests).Error
	if err != nil {
		return nil, err
	}

	friendIDs := make([]string, 0, len(requests))
	for _, req := range requests {
		if req.FromUserID == userID {
			friendIDs = append(friendIDs, req.ToUserID)
		} else {
			friendIDs = append(friendIDs, req.FromUserID)
		}
	}
	if len(friendIDs) == 0 {
		return nil, nil
	}

	var friends []models.User
	if err := s.DB.Where("id IN ?", friendIDs).Find(&friends).Error; err != nil {
		return nil, err
	}
	return friends, nil
}

func (s *Service) AreFriends(userA, userB string) (bool, error) {
	var count int64
	err := s.DB.Model(&models.FriendRequest{}).
		Where("(from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?)",
			userA, userB, userB, userA).
		Where("status = ?", models.FriendAccepted).
		Count(&count).Error
	return count > 0, err
}

// ---- groups ----

func (s *Service) SaveGroup(group *models.Group) error {
	return s.DB.Save(group).Error
}

func (s *Service) GetGroupByID(groupID string) (*models.Group, error) {
	var group models.Group
	err := s.DB.First(&group, "id = ?", groupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (s *Service) GetGroupsForUser(userID string) ([]models.Group, error) {
	var groups []models.Group
	err := s.DB.Where("? = ANY(member_ids)", userID).Find(&groups).Error
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func (s *Service) DeleteGroup(groupID string) error {
	return s.DB.Delete(&models.Group{}, "id = ?", groupID).Error
}

func (s *Service) SaveGroupMessage(msg *models.GroupMessage) error {
	if err := s.DB.Create(msg).Error; err != nil {
		return fmt.Errorf("save group message: %w", err)
	}
	return nil
}

func (s *Service) GetGroupMessages(groupID string, page int) ([]models.GroupMessage, error) {
	if page < 1 {
		page = 1
	}
	var messages []models.GroupMessage
	err := s.DB.
		Where("group_id = ?", groupID).
		Order("created_at asc, id asc").
		Offset((page - 1) * ConversationPageSize).
		Limit(ConversationPageSize).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// ---- pub/sub fan-out ----

// Publish sends a frame to every hub node via redis.
func (s *Service) Publish(msg models.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.Redis.Publish(s.Ctx, eventsChannel, data).Err()
}

// Subscribe returns a channel of frames published by any hub node,
// this one included. The subscription lives for the process lifetime.
func (s *Service) Subscribe() <-chan models.WSMessage {
	out := make(chan models.WSMessage, 100)
	pubsub := s.Redis.Subscribe(s.Ctx, eventsChannel)

	go func() {
		defer pubsub.Close()
		for msg := range pubsub.Channel() {
			var wsMsg models.WSMessage
			if err := json.Unmarshal([]byte(msg.Payload), &wsMsg); err != nil {
				logging.L().Warn().Err(err).Msg("dropping malformed pub/sub frame")
				continue
			}
			out <- wsMsg
		}
		close(out)
	}()

	return out
}

// Migrate creates or updates all tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Message{},
		&models.FriendRequest{},
		&models.Group{},
		&models.GroupMessage{},
	)
}

var _ Storage = (*Service)(nil)

// Healthcheck pings redis with a short deadline. The database connection is
// verified implicitly by migration at startup.
func (s *Service) Healthcheck() error {
	ctx, cancel := context.WithTimeout(s.Ctx, 2*time.Second)
	defer cancel()
	return s.Redis.Ping(ctx).Err()
}
