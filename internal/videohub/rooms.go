package videohub

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRoomStore tracks room membership in redis so the participants REST
// endpoint works without asking the hub. Keys carry a TTL as a safety net
// against rooms orphaned by a crashed node.
type RedisRoomStore struct {
	client *redis.Client
	ttl    time.Duration
	ctx    context.Context
}

func NewRedisRoomStore(client *redis.Client, ttl time.Duration) *RedisRoomStore {
	return &RedisRoomStore{client: client, ttl: ttl, ctx: context.Background()}
}

func usersKey(roomID string) string { return "video:room:" + roomID + ":users" }
func metaKey(roomID string) string  { return "video:room:" + roomID + ":meta" }

func (s *RedisRoomStore) InitRoom(roomID, creatorID, roomType, groupID string) error {
	fields := map[string]interface{}{
		"creator":   creatorID,
		"type":      roomType,
		"createdAt": time.Now().Unix(),
	}
	if groupID != "" {
		fields["groupId"] = groupID
	}
	if err := s.client.HSet(s.ctx, metaKey(roomID), fields).Err(); err != nil {
		return err
	}
	return s.client.Expire(s.ctx, metaKey(roomID), s.ttl).Err()
}

func (s *RedisRoomStore) AddUser(roomID, userID string) error {
	key := usersKey(roomID)
	if err := s.client.SAdd(s.ctx, key, userID).Err(); err != nil {
		return err
	}
	return s.client.Expire(s.ctx, key, s.ttl).Err()
}

// RemoveUser drops the user and deletes the room keys once the set empties.
func (s *RedisRoomStore) RemoveUser(roomID, userID string) error {
	key := usersKey(roomID)
	if err := s.client.SRem(s.ctx, key, userID).Err(); err != nil {
		return err
	}
	count, err := s.client.SCard(s.ctx, key).Result()
	if err != nil {
		return err
	}
	if count == 0 {
		return s.DeleteRoom(roomID)
	}
	return nil
}

func (s *RedisRoomStore) DeleteRoom(roomID string) error {
	return s.client.Del(s.ctx, usersKey(roomID), metaKey(roomID)).Err()
}

func (s *RedisRoomStore) Participants(roomID string) ([]string, error) {
	return s.client.SMembers(s.ctx, usersKey(roomID)).Result()
}

// Metadata returns the room's creation metadata, or nil when the room is
// unknown.
func (s *RedisRoomStore) Metadata(roomID string) (map[string]string, error) {
	meta, err := s.client.HGetAll(s.ctx, metaKey(roomID)).Result()
	if err != nil {
		return nil, err
	}
	if len(meta) == 0 {
		return nil, nil
	}
	return meta, nil
}

// ActiveRooms lists room IDs with at least one tracked participant.
func (s *RedisRoomStore) ActiveRooms() ([]string, error) {
	var rooms []string
	iter := s.client.Scan(s.ctx, 0, "video:room:*:users", 0).Iterator()
	for iter.Next(s.ctx) {
		parts := strings.Split(iter.Val(), ":")
		if len(parts) >= 3 {
			rooms = append(rooms, parts[2])
		}
	}
	return rooms, iter.Err()
}

var _ RoomStore = (*RedisRoomStore)(nil)
