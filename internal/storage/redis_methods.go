package storage

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

const (
	membershipKeyPrefix = "members:"
	unreadKeyPrefix     = "unread:"
	roomChannelPrefix   = "room:"
)

func toStringArray(members []string) pq.StringArray {
	out := make(pq.StringArray, len(members))
	copy(out, members)
	return out
}

// CacheMembership stores a room's resolved member set with a short TTL so that
// fan-out does not hit the enrollment source on every event.
func (s *Service) CacheMembership(roomID string, members []string, ttl time.Duration) error {
	payload, err := json.Marshal(members)
	if err != nil {
		return err
	}
	return s.Redis.Set(s.Ctx, membershipKeyPrefix+roomID, payload, ttl).Err()
}

func (s *Service) GetCachedMembership(roomID string) ([]string, bool, error) {
	payload, err := s.Redis.Get(s.Ctx, membershipKeyPrefix+roomID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var members []string
	if err := json.Unmarshal([]byte(payload), &members); err != nil {
		return nil, false, err
	}
	return members, true, nil
}

func (s *Service) GetCachedUnreadCount(userID string) (int64, bool, error) {
	val, err := s.Redis.Get(s.Ctx, unreadKeyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return count, true, nil
}

func (s *Service) SetCachedUnreadCount(userID string, count int64, ttl time.Duration) error {
	return s.Redis.Set(s.Ctx, unreadKeyPrefix+userID, count, ttl).Err()
}

// InvalidateUnreadCount drops the cached counter so the next poll recomputes it.
func (s *Service) InvalidateUnreadCount(userID string) error {
	return s.Redis.Del(s.Ctx, unreadKeyPrefix+userID).Err()
}

// PublishEvent publishes a serialized event envelope on the room's channel so
// that peer nodes can deliver it to their own live subscribers.
func (s *Service) PublishEvent(roomID string, payload []byte) error {
	return s.Redis.Publish(s.Ctx, roomChannelPrefix+roomID, payload).Err()
}

// SubscribeRooms subscribes to every room channel.
func (s *Service) SubscribeRooms() *redis.PubSub {
	return s.Redis.PSubscribe(s.Ctx, roomChannelPrefix+"*")
}
