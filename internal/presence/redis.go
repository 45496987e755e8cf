package presence

import (
	"context"
	"time"

	"chatline/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "presence:"

// RedisStore keeps one set of connection ids per user in Redis so
// presence is visible across server instances. Errors degrade to
// "offline" rather than failing the caller.
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:  client,
		timeout: 2 * time.Second,
	}
}

func (s *RedisStore) Connect(userId, connId string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.client.SAdd(ctx, keyPrefix+userId, connId).Err(); err != nil {
		logger.Log.Warn("presence connect failed", "user", userId, "err", err)
	}
}

func (s *RedisStore) Disconnect(userId, connId string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	// Redis removes the set once its last member is gone, which keeps
	// the registry from accumulating idle users.
	if err := s.client.SRem(ctx, keyPrefix+userId, connId).Err(); err != nil {
		logger.Log.Warn("presence disconnect failed", "user", userId, "err", err)
	}
}

func (s *RedisStore) IsOnline(userId string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	count, err := s.client.SCard(ctx, keyPrefix+userId).Result()
	if err != nil {
		logger.Log.Warn("presence lookup failed", "user", userId, "err", err)
		return false
	}

	return count > 0
}

func (s *RedisStore) FilterOnline(userIds []string) []string {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	pipe := s.client.Pipeline()
	cards := make([]*redis.IntCmd, len(userIds))
	for i, userId := range userIds {
		cards[i] = pipe.SCard(ctx, keyPrefix+userId)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Log.Warn("presence batch lookup failed", "err", err)
		return []string{}
	}

	online := make([]string, 0, len(userIds))
	for i, card := range cards {
		if card.Val() > 0 {
			online = append(online, userIds[i])
		}
	}

	return online
}

func (s *RedisStore) OnlineCount() int {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	count := 0
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		logger.Log.Warn("presence scan failed", "err", err)
	}

	return count
}
