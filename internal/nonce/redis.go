package nonce

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"chainbill-backend/internal/infra/logging"
)

const keyPrefix = "nonce:"

// RedisStore shares the nonce registry across instances. SETNX with expiry
// gives the same exactly-one-reservation guarantee as the in-memory store.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(addr string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

func (s *RedisStore) Check(nonce string) bool {
	n, err := s.client.Exists(context.Background(), keyPrefix+nonce).Result()
	if err != nil {
		logging.Logger.WithError(err).Error("nonce check failed")
		// Fail closed: an unreachable registry must not open a replay window.
		return true
	}
	return n > 0
}

func (s *RedisStore) Reserve(nonce string) bool {
	ok, err := s.client.SetNX(context.Background(), keyPrefix+nonce, 1, s.ttl).Result()
	if err != nil {
		logging.Logger.WithError(err).Error("nonce reserve failed")
		return false
	}
	return ok
}

var _ Store = (*RedisStore)(nil)
