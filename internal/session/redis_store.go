package session

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists the session under a single Redis key.
type RedisStore struct {
	Client redis.UniversalClient
	Key    string
}

// NewRedisStore returns a store writing key (DefaultKey when empty).
func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	if key == "" {
		key = DefaultKey
	}
	return &RedisStore{Client: client, Key: key}
}

func (s *RedisStore) Load(ctx context.Context) (string, error) {
	v, err := s.Client.Get(ctx, s.Key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (s *RedisStore) Save(ctx context.Context, id string) error {
	if id == "" {
		return s.Client.Del(ctx, s.Key).Err()
	}
	return s.Client.Set(ctx, s.Key, id, 0).Err()
}
