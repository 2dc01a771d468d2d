package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

// RedisStore хранит сессии в Redis с TTL неактивности.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, identity string) (*Session, error) {
	raw, err := s.client.Get(ctx, keyPrefix+identity).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: failed to get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("session: failed to decode session: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) Put(ctx context.Context, sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: failed to encode session: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+sess.Identity, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: failed to store session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, identity string) error {
	if err := s.client.Del(ctx, keyPrefix+identity).Err(); err != nil {
		return fmt.Errorf("session: failed to delete session: %w", err)
	}
	return nil
}
