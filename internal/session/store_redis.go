package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/driftline-systems/driftline/internal/models"
)

const bindingKeyPrefix = "driftline:binding:"

// RedisStore persists session bindings in Redis for multi-instance
// deployments. Keys carry a TTL well past the binding expiry so the sweeper
// (which owns counter release) always sees the binding before Redis drops it.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client; used by tests.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func bindingKey(sessionKey string) string {
	return bindingKeyPrefix + sessionKey
}

// keyTTL keeps the Redis key alive twice as long as the binding itself, so
// explicit sweeping stays authoritative for counter release.
func keyTTL(b *models.SessionBinding, now time.Time) time.Duration {
	ttl := 2 * b.ExpiresAt.Sub(now)
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return ttl
}

func (s *RedisStore) Get(ctx context.Context, sessionKey string) (*models.SessionBinding, error) {
	data, err := s.client.Get(ctx, bindingKey(sessionKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrBindingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get binding: %w", err)
	}

	var b models.SessionBinding
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode binding: %w", err)
	}
	return &b, nil
}

func (s *RedisStore) PutIfAbsent(ctx context.Context, binding *models.SessionBinding) (*models.SessionBinding, bool, error) {
	data, err := json.Marshal(binding)
	if err != nil {
		return nil, false, fmt.Errorf("encode binding: %w", err)
	}

	ok, err := s.client.SetNX(ctx, bindingKey(binding.SessionKey), data, keyTTL(binding, time.Now())).Result()
	if err != nil {
		return nil, false, fmt.Errorf("setnx binding: %w", err)
	}
	if ok {
		cp := *binding
		return &cp, true, nil
	}

	existing, err := s.Get(ctx, binding.SessionKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *RedisStore) Touch(ctx context.Context, sessionKey string, expiresAt time.Time) error {
	b, err := s.Get(ctx, sessionKey)
	if err != nil {
		return err
	}
	b.ExpiresAt = expiresAt

	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode binding: %w", err)
	}
	if err := s.client.Set(ctx, bindingKey(sessionKey), data, keyTTL(b, time.Now())).Err(); err != nil {
		return fmt.Errorf("touch binding: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionKey string) error {
	n, err := s.client.Del(ctx, bindingKey(sessionKey)).Result()
	if err != nil {
		return fmt.Errorf("delete binding: %w", err)
	}
	if n == 0 {
		return ErrBindingNotFound
	}
	return nil
}

func (s *RedisStore) Expired(ctx context.Context, now time.Time) ([]*models.SessionBinding, error) {
	var out []*models.SessionBinding

	iter := s.client.Scan(ctx, 0, bindingKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("scan bindings: %w", err)
		}

		var b models.SessionBinding
		if err := json.Unmarshal(data, &b); err != nil {
			continue
		}
		if b.Expired(now) {
			out = append(out, &b)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan bindings: %w", err)
	}
	return out, nil
}
