// Package claims holds the single-flight connection leases in Redis so that
// several API replicas agree on which job owns a connection.
package claims

import (
	"context"
	"errors"
	"fmt"
	"time"

	"archie-core-sync-layer/internal/ports"

	"github.com/redis/go-redis/v9"
)

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore implements ports.ClaimStore with SET NX PX leases.
type RedisStore struct {
	Client *redis.Client
	Prefix string
}

var _ ports.ClaimStore = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opt *redis.Options, prefix string) (*RedisStore, error) {
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisStore{Client: client, Prefix: prefix}, nil
}

func (s *RedisStore) key(k string) string {
	return s.Prefix + k
}

func (s *RedisStore) Acquire(ctx context.Context, key, holder string, ttl time.Duration) (bool, error) {
	ok, err := s.Client.SetNX(ctx, s.key(key), holder, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire claim: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Refresh(ctx context.Context, key, holder string, ttl time.Duration) (bool, error) {
	n, err := refreshScript.Run(ctx, s.Client, []string{s.key(key)}, holder, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to refresh claim: %w", err)
	}
	return n == 1, nil
}

func (s *RedisStore) Release(ctx context.Context, key, holder string) error {
	if err := releaseScript.Run(ctx, s.Client, []string{s.key(key)}, holder).Err(); err != nil {
		return fmt.Errorf("failed to release claim: %w", err)
	}
	return nil
}

func (s *RedisStore) Holder(ctx context.Context, key string) (string, error) {
	v, err := s.Client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read claim: %w", err)
	}
	return v, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.Client.Close()
}
