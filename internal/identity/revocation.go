package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRevocationPrefix = "archmarket:revoked:"

type redisKV interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisRevocationList stores revoked token ids as expiring keys.
type RedisRevocationList struct {
	client redisKV
	prefix string
}

// NewRedisRevocationList wraps a redis client (*redis.Client satisfies redisKV).
func NewRedisRevocationList(client redisKV, prefix string) *RedisRevocationList {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultRevocationPrefix
	}
	return &RedisRevocationList{client: client, prefix: prefix}
}

func (l *RedisRevocationList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := l.client.Exists(ctx, l.prefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Revoke lists tokenID until ttl elapses; ttl should cover the token's remaining lifetime.
func (l *RedisRevocationList) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return errors.New("identity: token id is required")
	}
	return l.client.Set(ctx, l.prefix+tokenID, 1, ttl).Err()
}
