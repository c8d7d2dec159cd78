package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/elyphant/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockPrefix = "elyphant:lock:"

// releaseScript deletes the lock only if this holder still owns it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRunLock implements shared.RunLock with SET NX PX and a per-holder token
type RedisRunLock struct {
	client    redis.UniversalClient
	keyPrefix string
}

var _ shared.RunLock = (*RedisRunLock)(nil)

// NewRedisRunLock creates a lock over an existing client
func NewRedisRunLock(client redis.UniversalClient, keyPrefix string) *RedisRunLock {
	if keyPrefix == "" {
		keyPrefix = defaultLockPrefix
	}
	return &RedisRunLock{client: client, keyPrefix: keyPrefix}
}

// Acquire takes the named lock for ttl. The TTL bounds how long a crashed holder blocks others.
func (l *RedisRunLock) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	key := l.keyPrefix + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, shared.ErrConflict.WithDetails(map[string]any{"lock": name})
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("failed to release lock %s: %w", name, err)
		}
		return nil
	}, nil
}
