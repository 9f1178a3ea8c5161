package draftsync

import (
	"context"
	"fmt"
	"time"

	"spadesk/internal/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes sync operations on a scope across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is an advisory lock on a redis key with an expiry, so a crashed holder
// cannot block the scope forever.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	redisKey := "spadesk:lock:" + key
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("scope %s is locked by another operation: %w", key, model.ErrConcurrentModification)
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.rdb, []string{redisKey}, token).Err()
	}, nil
}
