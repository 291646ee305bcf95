package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by someone else is never released by us.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// redisClient is the subset of the go-redis client used by RedisLocker.
// *wbfredis.Client satisfies it through the embedded go-redis client.
type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisLocker is a distributed lock shared by every process that talks to the
// same Redis. The TTL bounds how long a crashed holder keeps a notification
// blocked and must be longer than a send plus the store write.
type RedisLocker struct {
	client redisClient
	prefix string
	ttl    time.Duration
}

// NewRedisLocker creates a locker storing keys as "<prefix><id>".
func NewRedisLocker(client redisClient, prefix string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}
}

// TryLock acquires id or returns ErrLocked.
func (l *RedisLocker) TryLock(ctx context.Context, id string) (Unlocker, error) {
	key := l.prefix + id
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	return &redisUnlocker{client: l.client, key: key, token: token}, nil
}

type redisUnlocker struct {
	client redisClient
	key    string
	token  string
}

func (u *redisUnlocker) Unlock(ctx context.Context) error {
	if err := u.client.Eval(ctx, releaseScript, []string{u.key}, u.token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", u.key, err)
	}

	return nil
}
