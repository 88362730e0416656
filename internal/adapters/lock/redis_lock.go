package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/brct-james/titans-insider/internal/ports"
)

// acquireScript takes the lease when it is free and extends it when this
// holder already owns it.
var acquireScript = redis.NewScript(`
	local v = redis.call("GET", KEYS[1])
	if v == false then
		redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
		return 1
	end
	if v == ARGV[1] then
		redis.call("PEXPIRE", KEYS[1], ARGV[2])
		return 1
	end
	return 0
`)

var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// RedisLock is a per-process lease holder. Each instance has its own token,
// so only the holder that took a lease can release it.
type RedisLock struct {
	client redis.UniversalClient
	token  string
}

func NewRedisLock(client redis.UniversalClient) *RedisLock {
	return &RedisLock{client: client, token: uuid.NewString()}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	n, err := acquireScript.Run(ctx, l.client, []string{key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (l *RedisLock) Release(ctx context.Context, key string) error {
	return releaseScript.Run(ctx, l.client, []string{key}, l.token).Err()
}

var _ ports.CycleLock = (*RedisLock)(nil)
