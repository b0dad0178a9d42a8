package scheduler

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Lease grants one process the right to drive an owner's session
type Lease interface {
	Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error)
	Renew(ctx context.Context, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, owner string) error
}

var renewScript = redis.NewScript(`
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

// RedisLease stores one key per owner holding this process's token
type RedisLease struct {
	client *redis.Client
	prefix string
	token  string
}

func NewRedisLease(client *redis.Client, prefix string) *RedisLease {
	if prefix == "" {
		prefix = "bump:driver:"
	}
	return &RedisLease{client: client, prefix: prefix, token: uuid.NewString()}
}

func (l *RedisLease) key(owner string) string {
	return l.prefix + owner
}

func (l *RedisLease) Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(owner), l.token, ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	// a restarted driver in this process may still own the key
	return l.Renew(ctx, owner, ttl)
}

func (l *RedisLease) Renew(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	n, err := renewScript.Run(ctx, l.client, []string{l.key(owner)}, l.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (l *RedisLease) Release(ctx context.Context, owner string) error {
	return releaseScript.Run(ctx, l.client, []string{l.key(owner)}, l.token).Err()
}
