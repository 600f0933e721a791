package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Locker keeps a scheduled job from running on more than one replica
type Locker interface {
	// Acquire returns a release func when the lock was taken. ok is false
	// when another holder owns it.
	Acquire(ctx context.Context, job string, ttl time.Duration) (release func(), ok bool, err error)
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker implements Locker with SET NX and a token-checked delete
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisLocker creates a locker whose keys start with prefix
func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix}
}

// Acquire takes the lock for job until ttl passes or release is called
func (l *RedisLocker) Acquire(ctx context.Context, job string, ttl time.Duration) (func(), bool, error) {
	key := l.prefix + "lock:" + job
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// the job's own context may already be done
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			logrus.Warnf("Failed to release lock %s, it expires in %v: %v", key, ttl, err)
		}
	}
	return release, true, nil
}
