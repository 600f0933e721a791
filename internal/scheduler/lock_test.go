package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLocker(client, "oe:"), mr
}

func TestRedisLocker_AcquireRelease(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	release, ok, err := locker.Acquire(ctx, "detection", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("oe:lock:detection"))

	_, ok, err = locker.Acquire(ctx, "detection", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	release()
	assert.False(t, mr.Exists("oe:lock:detection"))

	_, ok, err = locker.Acquire(ctx, "detection", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLocker_ReleaseKeepsForeignLock(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	release, ok, err := locker.Acquire(ctx, "sweep", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// lock expired and was taken by another replica
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("oe:lock:sweep", "someone-else"))

	release()
	value, err := mr.Get("oe:lock:sweep")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", value)
}

func TestRedisLocker_Unreachable(t *testing.T) {
	locker, mr := newTestLocker(t)
	mr.Close()

	_, ok, err := locker.Acquire(context.Background(), "detection", time.Minute)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestRedisLocker_ReleaseFailureIsLogged(t *testing.T) {
	locker, mr := newTestLocker(t)
	hook := logtest.NewGlobal()
	t.Cleanup(hook.Reset)

	release, ok, err := locker.Acquire(context.Background(), "detection", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.Close()
	assert.NotPanics(t, release)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Contains(t, entry.Message, "oe:lock:detection")
}
