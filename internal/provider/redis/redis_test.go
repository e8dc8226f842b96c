//go:build integration

package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLocker(t *testing.T) *Locker {
	t.Helper()
	a, _ := setupTestLockers(t)
	return a
}

// setupTestLockers returns two Lockers sharing a prefix, standing in for two
// worker processes.
func setupTestLockers(t *testing.T) (*Locker, *Locker) {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
	ctx := context.Background()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	prefix := fmt.Sprintf("wastecal-test-%d:", time.Now().UnixNano())
	a := NewFromClient(client, prefix)
	b := NewFromClient(goredis.NewClient(&goredis.Options{Addr: "localhost:6379"}), prefix)

	t.Cleanup(func() {
		keys, _ := client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		client.Close()
		b.Close()
	})
	return a, b
}

func TestLock_AcquireRelease(t *testing.T) {
	l := setupTestLocker(t)
	ctx := context.Background()

	ok, err := l.AcquireLock(ctx, "sync", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.AcquireLock(ctx, "sync", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire should fail while held")

	require.NoError(t, l.ReleaseLock(ctx, "sync"))

	ok, err = l.AcquireLock(ctx, "sync", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLock_Expires(t *testing.T) {
	l := setupTestLocker(t)
	ctx := context.Background()

	ok, err := l.AcquireLock(ctx, "reconcile", 100*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(200 * time.Millisecond)

	ok, err = l.AcquireLock(ctx, "reconcile", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLock_ExpiredLockIsNotReleasedByFormerOwner(t *testing.T) {
	a, b := setupTestLockers(t)
	ctx := context.Background()

	ok, err := a.AcquireLock(ctx, "calendar-sync", 100*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(200 * time.Millisecond)

	ok, err = b.AcquireLock(ctx, "calendar-sync", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	extended, err := a.ExtendLock(ctx, "calendar-sync", time.Minute)
	require.NoError(t, err)
	assert.False(t, extended, "former owner must not extend a taken-over lock")

	require.NoError(t, a.ReleaseLock(ctx, "calendar-sync"))
	ok, err = a.AcquireLock(ctx, "calendar-sync", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "former owner's release must leave the new owner's lock")

	extended, err = b.ExtendLock(ctx, "calendar-sync", time.Minute)
	require.NoError(t, err)
	assert.True(t, extended)
}

func TestLock_ExtendKeepsLockAlive(t *testing.T) {
	a, b := setupTestLockers(t)
	ctx := context.Background()

	ok, err := a.AcquireLock(ctx, "calendar-sync", 150*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	for i := 0; i < 3; i++ {
		time.Sleep(75 * time.Millisecond)
		extended, err := a.ExtendLock(ctx, "calendar-sync", 150*time.Millisecond)
		require.NoError(t, err)
		require.True(t, extended)
	}

	ok, err = b.AcquireLock(ctx, "calendar-sync", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}
