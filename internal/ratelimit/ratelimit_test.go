package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBurstThenDeny(t *testing.T) {
	l := NewLocal(2, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, Key("10.0.0.1", "login"))
		require.NoError(t, err)
		assert.True(t, d.Allowed, "call %d should pass", i)
	}
	d, err := l.Allow(ctx, Key("10.0.0.1", "login"))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	// other actions and clients have their own buckets
	d, _ = l.Allow(ctx, Key("10.0.0.1", "onboarding"))
	assert.True(t, d.Allowed)
	d, _ = l.Allow(ctx, Key("10.0.0.2", "login"))
	assert.True(t, d.Allowed)

	now = now.Add(1100 * time.Millisecond)
	d, _ = l.Allow(ctx, Key("10.0.0.1", "login"))
	assert.True(t, d.Allowed, "bucket refills over time")
}

func TestLocalSweepEvictsIdle(t *testing.T) {
	l := NewLocal(1, 1)
	now := time.Now()
	l.now = func() time.Time { return now }
	_, _ = l.Allow(context.Background(), "a")
	require.Equal(t, 1, l.size())

	now = now.Add(10 * time.Minute)
	l.Sweep()
	assert.Equal(t, 0, l.size())
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisFixedWindow(t *testing.T) {
	mr, client := setupTestRedis(t)
	l := NewRedis(client, 2, time.Minute)
	ctx := context.Background()
	key := Key("10.0.0.1", "verify_invitation")

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)

	assert.True(t, mr.Exists("ratelimit:"+key))

	mr.FastForward(61 * time.Second)
	d, err = l.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "window should reset after expiry")
}

func TestRedisRepairsCounterWithoutTTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	l := NewRedis(client, 1, time.Minute)
	ctx := context.Background()
	key := Key("1.2.3.4", "login")

	// счётчик остался без TTL (например, процесс упал между INCR и EXPIRE)
	require.NoError(t, mr.Set("ratelimit:"+key, "2"))

	d, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, mr.TTL("ratelimit:"+key), time.Duration(0), "expiry should be restored")

	mr.FastForward(61 * time.Second)
	d, err = l.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "key must not stay locked after the window")
}

func TestRedisUnavailable(t *testing.T) {
	mr, client := setupTestRedis(t)
	mr.Close()
	_, err := NewRedis(client, 1, time.Minute).Allow(context.Background(), "k")
	assert.Error(t, err)
}
