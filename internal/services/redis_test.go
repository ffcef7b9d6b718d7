package services

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisService, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	svc, err := NewRedisService("redis://"+mr.Addr(), logger)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create redis service: %v", err)
	}
	t.Cleanup(func() {
		_ = svc.Close()
		mr.Close()
	})
	return svc, mr
}

func TestRedisService_Basic(t *testing.T) {
	svc, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, svc.Ping(ctx))

	key := "test:key:123"
	require.NoError(t, svc.Set(ctx, key, "test value", time.Minute))

	got, err := svc.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "test value", got)
	assert.Equal(t, time.Minute, mr.TTL(key))

	exists, err := svc.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, svc.Del(ctx, key))
	exists, err = svc.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	got, err = svc.Get(ctx, key)
	require.NoError(t, err, "missing key is not an error")
	assert.Empty(t, got)
}

func TestRedisService_Expiry(t *testing.T) {
	svc, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "short", "lived", time.Second))
	mr.FastForward(2 * time.Second)

	got, err := svc.Get(ctx, "short")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisService_PingFailsWhenServerDown(t *testing.T) {
	svc, mr := setupTestRedis(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, svc.Ping(ctx))
}

func TestRedisService_WaitForConnectionHonoursContext(t *testing.T) {
	svc, mr := setupTestRedis(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := svc.WaitForConnection(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestNewRedisService_BadURL(t *testing.T) {
	_, err := NewRedisService("localhost:6379", nil)
	assert.Error(t, err)
}
