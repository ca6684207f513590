package session

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/bms-bridge/internal/protocol/vestwoods"
)

// 使用测试用Redis客户端（需要真实Redis实例）
func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // 使用测试专用数据库
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skip("Redis not available, skipping test")
	}

	client.FlushDB(ctx)
	t.Cleanup(func() {
		client.FlushDB(ctx)
		client.Close()
	})
	return client
}

func TestRedisStore_SaveLoad(t *testing.T) {
	client := setupTestRedis(t)
	store := NewRedisStore(client, "bridge-1", time.Minute)
	ctx := context.Background()

	st := DeviceState{
		ID:        "pack-a",
		Address:   "AA:BB:CC:DD:EE:FF",
		State:     "connected",
		Connected: true,
		Frames:    3,
		Telemetry: &vestwoods.Telemetry{SOC: 87.5, CellVoltages: []float64{3.3}},
	}
	require.NoError(t, store.Save(ctx, st))

	got, bridge, err := store.Load(ctx, "pack-a")
	require.NoError(t, err)
	assert.Equal(t, "bridge-1", bridge)
	assert.Equal(t, uint64(3), got.Frames)
	require.NotNil(t, got.Telemetry)
	assert.Equal(t, 87.5, got.Telemetry.SOC)

	ttl := client.TTL(ctx, keyDevicePrefix+"pack-a").Val()
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRedisStore_LoadMissing(t *testing.T) {
	client := setupTestRedis(t)
	store := NewRedisStore(client, "bridge-1", time.Minute)

	_, _, err := store.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestRedisStore_Cleanup(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	mine := NewRedisStore(client, "bridge-1", time.Minute)
	other := NewRedisStore(client, "bridge-2", time.Minute)

	require.NoError(t, mine.Save(ctx, DeviceState{ID: "a"}))
	require.NoError(t, other.Save(ctx, DeviceState{ID: "b"}))

	require.NoError(t, mine.Cleanup(ctx))

	_, _, err := mine.Load(ctx, "a")
	assert.ErrorIs(t, err, redis.Nil)
	_, bridge, err := other.Load(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "bridge-2", bridge)
}

func TestNewRedisStore_Defaults(t *testing.T) {
	s := NewRedisStore(nil, "", 0)
	assert.NotEmpty(t, s.bridgeID)
	assert.Equal(t, 5*time.Minute, s.ttl)
}
