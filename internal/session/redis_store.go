package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/taoyao-code/bms-bridge/internal/protocol/vestwoods"
)

// RedisStore 将设备状态镜像到 Redis，供同一部署中的其他实例/工具查询
type RedisStore struct {
	client   *redis.Client
	bridgeID string        // 当前网关实例ID
	ttl      time.Duration // 状态过期时间
}

// storedState Redis存储的设备状态
type storedState struct {
	DeviceState
	BridgeID  string               `json:"bridge_id"`
	UpdatedAt time.Time            `json:"updated_at"`
	Telemetry *vestwoods.Telemetry `json:"telemetry,omitempty"`
}

// Redis Key设计
const (
	// bms:device:{id} -> storedState JSON
	keyDevicePrefix = "bms:device:"

	// bms:bridge:{bridgeID}:devices -> Set[id]
	keyBridgePrefix = "bms:bridge:"
)

// NewRedisStore 创建Redis状态镜像
func NewRedisStore(client *redis.Client, bridgeID string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if bridgeID == "" {
		bridgeID = uuid.New().String()
	}
	return &RedisStore{client: client, bridgeID: bridgeID, ttl: ttl}
}

// Save 实现 StateStore
func (s *RedisStore) Save(ctx context.Context, st DeviceState) error {
	data, err := json.Marshal(storedState{
		DeviceState: st,
		BridgeID:    s.bridgeID,
		UpdatedAt:   time.Now(),
		Telemetry:   st.Telemetry,
	})
	if err != nil {
		return fmt.Errorf("marshal device state: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, keyDevicePrefix+st.ID, data, s.ttl)
	pipe.SAdd(ctx, s.bridgeKey(), st.ID)
	pipe.Expire(ctx, s.bridgeKey(), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save device state %s: %w", st.ID, err)
	}
	return nil
}

// Load 读取设备状态；不存在时返回 redis.Nil
func (s *RedisStore) Load(ctx context.Context, id string) (*DeviceState, string, error) {
	data, err := s.client.Get(ctx, keyDevicePrefix+id).Bytes()
	if err != nil {
		return nil, "", err
	}
	var st storedState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, "", fmt.Errorf("unmarshal device state %s: %w", id, err)
	}
	st.DeviceState.Telemetry = st.Telemetry
	return &st.DeviceState, st.BridgeID, nil
}

// Cleanup 删除本实例写入的全部设备状态（优雅关闭时调用）
func (s *RedisStore) Cleanup(ctx context.Context) error {
	ids, err := s.client.SMembers(ctx, s.bridgeKey()).Result()
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, keyDevicePrefix+id)
	}
	pipe.Del(ctx, s.bridgeKey())
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) bridgeKey() string {
	return keyBridgePrefix + s.bridgeID + ":devices"
}
