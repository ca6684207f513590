package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/bms-bridge/internal/config"
	"github.com/taoyao-code/bms-bridge/internal/session"
	redisstorage "github.com/taoyao-code/bms-bridge/internal/storage/redis"
)

// NewRedisClient 创建Redis客户端；未启用时返回 nil
func NewRedisClient(cfg cfgpkg.RedisConfig, logger *zap.Logger) (*redisstorage.Client, error) {
	if !cfg.Enabled {
		logger.Info("redis is disabled, skipping initialization")
		return nil, nil
	}

	client, err := redisstorage.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("redis client initialized",
		zap.String("addr", client.Addr()),
		zap.Int("pool_size", cfg.PoolSize))

	return client, nil
}

// NewStateStore 设备状态镜像；Redis 不可用时返回 nil（仅内存）
func NewStateStore(client *redisstorage.Client, bridgeID string, cfg cfgpkg.RedisConfig) session.StateStore {
	if client == nil {
		return nil
	}
	return session.NewRedisStore(client.Client, bridgeID, cfg.StateTTL)
}
