package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	cfgpkg "github.com/taoyao-code/bms-bridge/internal/config"
)

const defaultPingTimeout = 5 * time.Second

// ErrDisabled 配置中未启用 Redis
var ErrDisabled = errors.New("redis is not enabled")

// Client 桥接进程共用的 Redis 连接：设备状态镜像、redis sink 与健康检查
type Client struct {
	*redis.Client
	addr string
}

// NewClient 按配置建立连接；启动时 ping 不通直接返回错误
func NewClient(cfg cfgpkg.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is empty")
	}

	rdb := redis.NewClient(options(cfg))

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", cfg.Addr, err)
	}
	return &Client{Client: rdb, addr: cfg.Addr}, nil
}

func options(cfg cfgpkg.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// Addr 连接地址（日志用）
func (c *Client) Addr() string { return c.addr }

// Close 关闭连接；可对 nil 调用
func (c *Client) Close() error {
	if c == nil || c.Client == nil {
		return nil
	}
	return c.Client.Close()
}

// HealthCheck 实现 health.RedisPinger
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Stats 实现 health.RedisPinger
func (c *Client) Stats() *redis.PoolStats {
	return c.PoolStats()
}
