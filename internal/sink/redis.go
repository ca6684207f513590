package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSink PUBLISH 到与主题同名的频道；cacheTTL>0 时同时缓存最新值
type RedisSink struct {
	client    redis.UniversalClient
	keyPrefix string
	cacheTTL  time.Duration
}

// NewRedisSink 创建 Redis sink；缓存键为 keyPrefix+topic
func NewRedisSink(client redis.UniversalClient, keyPrefix string, cacheTTL time.Duration) *RedisSink {
	return &RedisSink{client: client, keyPrefix: keyPrefix, cacheTTL: cacheTTL}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Publish(ctx context.Context, topic string, payload []byte) error {
	pipe := s.client.Pipeline()
	pipe.Publish(ctx, topic, payload)
	if s.cacheTTL > 0 {
		pipe.Set(ctx, s.keyPrefix+topic, payload, s.cacheTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

// Close 客户端由存储层统一关闭
func (s *RedisSink) Close() error { return nil }
