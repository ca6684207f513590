package app

import (
	"time"

	"github.com/taoyao-code/bms-bridge/internal/health"
	"github.com/taoyao-code/bms-bridge/internal/session"
	"github.com/taoyao-code/bms-bridge/internal/sink"
	redisstorage "github.com/taoyao-code/bms-bridge/internal/storage/redis"
)

// NewHealthAggregator 创建健康检查聚合器：链路、输出队列，以及可选的 Redis
func NewHealthAggregator(registry *session.Manager, queue *sink.Async, breakers map[string]*sink.CircuitBreaker, redisClient *redisstorage.Client, grace time.Duration) *health.Aggregator {
	agg := health.NewAggregator(health.NewLinksChecker(registry, grace))
	if queue != nil {
		agg.AddChecker(health.NewSinkQueueChecker(queue, breakers))
	}
	if redisClient != nil {
		agg.AddChecker(health.NewRedisChecker(redisClient))
	}
	return agg
}
