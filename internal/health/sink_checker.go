package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/taoyao-code/bms-bridge/internal/sink"
)

// QueueStats 异步输出队列统计
type QueueStats interface {
	Len() int
	Cap() int
	Dropped() uint64
}

// SinkQueueChecker 输出队列健康检查器
// 队列使用率超过 80% 或自上次检查以来有丢弃时为 degraded
type SinkQueueChecker struct {
	queue    QueueStats
	breakers map[string]*sink.CircuitBreaker

	mu          sync.Mutex
	lastDropped uint64
}

// NewSinkQueueChecker 创建队列检查器；breakers 为可选的下游熔断器
func NewSinkQueueChecker(queue QueueStats, breakers map[string]*sink.CircuitBreaker) *SinkQueueChecker {
	return &SinkQueueChecker{queue: queue, breakers: breakers}
}

// Name 返回检查器名称
func (c *SinkQueueChecker) Name() string {
	return "sink_queue"
}

// Check 执行健康检查
func (c *SinkQueueChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	length, capacity := c.queue.Len(), c.queue.Cap()
	dropped := c.queue.Dropped()

	c.mu.Lock()
	grew := dropped > c.lastDropped
	c.lastDropped = dropped
	c.mu.Unlock()

	utilization := 0.0
	if capacity > 0 {
		utilization = float64(length) / float64(capacity)
	}

	details := map[string]interface{}{
		"length":      length,
		"capacity":    capacity,
		"dropped":     dropped,
		"utilization": fmt.Sprintf("%.1f%%", utilization*100),
	}

	status := StatusHealthy
	message := "ok"
	if utilization > 0.8 {
		status = StatusDegraded
		message = "queue near capacity"
	}
	if grew {
		status = StatusDegraded
		message = "messages dropped"
	}
	for name, b := range c.breakers {
		state := b.State()
		details[name+"_breaker"] = state.String()
		if state == sink.BreakerOpen {
			status = StatusDegraded
			message = name + " circuit open"
		}
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: details,
		Latency: time.Since(start),
	}
}
