package health

import (
	"context"
	"time"
)

// Status 组件健康状态
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"  // 轮询仍在进行，但有设备离线或输出受阻
	StatusUnhealthy Status = "unhealthy" // 无任何设备在线
)

func (s Status) rank() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Worse 返回两者中更差的状态；未知状态按 unhealthy 处理
func (s Status) Worse(other Status) Status {
	switch max(s.rank(), other.rank()) {
	case 0:
		return StatusHealthy
	case 1:
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}

// CheckResult 单个检查器的结果，Details 原样输出到 /health
type CheckResult struct {
	Status  Status                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Latency time.Duration          `json:"latency"`
}

// Checker 由链路、输出队列、Redis 等组件实现
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}
