package health

import (
	"context"
	"fmt"
	"time"

	"github.com/taoyao-code/bms-bridge/internal/session"
)

// DeviceRegistry 设备注册表中检查器用到的部分
type DeviceRegistry interface {
	List() []session.DeviceState
}

// LinksChecker BLE 链路健康检查器
// 启动宽限期后无任何设备在线为 unhealthy，部分离线为 degraded
type LinksChecker struct {
	registry DeviceRegistry
	started  time.Time
	grace    time.Duration
	now      func() time.Time
}

// NewLinksChecker 创建链路检查器
func NewLinksChecker(registry DeviceRegistry, grace time.Duration) *LinksChecker {
	return &LinksChecker{registry: registry, started: time.Now(), grace: grace, now: time.Now}
}

// Name 返回检查器名称
func (c *LinksChecker) Name() string {
	return "links"
}

// Check 执行健康检查
func (c *LinksChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	now := c.now()

	devices := c.registry.List()
	var offline []string
	for i := range devices {
		if !devices[i].Online(now) {
			offline = append(offline, devices[i].ID)
		}
	}
	online := len(devices) - len(offline)

	details := map[string]interface{}{
		"devices": len(devices),
		"online":  online,
	}
	if len(offline) > 0 {
		details["offline"] = offline
	}

	status := StatusHealthy
	message := "ok"
	switch {
	case len(devices) == 0:
		message = "no devices configured"
	case len(offline) == 0:
	case now.Sub(c.started) < c.grace:
		message = "starting"
	case online == 0:
		status = StatusUnhealthy
		message = "no device online"
	default:
		status = StatusDegraded
		message = fmt.Sprintf("%d of %d devices offline", len(offline), len(devices))
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: details,
		Latency: time.Since(start),
	}
}
