package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/bms-bridge/internal/metrics"
	"github.com/taoyao-code/bms-bridge/internal/session"
)

// DeviceLister 设备注册表接口（避免循环依赖）
type DeviceLister interface {
	List() []session.DeviceState
}

// OnlineSyncer 在线状态定期同步器
// 周期性计算设备在线状态，更新在线数指标并记录上下线变化
type OnlineSyncer struct {
	registry DeviceLister
	metrics  *metrics.AppMetrics
	logger   *zap.Logger

	checkInterval time.Duration
	now           func() time.Time

	online map[string]bool

	// 统计
	statsChecks      int64
	statsTransitions int64
}

// NewOnlineSyncer 创建在线状态同步器
func NewOnlineSyncer(registry DeviceLister, m *metrics.AppMetrics, interval time.Duration, logger *zap.Logger) *OnlineSyncer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OnlineSyncer{
		registry:      registry,
		metrics:       m,
		logger:        logger.With(zap.String("component", "online_syncer")),
		checkInterval: interval,
		now:           time.Now,
		online:        make(map[string]bool),
	}
}

// Start 启动同步器，阻塞直到 ctx 结束
func (s *OnlineSyncer) Start(ctx context.Context) {
	s.logger.Info("online syncer started", zap.Duration("check_interval", s.checkInterval))

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("online syncer stopped",
				zap.Int64("checks", s.statsChecks),
				zap.Int64("transitions", s.statsTransitions))
			return
		case <-ticker.C:
			s.sync()
		}
	}
}

// sync 执行一轮同步，返回在线设备数
func (s *OnlineSyncer) sync() int {
	now := s.now()
	count := 0
	for _, d := range s.registry.List() {
		online := d.Online(now)
		if online {
			count++
		}
		prev, seen := s.online[d.ID]
		if seen && prev != online {
			s.statsTransitions++
			if online {
				s.logger.Info("device online", zap.String("device", d.ID))
			} else {
				s.logger.Warn("device offline",
					zap.String("device", d.ID),
					zap.String("state", d.State),
					zap.Time("last_frame_at", d.LastFrameAt),
					zap.String("last_error", d.LastError))
			}
		}
		s.online[d.ID] = online
	}
	s.statsChecks++
	if s.metrics != nil {
		s.metrics.DevicesOnlineGauge.Set(float64(count))
	}
	return count
}
