package app

import (
	"go.uber.org/zap"

	"github.com/taoyao-code/bms-bridge/internal/api"
	cfgpkg "github.com/taoyao-code/bms-bridge/internal/config"
	"github.com/taoyao-code/bms-bridge/internal/session"
)

// NewDeviceRegistry 创建设备注册表并登记全部配置设备
func NewDeviceRegistry(devices []cfgpkg.DeviceConfig, store session.StateStore, logger *zap.Logger) *session.Manager {
	mgr := session.New(store, logger)
	for _, d := range devices {
		mgr.Register(d.ID, d.Name, d.Address, d.RefreshInterval)
	}
	logger.Info("device registry initialized",
		zap.Int("devices", len(devices)),
		zap.Bool("redis_mirror", store != nil))
	return mgr
}

// SensorCounts 设备 -> 期望电芯数/温感数（传感器目录接口使用）
func SensorCounts(devices []cfgpkg.DeviceConfig) map[string]api.SensorCounts {
	out := make(map[string]api.SensorCounts, len(devices))
	for _, d := range devices {
		out[d.ID] = api.SensorCounts{Cells: d.CellCount, Temps: d.TempSensorCount}
	}
	return out
}
