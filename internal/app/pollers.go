package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/bms-bridge/internal/config"
	"github.com/taoyao-code/bms-bridge/internal/metrics"
	"github.com/taoyao-code/bms-bridge/internal/poller"
	"github.com/taoyao-code/bms-bridge/internal/session"
	"github.com/taoyao-code/bms-bridge/internal/transport"
	"github.com/taoyao-code/bms-bridge/internal/transport/ble"
)

// NewBLETransport 打开本机 HCI 适配器
func NewBLETransport(cfg cfgpkg.LinkConfig, logger *zap.Logger) (*ble.Transport, error) {
	return ble.Open(ble.Config{
		DeviceID:    cfg.Adapter,
		ServiceUUID: cfg.ServiceUUID,
		WriteUUID:   cfg.WriteUUID,
		NotifyUUID:  cfg.NotifyUUID,
	}, logger)
}

// NewSupervisor 为每个配置设备创建轮询驱动
func NewSupervisor(cfg *cfgpkg.Config, tr transport.Transport, pub poller.Publisher, reg session.Registry, appm *metrics.AppMetrics, logger *zap.Logger) (*poller.Supervisor, error) {
	drivers := make([]*poller.Driver, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		drv, err := poller.NewDriver(poller.Config{
			DeviceID:         d.ID,
			Address:          d.Address,
			ConnectTimeout:   cfg.Link.ConnectTimeout,
			CaptureWindow:    cfg.Link.CaptureWindow,
			RefreshInterval:  d.RefreshInterval,
			ReconnectBackoff: cfg.Link.ReconnectBackoff,
			MaxBuffer:        cfg.Protocol.MaxBuffer,
			MaxIterations:    cfg.Protocol.MaxIterations,
		}, tr, pub, reg, appm, logger)
		if err != nil {
			return nil, err
		}
		drivers = append(drivers, drv)
	}
	return poller.NewSupervisor(drivers, logger), nil
}
