package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/bms-bridge/internal/api/middleware"
)

// RegisterDeviceRoutes 注册设备只读路由
func RegisterDeviceRoutes(r gin.IRouter, handler *DeviceHandler, authCfg middleware.AuthConfig, logger *zap.Logger) {
	if r == nil || handler == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	api := r.Group("/api/v1")
	if authCfg.Enabled {
		api.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	}

	api.GET("/devices", handler.ListDevices)
	api.GET("/devices/:id", handler.GetDevice)
	api.GET("/devices/:id/telemetry", handler.GetTelemetry)
	api.GET("/devices/:id/sensors", handler.GetSensors)
}
