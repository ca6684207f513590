package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/bms-bridge/internal/protocol/vestwoods"
	"github.com/taoyao-code/bms-bridge/internal/session"
)

// DeviceRegistry 设备注册表中接口用到的部分
type DeviceRegistry interface {
	Get(id string) (session.DeviceState, bool)
	List() []session.DeviceState
}

// SensorCounts 设备期望的电芯数与温感数
type SensorCounts struct {
	Cells int
	Temps int
}

// DeviceHandler 设备只读API处理器
type DeviceHandler struct {
	registry DeviceRegistry
	counts   map[string]SensorCounts
	logger   *zap.Logger
	now      func() time.Time
}

// NewDeviceHandler 创建设备API处理器
func NewDeviceHandler(registry DeviceRegistry, counts map[string]SensorCounts, logger *zap.Logger) *DeviceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeviceHandler{registry: registry, counts: counts, logger: logger, now: time.Now}
}

type deviceView struct {
	session.DeviceState
	Online bool `json:"online"`
}

func (h *DeviceHandler) view(d session.DeviceState) deviceView {
	return deviceView{DeviceState: d, Online: d.Online(h.now())}
}

// ListDevices 查询全部设备链路状态
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	list := h.registry.List()
	out := make([]deviceView, 0, len(list))
	online := 0
	for _, d := range list {
		v := h.view(d)
		if v.Online {
			online++
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, gin.H{"devices": out, "total": len(out), "online": online})
}

// GetDevice 查询单个设备链路状态
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	d, ok := h.registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	c.JSON(http.StatusOK, h.view(d))
}

// GetTelemetry 查询最新遥测；首帧到达前返回 404
func (h *DeviceHandler) GetTelemetry(c *gin.Context) {
	id := c.Param("id")
	d, ok := h.registry.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	if d.Telemetry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no telemetry yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"device":      id,
		"received_at": d.LastFrameAt,
		"online":      d.Online(h.now()),
		"telemetry":   d.Telemetry,
	})
}

// GetSensors 按配置的电芯数/温感数返回传感器目录
func (h *DeviceHandler) GetSensors(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.registry.Get(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	n, ok := h.counts[id]
	if !ok {
		n = SensorCounts{Cells: 16, Temps: 4}
	}
	c.JSON(http.StatusOK, gin.H{"device": id, "sensors": vestwoods.Sensors(n.Cells, n.Temps)})
}
