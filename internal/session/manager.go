package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/bms-bridge/internal/protocol/vestwoods"
)

const storeTimeout = 2 * time.Second

// DeviceState 单个设备的链路与数据状态快照
type DeviceState struct {
	ID             string    `json:"id"`
	Name           string    `json:"name,omitempty"`
	Address        string    `json:"address"`
	State          string    `json:"state"`
	Connected      bool      `json:"connected"`
	ConnectedSince time.Time `json:"connected_since,omitempty"`
	LastPollAt     time.Time `json:"last_poll_at,omitempty"`
	LastFrameAt    time.Time `json:"last_frame_at,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	LastErrorAt    time.Time `json:"last_error_at,omitempty"`
	LastReject     string    `json:"last_reject,omitempty"`

	Polls      uint64 `json:"polls"`
	Frames     uint64 `json:"frames"`
	Rejected   uint64 `json:"rejected"`
	Reconnects uint64 `json:"reconnects"`

	// OnlineWindow 超过该时长无有效帧视为离线
	OnlineWindow time.Duration `json:"-"`

	Telemetry *vestwoods.Telemetry `json:"-"`
}

// Online 已连接且在窗口内收到过有效帧
func (d *DeviceState) Online(now time.Time) bool {
	if !d.Connected || d.LastFrameAt.IsZero() {
		return false
	}
	return now.Sub(d.LastFrameAt) <= d.OnlineWindow
}

type deviceEntry struct {
	DeviceState
	everConnected bool
}

// Manager 设备注册表：记录每个设备的链路状态、计数与最新遥测
type Manager struct {
	mu      sync.RWMutex
	devices map[string]*deviceEntry
	store   StateStore
	logger  *zap.Logger
}

// New 创建注册表；store 可为 nil
func New(store StateStore, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		devices: make(map[string]*deviceEntry),
		store:   store,
		logger:  logger.With(zap.String("component", "session")),
	}
}

// Register 登记设备；在线窗口为 3 个刷新周期
func (m *Manager) Register(id, name, address string, refresh time.Duration) {
	if refresh <= 0 {
		refresh = 30 * time.Second
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.devices[id]
	if !ok {
		e = &deviceEntry{DeviceState: DeviceState{ID: id, State: "disconnected"}}
		m.devices[id] = e
	}
	e.Name = name
	e.Address = address
	e.OnlineWindow = 3 * refresh
}

// OnStateChange 实现 Registry
func (m *Manager) OnStateChange(id, state string, connected bool, t time.Time) {
	m.update(id, func(e *deviceEntry) {
		if state == "connecting" && e.everConnected {
			e.Reconnects++
		}
		if connected && !e.Connected {
			e.ConnectedSince = t
			e.everConnected = true
		}
		if !connected {
			e.ConnectedSince = time.Time{}
		}
		e.State = state
		e.Connected = connected
	}, false)
}

// OnPoll 实现 Registry
func (m *Manager) OnPoll(id string, t time.Time) {
	m.update(id, func(e *deviceEntry) {
		e.Polls++
		e.LastPollAt = t
	}, false)
}

// OnTelemetry 实现 Registry
func (m *Manager) OnTelemetry(id string, tel *vestwoods.Telemetry, t time.Time) {
	m.update(id, func(e *deviceEntry) {
		e.Frames++
		e.LastFrameAt = t
		e.Telemetry = tel
	}, true)
}

// OnRejected 实现 Registry
func (m *Manager) OnRejected(id, reason string, t time.Time) {
	m.update(id, func(e *deviceEntry) {
		e.Rejected++
		e.LastReject = reason
	}, false)
}

// OnError 实现 Registry
func (m *Manager) OnError(id string, err error, t time.Time) {
	if err == nil {
		return
	}
	m.update(id, func(e *deviceEntry) {
		e.LastError = err.Error()
		e.LastErrorAt = t
	}, true)
}

// Get 返回设备状态副本
func (m *Manager) Get(id string) (DeviceState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.devices[id]
	if !ok {
		return DeviceState{}, false
	}
	return e.DeviceState, true
}

// List 按设备 ID 排序返回全部状态副本
func (m *Manager) List() []DeviceState {
	m.mu.RLock()
	out := make([]DeviceState, 0, len(m.devices))
	for _, e := range m.devices {
		out = append(out, e.DeviceState)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IsOnline 判断设备是否在线
func (m *Manager) IsOnline(id string, now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.devices[id]
	return ok && e.Online(now)
}

// OnlineCount 返回在线设备数量
func (m *Manager) OnlineCount(now time.Time) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, e := range m.devices {
		if e.Online(now) {
			count++
		}
	}
	return count
}

// Count 已登记设备数量
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.devices)
}

func (m *Manager) update(id string, fn func(e *deviceEntry), persist bool) {
	m.mu.Lock()
	e, ok := m.devices[id]
	if !ok {
		e = &deviceEntry{DeviceState: DeviceState{ID: id, State: "disconnected", OnlineWindow: 90 * time.Second}}
		m.devices[id] = e
	}
	fn(e)
	snap := e.DeviceState
	m.mu.Unlock()

	if persist && m.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := m.store.Save(ctx, snap); err != nil {
			m.logger.Warn("save device state failed", zap.String("device", id), zap.Error(err))
		}
	}
}
