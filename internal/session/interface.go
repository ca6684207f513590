package session

import (
	"context"
	"time"

	"github.com/taoyao-code/bms-bridge/internal/protocol/vestwoods"
)

// Registry 设备运行状态登记接口，由轮询驱动写入
type Registry interface {
	// OnStateChange 记录链路状态迁移
	OnStateChange(id, state string, connected bool, t time.Time)

	// OnPoll 记录一次轮询周期
	OnPoll(id string, t time.Time)

	// OnTelemetry 记录最新一帧遥测
	OnTelemetry(id string, tel *vestwoods.Telemetry, t time.Time)

	// OnRejected 记录一次拒收帧
	OnRejected(id, reason string, t time.Time)

	// OnError 记录传输错误
	OnError(id string, err error, t time.Time)
}

// StateStore 设备状态外部镜像（可选）
type StateStore interface {
	Save(ctx context.Context, st DeviceState) error
}
