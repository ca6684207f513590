package transport

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound 在发现超时内未找到设备
	ErrNotFound = errors.New("device not found")
	// ErrNotConnected 链路已断开
	ErrNotConnected = errors.New("link not connected")
	// ErrCharacteristicMissing 设备缺少所需的特征值
	ErrCharacteristicMissing = errors.New("characteristic missing")
)

// Transport 建立到设备的链路
type Transport interface {
	// Connect 在 timeout 内发现并连接设备；链路异步断开时调用 onDisconnect（可为 nil）
	Connect(ctx context.Context, address string, timeout time.Duration, onDisconnect func()) (Link, error)
}

// Link 已建立的设备链路
//
// Subscribe 注册的回调在传输层自己的 goroutine 中执行，回调内不得阻塞。
type Link interface {
	Address() string
	Write(ctx context.Context, data []byte, expectResponse bool) error
	Subscribe(ctx context.Context, onData func([]byte)) error
	Unsubscribe(ctx context.Context) error
	Disconnect() error
}
