package session

import (
	"sync"
	"sync/atomic"

	"github.com/taoyao-code/bms-bridge/internal/protocol/vestwoods"
	"github.com/taoyao-code/bms-bridge/internal/transport"
)

// Session 一次 BLE 连接的生命周期状态
//
// 通知回调（生产者）通过 Append 写入，驱动循环（消费者）通过 Drain 取走，
// 两者由 mu 保护；Reassembler 只由驱动循环访问。
type Session struct {
	DeviceID    string
	Link        transport.Link
	Reassembler *vestwoods.Reassembler

	connected atomic.Bool

	mu      sync.Mutex
	pending [][]byte
	bytes   int
}

// NewSession 创建已连接的会话
func NewSession(deviceID string, link transport.Link, r *vestwoods.Reassembler) *Session {
	if r == nil {
		r = vestwoods.NewReassembler(0, 0)
	}
	s := &Session{DeviceID: deviceID, Link: link, Reassembler: r}
	s.connected.Store(true)
	return s
}

// Append 追加一段通知数据
func (s *Session) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	s.mu.Lock()
	s.pending = append(s.pending, chunk)
	s.bytes += len(chunk)
	s.mu.Unlock()
}

// Drain 取走已捕获的全部数据块（按到达顺序）
func (s *Session) Drain() [][]byte {
	s.mu.Lock()
	out := s.pending
	s.pending = nil
	s.bytes = 0
	s.mu.Unlock()
	return out
}

// Pending 未取走的字节数
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

// Connected 链路是否仍可用
func (s *Session) Connected() bool { return s.connected.Load() }

// MarkDisconnected 标记链路已断开（异步断开信号）
func (s *Session) MarkDisconnected() { s.connected.Store(false) }

// Close 断开链路并丢弃未处理数据；可重复调用
func (s *Session) Close() error {
	wasConnected := s.connected.Swap(false)
	s.Drain()
	s.Reassembler.Reset()
	if s.Link == nil {
		return nil
	}
	err := s.Link.Disconnect()
	if !wasConnected {
		// 对端已断开，本地释放失败不再上报
		return nil
	}
	return err
}
