package sink

import (
	"context"
	"errors"
)

var (
	// ErrQueueFull 异步队列已满，消息被丢弃
	ErrQueueFull = errors.New("sink queue full")
	// ErrClosed sink 已关闭
	ErrClosed = errors.New("sink closed")
)

// Sink 下游发布目标；payload 为字段值的 JSON 编码
type Sink interface {
	Name() string
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}
