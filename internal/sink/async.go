package sink

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/bms-bridge/internal/metrics"
)

const (
	DefaultQueueSize = 1024
	DefaultWorkers   = 2

	publishTimeout = 10 * time.Second
	drainTimeout   = 5 * time.Second
	abortTimeout   = time.Second
)

// ErrDrainTimeout 关闭时下游仍在发布，未关闭下游 sink
var ErrDrainTimeout = errors.New("sink workers did not stop in time")

type message struct {
	topic   string
	payload []byte
}

// Async 有界队列 + 工作协程；Publish 从不阻塞调用方，队列满时丢弃并计数
type Async struct {
	next    Sink
	queue   chan message
	metrics *metrics.AppMetrics
	logger  *zap.Logger

	// ctx 在排空超时后取消，中止进行中的发布
	ctx          context.Context
	abort        context.CancelFunc
	drainTimeout time.Duration
	abortTimeout time.Duration

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewAsync 创建异步 sink 并启动工作协程
func NewAsync(next Sink, size, workers int, m *metrics.AppMetrics, logger *zap.Logger) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, abort := context.WithCancel(context.Background())
	a := &Async{
		next:         next,
		queue:        make(chan message, size),
		metrics:      m,
		logger:       logger.With(zap.String("component", "sink_queue")),
		ctx:          ctx,
		abort:        abort,
		drainTimeout: drainTimeout,
		abortTimeout: abortTimeout,
	}
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
	return a
}

func (a *Async) Name() string { return "async(" + a.next.Name() + ")" }

func (a *Async) Publish(_ context.Context, topic string, payload []byte) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- message{topic: topic, payload: payload}:
		if a.metrics != nil {
			a.metrics.SinkQueueDepth.Set(float64(len(a.queue)))
		}
		return nil
	default:
		a.dropped.Add(1)
		if a.metrics != nil {
			a.metrics.SinkDroppedTotal.Inc()
		}
		return ErrQueueFull
	}
}

// Close 停止接收，等待队列排空后关闭下游
// 排空超时则取消进行中的发布并丢弃剩余消息；下游只在全部 worker 退出后关闭
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	defer a.abort()

	select {
	case <-done:
		return a.next.Close()
	case <-time.After(a.drainTimeout):
	}

	a.logger.Warn("sink queue drain timeout, aborting in-flight publishes", zap.Int("remaining", len(a.queue)))
	a.abort()
	select {
	case <-done:
		return a.next.Close()
	case <-time.After(a.abortTimeout):
		a.logger.Error("sink workers still busy, downstream left open")
		return ErrDrainTimeout
	}
}

// Len 队列中待发送的消息数
func (a *Async) Len() int { return len(a.queue) }

// Cap 队列容量
func (a *Async) Cap() int { return cap(a.queue) }

// Dropped 因队列满或关闭中止被丢弃的消息数（累计）
func (a *Async) Dropped() uint64 { return a.dropped.Load() }

// Failed 下游发布失败的消息数（累计）
func (a *Async) Failed() uint64 { return a.failed.Load() }

func (a *Async) worker() {
	defer a.wg.Done()
	for msg := range a.queue {
		if a.ctx.Err() != nil {
			a.dropped.Add(1)
			if a.metrics != nil {
				a.metrics.SinkDroppedTotal.Inc()
			}
			continue
		}
		ctx, cancel := context.WithTimeout(a.ctx, publishTimeout)
		err := a.next.Publish(ctx, msg.topic, msg.payload)
		cancel()
		if err != nil {
			a.failed.Add(1)
			a.logger.Warn("sink publish failed", zap.String("topic", msg.topic), zap.Error(err))
		}
		if a.metrics != nil {
			a.metrics.SinkQueueDepth.Set(float64(len(a.queue)))
		}
	}
}
