package sink

import (
	"errors"
	"sync"
	"time"
)

// BreakerState 熔断器状态
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // 正常放行
	BreakerOpen                         // 熔断，直接拒绝
	BreakerHalfOpen                     // 试探放行少量请求
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen 熔断器打开，拒绝请求
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrHalfOpenBusy 半开状态试探请求已满
	ErrHalfOpenBusy = errors.New("too many requests in half-open state")
)

// CircuitBreaker 连续失败达到阈值后熔断，cooldown 后进入半开试探
type CircuitBreaker struct {
	mu        sync.Mutex
	state     BreakerState
	failures  int
	probes    int // 半开状态已放行的试探数
	successes int // 半开状态成功数
	openedAt  time.Time
	trips     int64

	threshold int
	cooldown  time.Duration
	probeMax  int
	now       func() time.Time

	onStateChange func(from, to BreakerState)
}

// NewCircuitBreaker threshold<=0 默认 5，cooldown<=0 默认 30s
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown, probeMax: 2, now: time.Now}
}

// Call 在熔断器保护下执行 fn
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.acquire(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) acquire() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return ErrCircuitOpen
		}
		cb.transition(BreakerHalfOpen)
		cb.probes, cb.successes = 0, 0
		fallthrough
	case BreakerHalfOpen:
		if cb.probes >= cb.probeMax {
			return ErrHalfOpenBusy
		}
		cb.probes++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		if cb.state == BreakerHalfOpen || cb.failures >= cb.threshold {
			cb.trip()
		}
		return
	}

	switch cb.state {
	case BreakerHalfOpen:
		cb.successes++
		if cb.successes >= cb.probeMax {
			cb.failures = 0
			cb.transition(BreakerClosed)
		}
	case BreakerClosed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) trip() {
	cb.openedAt = cb.now()
	cb.trips++
	cb.transition(BreakerOpen)
}

func (cb *CircuitBreaker) transition(to BreakerState) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	if cb.onStateChange != nil {
		// 异步回调，避免持锁执行外部代码
		go cb.onStateChange(from, to)
	}
}

// State 当前状态
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Trips 熔断次数（累计）
func (cb *CircuitBreaker) Trips() int64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.trips
}

// SetStateChangeCallback 设置状态变化回调
func (cb *CircuitBreaker) SetStateChangeCallback(fn func(from, to BreakerState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}
