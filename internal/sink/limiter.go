package sink

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// RateLimiter 令牌桶限流，限制对下游 HTTP 端点的请求速率
type RateLimiter struct {
	limiter  *rate.Limiter
	allowed  atomic.Int64
	rejected atomic.Int64
}

// NewRateLimiter perSec<=0 默认 20，burst<=0 默认 2*perSec
func NewRateLimiter(perSec float64, burst int) *RateLimiter {
	if perSec <= 0 {
		perSec = 20
	}
	if burst <= 0 {
		burst = int(perSec * 2)
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSec), burst)}
}

// Allow 非阻塞检查
func (l *RateLimiter) Allow() bool {
	if l.limiter.Allow() {
		l.allowed.Add(1)
		return true
	}
	l.rejected.Add(1)
	return false
}

// Wait 阻塞直到获得令牌或 ctx 结束
func (l *RateLimiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		l.rejected.Add(1)
		return err
	}
	l.allowed.Add(1)
	return nil
}

// Allowed 放行数（累计）
func (l *RateLimiter) Allowed() int64 { return l.allowed.Load() }

// Rejected 拒绝数（累计）
func (l *RateLimiter) Rejected() int64 { return l.rejected.Load() }
