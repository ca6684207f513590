package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker(t *testing.T) {
	testErr := errors.New("test error")

	t.Run("连续失败触发熔断", func(t *testing.T) {
		now := time.Unix(1700000000, 0)
		cb := NewCircuitBreaker(3, time.Minute)
		cb.now = func() time.Time { return now }
		require.Equal(t, BreakerClosed, cb.State())

		for i := 0; i < 3; i++ {
			assert.Equal(t, testErr, cb.Call(func() error { return testErr }))
		}
		assert.Equal(t, BreakerOpen, cb.State())
		assert.Equal(t, int64(1), cb.Trips())

		called := false
		err := cb.Call(func() error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, ErrCircuitOpen)
		assert.False(t, called)
	})

	t.Run("冷却后半开，试探成功恢复", func(t *testing.T) {
		now := time.Unix(1700000000, 0)
		cb := NewCircuitBreaker(1, time.Minute)
		cb.now = func() time.Time { return now }

		_ = cb.Call(func() error { return testErr })
		require.Equal(t, BreakerOpen, cb.State())

		now = now.Add(61 * time.Second)
		require.NoError(t, cb.Call(func() error { return nil }))
		assert.Equal(t, BreakerHalfOpen, cb.State())

		require.NoError(t, cb.Call(func() error { return nil }))
		assert.Equal(t, BreakerClosed, cb.State())
	})

	t.Run("半开状态失败立即熔断", func(t *testing.T) {
		now := time.Unix(1700000000, 0)
		cb := NewCircuitBreaker(2, time.Minute)
		cb.now = func() time.Time { return now }

		_ = cb.Call(func() error { return testErr })
		_ = cb.Call(func() error { return testErr })
		now = now.Add(2 * time.Minute)

		_ = cb.Call(func() error { return testErr })
		assert.Equal(t, BreakerOpen, cb.State())
		assert.Equal(t, int64(2), cb.Trips())
	})

	t.Run("成功重置失败计数", func(t *testing.T) {
		cb := NewCircuitBreaker(2, time.Minute)
		_ = cb.Call(func() error { return testErr })
		_ = cb.Call(func() error { return nil })
		_ = cb.Call(func() error { return testErr })
		assert.Equal(t, BreakerClosed, cb.State())
	})

	t.Run("状态回调", func(t *testing.T) {
		cb := NewCircuitBreaker(1, time.Minute)
		changes := make(chan [2]BreakerState, 1)
		cb.SetStateChangeCallback(func(from, to BreakerState) { changes <- [2]BreakerState{from, to} })

		_ = cb.Call(func() error { return testErr })
		select {
		case c := <-changes:
			assert.Equal(t, [2]BreakerState{BreakerClosed, BreakerOpen}, c)
		case <-time.After(time.Second):
			t.Fatal("callback not invoked")
		}
	})
}

func TestBreakerStateString(t *testing.T) {
	assert.Equal(t, "closed", BreakerClosed.String())
	assert.Equal(t, "open", BreakerOpen.String())
	assert.Equal(t, "half_open", BreakerHalfOpen.String())
	assert.Equal(t, "unknown", BreakerState(9).String())
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(1, 2)
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
	assert.Equal(t, int64(2), l.Allowed())
	assert.Equal(t, int64(1), l.Rejected())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, l.Wait(ctx))
	assert.Equal(t, int64(2), l.Rejected())
}
