package poller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/bms-bridge/internal/protocol/vestwoods"
	"github.com/taoyao-code/bms-bridge/internal/session"
)

func TestSupervisor_RunsDevicesIndependently(t *testing.T) {
	frame := mustFrame(t)
	reg := session.New(nil, nil)
	pub := &fakePublisher{}

	recA, recB := &recorder{}, &recorder{}
	trA := &fakeTransport{rec: recA, links: []*fakeLink{{rec: recA, response: [][]byte{frame}}}}
	// B 一直找不到设备，不影响 A
	trB := &fakeTransport{rec: recB, connectErrs: []error{errLinkDown, errLinkDown, errLinkDown, errLinkDown}, links: []*fakeLink{{rec: recB}}}

	cfg := Config{CaptureWindow: time.Millisecond, RefreshInterval: 5 * time.Millisecond, ReconnectBackoff: time.Hour}
	cfgA, cfgB := cfg, cfg
	cfgA.DeviceID, cfgA.Address = "a", "AA:AA:AA:AA:AA:AA"
	cfgB.DeviceID, cfgB.Address = "b", "BB:BB:BB:BB:BB:BB"

	da, err := NewDriver(cfgA, trA, pub, reg, nil, zap.NewNop())
	require.NoError(t, err)
	db, err := NewDriver(cfgB, trB, pub, reg, nil, zap.NewNop())
	require.NoError(t, err)

	sup := NewSupervisor([]*Driver{da, db}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	sup.Start(ctx)

	require.Eventually(t, func() bool {
		st, _ := reg.Get("a")
		return st.Frames >= 2
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, StateDisconnected, sup.States()["b"])

	cancel()
	sup.Wait()

	assert.Equal(t, StateDisconnected, da.State())
	assert.Equal(t, StateDisconnected, db.State())
	assert.Equal(t, 1, recB.count("connect"))
	events := recA.list()
	assert.Equal(t, "disconnect", events[len(events)-1])
	assert.Len(t, sup.Drivers(), 2)
}

// flakyPublisher 第一次发布时 panic，之后正常
type flakyPublisher struct {
	calls atomic.Int32
}

func (p *flakyPublisher) PublishTelemetry(context.Context, string, *vestwoods.Telemetry) error {
	if p.calls.Add(1) == 1 {
		panic("sink exploded")
	}
	return nil
}

func TestSupervisor_RestartsAfterPanic(t *testing.T) {
	frame := mustFrame(t)
	reg := session.New(nil, nil)
	pub := &flakyPublisher{}

	rec := &recorder{}
	tr := &fakeTransport{rec: rec, links: []*fakeLink{{rec: rec, response: [][]byte{frame}}}}

	d, err := NewDriver(Config{
		DeviceID:         "a",
		Address:          "AA:AA:AA:AA:AA:AA",
		CaptureWindow:    time.Millisecond,
		RefreshInterval:  time.Millisecond,
		ReconnectBackoff: time.Millisecond,
	}, tr, pub, reg, nil, zap.NewNop())
	require.NoError(t, err)

	sup := NewSupervisor([]*Driver{d}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	sup.Start(ctx)

	// panic 后重新连接并继续轮询
	require.Eventually(t, func() bool {
		return pub.calls.Load() >= 3
	}, 2*time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, rec.count("connect"), 2)

	st, ok := reg.Get("a")
	require.True(t, ok)
	assert.Contains(t, st.LastError, "poller panic")

	cancel()
	sup.Wait()
	assert.Equal(t, StateDisconnected, d.State())
	events := rec.list()
	assert.Equal(t, "disconnect", events[len(events)-1])
}
