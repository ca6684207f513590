package poller

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/bms-bridge/internal/metrics"
	"github.com/taoyao-code/bms-bridge/internal/protocol/vestwoods"
	"github.com/taoyao-code/bms-bridge/internal/session"
	"github.com/taoyao-code/bms-bridge/internal/transport"
)

const (
	DefaultConnectTimeout   = 20 * time.Second
	DefaultCaptureWindow    = 2 * time.Second
	DefaultRefreshInterval  = 30 * time.Second
	DefaultReconnectBackoff = 60 * time.Second

	// 取消后仍需完成退订，单独给一个短超时
	unsubscribeTimeout = 2 * time.Second
)

// Config 单个设备的轮询参数
type Config struct {
	DeviceID         string
	Address          string
	ConnectTimeout   time.Duration
	CaptureWindow    time.Duration
	RefreshInterval  time.Duration
	ReconnectBackoff time.Duration
	MaxBuffer        int
	MaxIterations    int
}

func (c *Config) applyDefaults() {
	if c.DeviceID == "" {
		c.DeviceID = c.Address
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.CaptureWindow <= 0 {
		c.CaptureWindow = DefaultCaptureWindow
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = DefaultRefreshInterval
	}
	if c.ReconnectBackoff <= 0 {
		c.ReconnectBackoff = DefaultReconnectBackoff
	}
}

// Publisher 遥测发布接口，实现不得阻塞采集
type Publisher interface {
	PublishTelemetry(ctx context.Context, deviceID string, t *vestwoods.Telemetry) error
}

// Driver 单设备轮询驱动：连接 -> 订阅 -> 发命令 -> 采集 -> 退订 -> 解析发布 -> 等待
//
// Run 不可并发调用；除 State 外的字段只由 Run 所在 goroutine 访问。
// Run 因 panic 退出后可再次调用，会话已在退出时关闭。
type Driver struct {
	cfg       Config
	transport transport.Transport
	publisher Publisher
	registry  session.Registry
	metrics   *metrics.AppMetrics
	logger    *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	state         atomic.Int32
	sess          *session.Session
	everConnected bool
	desyncs       uint64
}

// NewDriver 创建轮询驱动；publisher/registry/metrics 均可为 nil
func NewDriver(cfg Config, tr transport.Transport, pub Publisher, reg session.Registry, m *metrics.AppMetrics, logger *zap.Logger) (*Driver, error) {
	if tr == nil {
		return nil, errors.New("poller: transport required")
	}
	if cfg.Address == "" {
		return nil, errors.New("poller: device address required")
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		cfg:       cfg,
		transport: tr,
		publisher: pub,
		registry:  reg,
		metrics:   m,
		logger:    logger.With(zap.String("component", "poller"), zap.String("device", cfg.DeviceID)),
		sleep:     sleepCtx,
		now:       time.Now,
	}, nil
}

// DeviceID 设备标识
func (d *Driver) DeviceID() string { return d.cfg.DeviceID }

// Config 返回生效配置
func (d *Driver) Config() Config { return d.cfg }

// State 当前状态（并发安全）
func (d *Driver) State() State { return State(d.state.Load()) }

// Run 驱动主循环，直到 ctx 取消；返回时链路已断开
func (d *Driver) Run(ctx context.Context) error {
	d.setState(StateDisconnected)
	defer d.closeSession()

	d.logger.Info("poller started",
		zap.String("address", d.cfg.Address),
		zap.Duration("refresh", d.cfg.RefreshInterval),
		zap.Duration("backoff", d.cfg.ReconnectBackoff))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.sess != nil && !d.sess.Connected() {
			d.logger.Info("link lost, reconnecting")
			d.closeSession()
		}

		if d.sess == nil {
			if err := d.connect(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				d.fail("connect", err)
				if err := d.sleep(ctx, d.cfg.ReconnectBackoff); err != nil {
					return err
				}
				continue
			}
		}

		if err := d.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.fail("poll", err)
			d.closeSession()
			if err := d.sleep(ctx, d.cfg.ReconnectBackoff); err != nil {
				return err
			}
			continue
		}

		d.setState(StateIdle)
		if err := d.sleep(ctx, d.cfg.RefreshInterval); err != nil {
			return err
		}
	}
}

func (d *Driver) connect(ctx context.Context) error {
	if d.everConnected && d.metrics != nil {
		d.metrics.ReconnectTotal.WithLabelValues(d.cfg.DeviceID).Inc()
	}
	d.setState(StateConnecting)

	// 断开回调可能早于会话创建触发，此时由下一次写入失败兜底
	var current atomic.Pointer[session.Session]
	link, err := d.transport.Connect(ctx, d.cfg.Address, d.cfg.ConnectTimeout, func() {
		if s := current.Load(); s != nil {
			s.MarkDisconnected()
		}
	})
	if err != nil {
		d.setState(StateDisconnected)
		return err
	}

	d.sess = session.NewSession(d.cfg.DeviceID, link, vestwoods.NewReassembler(d.cfg.MaxBuffer, d.cfg.MaxIterations))
	current.Store(d.sess)
	d.desyncs = 0
	d.everConnected = true
	d.setState(StateConnected)
	return nil
}

// pollOnce 执行一轮轮询；返回错误表示链路不可用
func (d *Driver) pollOnce(ctx context.Context) error {
	s := d.sess
	start := d.now()
	d.setState(StatePolling)
	if d.registry != nil {
		d.registry.OnPoll(d.cfg.DeviceID, start)
	}

	// 先订阅再发命令，避免丢失应答的首个分片
	if err := s.Link.Subscribe(ctx, s.Append); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	err := s.Link.Write(ctx, vestwoods.PollCommand, false)
	if err != nil {
		err = fmt.Errorf("write poll command: %w", err)
	} else {
		err = d.sleep(ctx, d.cfg.CaptureWindow)
	}

	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unsubscribeTimeout)
	unsubErr := s.Link.Unsubscribe(uctx)
	cancel()

	if err != nil {
		return err
	}

	d.process(ctx, s)
	if d.metrics != nil {
		d.metrics.PollDuration.WithLabelValues(d.cfg.DeviceID).Observe(d.now().Sub(start).Seconds())
	}

	if unsubErr != nil {
		return fmt.Errorf("unsubscribe: %w", unsubErr)
	}
	if !s.Connected() {
		return transport.ErrNotConnected
	}
	return nil
}

// process 将采集到的数据送入重组器，发布有效帧并统计拒收
func (d *Driver) process(ctx context.Context, s *session.Session) {
	id := d.cfg.DeviceID
	for _, chunk := range s.Drain() {
		if d.metrics != nil {
			d.metrics.NotificationBytes.WithLabelValues(id).Add(float64(len(chunk)))
		}
		d.handle(ctx, s.Reassembler.Ingest(chunk))
	}
	// 单次迭代上限可能留下完整帧，本轮内处理完；缓冲不再缩小即停止
	for {
		before := s.Reassembler.Buffered()
		d.handle(ctx, s.Reassembler.Ingest(nil))
		if s.Reassembler.Buffered() == before {
			break
		}
	}

	st := s.Reassembler.Stats()
	if st.Desyncs > d.desyncs {
		d.logger.Debug("reassembly buffer desync",
			zap.Uint64("desyncs", st.Desyncs),
			zap.Uint64("dropped_bytes", st.DroppedBytes))
		if d.metrics != nil {
			d.metrics.BufferDesyncTotal.WithLabelValues(id).Add(float64(st.Desyncs - d.desyncs))
		}
		d.desyncs = st.Desyncs
	}
}

func (d *Driver) handle(ctx context.Context, results []vestwoods.Result) {
	id := d.cfg.DeviceID
	for _, res := range results {
		now := d.now()
		if res.Err != nil {
			reason := vestwoods.RejectReason(res.Err)
			d.logger.Warn("frame rejected",
				zap.String("reason", reason),
				zap.String("frame", hex.EncodeToString(res.Frame)),
				zap.Error(res.Err))
			if d.registry != nil {
				d.registry.OnRejected(id, reason, now)
			}
			if d.metrics != nil {
				d.metrics.FramesTotal.WithLabelValues(id, reason).Inc()
			}
			continue
		}

		if d.metrics != nil {
			d.metrics.FramesTotal.WithLabelValues(id, "ok").Inc()
		}
		if d.registry != nil {
			d.registry.OnTelemetry(id, res.Telemetry, now)
		}
		if d.publisher != nil {
			if err := d.publisher.PublishTelemetry(ctx, id, res.Telemetry); err != nil {
				d.logger.Warn("publish telemetry failed", zap.Error(err))
			}
		}
	}
}

func (d *Driver) fail(stage string, err error) {
	d.logger.Warn("transport failure, backing off",
		zap.String("stage", stage),
		zap.Duration("backoff", d.cfg.ReconnectBackoff),
		zap.Error(err))
	if d.registry != nil {
		d.registry.OnError(d.cfg.DeviceID, err, d.now())
	}
}

func (d *Driver) closeSession() {
	if d.sess != nil {
		if err := d.sess.Close(); err != nil {
			d.logger.Debug("disconnect failed", zap.Error(err))
		}
		d.sess = nil
	}
	d.setState(StateDisconnected)
}

func (d *Driver) setState(s State) {
	d.state.Store(int32(s))
	if d.metrics != nil {
		d.metrics.LinkState.WithLabelValues(d.cfg.DeviceID).Set(float64(s))
	}
	if d.registry != nil {
		d.registry.OnStateChange(d.cfg.DeviceID, s.String(), s.linked(), d.now())
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
