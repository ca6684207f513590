package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrPollerPanic 驱动运行中发生 panic
var ErrPollerPanic = errors.New("poller panic")

// Supervisor 为每个设备运行独立的驱动 goroutine
type Supervisor struct {
	drivers []*Driver
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewSupervisor 创建监督器
func NewSupervisor(drivers []*Driver, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{drivers: drivers, logger: logger.With(zap.String("component", "supervisor"))}
}

// Start 启动全部驱动；ctx 取消后各驱动断开链路并退出
// 驱动异常退出（含 panic）时等待一个重连退避周期后重新运行
func (s *Supervisor) Start(ctx context.Context) {
	for _, d := range s.drivers {
		s.wg.Add(1)
		go func(d *Driver) {
			defer s.wg.Done()
			s.supervise(ctx, d)
		}(d)
	}
	s.logger.Info("pollers started", zap.Int("devices", len(s.drivers)))
}

func (s *Supervisor) supervise(ctx context.Context, d *Driver) {
	log := s.logger.With(zap.String("device", d.DeviceID()))
	for {
		err := s.runOnce(ctx, d)
		if ctx.Err() != nil {
			log.Info("poller stopped")
			return
		}
		if err == nil {
			err = errors.New("poller returned without error")
		}
		log.Error("poller exited, restarting",
			zap.Duration("backoff", d.cfg.ReconnectBackoff),
			zap.Error(err))
		if d.registry != nil {
			d.registry.OnError(d.DeviceID(), err, d.now())
		}
		if err := d.sleep(ctx, d.cfg.ReconnectBackoff); err != nil {
			log.Info("poller stopped")
			return
		}
	}
}

// runOnce 运行一次驱动；panic 转为错误返回，链路已由 Run 的 defer 断开
func (s *Supervisor) runOnce(ctx context.Context, d *Driver) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("poller panic",
				zap.String("device", d.DeviceID()),
				zap.Any("panic", r),
				zap.Stack("stack"))
			err = fmt.Errorf("%w: %v", ErrPollerPanic, r)
		}
	}()
	return d.Run(ctx)
}

// Wait 等待全部驱动退出
func (s *Supervisor) Wait() { s.wg.Wait() }

// Drivers 返回受管驱动
func (s *Supervisor) Drivers() []*Driver { return s.drivers }

// States 设备 ID -> 当前状态
func (s *Supervisor) States() map[string]State {
	out := make(map[string]State, len(s.drivers))
	for _, d := range s.drivers {
		out[d.DeviceID()] = d.State()
	}
	return out
}
