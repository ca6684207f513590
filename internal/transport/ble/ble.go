package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goble "github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"go.uber.org/zap"

	"github.com/taoyao-code/bms-bridge/internal/transport"
)

// Nordic UART 服务；该 BMS 的读写特征与常规 NUS 角色相反
const (
	DefaultServiceUUID = "6e400000-b5a3-f393-e0a9-e50e24dcca9e"
	DefaultWriteUUID   = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"
	DefaultNotifyUUID  = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
)

// Config BLE 传输配置
type Config struct {
	DeviceID    int    // HCI 设备号，hci0 = 0
	ServiceUUID string // 为空时在全部服务中查找特征
	WriteUUID   string
	NotifyUUID  string
}

// Dialer 按地址建立 GATT 客户端连接
type Dialer func(ctx context.Context, addr goble.Addr) (goble.Client, error)

// Transport 基于 go-ble 的传输实现
type Transport struct {
	dial    Dialer
	logger  *zap.Logger
	service goble.UUID
	write   goble.UUID
	notify  goble.UUID
	stop    func() error
}

// Open 打开本机 HCI 设备并创建传输
func Open(cfg Config, logger *zap.Logger) (*Transport, error) {
	dev, err := linux.NewDevice(goble.OptDeviceID(cfg.DeviceID))
	if err != nil {
		return nil, fmt.Errorf("open hci%d: %w", cfg.DeviceID, err)
	}
	t, err := New(cfg, dev.Dial, logger)
	if err != nil {
		_ = dev.Stop()
		return nil, err
	}
	t.stop = dev.Stop
	return t, nil
}

// New 使用指定 Dialer 创建传输
func New(cfg Config, dial Dialer, logger *zap.Logger) (*Transport, error) {
	if dial == nil {
		return nil, errors.New("ble: dialer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WriteUUID == "" {
		cfg.WriteUUID = DefaultWriteUUID
	}
	if cfg.NotifyUUID == "" {
		cfg.NotifyUUID = DefaultNotifyUUID
	}

	t := &Transport{dial: dial, logger: logger.With(zap.String("component", "ble"))}
	var err error
	if cfg.ServiceUUID != "" {
		if t.service, err = goble.Parse(cfg.ServiceUUID); err != nil {
			return nil, fmt.Errorf("service uuid %q: %w", cfg.ServiceUUID, err)
		}
	}
	if t.write, err = goble.Parse(cfg.WriteUUID); err != nil {
		return nil, fmt.Errorf("write uuid %q: %w", cfg.WriteUUID, err)
	}
	if t.notify, err = goble.Parse(cfg.NotifyUUID); err != nil {
		return nil, fmt.Errorf("notify uuid %q: %w", cfg.NotifyUUID, err)
	}
	return t, nil
}

// Close 释放 HCI 设备
func (t *Transport) Close() error {
	if t.stop == nil {
		return nil
	}
	return t.stop()
}

// Connect 实现 transport.Transport
func (t *Transport) Connect(ctx context.Context, address string, timeout time.Duration, onDisconnect func()) (transport.Link, error) {
	dctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cln, err := t.dial(dctx, goble.NewAddr(address))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(dctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s within %s: %w", address, timeout, transport.ErrNotFound)
		}
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	l, err := t.setup(address, cln)
	if err != nil {
		_ = cln.CancelConnection()
		return nil, err
	}
	go l.watch(onDisconnect)

	t.logger.Info("ble connected", zap.String("device", address))
	return l, nil
}

func (t *Transport) setup(address string, cln goble.Client) (*link, error) {
	p, err := cln.DiscoverProfile(true)
	if err != nil {
		return nil, fmt.Errorf("discover profile %s: %w", address, err)
	}

	l := &link{
		addr:   address,
		cln:    cln,
		logger: t.logger.With(zap.String("device", address)),
		closed: make(chan struct{}),
	}
	for _, s := range p.Services {
		if len(t.service) > 0 && !s.UUID.Equal(t.service) {
			continue
		}
		for _, c := range s.Characteristics {
			switch {
			case c.UUID.Equal(t.write):
				l.write = c
			case c.UUID.Equal(t.notify):
				l.notify = c
			}
		}
	}
	if l.write == nil {
		return nil, fmt.Errorf("write %s: %w", t.write, transport.ErrCharacteristicMissing)
	}
	if l.notify == nil {
		return nil, fmt.Errorf("notify %s: %w", t.notify, transport.ErrCharacteristicMissing)
	}
	return l, nil
}

type link struct {
	addr   string
	cln    goble.Client
	write  *goble.Characteristic
	notify *goble.Characteristic
	logger *zap.Logger

	mu         sync.Mutex
	subscribed bool
	closed     chan struct{}
	closeOnce  sync.Once
}

func (l *link) Address() string { return l.addr }

func (l *link) Write(ctx context.Context, data []byte, expectResponse bool) error {
	if err := l.usable(ctx); err != nil {
		return err
	}
	if err := l.cln.WriteCharacteristic(l.write, data, !expectResponse); err != nil {
		return fmt.Errorf("write %s: %w", l.addr, err)
	}
	return nil
}

func (l *link) Subscribe(ctx context.Context, onData func([]byte)) error {
	if err := l.usable(ctx); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.subscribed {
		return nil
	}
	err := l.cln.Subscribe(l.notify, false, func(b []byte) {
		// 底层缓冲会被复用
		onData(append([]byte(nil), b...))
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", l.addr, err)
	}
	l.subscribed = true
	return nil
}

func (l *link) Unsubscribe(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.subscribed {
		return nil
	}
	l.subscribed = false
	if l.isClosed() {
		return nil
	}
	if err := l.cln.Unsubscribe(l.notify, false); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", l.addr, err)
	}
	return nil
}

func (l *link) Disconnect() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		err = l.cln.CancelConnection()
	})
	return err
}

func (l *link) watch(onDisconnect func()) {
	select {
	case <-l.cln.Disconnected():
		l.logger.Info("ble disconnected")
		l.closeOnce.Do(func() { close(l.closed) })
		if onDisconnect != nil {
			onDisconnect()
		}
	case <-l.closed:
	}
}

func (l *link) usable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.isClosed() {
		return fmt.Errorf("%s: %w", l.addr, transport.ErrNotConnected)
	}
	return nil
}

func (l *link) isClosed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}
