package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"go.uber.org/zap"
)

// RegisterMapping 字段 -> 保持寄存器
type RegisterMapping struct {
	Key     string  // 字段名，如 soc / cellVoltage_1
	Address uint16  // 相对设备基址的寄存器地址
	Scale   float64 // 写入值 = round(value * scale)；0 视为 1
	Signed  bool    // 按 int16 编码
}

// ModbusConfig Modbus TCP sink 配置
type ModbusConfig struct {
	Endpoint  string // host:port
	UnitID    byte
	Timeout   time.Duration
	Registers []RegisterMapping
	// Devices 设备 id -> 基址，忽略大小写；未列出的设备基址为 0
	Devices map[string]uint16
}

// RegisterWriter Modbus 客户端中 sink 用到的部分
type RegisterWriter interface {
	WriteMultipleRegisters(address, quantity uint16, value []byte) (results []byte, err error)
}

// ErrValueRange 缩放后的值超出寄存器范围
var ErrValueRange = errors.New("value out of register range")

// ModbusSink 把映射过的字段写入远端 Modbus 服务器（寄存器镜像）
// 请求串行化；未映射的字段直接忽略
type ModbusSink struct {
	mu      sync.Mutex
	client  RegisterWriter
	closeFn func() error
	regs    map[string]RegisterMapping
	bases   map[string]uint16
	logger  *zap.Logger
}

// NewModbusSink 连接 Modbus TCP 服务器
func NewModbusSink(cfg ModbusConfig, logger *zap.Logger) (*ModbusSink, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("modbus: endpoint required")
	}
	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout
	if h.Timeout <= 0 {
		h.Timeout = 5 * time.Second
	}
	h.SlaveId = cfg.UnitID
	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("modbus connect %s: %w", cfg.Endpoint, err)
	}
	return newModbusSink(cfg, modbus.NewClient(h), h.Close, logger)
}

func newModbusSink(cfg ModbusConfig, client RegisterWriter, closeFn func() error, logger *zap.Logger) (*ModbusSink, error) {
	if len(cfg.Registers) == 0 {
		return nil, errors.New("modbus: at least one register mapping required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	regs := make(map[string]RegisterMapping, len(cfg.Registers))
	for _, r := range cfg.Registers {
		if _, dup := regs[r.Key]; dup {
			return nil, fmt.Errorf("modbus: duplicate mapping for %q", r.Key)
		}
		if r.Scale == 0 {
			r.Scale = 1
		}
		regs[r.Key] = r
	}
	bases := make(map[string]uint16, len(cfg.Devices))
	for dev, base := range cfg.Devices {
		bases[strings.ToUpper(DeviceSegment(dev))] = base
	}
	return &ModbusSink{
		client:  client,
		closeFn: closeFn,
		regs:    regs,
		bases:   bases,
		logger:  logger.With(zap.String("component", "sink_modbus")),
	}, nil
}

func (s *ModbusSink) Name() string { return "modbus" }

func (s *ModbusSink) Publish(ctx context.Context, topic string, payload []byte) error {
	device, key, ok := SplitTopic(topic)
	if !ok {
		return nil
	}
	m, ok := s.regs[key]
	if !ok {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var v float64
	if err := json.Unmarshal(payload, &v); err != nil {
		return fmt.Errorf("modbus %s: %w", key, err)
	}
	reg, err := encodeRegister(v, m)
	if err != nil {
		return fmt.Errorf("modbus %s=%v: %w", key, v, err)
	}

	addr := s.bases[strings.ToUpper(device)] + m.Address
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.client.WriteMultipleRegisters(addr, 1, []byte{byte(reg >> 8), byte(reg)}); err != nil {
		return fmt.Errorf("modbus write %d: %w", addr, err)
	}
	return nil
}

func (s *ModbusSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

func encodeRegister(v float64, m RegisterMapping) (uint16, error) {
	scaled := math.Round(v * m.Scale)
	if m.Signed {
		if scaled < math.MinInt16 || scaled > math.MaxInt16 {
			return 0, ErrValueRange
		}
		return uint16(int16(scaled)), nil
	}
	if scaled < 0 || scaled > math.MaxUint16 {
		return 0, ErrValueRange
	}
	return uint16(scaled), nil
}
