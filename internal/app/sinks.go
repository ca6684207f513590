package app

import (
	"fmt"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/bms-bridge/internal/config"
	"github.com/taoyao-code/bms-bridge/internal/metrics"
	"github.com/taoyao-code/bms-bridge/internal/sink"
	redisstorage "github.com/taoyao-code/bms-bridge/internal/storage/redis"
)

// Sinks 已打开的输出通道
type Sinks struct {
	Queue     *sink.Async
	Publisher *sink.Publisher
	// Breakers 下游熔断器（健康检查用）
	Breakers map[string]*sink.CircuitBreaker
}

// NewSinks 按配置打开输出通道，统一经异步队列发布
// 任一已启用通道打开失败即返回错误，已打开的通道会被关闭
func NewSinks(cfg cfgpkg.SinksConfig, redisClient *redisstorage.Client, bridgeID string, appm *metrics.AppMetrics, logger *zap.Logger) (*Sinks, error) {
	var (
		opened   []sink.Sink
		breakers = make(map[string]*sink.CircuitBreaker)
	)
	fail := func(err error) (*Sinks, error) {
		for _, s := range opened {
			_ = s.Close()
		}
		return nil, err
	}

	if cfg.MQTT.Enabled {
		clientID := cfg.MQTT.ClientID
		if clientID == "" {
			clientID = bridgeID
		}
		s, err := sink.NewMQTTSink(sink.MQTTConfig{
			Broker:         cfg.MQTT.Broker,
			ClientID:       clientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			QoS:            byte(cfg.MQTT.QoS),
			Retain:         cfg.MQTT.Retain,
			ConnectTimeout: cfg.MQTT.ConnectTimeout,
			PublishTimeout: cfg.MQTT.PublishTimeout,
		}, logger)
		if err != nil {
			return fail(err)
		}
		opened = append(opened, s)
	}

	if cfg.Redis.Enabled {
		if redisClient == nil {
			return fail(fmt.Errorf("redis sink enabled but redis client unavailable"))
		}
		opened = append(opened, sink.NewRedisSink(redisClient.Client, cfg.Redis.KeyPrefix, cfg.Redis.CacheTTL))
	}

	if cfg.Modbus.Enabled {
		regs := make([]sink.RegisterMapping, 0, len(cfg.Modbus.Registers))
		for _, r := range cfg.Modbus.Registers {
			regs = append(regs, sink.RegisterMapping{Key: r.Key, Address: r.Address, Scale: r.Scale, Signed: r.Signed})
		}
		s, err := sink.NewModbusSink(sink.ModbusConfig{
			Endpoint:  cfg.Modbus.Endpoint,
			UnitID:    byte(cfg.Modbus.UnitID),
			Timeout:   cfg.Modbus.Timeout,
			Registers: regs,
			Devices:   cfg.Modbus.Devices,
		}, logger)
		if err != nil {
			return fail(err)
		}
		opened = append(opened, s)
	}

	if cfg.Webhook.Enabled {
		s, err := sink.NewWebhookSink(sink.WebhookConfig{
			URL:              cfg.Webhook.URL,
			APIKey:           cfg.Webhook.APIKey,
			Secret:           cfg.Webhook.Secret,
			Source:           bridgeID,
			Timeout:          cfg.Webhook.Timeout,
			Retries:          cfg.Webhook.Retries,
			RatePerSec:       cfg.Webhook.RatePerSec,
			Burst:            cfg.Webhook.Burst,
			BreakerThreshold: cfg.Webhook.BreakerThreshold,
			BreakerCooldown:  cfg.Webhook.BreakerCooldown,
		}, logger)
		if err != nil {
			return fail(err)
		}
		breakers["webhook"] = s.Breaker()
		opened = append(opened, s)
	}

	// 没有其他输出时总是保留日志输出
	if cfg.Log.Enabled || len(opened) == 0 {
		opened = append(opened, sink.NewLogSink(logger, cfg.Log.Level))
	}

	names := make([]string, 0, len(opened))
	for i, s := range opened {
		names = append(names, s.Name())
		opened[i] = sink.Instrument(s, appm)
	}
	logger.Info("sinks opened", zap.Strings("sinks", names))

	queue := sink.NewAsync(sink.NewMulti(opened...), cfg.QueueSize, cfg.Workers, appm, logger)
	return &Sinks{
		Queue:     queue,
		Publisher: sink.NewPublisher(queue, cfg.TopicPrefix),
		Breakers:  breakers,
	}, nil
}

// Close 排空队列并关闭全部通道
func (s *Sinks) Close() error {
	return s.Queue.Close()
}
