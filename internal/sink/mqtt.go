package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTConfig MQTT sink 配置
type MQTTConfig struct {
	Broker         string // tcp://host:1883
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	Retain         bool
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// MQTTSink 发布到 MQTT broker；断线由客户端自动重连
type MQTTSink struct {
	client  mqtt.Client
	qos     byte
	retain  bool
	timeout time.Duration
	logger  *zap.Logger
}

// NewMQTTSink 连接 broker；首次连接超时不视为错误，后台继续重试
func NewMQTTSink(cfg MQTTConfig, logger *zap.Logger) (*MQTTSink, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: broker required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt: invalid qos %d", cfg.QoS)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	log := logger.With(zap.String("component", "sink_mqtt"), zap.String("broker", cfg.Broker))

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Info("mqtt connected")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("mqtt connection lost", zap.Error(err))
		})

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(cfg.ConnectTimeout) {
		log.Warn("mqtt connect pending, retrying in background")
	} else if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return newMQTTSink(client, cfg, log), nil
}

func newMQTTSink(client mqtt.Client, cfg MQTTConfig, logger *zap.Logger) *MQTTSink {
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MQTTSink{client: client, qos: cfg.QoS, retain: cfg.Retain, timeout: timeout, logger: logger}
}

func (s *MQTTSink) Name() string { return "mqtt" }

func (s *MQTTSink) Publish(ctx context.Context, topic string, payload []byte) error {
	tok := s.client.Publish(topic, s.qos, s.retain, payload)
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("mqtt publish %s: timeout after %s", topic, s.timeout)
	}
}

// Connected 客户端当前是否在线
func (s *MQTTSink) Connected() bool { return s.client.IsConnectionOpen() }

func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	return nil
}
