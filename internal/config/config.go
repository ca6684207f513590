package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// HTTPConfig HTTP 服务配置；Addr 为空时不启动
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	Pprof        HTTPPprof     `mapstructure:"pprof"`
	Auth         HTTPAuth      `mapstructure:"auth"`
}

// HTTPAuth /api 路由的 API Key 认证
type HTTPAuth struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"apiKeys"`
}

// HTTPPprof HTTP pprof 配置
type HTTPPprof struct {
	Enable bool   `mapstructure:"enable"`
	Prefix string `mapstructure:"prefix"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// RedisConfig Redis 连接配置（设备状态镜像与 redis sink 共用）
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"poolSize"`
	MinIdleConns int           `mapstructure:"minIdleConns"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	StateTTL     time.Duration `mapstructure:"stateTTL"`
}

// LinkConfig BLE 链路配置
type LinkConfig struct {
	Adapter          int           `mapstructure:"adapter"` // hciN
	ConnectTimeout   time.Duration `mapstructure:"connectTimeout"`
	CaptureWindow    time.Duration `mapstructure:"captureWindow"`
	ReconnectBackoff time.Duration `mapstructure:"reconnectBackoff"`
	ServiceUUID      string        `mapstructure:"serviceUUID"`
	WriteUUID        string        `mapstructure:"writeUUID"`
	NotifyUUID       string        `mapstructure:"notifyUUID"`
}

// ProtocolConfig 重组器限制
type ProtocolConfig struct {
	MaxBuffer     int `mapstructure:"maxBuffer"`
	MaxIterations int `mapstructure:"maxIterations"`
}

// DeviceConfig 单个 BMS 设备
type DeviceConfig struct {
	ID              string        `mapstructure:"id"`
	Name            string        `mapstructure:"name"`
	Address         string        `mapstructure:"address"`
	RefreshInterval time.Duration `mapstructure:"refreshInterval"`
	CellCount       int           `mapstructure:"cellCount"`
	TempSensorCount int           `mapstructure:"tempSensorCount"`
}

// MQTTSinkConfig MQTT 输出
type MQTTSinkConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Broker         string        `mapstructure:"broker"`
	ClientID       string        `mapstructure:"clientID"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	QoS            int           `mapstructure:"qos"`
	Retain         bool          `mapstructure:"retain"`
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
	PublishTimeout time.Duration `mapstructure:"publishTimeout"`
}

// RedisSinkConfig Redis PUBLISH 输出
type RedisSinkConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	KeyPrefix string        `mapstructure:"keyPrefix"`
	CacheTTL  time.Duration `mapstructure:"cacheTTL"`
}

// ModbusRegisterConfig 字段到寄存器的映射
type ModbusRegisterConfig struct {
	Key     string  `mapstructure:"key"`
	Address uint16  `mapstructure:"address"`
	Scale   float64 `mapstructure:"scale"`
	Signed  bool    `mapstructure:"signed"`
}

// ModbusSinkConfig Modbus TCP 寄存器镜像输出
type ModbusSinkConfig struct {
	Enabled   bool                   `mapstructure:"enabled"`
	Endpoint  string                 `mapstructure:"endpoint"`
	UnitID    int                    `mapstructure:"unitID"`
	Timeout   time.Duration          `mapstructure:"timeout"`
	Registers []ModbusRegisterConfig `mapstructure:"registers"`
	Devices   map[string]uint16      `mapstructure:"devices"`
}

// WebhookSinkConfig HTTP 推送输出
type WebhookSinkConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	URL              string        `mapstructure:"url"`
	APIKey           string        `mapstructure:"apiKey"`
	Secret           string        `mapstructure:"secret"`
	Timeout          time.Duration `mapstructure:"timeout"`
	Retries          int           `mapstructure:"retries"`
	RatePerSec       float64       `mapstructure:"ratePerSec"`
	Burst            int           `mapstructure:"burst"`
	BreakerThreshold int           `mapstructure:"breakerThreshold"`
	BreakerCooldown  time.Duration `mapstructure:"breakerCooldown"`
}

// LogSinkConfig 日志输出
type LogSinkConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Level   string `mapstructure:"level"`
}

// SinksConfig 遥测输出配置
type SinksConfig struct {
	TopicPrefix string            `mapstructure:"topicPrefix"`
	QueueSize   int               `mapstructure:"queueSize"`
	Workers     int               `mapstructure:"workers"`
	MQTT        MQTTSinkConfig    `mapstructure:"mqtt"`
	Redis       RedisSinkConfig   `mapstructure:"redis"`
	Modbus      ModbusSinkConfig  `mapstructure:"modbus"`
	Webhook     WebhookSinkConfig `mapstructure:"webhook"`
	Log         LogSinkConfig     `mapstructure:"log"`
}

// Config 顶层配置结构
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Link     LinkConfig     `mapstructure:"link"`
	Protocol ProtocolConfig `mapstructure:"protocol"`
	Devices  []DeviceConfig `mapstructure:"devices"`
	Sinks    SinksConfig    `mapstructure:"sinks"`
}

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 BMS_CONFIG 读取；否则回退到 configs/bms.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	// 环境变量覆盖：前缀 BMS_，并将点号替换为下划线
	v.SetEnvPrefix("BMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("bms")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 首次运行允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDeviceDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "bms-bridge")
	v.SetDefault("app.env", "dev")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")
	v.SetDefault("http.pprof.enable", false)
	v.SetDefault("http.pprof.prefix", "/debug/pprof")
	v.SetDefault("http.auth.enabled", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/bms-bridge.log")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolSize", 10)
	v.SetDefault("redis.minIdleConns", 2)
	v.SetDefault("redis.dialTimeout", "5s")
	v.SetDefault("redis.readTimeout", "3s")
	v.SetDefault("redis.writeTimeout", "3s")
	v.SetDefault("redis.stateTTL", "10m")

	v.SetDefault("link.adapter", 0)
	v.SetDefault("link.connectTimeout", "20s")
	v.SetDefault("link.captureWindow", "2s")
	v.SetDefault("link.reconnectBackoff", "60s")
	v.SetDefault("link.serviceUUID", "6e400000-b5a3-f393-e0a9-e50e24dcca9e")
	v.SetDefault("link.writeUUID", "6e400002-b5a3-f393-e0a9-e50e24dcca9e")
	v.SetDefault("link.notifyUUID", "6e400001-b5a3-f393-e0a9-e50e24dcca9e")

	v.SetDefault("protocol.maxBuffer", 4096)
	v.SetDefault("protocol.maxIterations", 1024)

	v.SetDefault("sinks.topicPrefix", "vestwoods_bms")
	v.SetDefault("sinks.queueSize", 1024)
	v.SetDefault("sinks.workers", 1)
	v.SetDefault("sinks.mqtt.qos", 0)
	v.SetDefault("sinks.mqtt.retain", false)
	v.SetDefault("sinks.mqtt.connectTimeout", "10s")
	v.SetDefault("sinks.mqtt.publishTimeout", "5s")
	v.SetDefault("sinks.redis.keyPrefix", "bms:last:")
	v.SetDefault("sinks.redis.cacheTTL", "5m")
	v.SetDefault("sinks.modbus.unitID", 1)
	v.SetDefault("sinks.modbus.timeout", "5s")
	v.SetDefault("sinks.webhook.timeout", "5s")
	v.SetDefault("sinks.webhook.retries", 3)
	v.SetDefault("sinks.webhook.ratePerSec", 20)
	v.SetDefault("sinks.webhook.breakerThreshold", 5)
	v.SetDefault("sinks.webhook.breakerCooldown", "30s")
	v.SetDefault("sinks.log.enabled", true)
	v.SetDefault("sinks.log.level", "debug")
}

// 设备列表无法用 viper 默认值覆盖到每个元素
func (c *Config) applyDeviceDefaults() {
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.ID == "" {
			d.ID = d.Address
		}
		if d.RefreshInterval == 0 {
			d.RefreshInterval = 30 * time.Second
		}
		if d.CellCount == 0 {
			d.CellCount = 16
		}
		if d.TempSensorCount == 0 {
			d.TempSensorCount = 4
		}
	}
}

// Validate 校验配置；错误在启动时致命
func (c *Config) Validate() error {
	var errs []error
	if c.Link.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("link.connectTimeout must be positive"))
	}
	if c.Link.CaptureWindow <= 0 {
		errs = append(errs, errors.New("link.captureWindow must be positive"))
	}
	if c.Link.ReconnectBackoff <= 0 {
		errs = append(errs, errors.New("link.reconnectBackoff must be positive"))
	}
	if c.Protocol.MaxBuffer < 0 || c.Protocol.MaxIterations < 0 {
		errs = append(errs, errors.New("protocol limits must not be negative"))
	}

	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if _, err := net.ParseMAC(d.Address); err != nil {
			errs = append(errs, fmt.Errorf("devices[%d].address %q: %w", i, d.Address, err))
		}
		if seen[d.ID] {
			errs = append(errs, fmt.Errorf("devices[%d].id %q is duplicated", i, d.ID))
		}
		seen[d.ID] = true
		if d.RefreshInterval <= 0 {
			errs = append(errs, fmt.Errorf("devices[%d].refreshInterval must be positive", i))
		}
		if d.CellCount < 0 || d.TempSensorCount < 0 {
			errs = append(errs, fmt.Errorf("devices[%d] sensor counts must not be negative", i))
		}
	}

	if c.HTTP.Auth.Enabled && len(c.HTTP.Auth.APIKeys) == 0 {
		errs = append(errs, errors.New("http.auth.apiKeys is empty"))
	}

	s := c.Sinks
	if s.MQTT.Enabled {
		if _, err := url.Parse(s.MQTT.Broker); err != nil || s.MQTT.Broker == "" {
			errs = append(errs, fmt.Errorf("sinks.mqtt.broker %q is invalid", s.MQTT.Broker))
		}
		if s.MQTT.QoS < 0 || s.MQTT.QoS > 2 {
			errs = append(errs, fmt.Errorf("sinks.mqtt.qos %d is invalid", s.MQTT.QoS))
		}
	}
	if s.Redis.Enabled && !c.Redis.Enabled {
		errs = append(errs, errors.New("sinks.redis requires redis.enabled"))
	}
	if s.Modbus.Enabled {
		if s.Modbus.Endpoint == "" {
			errs = append(errs, errors.New("sinks.modbus.endpoint is required"))
		}
		if len(s.Modbus.Registers) == 0 {
			errs = append(errs, errors.New("sinks.modbus.registers is empty"))
		}
		if s.Modbus.UnitID < 0 || s.Modbus.UnitID > 255 {
			errs = append(errs, fmt.Errorf("sinks.modbus.unitID %d is invalid", s.Modbus.UnitID))
		}
	}
	if s.Webhook.Enabled {
		if _, err := url.ParseRequestURI(s.Webhook.URL); err != nil {
			errs = append(errs, fmt.Errorf("sinks.webhook.url: %w", err))
		}
	}
	return errors.Join(errs...)
}
