package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 SIMULATOR_SIMULATOR_CHARGE_POINT_ID
const EnvPrefix = "SIMULATOR"

// Config 模拟器配置结构
type Config struct {
	Simulator SimulatorConfig `mapstructure:"simulator"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
}

// SimulatorConfig 充电桩模拟参数
type SimulatorConfig struct {
	CentralSystemURL      string        `mapstructure:"central_system_url"`
	ChargePointID         string        `mapstructure:"charge_point_id"`
	Vendor                string        `mapstructure:"vendor"`
	Model                 string        `mapstructure:"model"`
	SerialNumber          string        `mapstructure:"serial_number"`
	FirmwareVersion       string        `mapstructure:"firmware_version"`
	Connectors            int           `mapstructure:"connectors"`
	RemoteStartStopPolicy string        `mapstructure:"remote_start_stop_policy"`
	PlugInDelay           time.Duration `mapstructure:"plug_in_delay"`
	StopStepDelay         time.Duration `mapstructure:"stop_step_delay"`
	DefaultIdTag          string        `mapstructure:"default_id_tag"`
	AutoConnect           bool          `mapstructure:"auto_connect"`
	FrameBuffer           int           `mapstructure:"frame_buffer"`
}

// WebSocketConfig WebSocket 客户端配置
type WebSocketConfig struct {
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	ReadBufferSize   int           `mapstructure:"read_buffer_size"`
	WriteBufferSize  int           `mapstructure:"write_buffer_size"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
	SendBuffer       int           `mapstructure:"send_buffer"`
}

// StorageConfig 持久化配置
type StorageConfig struct {
	Driver        string        `mapstructure:"driver"` // memory, redis
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	DurablePrefix string        `mapstructure:"durable_prefix"`
	SessionPrefix string        `mapstructure:"session_prefix"`
	// 退出时清空会话作用域，模拟会话结束
	ClearSessionOnExit bool `mapstructure:"clear_session_on_exit"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Brokers       []string `mapstructure:"brokers"`
	EventsTopic   string   `mapstructure:"events_topic"`
	CommandsTopic string   `mapstructure:"commands_topic"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
}

// ServerConfig 控制接口与监控配置
type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
	Async  bool   `mapstructure:"async"`
}

// SetDefaults 注册默认配置
func SetDefaults(v *viper.Viper) {
	v.SetDefault("simulator.central_system_url", "ws://localhost:8080/ocpp")
	v.SetDefault("simulator.charge_point_id", "CP-SIM-001")
	v.SetDefault("simulator.vendor", "Simulator")
	v.SetDefault("simulator.model", "SIM-2C")
	v.SetDefault("simulator.serial_number", "")
	v.SetDefault("simulator.firmware_version", "1.0.0")
	v.SetDefault("simulator.connectors", 2)
	v.SetDefault("simulator.remote_start_stop_policy", "Accepted")
	v.SetDefault("simulator.plug_in_delay", 2*time.Second)
	v.SetDefault("simulator.stop_step_delay", 1*time.Second)
	v.SetDefault("simulator.default_id_tag", "DEADBEEF")
	v.SetDefault("simulator.auto_connect", false)
	v.SetDefault("simulator.frame_buffer", 256)

	v.SetDefault("websocket.handshake_timeout", 10*time.Second)
	v.SetDefault("websocket.write_timeout", 10*time.Second)
	v.SetDefault("websocket.read_buffer_size", 4096)
	v.SetDefault("websocket.write_buffer_size", 4096)
	v.SetDefault("websocket.max_message_size", 1024*1024)
	v.SetDefault("websocket.send_buffer", 64)

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.session_ttl", 24*time.Hour)
	v.SetDefault("storage.durable_prefix", "cpsim:durable:")
	v.SetDefault("storage.session_prefix", "cpsim:session:")
	v.SetDefault("storage.clear_session_on_exit", false)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout", 5*time.Second)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.events_topic", "simulator-events")
	v.SetDefault("kafka.commands_topic", "simulator-commands")
	v.SetDefault("kafka.consumer_group", "charge-point-simulator")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.metrics_addr", ":9100")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.async", false)
}

// Load 加载配置：默认值 < 配置文件 < 环境变量
// path 为空时只使用默认值和环境变量
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Simulator.ChargePointID) == "" {
		errs = append(errs, errors.New("simulator.charge_point_id must not be empty"))
	}
	switch c.Simulator.RemoteStartStopPolicy {
	case "Accepted", "Rejected":
	default:
		errs = append(errs, fmt.Errorf("simulator.remote_start_stop_policy must be Accepted or Rejected, got %q", c.Simulator.RemoteStartStopPolicy))
	}
	if c.Simulator.Connectors < 1 {
		errs = append(errs, fmt.Errorf("simulator.connectors must be >= 1, got %d", c.Simulator.Connectors))
	}
	switch c.Storage.Driver {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be memory or redis, got %q", c.Storage.Driver))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers must not be empty when kafka is enabled"))
	}
	return errors.Join(errs...)
}

// GetServerAddr 获取控制接口监听地址
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetMetricsAddr 获取监控地址
func (c *Config) GetMetricsAddr() string {
	return c.Server.MetricsAddr
}

// ConnectURL 拼接中央系统地址与充电桩ID
func (c *Config) ConnectURL() string {
	return strings.TrimRight(c.Simulator.CentralSystemURL, "/") + "/" + c.Simulator.ChargePointID
}
