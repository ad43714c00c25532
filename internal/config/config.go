package config

import (
	"fmt"
	"os"
	"time"

	"digital_rf/internal/watchdog"

	"gopkg.in/yaml.v3"
)

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// WatchConfig 定义了文件筛选规则，被 ls / watch / mirror / ringbuffer 共用。
type WatchConfig struct {
	Kinds   []string `yaml:"kinds"`   // 要包含的文件类型: "drf", "dmd", "properties"; 为空表示全部
	Start   string   `yaml:"start"`   // 起始时间 (RFC3339)，为空表示不限制
	End     string   `yaml:"end"`     // 结束时间 (RFC3339)，为空表示不限制
	Include []string `yaml:"include"` // 包含的 glob 模式
	Exclude []string `yaml:"exclude"` // 排除的 glob 模式
}

// MirrorConfig 定义了镜像任务的配置。
type MirrorConfig struct {
	Source         string `yaml:"source"`         // 源目录
	Dest           string `yaml:"dest"`           // 目标目录 (sink 为 local 时使用)
	Method         string `yaml:"method"`         // "copy" 或 "move"
	Sink           string `yaml:"sink"`           // "local" 或 "minio"
	Prefix         string `yaml:"prefix"`         // 对象存储中的键前缀
	IgnoreExisting bool   `yaml:"ignoreExisting"` // 启动时是否跳过已存在的文件
	Settle         string `yaml:"settle"`         // 文件写入稳定等待时间，例如: "500ms"
	State          string `yaml:"state"`          // 已镜像文件状态存储: "memory" 或 "redis"
	StateCapacity  int    `yaml:"stateCapacity"`  // 内存状态存储的最大条目数
}

// RingBufferConfig 定义了环形缓冲区的配置。
type RingBufferConfig struct {
	Dir      string `yaml:"dir"`      // 受管理的目录
	Count    int    `yaml:"count"`    // 每个通道保留的最大文件数
	Size     string `yaml:"size"`     // 每个通道的最大字节数，例如 "10GB"；负值表示需要保留的磁盘剩余空间
	Duration string `yaml:"duration"` // 每个通道保留的时长，例如 "1h"
	DryRun   bool   `yaml:"dryRun"`   // 仅记录日志，不真正删除
}

// ServerConfig 定义了状态 HTTP 服务的配置。
type ServerConfig struct {
	Address string `yaml:"address"` // 监听地址，例如 ":8080"
	DataDir string `yaml:"dataDir"` // 对外暴露的数据根目录
	// RateLimit 是 /api/v1 每秒允许的请求数，0 表示不限流
	RateLimit float64 `yaml:"rateLimit"`
	Burst     int     `yaml:"burst"` // 允许的突发请求数
}

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address   string `yaml:"address"`   // Redis 服务器地址 (例如: "localhost:6379")
	Password  string `yaml:"password"`  // Redis 密码
	DB        int    `yaml:"db"`        // Redis 数据库编号
	KeyPrefix string `yaml:"keyPrefix"` // 状态键前缀
}

// MinIOConfig 定义了 MinIO 对象存储的连接配置。
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`  // MinIO 服务端点
	AccessKey string `yaml:"accessKey"` // 访问密钥
	SecretKey string `yaml:"secretKey"` // Secret 密钥
	Bucket    string `yaml:"bucket"`    // 镜像目标存储桶名称
	Secure    bool   `yaml:"secure"`    // 是否使用HTTPS
}

// KafkaConfig 定义了 Kafka 消息队列的连接配置。
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"` // Kafka Broker 地址列表
	Topic   string   `yaml:"topic"`   // 文件事件主题
}

// DatabaseConfigs 包含所有外部存储的配置。
type DatabaseConfigs struct {
	Redis RedisConfig `yaml:"redis"` // Redis 配置
	MinIO MinIOConfig `yaml:"minio"` // MinIO 对象存储配置
	Kafka KafkaConfig `yaml:"kafka"` // Kafka 消息队列配置
}

// CircuitBreakerConfig 定义了对象存储上传熔断器的配置。
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // 例如: "30s"
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App            AppInfo              `yaml:"app"`
	Logger         LoggerConfig         `yaml:"logger"`
	Watch          WatchConfig          `yaml:"watch"`
	Mirror         MirrorConfig         `yaml:"mirror"`
	RingBuffer     RingBufferConfig     `yaml:"ringbuffer"`
	Server         ServerConfig         `yaml:"server"`
	Databases      DatabaseConfigs      `yaml:"databases"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// Default 返回所有字段都填好默认值的配置。
func Default() *AppConfig {
	cfg := &AppConfig{}
	cfg.applyDefaults()
	return cfg
}

func (c *AppConfig) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "digital_rf"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Mirror.Method == "" {
		c.Mirror.Method = "copy"
	}
	if c.Mirror.Sink == "" {
		c.Mirror.Sink = "local"
	}
	if c.Mirror.Settle == "" {
		c.Mirror.Settle = "500ms"
	}
	if c.Mirror.State == "" {
		c.Mirror.State = "memory"
	}
	if c.Mirror.StateCapacity <= 0 {
		c.Mirror.StateCapacity = 100000
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.RateLimit > 0 && c.Server.Burst <= 0 {
		c.Server.Burst = int(c.Server.RateLimit) + 1
	}
	if c.Databases.Redis.KeyPrefix == "" {
		c.Databases.Redis.KeyPrefix = "drf:mirror:"
	}
	if c.Databases.Kafka.Topic == "" {
		c.Databases.Kafka.Topic = "drf_file_events"
	}
	if c.CircuitBreaker.FailureThreshold == 0 {
		c.CircuitBreaker.FailureThreshold = 5
	}
	if c.CircuitBreaker.SuccessThreshold == 0 {
		c.CircuitBreaker.SuccessThreshold = 1
	}
	if c.CircuitBreaker.Timeout == "" {
		c.CircuitBreaker.Timeout = "30s"
	}
}

// LoadConfig 函数从指定路径加载并解析 YAML 配置文件。
//
// 参数:
//
//	path: YAML 配置文件的路径。
//
// 返回值:
//
//	*AppConfig: 解析后并补全默认值的配置结构体。
//	error: 如果文件读取或解析失败，则返回错误。
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(yamlFile, &cfg); err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// ParseDuration 解析配置中的时长字符串，空字符串返回 0。
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("无效的时长 '%s': %w", s, err)
	}
	return d, nil
}

// ParseTime 解析 RFC3339 时间，空字符串返回零值。
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("无效的时间 '%s': %w", s, err)
	}
	return t, nil
}

// ListOptions 把筛选规则转换为 watchdog.ListOptions。Kinds 为空时包含全部文件类型。
func (w WatchConfig) ListOptions() (watchdog.ListOptions, error) {
	opts := watchdog.DefaultListOptions()
	if len(w.Kinds) > 0 {
		opts.IncludeDRF, opts.IncludeDMD, opts.IncludeProperties = false, false, false
		for _, k := range w.Kinds {
			switch k {
			case "drf":
				opts.IncludeDRF = true
			case "dmd":
				opts.IncludeDMD = true
			case "properties":
				opts.IncludeProperties = true
			default:
				return opts, fmt.Errorf("未知的文件类型 %q (可选: drf, dmd, properties)", k)
			}
		}
	}
	var err error
	if opts.Start, err = ParseTime(w.Start); err != nil {
		return opts, err
	}
	if opts.End, err = ParseTime(w.End); err != nil {
		return opts, err
	}
	opts.Include = w.Include
	opts.Exclude = w.Exclude
	return opts, nil
}
