package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"SmartFlow/internal/usecase"
)

type LogConfig struct {
	Level     string          `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format    string          `yaml:"format" default:"console" validate:"oneof=console json"`
	Output    string          `yaml:"output" default:"stdout" validate:"required"`
	Collector CollectorConfig `yaml:"collector"`
}

// CollectorConfig controls aggregation of repeated error lines onto a Kafka topic.
type CollectorConfig struct {
	Enabled   bool          `yaml:"enabled" default:"false"`
	Topic     string        `yaml:"topic" default:"smartflow.logs" validate:"required_if=Enabled true"`
	Interval  time.Duration `yaml:"interval" default:"30s" validate:"gt=0"`
	Threshold int           `yaml:"threshold" default:"100" validate:"gte=1"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s" validate:"gt=0"`
	SlowThreshold   time.Duration `yaml:"slow_threshold" default:"500ms" validate:"gte=0"`
	CORS            bool          `yaml:"cors" default:"true"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics" validate:"required_if=Enabled true"`
}

type ProducerConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" default:"5" validate:"gte=1"`
	Linger       time.Duration `yaml:"linger" default:"50ms" validate:"gte=0"`
	BatchBytes   int           `yaml:"batch_bytes" default:"1048576" validate:"gte=1"`
	BatchSize    int           `yaml:"batch_size" default:"100" validate:"gte=1"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s" validate:"gt=0"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s" validate:"gt=0"`
	Async        bool          `yaml:"async" default:"false"`
}

type ConsumerConfig struct {
	GroupID         string        `yaml:"group_id" default:"smartflow" validate:"required"`
	AutoOffsetReset string        `yaml:"auto_offset_reset" default:"latest" validate:"oneof=earliest latest"`
	Workers         int           `yaml:"workers" default:"4" validate:"gte=1"`
	BufferSize      int           `yaml:"buffer_size" default:"256" validate:"gte=1"`
	RetryMax        int           `yaml:"retry_max" default:"3" validate:"gte=0"`
	BackoffMin      time.Duration `yaml:"backoff_min" default:"100ms" validate:"gt=0"`
	BackoffMax      time.Duration `yaml:"backoff_max" default:"5s" validate:"gtefield=BackoffMin"`
	DLQTopic        string        `yaml:"dlq_topic" default:"smartflow.bars.dlq"`
	MinBytes        int           `yaml:"min_bytes" default:"1" validate:"gte=1"`
	MaxBytes        int           `yaml:"max_bytes" default:"10000000" validate:"gtefield=MinBytes"`
}

type KafkaConfig struct {
	Brokers        []string       `yaml:"brokers" default:"[\"localhost:9092\"]" validate:"required,min=1,dive,hostname_port"`
	BarsTopic      string         `yaml:"bars_topic" default:"smartflow.bars" validate:"required"`
	DecisionsTopic string         `yaml:"decisions_topic" default:"smartflow.decisions" validate:"required"`
	SignalsTopic   string         `yaml:"signals_topic" default:"smartflow.signals"`
	RequiredAcks   int            `yaml:"required_acks" default:"-1" validate:"oneof=-1 0 1"`
	Compression    string         `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
	Producer       ProducerConfig `yaml:"producer"`
	Consumer       ConsumerConfig `yaml:"consumer"`
}

type ClickHouseConfig struct {
	Enabled          bool          `yaml:"enabled" default:"true"`
	Host             string        `yaml:"host" default:"localhost" validate:"required_if=Enabled true"`
	Port             int           `yaml:"port" default:"9000" validate:"gte=1,lte=65535"`
	Database         string        `yaml:"database" default:"smartflow" validate:"required"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http" default:"false"`
	AsyncInsert      bool          `yaml:"async_insert" default:"false"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert" default:"true"`
	InitSchema       bool          `yaml:"init_schema" default:"true"`
	MaxOpenConns     int           `yaml:"max_open_conns" default:"10" validate:"gte=1"`
	MaxIdleConns     int           `yaml:"max_idle_conns" default:"5" validate:"gte=0"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s" validate:"gt=0"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s" validate:"gt=0"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s" validate:"gt=0"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s" validate:"gte=0"`
}

type RedisConfig struct {
	Enabled      bool          `yaml:"enabled" default:"true"`
	Addr         string        `yaml:"addr" default:"localhost:6379" validate:"required_if=Enabled true"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db" default:"0" validate:"gte=0,lte=15"`
	Prefix       string        `yaml:"prefix" default:"smartflow"`
	PoolSize     int           `yaml:"pool_size" default:"10" validate:"gte=1"`
	MinIdleConns int           `yaml:"min_idle_conns" default:"2" validate:"gte=0"`
	PoolTimeout  time.Duration `yaml:"pool_timeout" default:"4s" validate:"gt=0"`

	// MemoryCacheSize bounds the in-process layer in front of Redis; it is the
	// whole store when Redis is disabled.
	MemoryCacheSize int           `yaml:"memory_cache_size" default:"1024" validate:"gte=1"`
	MemoryTTL       time.Duration `yaml:"memory_ttl" default:"1m" validate:"gt=0"`
}

// FeedConfig bounds the per-symbol bar windows.
type FeedConfig struct {
	Symbols    []string `yaml:"symbols" default:"[\"EURUSD\"]" validate:"required,min=1,dive,required"`
	Timeframes []string `yaml:"timeframes" default:"[\"5m\",\"15m\",\"1h\",\"4h\",\"1d\"]" validate:"required,min=1,dive,oneof=1m 5m 15m 1h 4h 1d"`
	Window     int      `yaml:"window" default:"500" validate:"gte=50,lte=10000"`

	// Warmup seeds each window from ClickHouse before the consumer starts.
	Warmup bool `yaml:"warmup" default:"true"`
	// Persist writes every closed bar from the feed into ClickHouse.
	Persist bool `yaml:"persist" default:"false"`
}

type LearningConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval" default:"24h" validate:"gt=0"`
	Timeout       time.Duration `yaml:"timeout" default:"30s" validate:"gt=0"`
	Retention     time.Duration `yaml:"retention" default:"2160h" validate:"gte=24h"`
}

type Config struct {
	Environment string           `yaml:"environment" default:"development" validate:"oneof=development staging production"`
	Log         LogConfig        `yaml:"log"`
	Server      ServerConfig     `yaml:"server"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Redis       RedisConfig      `yaml:"redis"`
	Feed        FeedConfig       `yaml:"feed"`
	Learning    LearningConfig   `yaml:"learning"`

	// Strategy is sanitized rather than validated: invalid fields fall back to defaults.
	Strategy usecase.StrategyConfig `yaml:"strategy" validate:"-"`
	// Resets lists the strategy fields replaced by their default during Load.
	Resets []FieldReset `yaml:"-"`
}

var validate = validator.New()

// Default returns the configuration with every default applied.
func Default() *Config {
	var c Config
	_ = defaults.Set(&c)
	c.Strategy = usecase.DefaultStrategyConfig()
	return &c
}

// Load reads a YAML file over the defaults. An empty path loads defaults only.
// Infrastructure fields are validated; strategy fields are sanitized.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	return c, c.finalize()
}

// LoadWithEnv loads .env when present, then the YAML file, then applies
// environment overrides before validation.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv()
	return c, c.finalize()
}

func read(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Feed.Symbols = splitList(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) finalize() error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	resets, err := Sanitize(&c.Strategy, usecase.DefaultStrategyConfig())
	if err != nil {
		return fmt.Errorf("sanitize strategy: %w", err)
	}
	c.Resets = resets
	return nil
}

// Validate checks the infrastructure sections.
func (c *Config) Validate() error {
	return validate.Struct(c)
}
