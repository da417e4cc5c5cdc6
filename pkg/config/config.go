package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend types.
const (
	BackendMemory     = "memory"
	BackendClickHouse = "clickhouse"
	BackendPostgres   = "postgres"
)

type Config struct {
	Environment string           `yaml:"environment" env:"ENVIRONMENT" default:"development" validate:"required"`
	Log         LogConfig        `yaml:"log" envPrefix:"LOG_"`
	Server      ServerConfig     `yaml:"server" envPrefix:"SERVER_"`
	Metrics     MetricsConfig    `yaml:"metrics" envPrefix:"METRICS_"`
	Backend     BackendConfig    `yaml:"backend"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse" envPrefix:"CLICKHOUSE_"`
	Postgres    PostgresConfig   `yaml:"postgres" envPrefix:"POSTGRES_"`
	Redis       RedisConfig      `yaml:"redis" envPrefix:"REDIS_"`
	Kafka       KafkaConfig      `yaml:"kafka" envPrefix:"KAFKA_"`
	Provider    ProviderConfig   `yaml:"provider" envPrefix:"PROVIDER_"`
	Sync        SyncConfig       `yaml:"sync" envPrefix:"SYNC_"`
	Cache       CacheConfig      `yaml:"cache" envPrefix:"CACHE_"`
}

type LogConfig struct {
	Level      string `yaml:"level" env:"LEVEL" default:"info" validate:"oneof=debug info warn error fatal panic"`
	Format     string `yaml:"format" env:"FORMAT" default:"json" validate:"oneof=json console"`
	Output     string `yaml:"output" env:"OUTPUT" default:"stdout"`
	TimeFormat string `yaml:"time_format" env:"TIME_FORMAT"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT" default:"8080" validate:"gt=0,lt=65536"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" default:"15s"`
	SlowThreshold   time.Duration `yaml:"slow_threshold" env:"SLOW_THRESHOLD" default:"2s"`

	// RateLimit is the sustained number of sync requests per second per client.
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT" default:"1" validate:"gte=0"`
	RateBurst float64 `yaml:"rate_burst" env:"RATE_BURST" default:"5" validate:"gte=0"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED" default:"true"`
	Path    string `yaml:"path" env:"PATH" default:"/metrics"`
}

type BackendConfig struct {
	Type string `yaml:"type" env:"BACKEND" default:"memory" validate:"oneof=memory clickhouse postgres"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host" env:"HOST"`
	Port             int           `yaml:"port" env:"PORT" default:"9000"`
	Database         string        `yaml:"database" env:"DATABASE" default:"default"`
	User             string        `yaml:"user" env:"USER" default:"default"`
	Password         string        `yaml:"password" env:"PASSWORD"`
	UseHTTP          bool          `yaml:"use_http" env:"USE_HTTP"`
	AsyncInsert      bool          `yaml:"async_insert" env:"ASYNC_INSERT"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert" env:"WAIT_FOR_ASYNC_INSERT"`
	DialTimeout      time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" default:"30s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" env:"MAX_EXECUTION_TIME"`
}

type PostgresConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT" default:"5432"`
	Database        string        `yaml:"database" env:"DATABASE" default:"candlestick"`
	User            string        `yaml:"user" env:"USER" default:"postgres"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE" default:"disable"`
	MaxConns        int32         `yaml:"max_conns" env:"MAX_CONNS" default:"10"`
	MinConns        int32         `yaml:"min_conns" env:"MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"MAX_CONN_LIFETIME" default:"1h"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT" default:"5s"`
}

type RedisConfig struct {
	Host     string `yaml:"host" env:"HOST" default:"localhost"`
	Port     int    `yaml:"port" env:"PORT" default:"6379"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	PoolSize int    `yaml:"pool_size" env:"POOL_SIZE" default:"10"`
	Prefix   string `yaml:"prefix" env:"PREFIX" default:"candlestick"`
}

type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled" env:"ENABLED"`
	Brokers      []string      `yaml:"brokers" env:"BROKERS" envSeparator:","`
	Topic        string        `yaml:"topic" env:"TOPIC" default:"candlestick.series"`
	RequiredAcks int           `yaml:"required_acks" env:"REQUIRED_ACKS" default:"-1"`
	Compression  string        `yaml:"compression" env:"COMPRESSION" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
	MaxAttempts  int           `yaml:"max_attempts" env:"MAX_ATTEMPTS" default:"3"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" default:"10s"`
	AutoCreate   bool          `yaml:"auto_create_topic" env:"AUTO_CREATE_TOPIC"`
}

type ProviderConfig struct {
	BaseURL   string        `yaml:"base_url" env:"BASE_URL" default:"https://query2.finance.yahoo.com" validate:"url"`
	Timeout   time.Duration `yaml:"timeout" env:"TIMEOUT" default:"30s"`
	UserAgent string        `yaml:"user_agent" env:"USER_AGENT"`
}

type SyncConfig struct {
	LockTTL time.Duration `yaml:"lock_ttl" env:"LOCK_TTL" default:"10m"`
}

type CacheConfig struct {
	// Type selects the cache used for bar responses and series locks.
	Type    string        `yaml:"type" env:"TYPE" default:"memory" validate:"oneof=memory redis"`
	BarsTTL time.Duration `yaml:"bars_ttl" env:"BARS_TTL" default:"1m"`
	MaxSize int           `yaml:"max_size" env:"MAX_SIZE" default:"10000"`

	// Sweep period of expired entries in the memory cache.
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL" default:"1m"`
}

// Default returns the configuration with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file. Values missing from the
// file keep their defaults.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML, then a .env file if present, and
// overrides with environment variables. An empty path skips the YAML file.
func LoadWithEnv(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := env.ParseWithOptions(c, env.Options{Prefix: "CANDLESTICK_"}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func read(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
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

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed %q (got %v)", strings.ToLower(fe.Namespace()), fe.Tag(), fe.Value())
		}
		return err
	}

	switch c.Backend.Type {
	case BackendClickHouse:
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required for backend %q", c.Backend.Type)
		}
	case BackendPostgres:
		if c.Postgres.Host == "" {
			return fmt.Errorf("postgres.host is required for backend %q", c.Backend.Type)
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}
