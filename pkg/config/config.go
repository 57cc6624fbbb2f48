package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string           `yaml:"environment"`
	Server      ServerConfig     `yaml:"server"`
	Logger      LoggerConfig     `yaml:"logger"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Prediction  PredictionConfig `yaml:"prediction"`
	Models      ModelsConfig     `yaml:"models"`
	Cache       CacheConfig      `yaml:"cache"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	Recorder    RecorderConfig   `yaml:"recorder"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	SQLite      SQLiteConfig     `yaml:"sqlite"`
	S3          S3Config         `yaml:"s3"`
	RateLimit   RateLimitConfig  `yaml:"rate_limit"`
	WebSocket   WebSocketConfig  `yaml:"websocket"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	SlowRequest     time.Duration `yaml:"slow_request"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type LoggerConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days"`
	MaxBackups int    `yaml:"max_backups"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// RangeConfig is the raw [min, max] of one feature.
type RangeConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

type PredictionConfig struct {
	NormMin          float64                `yaml:"norm_min"`
	NormMax          float64                `yaml:"norm_max"`
	Symbols          []string               `yaml:"symbols"`
	Features         []string               `yaml:"features"`
	Ranges           map[string]RangeConfig `yaml:"ranges"`
	CompletionPolicy string                 `yaml:"completion_policy"`

	// Defaults override per-feature completion values, in the policy's working space.
	Defaults       map[string]float64 `yaml:"defaults"`
	PricePrecision int32              `yaml:"price_precision"`
	Timeout        time.Duration      `yaml:"timeout"`
}

type ModelsConfig struct {
	Source         string            `yaml:"source"` // file, s3, http
	Dir            string            `yaml:"dir"`
	Paths          map[string]string `yaml:"paths"`
	ReloadSchedule string            `yaml:"reload_schedule"`
	HTTP           struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"http"`
}

type CacheConfig struct {
	Backend    string        `yaml:"backend"` // none, memory, redis, layered
	TTL        time.Duration `yaml:"ttl"`
	MemorySize int           `yaml:"memory_size"`
	Redis      struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`
}

type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	Topic        string   `yaml:"topic"`
	RequiredAcks int      `yaml:"required_acks"`
	Compression  string   `yaml:"compression"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts"`
		Linger       time.Duration `yaml:"linger"`
		BatchBytes   int           `yaml:"batch_bytes"`
		BatchSize    int           `yaml:"batch_size"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
}

type RecorderConfig struct {
	Backend string `yaml:"backend"` // none, clickhouse, sqlite
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	Database         string        `yaml:"database"`
	Table            string        `yaml:"table"`
	User             string        `yaml:"user"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type S3Config struct {
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

type WebSocketConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
}

// Load reads, parses and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML, applies environment overrides, then validates.
func LoadWithEnv(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Parse decodes YAML bytes and fills defaults without validating.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.setDefaults()
	return &c, nil
}

func parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := getenv("SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SERVER_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
	if v := getenv("COMPLETION_POLICY"); v != "" {
		c.Prediction.CompletionPolicy = v
	}
	if v := getenv("MODELS_SOURCE"); v != "" {
		c.Models.Source = v
	}
	if v := getenv("MODELS_DIR"); v != "" {
		c.Models.Dir = v
	}
	if v := getenv("CACHE_BACKEND"); v != "" {
		c.Cache.Backend = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Cache.Redis.Password = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := getenv("RECORDER_BACKEND"); v != "" {
		c.Recorder.Backend = v
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("AWS_ACCESS_KEY_ID"); v != "" {
		c.S3.AccessKeyID = v
	}
	if v := getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		c.S3.SecretAccessKey = v
	}
	if v := getenv("S3_BUCKET"); v != "" {
		c.S3.Bucket = v
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Prediction.NormMin == 0 && c.Prediction.NormMax == 0 {
		c.Prediction.NormMin, c.Prediction.NormMax = 1, 10
	}
	if c.Prediction.PricePrecision == 0 {
		c.Prediction.PricePrecision = 2
	}
	if c.Prediction.Timeout == 0 {
		c.Prediction.Timeout = 5 * time.Second
	}
	if c.Models.Source == "" {
		c.Models.Source = "file"
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "none"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = time.Minute
	}
	if c.Recorder.Backend == "" {
		c.Recorder.Backend = "none"
	}
	if c.ClickHouse.Table == "" {
		c.ClickHouse.Table = "predictions"
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 20
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 40
	}
	if c.WebSocket.BufferSize == 0 {
		c.WebSocket.BufferSize = 64
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if err := c.Prediction.validate(); err != nil {
		return err
	}
	if err := c.Models.validate(c.Prediction.Symbols); err != nil {
		return err
	}

	switch c.Models.Source {
	case "s3":
		if c.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required when models.source is 's3'")
		}
	}

	switch c.Cache.Backend {
	case "none", "memory":
	case "redis", "layered":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for cache.backend '%s'", c.Cache.Backend)
		}
	default:
		return fmt.Errorf("cache.backend must be one of none, memory, redis, layered, got '%s'", c.Cache.Backend)
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required when kafka is enabled")
		}
	}

	switch c.Recorder.Backend {
	case "none":
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required for recorder.backend 'clickhouse'")
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required for recorder.backend 'sqlite'")
		}
	default:
		return fmt.Errorf("recorder.backend must be one of none, clickhouse, sqlite, got '%s'", c.Recorder.Backend)
	}

	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate_limit.rps and rate_limit.burst must be positive")
	}
	return nil
}

// Range checks live in the forecast package; this only rejects obviously broken sections.
func (p *PredictionConfig) validate() error {
	if len(p.Symbols) == 0 {
		return fmt.Errorf("prediction.symbols cannot be empty")
	}
	if p.NormMin >= p.NormMax {
		return fmt.Errorf("prediction.norm_min (%v) must be below norm_max (%v)", p.NormMin, p.NormMax)
	}
	if p.PricePrecision < 0 {
		return fmt.Errorf("prediction.price_precision cannot be negative")
	}
	return nil
}

func (m *ModelsConfig) validate(symbols []string) error {
	switch m.Source {
	case "file", "s3":
		for _, s := range symbols {
			if _, ok := m.Paths[strings.ToUpper(s)]; !ok {
				return fmt.Errorf("models.paths has no entry for symbol %s", s)
			}
		}
	case "http":
		if m.HTTP.BaseURL == "" {
			return fmt.Errorf("models.http.base_url is required when models.source is 'http'")
		}
	default:
		return fmt.Errorf("models.source must be one of file, s3, http, got '%s'", m.Source)
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
