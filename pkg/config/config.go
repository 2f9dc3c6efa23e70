package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Log         LogConfig        `yaml:"log"`
	Server      ServerConfig     `yaml:"server"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	MarketData  MarketDataConfig `yaml:"market_data"`
	Cache       CacheConfig      `yaml:"cache"`
	Signals     SignalsConfig    `yaml:"signals"`
	Scheduler   SchedulerConfig  `yaml:"scheduler"`
	Stream      StreamConfig     `yaml:"stream"`
	Risk        RiskConfig       `yaml:"risk"`
	Store       StoreConfig      `yaml:"store"`
	Postgres    PostgresConfig   `yaml:"postgres"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	Redis       RedisConfig      `yaml:"redis"`
	Queue       QueueConfig      `yaml:"queue"`
	Telegram    TelegramConfig   `yaml:"telegram"`
}

type LogConfig struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output     string `yaml:"output" default:"stdout"`
	TimeFormat string `yaml:"time_format"`
	Digest     struct {
		Enabled         bool          `yaml:"enabled"`
		Interval        time.Duration `yaml:"interval" default:"1m"`
		CountThreshold  int           `yaml:"count_threshold" default:"100"`
		IncludeWarnings bool          `yaml:"include_warnings"`
	} `yaml:"digest"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	AllowedOrigins  []string      `yaml:"allowed_origins" default:"[\"*\"]"`
	SlowRequest     time.Duration `yaml:"slow_request" default:"1s"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type MarketDataConfig struct {
	Provider     string        `yaml:"provider" default:"bridge" validate:"oneof=bridge clickhouse"`
	ConnectionID string        `yaml:"connection_id" default:"default"`
	Timeout      time.Duration `yaml:"timeout" default:"10s"`
	CacheTTL     time.Duration `yaml:"cache_ttl" default:"60s"`
	Retry        struct {
		Attempts  int           `yaml:"attempts" default:"3" validate:"gte=1,lte=10"`
		BaseDelay time.Duration `yaml:"base_delay" default:"1s"`
	} `yaml:"retry"`
	Bridge struct {
		BaseURL string `yaml:"base_url" default:"http://localhost:9100"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"bridge"`
}

type CacheConfig struct {
	Backend         string        `yaml:"backend" default:"memory" validate:"oneof=memory redis layered"`
	MaxSize         int           `yaml:"max_size" default:"10000"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" default:"1m"`
	Prefix          string        `yaml:"prefix" default:"signaldesk:cache"`
}

type SignalsConfig struct {
	Symbols             []string      `yaml:"symbols" validate:"min=1,dive,required"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold" default:"0.7" validate:"gt=0,lte=1"`
	RiskPercentage      float64       `yaml:"risk_percentage" default:"0.02" validate:"gt=0,lt=1"`
	RewardRatio         float64       `yaml:"reward_ratio" default:"2" validate:"gt=0"`
	StopBasis           string        `yaml:"stop_basis" default:"price" validate:"oneof=price atr"`
	ATRPeriod           int           `yaml:"atr_period" default:"14" validate:"gte=1"`
	ATRMultiplier       float64       `yaml:"atr_multiplier" default:"50" validate:"gt=0"`
	Lookback            int           `yaml:"lookback" default:"300" validate:"gte=60"`
	MinInterval         time.Duration `yaml:"min_interval" default:"5m"`
	Concurrency         int           `yaml:"concurrency" default:"8" validate:"gte=1"`
	Strategies          []string      `yaml:"strategies"`
}

type SchedulerConfig struct {
	Enabled       bool          `yaml:"enabled" default:"true"`
	Timeframes    []string      `yaml:"timeframes" default:"[\"1m\",\"5m\",\"15m\"]"`
	SweepInterval time.Duration `yaml:"sweep_interval" default:"1m"`
	RunTimeout    time.Duration `yaml:"run_timeout" default:"4m"`
}

type StreamConfig struct {
	PushInterval   time.Duration `yaml:"push_interval" default:"5s"`
	Timeframes     []string      `yaml:"timeframes" default:"[\"15m\",\"1h\",\"4h\"]"`
	WriteTimeout   time.Duration `yaml:"write_timeout" default:"10s"`
	PongTimeout    time.Duration `yaml:"pong_timeout" default:"60s"`
	MaxMessageSize int64         `yaml:"max_message_size" default:"4096"`
	RateLimit      struct {
		Capacity float64 `yaml:"capacity" default:"20"`
		Refill   float64 `yaml:"refill_per_sec" default:"5"`
	} `yaml:"rate_limit"`
}

type RiskConfig struct {
	MaxPositions int     `yaml:"max_positions" default:"10" validate:"gte=1"`
	RiskPerTrade float64 `yaml:"risk_per_trade" default:"0.02" validate:"gt=0,lt=1"`
}

type StoreConfig struct {
	Backend string `yaml:"backend" default:"memory" validate:"oneof=memory postgres"`
}

type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns" default:"10"`
	MinConns        int32         `yaml:"min_conns" default:"1"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" default:"30m"`
	Migrate         bool          `yaml:"migrate" default:"true"`
}

type ClickHouseConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"signaldesk"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
}

type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers" default:"[\"localhost:9092\"]"`
	SignalTopic  string   `yaml:"signal_topic" default:"signals.events"`
	CandleTopic  string   `yaml:"candle_topic" default:"candles"`
	RequiredAcks int      `yaml:"required_acks" default:"-1"`
	Compression  string   `yaml:"compression" default:"snappy" validate:"oneof=gzip snappy lz4 zstd none"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		Linger       time.Duration `yaml:"linger" default:"50ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		Enabled    bool          `yaml:"enabled"`
		GroupID    string        `yaml:"group_id" default:"signaldesk-candles"`
		StartAt    string        `yaml:"start_offset" default:"earliest" validate:"oneof=earliest latest"`
		Workers    int           `yaml:"workers" default:"4"`
		BufferSize int           `yaml:"buffer_size" default:"1000"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		DLQTopic   string        `yaml:"dlq_topic" default:"candles.dlq"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
	} `yaml:"consumer"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size" default:"20"`
}

type QueueConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Workers    int           `yaml:"workers" default:"4"`
	RetryLimit int           `yaml:"retry_limit" default:"3"`
	RetryDelay time.Duration `yaml:"retry_delay" default:"5s"`
	JobTimeout time.Duration `yaml:"job_timeout" default:"30s"`
	KeyPrefix  string        `yaml:"key_prefix" default:"signaldesk:queue"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  int64  `yaml:"chat_id"`
}

// DefaultSymbols is the tradable universe: forex majors, crypto, US stocks, indices and metals/energy.
var DefaultSymbols = []string{
	"EURUSD", "USDJPY", "GBPUSD", "USDCHF", "USDCAD", "AUDUSD", "NZDUSD",
	"BTCUSD", "ETHUSD", "SOLUSD", "XRPUSD", "DOGEUSD", "BNBUSD", "AVAXUSD",
	"TSLA", "AAPL", "COIN", "GOOGL", "FB", "AMZN", "NFLX", "PFE",
	"US30", "US500", "DE40", "UK100", "JP225", "NAS100",
	"XAUUSD", "XAGUSD", "USOIL", "UKOIL", "XPTUSD", "XPDUSD",
}

var knownTimeframes = map[string]bool{"1m": true, "5m": true, "15m": true, "1h": true, "4h": true, "1d": true, "daily": true}

// Default returns a config with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	c.Signals.Symbols = append([]string(nil), DefaultSymbols...)
	return &c, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("SIGNALDESK_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("SIGNALDESK_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("SIGNALDESK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := getenv("SIGNALDESK_BRIDGE_URL"); v != "" {
		c.MarketData.Bridge.BaseURL = v
	}
	if v := getenv("SIGNALDESK_BRIDGE_API_KEY"); v != "" {
		c.MarketData.Bridge.APIKey = v
	}
	if v := getenv("SIGNALDESK_REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := getenv("SYMBOLS"); v != "" {
		c.Signals.Symbols = splitList(v)
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := getenv("TELEGRAM_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	for _, tf := range c.Scheduler.Timeframes {
		if !knownTimeframes[tf] {
			return fmt.Errorf("scheduler.timeframes: unknown timeframe %q", tf)
		}
	}
	for _, tf := range c.Stream.Timeframes {
		if !knownTimeframes[tf] {
			return fmt.Errorf("stream.timeframes: unknown timeframe %q", tf)
		}
	}
	if c.Store.Backend == "postgres" && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required when store.backend is postgres")
	}
	if c.MarketData.Provider == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("clickhouse must be enabled for market_data.provider clickhouse")
	}
	if (c.Cache.Backend == "redis" || c.Cache.Backend == "layered" || c.Queue.Enabled) && !c.Redis.Enabled {
		return fmt.Errorf("redis must be enabled for cache backend %q or the job queue", c.Cache.Backend)
	}
	if c.Kafka.Consumer.Enabled && !c.ClickHouse.Enabled {
		return fmt.Errorf("clickhouse must be enabled to ingest candles from kafka")
	}
	if c.Telegram.Enabled && (c.Telegram.Token == "" || c.Telegram.ChatID == 0) {
		return fmt.Errorf("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	return nil
}
