package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	LogLevel   string           `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Detector   DetectorConfig   `mapstructure:"detector"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	History    HistoryConfig    `mapstructure:"history"`
	Bus        BusConfig        `mapstructure:"bus"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
}

// FeedConfig selects the market data feed. An empty URL picks the
// exchange's public endpoint.
type FeedConfig struct {
	Exchange         string        `mapstructure:"exchange" validate:"oneof=binance kraken stub"`
	URL              string        `mapstructure:"url"`
	Pairs            []string      `mapstructure:"pairs"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" validate:"gt=0"`
	Buffer           int           `mapstructure:"buffer" validate:"gt=0"`
	StubInterval     time.Duration `mapstructure:"stub_interval" validate:"gt=0"`
}

// DetectorConfig holds the detection thresholds and timing constants.
type DetectorConfig struct {
	WindowSize         int           `mapstructure:"window_size" validate:"gt=0"`
	MinNotional        float64       `mapstructure:"min_notional" validate:"gte=0"`
	MinAvgNotional     float64       `mapstructure:"min_avg_notional" validate:"gte=0"`
	DormantAvgNotional float64       `mapstructure:"dormant_avg_notional" validate:"gte=0"`
	DormantRatio       float64       `mapstructure:"dormant_ratio" validate:"gt=0"`
	SpikeRatio         float64       `mapstructure:"spike_ratio" validate:"gt=0"`
	MaxPriceChange     float64       `mapstructure:"max_price_change" validate:"gt=0"`
	Cooldown           time.Duration `mapstructure:"cooldown" validate:"gte=0"`
	UpdateThrottle     time.Duration `mapstructure:"update_throttle" validate:"gte=0"`
	UpdateWindow       time.Duration `mapstructure:"update_window" validate:"gte=0"`
}

// EnrichmentConfig defines the market-context lookups made for each signal.
type EnrichmentConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	BaseURL         string        `mapstructure:"base_url" validate:"required_if=Enabled true"`
	DepthLimit      int           `mapstructure:"depth_limit" validate:"gt=0"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"gt=0"`
	StrongWallRatio float64       `mapstructure:"strong_wall_ratio" validate:"gt=0"`
	WhaleNotional   float64       `mapstructure:"whale_notional" validate:"gte=0"`
}

// HistoryConfig defines the outcome ledger settings.
type HistoryConfig struct {
	File         string        `mapstructure:"file" validate:"required"`
	Interval     time.Duration `mapstructure:"interval" validate:"gt=0"`
	RecentWindow time.Duration `mapstructure:"recent_window" validate:"gt=0"`
	WinThreshold float64       `mapstructure:"win_threshold" validate:"gt=0"`
}

// BusConfig sizes the broadcast bus.
type BusConfig struct {
	Capacity int `mapstructure:"capacity" validate:"gt=0"`
}

// ServerConfig defines the subscriber-facing HTTP server.
type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

// DatabaseConfig defines the database connection settings.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host" validate:"required_if=Enabled true"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// DSN returns the pgx connection string.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.DBName,
	}
	return u.String()
}

// RedisConfig defines the Redis sink.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	URL          string        `mapstructure:"url" validate:"required_if=Enabled true"`
	Password     string        `mapstructure:"password"`
	StatsTTL     time.Duration `mapstructure:"stats_ttl"`
	Stream       string        `mapstructure:"stream"`
	StreamMaxLen int64         `mapstructure:"stream_max_len"`
}

// KafkaConfig defines the Kafka sink.
type KafkaConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Brokers  []string `mapstructure:"brokers" validate:"required_if=Enabled true"`
	Topic    string   `mapstructure:"topic"`
	ClientID string   `mapstructure:"client_id"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("feed.exchange", "binance")
	v.SetDefault("feed.url", "")
	v.SetDefault("feed.pairs", []string{})
	v.SetDefault("feed.handshake_timeout", "10s")
	v.SetDefault("feed.buffer", 64)
	v.SetDefault("feed.stub_interval", "1s")

	v.SetDefault("detector.window_size", 60)
	v.SetDefault("detector.min_notional", 10_000.0)
	v.SetDefault("detector.min_avg_notional", 50_000.0)
	v.SetDefault("detector.dormant_avg_notional", 100_000.0)
	v.SetDefault("detector.dormant_ratio", 5.0)
	v.SetDefault("detector.spike_ratio", 3.0)
	v.SetDefault("detector.max_price_change", 0.008)
	v.SetDefault("detector.cooldown", "30m")
	v.SetDefault("detector.update_throttle", "2s")
	v.SetDefault("detector.update_window", "60m")

	v.SetDefault("enrichment.enabled", true)
	v.SetDefault("enrichment.base_url", "https://fapi.binance.com")
	v.SetDefault("enrichment.depth_limit", 20)
	v.SetDefault("enrichment.timeout", "10s")
	v.SetDefault("enrichment.strong_wall_ratio", 1.2)
	v.SetDefault("enrichment.whale_notional", 5_000_000.0)

	v.SetDefault("history.file", "history.json")
	v.SetDefault("history.interval", "60s")
	v.SetDefault("history.recent_window", "60m")
	v.SetDefault("history.win_threshold", 0.01)

	v.SetDefault("bus.capacity", 100)

	v.SetDefault("server.addr", ":3000")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "watcher")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "watcher")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.stats_ttl", "5m")
	v.SetDefault("redis.stream", "watcher:signals")
	v.SetDefault("redis.stream_max_len", 10_000)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "watcher.signals")
	v.SetDefault("kafka.client_id", "watcher")
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and environment apply.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("read config: %w", err)
		}
		err = nil
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("decode config: %w", err)
	}

	err = config.Validate()
	return
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
