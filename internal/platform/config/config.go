// Package config loads process configuration from an optional file and
// MEMBERPORTAL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "MEMBERPORTAL"

// Config is the root configuration for the server and the operator CLI.
type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      Server          `mapstructure:"server"`
	Postgres    PostgresConfig  `mapstructure:"postgres"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Kafka       KafkaConfig     `mapstructure:"kafka"`
	Auth        AuthConfig      `mapstructure:"auth"`
	Journey     JourneyConfig   `mapstructure:"journey"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig holds go-redis settings. An empty URL disables Redis.
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig holds audit publishing settings. No brokers disables Kafka.
type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	AuditTopic  string   `mapstructure:"audit_topic"`
	CreateTopic bool     `mapstructure:"create_topic"`
	Partitions  int32    `mapstructure:"partitions"`
	Replication int16    `mapstructure:"replication"`
	// ConsumerGroup is used by the consumer that copies audit events into Postgres.
	ConsumerGroup string `mapstructure:"consumer_group"`
}

type AuthConfig struct {
	JWTSigningKey string `mapstructure:"jwt_signing_key"`
	Issuer        string `mapstructure:"issuer"`
	Audience      string `mapstructure:"audience"`
	// AdminToken guards the /admin routes. Empty disables them.
	AdminToken string `mapstructure:"admin_token"`
}

// JourneyConfig selects the journey store and the expiry windows.
type JourneyConfig struct {
	Store                string `mapstructure:"store"`
	ProcessingWindowDays int    `mapstructure:"processing_window_days"`
	MinimumWindowDays    int    `mapstructure:"minimum_window_days"`
	MaximumWindowDays    int    `mapstructure:"maximum_window_days"`
	// PurgeInterval is how often the server deletes expired journeys. Zero disables the sweep.
	PurgeInterval time.Duration `mapstructure:"purge_interval"`
}

// RateLimitConfig bounds member requests per minute. Limits are shared
// through Redis when it is configured.
type RateLimitConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	ReadPerMinute  int  `mapstructure:"read_per_minute"`
	WritePerMinute int  `mapstructure:"write_per_minute"`
}

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Load reads configuration from file and env. Env var overrides use prefix
// MEMBERPORTAL_, with dots replaced by underscores (MEMBERPORTAL_SERVER_ADDR).
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_open_conns", 25)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("postgres.auto_migrate", true)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.audit_topic", "memberportal.audit")
	v.SetDefault("kafka.create_topic", true)
	v.SetDefault("kafka.partitions", 3)
	v.SetDefault("kafka.replication", 1)
	v.SetDefault("kafka.consumer_group", "memberportal-audit")
	v.SetDefault("auth.jwt_signing_key", "dev-secret-key-change-in-production")
	v.SetDefault("auth.issuer", "memberportal")
	v.SetDefault("auth.audience", "memberportal-api")
	v.SetDefault("auth.admin_token", "")
	v.SetDefault("journey.store", StoreMemory)
	v.SetDefault("journey.processing_window_days", 37)
	v.SetDefault("journey.minimum_window_days", 7)
	v.SetDefault("journey.maximum_window_days", 90)
	v.SetDefault("journey.purge_interval", time.Hour)
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.read_per_minute", 120)
	v.SetDefault("rate_limit.write_per_minute", 60)

	v.SetConfigType("yaml")
	if path := os.Getenv(envPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("memberportal")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks cross-field rules viper cannot express.
func (c Config) Validate() error {
	switch c.Journey.Store {
	case StoreMemory:
	case StorePostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("journey store %q requires postgres.dsn", c.Journey.Store)
		}
	case StoreRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("journey store %q requires redis.url", c.Journey.Store)
		}
	default:
		return fmt.Errorf("unknown journey store %q", c.Journey.Store)
	}
	j := c.Journey
	if j.ProcessingWindowDays < 0 || j.MinimumWindowDays < 0 || j.MaximumWindowDays < j.MinimumWindowDays {
		return fmt.Errorf("journey expiry windows are inconsistent: processing=%d minimum=%d maximum=%d",
			j.ProcessingWindowDays, j.MinimumWindowDays, j.MaximumWindowDays)
	}
	if j.PurgeInterval < 0 {
		return fmt.Errorf("journey.purge_interval cannot be negative")
	}
	if c.RateLimit.ReadPerMinute < 0 || c.RateLimit.WritePerMinute < 0 {
		return fmt.Errorf("rate limits cannot be negative")
	}
	if c.Auth.JWTSigningKey == "" {
		return fmt.Errorf("auth.jwt_signing_key is required")
	}
	return nil
}

// IsProduction reports whether the process runs with production defaults.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}
