package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Pix       PixConfig       `mapstructure:"pix"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// PixConfig carries the transfer limits and coordination knobs.
type PixConfig struct {
	MaxAmountCents          int64         `mapstructure:"max_amount_cents"`
	WalletLeaseTimeout      time.Duration `mapstructure:"wallet_lease_timeout"`
	TransferLeaseTimeout    time.Duration `mapstructure:"transfer_lease_timeout"`
	IdempotencyLeaseTimeout time.Duration `mapstructure:"idempotency_lease_timeout"`
	RetryAttempts           int           `mapstructure:"retry_attempts"`
	RetryDelay              time.Duration `mapstructure:"retry_delay"`
	IdempotencyRecordTTL    time.Duration `mapstructure:"idempotency_record_ttl"`
	IdempotencyCacheTTL     time.Duration `mapstructure:"idempotency_cache_ttl"`
	IdempotencyCacheSize    int           `mapstructure:"idempotency_cache_size"`
	IdempotencyMaxLocks     int           `mapstructure:"idempotency_max_locks"`
	TransferStateTTL        time.Duration `mapstructure:"transfer_state_ttl"`
	MaxTransferStates       int           `mapstructure:"max_transfer_states"`
	MaxWalletLocks          int           `mapstructure:"max_wallet_locks"`
	CleanupInterval         time.Duration `mapstructure:"cleanup_interval"`
}

type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: PIX_.
// Nested keys use underscore: PIX_DATABASE_HOST, PIX_PIX_MAX_AMOUNT_CENTS, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "pix_wallet")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.conn_max_idle_time", "15m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("pix.max_amount_cents", 2_000_000)
	v.SetDefault("pix.wallet_lease_timeout", "10s")
	v.SetDefault("pix.transfer_lease_timeout", "5s")
	v.SetDefault("pix.idempotency_lease_timeout", "5s")
	v.SetDefault("pix.retry_attempts", 3)
	v.SetDefault("pix.retry_delay", "100ms")
	v.SetDefault("pix.idempotency_record_ttl", "24h")
	v.SetDefault("pix.idempotency_cache_ttl", "30m")
	v.SetDefault("pix.idempotency_cache_size", 5000)
	v.SetDefault("pix.idempotency_max_locks", 1000)
	v.SetDefault("pix.transfer_state_ttl", "60m")
	v.SetDefault("pix.max_transfer_states", 10000)
	v.SetDefault("pix.max_wallet_locks", 1000)
	v.SetDefault("pix.cleanup_interval", "15m")
	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: PIX_DATABASE_HOST -> database.host
	v.SetEnvPrefix("PIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
