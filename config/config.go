package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Crypto   CryptoConfig   `mapstructure:"crypto"`
	Log      LogConfig      `mapstructure:"log"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Payout   PayoutConfig   `mapstructure:"payout"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres, memory
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Disabled bool   `mapstructure:"disabled"` // run without rate limiting, dedup and the sweep lease
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type CryptoConfig struct {
	MasterKey string `mapstructure:"master_key"` // hex-encoded, at least 32 bytes
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// LedgerConfig tunes wallet creation and lock contention handling.
type LedgerConfig struct {
	DefaultCurrency  string        `mapstructure:"default_currency"`
	DefaultMinPayout string        `mapstructure:"default_min_payout"` // decimal, in major units
	LockRetries      int           `mapstructure:"lock_retries"`
	LockRetryBackoff time.Duration `mapstructure:"lock_retry_backoff"`
	IdempotencyTTL   time.Duration `mapstructure:"idempotency_ttl"`
}

// PayoutConfig tunes gateway dispatch and the stuck-payout sweep.
type PayoutConfig struct {
	GatewayTimeout         time.Duration `mapstructure:"gateway_timeout"`
	MaxAttempts            int           `mapstructure:"max_attempts"`
	RetryBackoff           time.Duration `mapstructure:"retry_backoff"`
	SweepInterval          time.Duration `mapstructure:"sweep_interval"`
	StaleAfter             time.Duration `mapstructure:"stale_after"`
	SweepBatch             int           `mapstructure:"sweep_batch"`
	RequireVerifiedAccount bool          `mapstructure:"require_verified_account"`
	EventDedupTTL          time.Duration `mapstructure:"event_dedup_ttl"`
}

type GatewayConfig struct {
	DefaultProvider string         `mapstructure:"default_provider"`
	RateLimit       float64        `mapstructure:"rate_limit"` // requests per second per provider
	Burst           int            `mapstructure:"burst"`
	Midtrans        MidtransConfig `mapstructure:"midtrans"`
	CardPay         CardPayConfig  `mapstructure:"cardpay"`
}

type MidtransConfig struct {
	Env             string `mapstructure:"env"` // sandbox, production
	ServerKey       string `mapstructure:"server_key"`
	IrisKey         string `mapstructure:"iris_key"`
	IrisMerchantKey string `mapstructure:"iris_merchant_key"` // webhook signature secret
}

// Enabled reports whether enough credentials are present to register the adapter.
func (m MidtransConfig) Enabled() bool {
	return m.ServerKey != "" && m.IrisKey != ""
}

type CardPayConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Secret  string `mapstructure:"secret"`
}

// Enabled reports whether enough credentials are present to register the adapter.
func (c CardPayConfig) Enabled() bool {
	return c.BaseURL != "" && c.APIKey != "" && c.Secret != ""
}

type NotifyConfig struct {
	URL    string `mapstructure:"url"`
	Secret string `mapstructure:"secret"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: TTL_ (TrueTab Ledger).
// Nested keys use underscore: TTL_DATABASE_HOST, TTL_PAYOUT_MAX_ATTEMPTS, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "truetab")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.lock_timeout", "3s")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.disabled", false)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "truetab-api")
	v.SetDefault("crypto.master_key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("ledger.default_currency", "USD")
	v.SetDefault("ledger.default_min_payout", "10")
	v.SetDefault("ledger.lock_retries", 3)
	v.SetDefault("ledger.lock_retry_backoff", "50ms")
	v.SetDefault("ledger.idempotency_ttl", "24h")
	v.SetDefault("payout.gateway_timeout", "15s")
	v.SetDefault("payout.max_attempts", 3)
	v.SetDefault("payout.retry_backoff", "2s")
	v.SetDefault("payout.sweep_interval", "5m")
	v.SetDefault("payout.stale_after", "30m")
	v.SetDefault("payout.sweep_batch", 100)
	v.SetDefault("payout.require_verified_account", false)
	v.SetDefault("payout.event_dedup_ttl", "168h")
	v.SetDefault("gateway.default_provider", "cardpay")
	v.SetDefault("gateway.rate_limit", 10)
	v.SetDefault("gateway.burst", 5)
	v.SetDefault("gateway.midtrans.env", "sandbox")
	v.SetDefault("gateway.midtrans.server_key", "")
	v.SetDefault("gateway.midtrans.iris_key", "")
	v.SetDefault("gateway.midtrans.iris_merchant_key", "")
	v.SetDefault("gateway.cardpay.base_url", "")
	v.SetDefault("gateway.cardpay.api_key", "")
	v.SetDefault("gateway.cardpay.secret", "")
	v.SetDefault("notify.url", "")
	v.SetDefault("notify.secret", "")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: TTL_DATABASE_HOST -> database.host
	v.SetEnvPrefix("TTL")
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
