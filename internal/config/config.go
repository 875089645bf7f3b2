// Package config defines the TOML configuration schema, defaults, and
// validation for the kimpbot worker.
package config

import (
	"fmt"
	"strings"
	"time"
)

// duration wraps time.Duration so TOML values like "30s" parse directly.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// PostgresConfig holds database connection settings.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds lock/cache backend settings.
type RedisConfig struct {
	Addr             string   `toml:"addr"`
	Password         string   `toml:"password"`
	DB               int      `toml:"db"`
	PoolSize         int      `toml:"pool_size"`
	MaxRetries       int      `toml:"max_retries"`
	TLSEnabled       bool     `toml:"tls_enabled"`
	SettingsTTL      duration `toml:"settings_ttl"`
	UseExecutionLock bool     `toml:"use_execution_lock"`
}

// S3Config holds cold-storage settings. Archival is disabled when Bucket is
// empty.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds operator alert settings.
type NotifyConfig struct {
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	Events         []string `toml:"events"`
}

// EngineConfig tunes the cycle engine's scheduling and retry policy.
type EngineConfig struct {
	WorkerID           string   `toml:"worker_id"`
	ClaimInterval      duration `toml:"claim_interval"`
	RetrySweepInterval duration `toml:"retry_sweep_interval"`
	DeadLetterInterval duration `toml:"dead_letter_interval"`
	ArchiveInterval    duration `toml:"archive_interval"`
	LockTimeout        duration `toml:"lock_timeout"`
	MaxRetries         int      `toml:"max_retries"`
	RetryBaseDelay     duration `toml:"retry_base_delay"`
	ArchiveRetention   duration `toml:"archive_retention"`
}

// TradingConfig holds venue-side settings used by the execution strategies.
type TradingConfig struct {
	Symbol             string  `toml:"symbol"`
	InvestmentKRW      float64 `toml:"investment_krw"`
	UpbitDepositAddr   string  `toml:"upbit_deposit_address"`
	BinanceDepositAddr string  `toml:"binance_deposit_address"`
}

// Config is the root configuration.
type Config struct {
	Mode     string `toml:"mode"`
	LogLevel string `toml:"log_level"`
	// RecoverCycleID selects the dead-letter cycle to resurrect in recover
	// mode. Empty means list-only.
	RecoverCycleID string `toml:"recover_cycle_id"`

	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	Engine   EngineConfig   `toml:"engine"`
	Trading  TradingConfig  `toml:"trading"`
}

// Defaults returns the built-in configuration a TOML file is merged over.
func Defaults() Config {
	return Config{
		Mode:     "worker",
		LogLevel: "info",
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "kimpbot",
			User:          "kimpbot",
			SSLMode:       "disable",
			PoolMaxConns:  8,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:             "localhost:6379",
			PoolSize:         8,
			MaxRetries:       3,
			SettingsTTL:      duration{10 * time.Second},
			UseExecutionLock: true,
		},
		Engine: EngineConfig{
			ClaimInterval:      duration{10 * time.Second},
			RetrySweepInterval: duration{time.Minute},
			DeadLetterInterval: duration{time.Hour},
			ArchiveInterval:    duration{24 * time.Hour},
			LockTimeout:        duration{10 * time.Minute},
			MaxRetries:         5,
			RetryBaseDelay:     duration{10 * time.Minute},
			ArchiveRetention:   duration{30 * 24 * time.Hour},
		},
		Trading: TradingConfig{
			Symbol:        "xrp",
			InvestmentKRW: 1_000_000,
		},
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "worker", "sim", "recover":
	default:
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}

	if c.Engine.LockTimeout.Duration <= c.Engine.ClaimInterval.Duration {
		return fmt.Errorf("config: lock_timeout (%s) must exceed claim_interval (%s)",
			c.Engine.LockTimeout.Duration, c.Engine.ClaimInterval.Duration)
	}
	if c.Engine.MaxRetries < 1 {
		return fmt.Errorf("config: max_retries must be at least 1")
	}
	if c.Trading.Symbol == "" {
		return fmt.Errorf("config: trading symbol is required")
	}
	if c.Trading.InvestmentKRW <= 0 {
		return fmt.Errorf("config: investment_krw must be positive")
	}

	if strings.ToLower(c.Mode) == "worker" {
		if c.Postgres.DSN == "" && c.Postgres.Host == "" {
			return fmt.Errorf("config: postgres connection is required in worker mode")
		}
	}
	return nil
}
