package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies KIMPBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known KIMPBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "KIMPBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "KIMPBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "KIMPBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "KIMPBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "KIMPBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "KIMPBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "KIMPBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "KIMPBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "KIMPBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "KIMPBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "KIMPBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "KIMPBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "KIMPBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "KIMPBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "KIMPBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "KIMPBOT_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.SettingsTTL, "KIMPBOT_REDIS_SETTINGS_TTL")
	setBool(&cfg.Redis.UseExecutionLock, "KIMPBOT_REDIS_USE_EXECUTION_LOCK")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "KIMPBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "KIMPBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "KIMPBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "KIMPBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "KIMPBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "KIMPBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "KIMPBOT_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "KIMPBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "KIMPBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStringSlice(&cfg.Notify.Events, "KIMPBOT_NOTIFY_EVENTS")

	// ── Engine ──
	setStr(&cfg.Engine.WorkerID, "KIMPBOT_ENGINE_WORKER_ID")
	setDuration(&cfg.Engine.ClaimInterval, "KIMPBOT_ENGINE_CLAIM_INTERVAL")
	setDuration(&cfg.Engine.RetrySweepInterval, "KIMPBOT_ENGINE_RETRY_SWEEP_INTERVAL")
	setDuration(&cfg.Engine.DeadLetterInterval, "KIMPBOT_ENGINE_DEAD_LETTER_INTERVAL")
	setDuration(&cfg.Engine.ArchiveInterval, "KIMPBOT_ENGINE_ARCHIVE_INTERVAL")
	setDuration(&cfg.Engine.LockTimeout, "KIMPBOT_ENGINE_LOCK_TIMEOUT")
	setInt(&cfg.Engine.MaxRetries, "KIMPBOT_ENGINE_MAX_RETRIES")
	setDuration(&cfg.Engine.RetryBaseDelay, "KIMPBOT_ENGINE_RETRY_BASE_DELAY")
	setDuration(&cfg.Engine.ArchiveRetention, "KIMPBOT_ENGINE_ARCHIVE_RETENTION")

	// ── Trading ──
	setStr(&cfg.Trading.Symbol, "KIMPBOT_TRADING_SYMBOL")
	setFloat64(&cfg.Trading.InvestmentKRW, "KIMPBOT_TRADING_INVESTMENT_KRW")
	setStr(&cfg.Trading.UpbitDepositAddr, "KIMPBOT_TRADING_UPBIT_DEPOSIT_ADDRESS")
	setStr(&cfg.Trading.BinanceDepositAddr, "KIMPBOT_TRADING_BINANCE_DEPOSIT_ADDRESS")

	// ── Top-level ──
	setStr(&cfg.Mode, "KIMPBOT_MODE")
	setStr(&cfg.LogLevel, "KIMPBOT_LOG_LEVEL")
	setStr(&cfg.RecoverCycleID, "KIMPBOT_RECOVER_CYCLE_ID")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
