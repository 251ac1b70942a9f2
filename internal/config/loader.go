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
// built-in defaults, applies QUPREDICT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known QUPREDICT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Vault ──
	setStr(&cfg.Vault.MasterSeed, "QUPREDICT_VAULT_MASTER_SEED")
	setStr(&cfg.Vault.EncryptedSeedPath, "QUPREDICT_VAULT_ENCRYPTED_SEED_PATH")
	setStr(&cfg.Vault.SeedPassword, "QUPREDICT_VAULT_SEED_PASSWORD")

	// ── Gateway ──
	setStr(&cfg.Gateway.BaseURL, "QUPREDICT_GATEWAY_BASE_URL")
	setDuration(&cfg.Gateway.Timeout, "QUPREDICT_GATEWAY_TIMEOUT")
	setFloat64(&cfg.Gateway.RatePerSec, "QUPREDICT_GATEWAY_RATE_PER_SEC")
	setInt(&cfg.Gateway.Burst, "QUPREDICT_GATEWAY_BURST")

	// ── Price feed ──
	setStr(&cfg.PriceFeed.BaseURL, "QUPREDICT_PRICEFEED_BASE_URL")
	setDuration(&cfg.PriceFeed.Timeout, "QUPREDICT_PRICEFEED_TIMEOUT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "QUPREDICT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "QUPREDICT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "QUPREDICT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "QUPREDICT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "QUPREDICT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "QUPREDICT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "QUPREDICT_POSTGRES_SSLMODE")
	setStr(&cfg.Postgres.SSLMode, "QUPREDICT_POSTGRES_SSL_MODE") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "QUPREDICT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "QUPREDICT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "QUPREDICT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "QUPREDICT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "QUPREDICT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "QUPREDICT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "QUPREDICT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "QUPREDICT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "QUPREDICT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "QUPREDICT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "QUPREDICT_S3_REGION")
	setStr(&cfg.S3.Bucket, "QUPREDICT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "QUPREDICT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "QUPREDICT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "QUPREDICT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "QUPREDICT_S3_FORCE_PATH_STYLE")

	// ── Escrow ──
	setDuration(&cfg.Escrow.PollInterval, "QUPREDICT_ESCROW_POLL_INTERVAL")
	setDuration(&cfg.Escrow.DepositTTL, "QUPREDICT_ESCROW_DEPOSIT_TTL")
	setDuration(&cfg.Escrow.LockTTL, "QUPREDICT_ESCROW_LOCK_TTL")
	setStr(&cfg.Escrow.TreasuryAddress, "QUPREDICT_ESCROW_TREASURY_ADDRESS")
	setBool(&cfg.Escrow.VerifyPayouts, "QUPREDICT_ESCROW_VERIFY_PAYOUTS")

	// ── Flash ──
	setBool(&cfg.Flash.Enabled, "QUPREDICT_FLASH_ENABLED")
	setStr(&cfg.Flash.Pair, "QUPREDICT_FLASH_PAIR")
	setDuration(&cfg.Flash.OpenWindow, "QUPREDICT_FLASH_OPEN_WINDOW")
	setDuration(&cfg.Flash.LockWindow, "QUPREDICT_FLASH_LOCK_WINDOW")
	setInt64(&cfg.Flash.MinWagerQu, "QUPREDICT_FLASH_MIN_WAGER_QU")

	// ── Oracle ──
	setDuration(&cfg.Oracle.PollInterval, "QUPREDICT_ORACLE_POLL_INTERVAL")
	setStringSlice(&cfg.Oracle.Pairs, "QUPREDICT_ORACLE_PAIRS")
	setStr(&cfg.Oracle.CallbackKeyID, "QUPREDICT_ORACLE_CALLBACK_KEY_ID")
	setStr(&cfg.Oracle.CallbackSecret, "QUPREDICT_ORACLE_CALLBACK_SECRET")

	// ── Pipeline ──
	setBool(&cfg.Pipeline.Enabled, "QUPREDICT_PIPELINE_ENABLED")
	setInt(&cfg.Pipeline.ArchiveRetentionDays, "QUPREDICT_PIPELINE_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Pipeline.ArchiveCron, "QUPREDICT_PIPELINE_ARCHIVE_CRON")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "QUPREDICT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "QUPREDICT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "QUPREDICT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "QUPREDICT_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "QUPREDICT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "QUPREDICT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "QUPREDICT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "QUPREDICT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "QUPREDICT_MODE")
	setStr(&cfg.LogLevel, "QUPREDICT_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
