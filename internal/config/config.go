// Package config defines the top-level configuration for the qupredict
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by QUPREDICT_* environment variables.
type Config struct {
	Vault     VaultConfig     `toml:"vault"`
	Gateway   GatewayConfig   `toml:"gateway"`
	PriceFeed PriceFeedConfig `toml:"pricefeed"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Escrow    EscrowConfig    `toml:"escrow"`
	Flash     FlashConfig     `toml:"flash"`
	Oracle    OracleConfig    `toml:"oracle"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// VaultConfig holds the escrow master seed. The seed is either given raw (for
// development) or as a path to an encrypted keystore plus its password.
type VaultConfig struct {
	MasterSeed        string `toml:"master_seed"`
	EncryptedSeedPath string `toml:"encrypted_seed_path"`
	SeedPassword      string `toml:"seed_password"`
}

// GatewayConfig holds the ledger gateway endpoint and client limits.
type GatewayConfig struct {
	BaseURL    string   `toml:"base_url"`
	Timeout    duration `toml:"timeout"`
	RatePerSec float64  `toml:"rate_per_sec"`
	Burst      int      `toml:"burst"`
}

// PriceFeedConfig holds the external quote API endpoint.
type PriceFeedConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout duration `toml:"timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// EscrowConfig holds escrow engine parameters.
type EscrowConfig struct {
	// PollInterval is the engine reconcile cadence over live escrows.
	PollInterval duration `toml:"poll_interval"`
	// DepositTTL is how long a fresh escrow waits for its deposit before
	// the engine expires it.
	DepositTTL duration `toml:"deposit_ttl"`
	// LockTTL bounds how long one engine pass may hold a per-escrow lock.
	LockTTL duration `toml:"lock_ttl"`
	// TreasuryAddress receives the platform share of settlement fees.
	TreasuryAddress string `toml:"treasury_address"`
	// VerifyPayouts makes the engine confirm delivery at the payout address
	// and finish winning bets as "completed" instead of "swept".
	VerifyPayouts bool `toml:"verify_payouts"`
}

// FlashConfig holds flash round scheduling parameters.
type FlashConfig struct {
	Enabled    bool     `toml:"enabled"`
	Pair       string   `toml:"pair"`
	OpenWindow duration `toml:"open_window"`
	LockWindow duration `toml:"lock_window"`
	MinWagerQu int64    `toml:"min_wager_qu"`
}

// OracleConfig holds the price poller cadence and the credentials used to
// verify signed resolution callbacks.
type OracleConfig struct {
	PollInterval   duration `toml:"poll_interval"`
	Pairs          []string `toml:"pairs"`
	CallbackKeyID  string   `toml:"callback_key_id"`
	CallbackSecret string   `toml:"callback_secret"`
}

// PipelineConfig holds settlement-processing and archival parameters.
type PipelineConfig struct {
	Enabled              bool   `toml:"enabled"`
	ArchiveRetentionDays int    `toml:"archive_retention_days"`
	ArchiveCron          string `toml:"archive_cron"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimitPerMin caps requests per client IP per minute. 0 disables
	// request rate limiting.
	RateLimitPerMin int `toml:"rate_limit_per_min"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			BaseURL:    "http://localhost:8080/v1",
			Timeout:    duration{30 * time.Second},
			RatePerSec: 10,
			Burst:      20,
		},
		PriceFeed: PriceFeedConfig{
			BaseURL: "http://localhost:8090/v1",
			Timeout: duration{10 * time.Second},
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "qupredict",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "qupredict-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Escrow: EscrowConfig{
			PollInterval:  duration{5 * time.Second},
			DepositTTL:    duration{30 * time.Minute},
			LockTTL:       duration{30 * time.Second},
			VerifyPayouts: false,
		},
		Flash: FlashConfig{
			Enabled:    true,
			Pair:       "QU/USDT",
			OpenWindow: duration{60 * time.Second},
			LockWindow: duration{30 * time.Second},
			MinWagerQu: 100,
		},
		Oracle: OracleConfig{
			PollInterval: duration{5 * time.Second},
			Pairs:        []string{"QU/USDT"},
		},
		Pipeline: PipelineConfig{
			Enabled:              false,
			ArchiveRetentionDays: 90,
			ArchiveCron:          "0 3 * * *",
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitPerMin: 600,
		},
		Notify: NotifyConfig{
			Events: []string{"bet_settled", "wager_settled", "round_resolved", "market_resolved", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"api":    true,
	"engine": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// runsEngine reports whether the mode runs the escrow engine and schedulers.
func runsEngine(mode string) bool {
	return mode == "engine" || mode == "full"
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: api, engine, full)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Vault — bet placement derives deposit addresses, so every mode needs a
	// seed source.
	if c.Vault.MasterSeed == "" && c.Vault.EncryptedSeedPath == "" {
		errs = append(errs, "vault: either master_seed or encrypted_seed_path must be set")
	}
	if c.Vault.EncryptedSeedPath != "" && c.Vault.SeedPassword == "" {
		errs = append(errs, "vault: seed_password is required when encrypted_seed_path is set")
	}

	// Gateway
	if c.Gateway.BaseURL == "" {
		errs = append(errs, "gateway: base_url must not be empty")
	}
	if c.Gateway.RatePerSec <= 0 {
		errs = append(errs, "gateway: rate_per_sec must be > 0")
	}
	if c.Gateway.Burst < 1 {
		errs = append(errs, "gateway: burst must be >= 1")
	}

	// Price feed — required whenever the oracle poller or flash rounds run.
	if runsEngine(mode) && c.PriceFeed.BaseURL == "" {
		errs = append(errs, "pricefeed: base_url must not be empty for mode "+c.Mode)
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 — only reached by the archiver.
	if c.Pipeline.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when pipeline is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when pipeline is enabled")
		}
		if c.Pipeline.ArchiveRetentionDays < 1 {
			errs = append(errs, "pipeline: archive_retention_days must be >= 1")
		}
	}

	// Escrow
	if c.Escrow.PollInterval.Duration <= 0 {
		errs = append(errs, "escrow: poll_interval must be > 0")
	}
	if c.Escrow.DepositTTL.Duration <= 0 {
		errs = append(errs, "escrow: deposit_ttl must be > 0")
	}
	if runsEngine(mode) && c.Escrow.TreasuryAddress == "" {
		errs = append(errs, "escrow: treasury_address must be set for mode "+c.Mode)
	}

	// Flash
	if c.Flash.Enabled {
		if c.Flash.Pair == "" {
			errs = append(errs, "flash: pair must not be empty when enabled")
		}
		if c.Flash.OpenWindow.Duration <= 0 {
			errs = append(errs, "flash: open_window must be > 0")
		}
		if c.Flash.LockWindow.Duration <= 0 {
			errs = append(errs, "flash: lock_window must be > 0")
		}
		if c.Flash.MinWagerQu < 1 {
			errs = append(errs, "flash: min_wager_qu must be >= 1")
		}
	}

	// Oracle
	if c.Oracle.PollInterval.Duration <= 0 {
		errs = append(errs, "oracle: poll_interval must be > 0")
	}
	if runsEngine(mode) && len(c.Oracle.Pairs) == 0 {
		errs = append(errs, "oracle: at least one pair is required for mode "+c.Mode)
	}
	// Callback credentials must be set together, or not at all.
	ck := c.Oracle.CallbackKeyID != ""
	cs := c.Oracle.CallbackSecret != ""
	if ck != cs {
		errs = append(errs, "oracle: callback_key_id and callback_secret must be set together")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerMin < 0 {
			errs = append(errs, "server: rate_limit_per_min must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
