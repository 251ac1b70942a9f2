package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/qupredict/qupredict/internal/blob/s3"
	"github.com/qupredict/qupredict/internal/cache/redis"
	"github.com/qupredict/qupredict/internal/config"
	"github.com/qupredict/qupredict/internal/domain"
	"github.com/qupredict/qupredict/internal/notify"
	"github.com/qupredict/qupredict/internal/store/postgres"
	"github.com/qupredict/qupredict/internal/vault"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Vault derives deposit addresses and signs oracle callbacks.
	Vault *vault.Vault

	// Stores
	BetStore    domain.BetStore
	MarketStore domain.MarketStore
	RoundStore  domain.RoundStore
	WagerStore  domain.WagerStore
	AuditStore  domain.AuditStore

	// Caches and coordination
	BetCache      domain.BetCache
	MarketCache   domain.MarketCache
	PriceCache    domain.PriceCache
	RateLimiter   domain.RateLimiter
	LockManager   domain.LockManager
	SignalBus     domain.SignalBus
	StreakTracker *redis.StreakTracker

	// Blob storage (only when the archival pipeline is enabled)
	BlobWriter  domain.BlobWriter
	BlobReader  domain.BlobReader
	BlobDeleter domain.BlobDeleter
	Archiver    domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Vault (every mode: bet placement derives escrow addresses) ---
	seed, err := vault.LoadSeed(cfg.Vault.MasterSeed, cfg.Vault.EncryptedSeedPath, cfg.Vault.SeedPassword)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: vault seed: %w", err)
	}
	deps.Vault, err = vault.New(seed)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: vault: %w", err)
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	betStore := postgres.NewBetStore(pool)
	roundStore := postgres.NewRoundStore(pool)
	deps.BetStore = betStore
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.RoundStore = roundStore
	deps.WagerStore = postgres.NewWagerStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.BetCache = redis.NewBetCache(redisClient)
	deps.MarketCache = redis.NewMarketCache(redisClient)
	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.StreakTracker = redis.NewStreakTracker(redisClient)

	// --- S3 blob storage (only when the archival pipeline runs) ---
	if cfg.Pipeline.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.BlobReader = reader
		deps.BlobDeleter = reader // same type implements BlobDeleter
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, betStore, roundStore, deps.AuditStore)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
