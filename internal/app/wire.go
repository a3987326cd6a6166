package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/auctionhub/internal/auction"
	s3blob "github.com/alanyoungcy/auctionhub/internal/blob/s3"
	"github.com/alanyoungcy/auctionhub/internal/cache/redis"
	"github.com/alanyoungcy/auctionhub/internal/config"
	"github.com/alanyoungcy/auctionhub/internal/domain"
	"github.com/alanyoungcy/auctionhub/internal/notify"
	"github.com/alanyoungcy/auctionhub/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the engine needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Registry is the authoritative auction store (memory or postgres per
	// config); Sweeper is the same backend's expiry side.
	Registry domain.AuctionRegistry
	Sweeper  domain.AuctionSweeper

	// RateLimiter and SignalBus are nil unless redis is enabled.
	RateLimiter domain.RateLimiter
	SignalBus   domain.SignalBus

	// Archiver is nil unless s3 is enabled.
	Archiver *s3blob.Archiver

	// Notifier always exists; with no senders configured it is a no-op.
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// releases resources in reverse construction order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	clock := domain.SystemClock()

	// --- Auction registry ---
	switch cfg.Auction.Store {
	case "postgres":
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

		store := postgres.NewAuctionStore(pgClient.Pool(), cfg.Auction.TTL.Duration, clock)
		deps.Registry = store
		deps.Sweeper = store
	default:
		reg := auction.NewRegistry(auction.RegistryConfig{TTL: cfg.Auction.TTL.Duration}, clock, logger)
		deps.Registry = reg
		deps.Sweeper = reg
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
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

		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 archival ---
	if cfg.S3.Enabled {
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

		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), logger)
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
