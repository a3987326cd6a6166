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
// built-in defaults, applies AUCTIONHUB_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known AUCTIONHUB_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setInt(&cfg.Server.Port, "AUCTIONHUB_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "AUCTIONHUB_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "AUCTIONHUB_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "AUCTIONHUB_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "AUCTIONHUB_SERVER_RATE_WINDOW")

	// ── Auction ──
	setInt(&cfg.Auction.ChainID, "AUCTIONHUB_AUCTION_CHAIN_ID")
	setStr(&cfg.Auction.VerifyingContract, "AUCTIONHUB_AUCTION_VERIFYING_CONTRACT")
	setStr(&cfg.Auction.Store, "AUCTIONHUB_AUCTION_STORE")
	setDuration(&cfg.Auction.TTL, "AUCTIONHUB_AUCTION_TTL")
	setDuration(&cfg.Auction.SweepInterval, "AUCTIONHUB_AUCTION_SWEEP_INTERVAL")

	// ── Gateway ──
	setInt(&cfg.Gateway.MaxMessageBytes, "AUCTIONHUB_GATEWAY_MAX_MESSAGE_BYTES")
	setInt(&cfg.Gateway.RateLimit, "AUCTIONHUB_GATEWAY_RATE_LIMIT")
	setDuration(&cfg.Gateway.RateWindow, "AUCTIONHUB_GATEWAY_RATE_WINDOW")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "AUCTIONHUB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "AUCTIONHUB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "AUCTIONHUB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "AUCTIONHUB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "AUCTIONHUB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "AUCTIONHUB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "AUCTIONHUB_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "AUCTIONHUB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "AUCTIONHUB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "AUCTIONHUB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "AUCTIONHUB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "AUCTIONHUB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AUCTIONHUB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AUCTIONHUB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AUCTIONHUB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AUCTIONHUB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AUCTIONHUB_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "AUCTIONHUB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "AUCTIONHUB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AUCTIONHUB_S3_REGION")
	setStr(&cfg.S3.Bucket, "AUCTIONHUB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "AUCTIONHUB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AUCTIONHUB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AUCTIONHUB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AUCTIONHUB_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "AUCTIONHUB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "AUCTIONHUB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "AUCTIONHUB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "AUCTIONHUB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "AUCTIONHUB_LOG_LEVEL")
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
