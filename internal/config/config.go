// Package config defines the top-level configuration for the auction engine
// and provides validation helpers.
package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// duration wraps time.Duration so TOML values can be written as "24h"/"10s".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by AUCTIONHUB_* environment
// variables.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Auction  AuctionConfig  `toml:"auction"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	LogLevel string         `toml:"log_level"`
}

// ServerConfig holds the HTTP/WebSocket server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"` // empty disables REST auth

	// RateLimit / RateWindow apply per client IP to the REST surface, via
	// the redis limiter when redis is enabled.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// AuctionConfig holds the engine's domain parameters.
type AuctionConfig struct {
	// ChainID and VerifyingContract bind strict bid-signature verification
	// to a deployment.
	ChainID           int    `toml:"chain_id"`
	VerifyingContract string `toml:"verifying_contract"`

	// Store selects the registry backend: "memory" (default) or "postgres".
	Store string `toml:"store"`

	// TTL is the fixed auction lifetime from creation.
	TTL duration `toml:"ttl"`

	// SweepInterval is how often the janitor evicts expired auctions.
	SweepInterval duration `toml:"sweep_interval"`
}

// GatewayConfig holds per-connection WebSocket limits.
type GatewayConfig struct {
	// MaxMessageBytes is the per-frame size ceiling (close 1009 above it).
	MaxMessageBytes int `toml:"max_message_bytes"`

	// RateLimit messages per RateWindow per connection (close 1008 above).
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// PostgresConfig holds PostgreSQL connection parameters for the durable
// registry backend.
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
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the auction
// archiver.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds the error-reporting sink parameters.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with the engine's documented defaults.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:       8090,
			RateLimit:  100,
			RateWindow: duration{10 * time.Second},
		},
		Auction: AuctionConfig{
			ChainID:       137,
			Store:         "memory",
			TTL:           duration{24 * time.Hour},
			SweepInterval: duration{time.Minute},
		},
		Gateway: GatewayConfig{
			MaxMessageBytes: 64 * 1024,
			RateLimit:       100,
			RateWindow:      duration{10 * time.Second},
		},
		Postgres: PostgresConfig{
			Port:         5432,
			SSLMode:      "disable",
			PoolMaxConns: 8,
			PoolMinConns: 1,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 8,
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for values the engine cannot start
// with. It is called by the entry point after Load.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Auction.ChainID <= 0 {
		return fmt.Errorf("config: auction.chain_id must be positive")
	}
	if c.Auction.VerifyingContract == "" {
		return fmt.Errorf("config: auction.verifying_contract is required")
	}
	if !common.IsHexAddress(c.Auction.VerifyingContract) {
		return fmt.Errorf("config: auction.verifying_contract %q is not a valid address", c.Auction.VerifyingContract)
	}
	switch c.Auction.Store {
	case "memory":
	case "postgres":
		if c.Postgres.DSN == "" && c.Postgres.Host == "" {
			return fmt.Errorf("config: auction.store is postgres but no postgres connection is configured")
		}
	default:
		return fmt.Errorf("config: unsupported auction.store %q", c.Auction.Store)
	}
	if c.Auction.TTL.Duration <= 0 {
		return fmt.Errorf("config: auction.ttl must be positive")
	}
	if c.Auction.SweepInterval.Duration <= 0 {
		return fmt.Errorf("config: auction.sweep_interval must be positive")
	}
	if c.Gateway.MaxMessageBytes <= 0 {
		return fmt.Errorf("config: gateway.max_message_bytes must be positive")
	}
	if c.Gateway.RateLimit <= 0 || c.Gateway.RateWindow.Duration <= 0 {
		return fmt.Errorf("config: gateway rate limit requires positive rate_limit and rate_window")
	}
	if c.S3.Enabled {
		if c.S3.Bucket == "" || c.S3.Region == "" {
			return fmt.Errorf("config: s3 archiving requires bucket and region")
		}
	}
	return nil
}
