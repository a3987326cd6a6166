package domain

import (
	"context"
	"io"
	"time"
)

// AuctionRegistry is the authoritative store of open auctions and their
// bids. Ids are always registry-generated; a caller can never overwrite an
// existing auction. Mutations are serialized per auction at minimum: two
// concurrent AddBid calls for the same auction must both be recorded.
type AuctionRegistry interface {
	// Upsert validates the payload, assigns a fresh id, stores the auction
	// and returns it.
	Upsert(ctx context.Context, payload AuctionPayload) (Auction, error)

	// Get returns the auction with the given id, or ErrAuctionNotFound.
	// Expired auctions are indistinguishable from never-created ones.
	Get(ctx context.Context, id string) (Auction, error)

	// AddBid appends a bid to the auction's bid list, stamping ReceivedAt,
	// and returns the committed bid. Returns ErrAuctionNotFound when the
	// auction does not exist or has expired.
	AddBid(ctx context.Context, id string, bid Bid) (Bid, error)

	// Bids returns the auction's bids in insertion order. Ranking by price
	// is a presentation concern of the caller.
	Bids(ctx context.Context, id string) ([]Bid, error)

	// List returns all currently open auctions.
	List(ctx context.Context) ([]Auction, error)
}

// AuctionSweeper evicts expired auctions. Implemented by registries that
// own their expiry policy; the application janitor drives it periodically.
type AuctionSweeper interface {
	// SweepExpired removes every expired auction and returns the evicted
	// auctions together with their bids, for archival.
	SweepExpired(ctx context.Context) ([]AuctionSnapshot, error)
}

// RateLimiter enforces a sliding-window request limit per key.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted under limit
	// requests per window, counting the request if so.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus mirrors auction frames to external consumers (indexers,
// reconciliation jobs) that do not hold a WebSocket connection. The engine
// is publish-only; consumers subscribe with their own tooling.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// BlobWriter uploads an object to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Clock abstracts time.Now so deadline and expiry logic is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }
