package auction

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/auctionhub/internal/domain"
)

// DefaultTTL is the fixed auction lifetime from creation. There is no
// explicit close operation in this engine; settlement happens externally and
// stale auctions age out.
const DefaultTTL = 24 * time.Hour

// RegistryConfig holds tunables for the in-memory registry.
type RegistryConfig struct {
	// TTL is the auction lifetime from creation. Zero means DefaultTTL.
	TTL time.Duration
}

// Registry is the authoritative in-memory store of open auctions and their
// bids. A single coarse mutex serializes all mutations; at the expected
// volumes (hundreds of auctions, tens of bids each) this is cheaper than
// per-auction locking and makes the no-lost-bid guarantee trivial to uphold.
// Reads return copies so callers never alias internal state.
type Registry struct {
	mu       sync.RWMutex
	auctions map[string]*entry

	ttl    time.Duration
	clock  domain.Clock
	logger *slog.Logger
}

type entry struct {
	auction   domain.Auction
	bids      []domain.Bid
	expiresAt time.Time
}

// NewRegistry creates an empty Registry.
func NewRegistry(cfg RegistryConfig, clock domain.Clock, logger *slog.Logger) *Registry {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		auctions: make(map[string]*entry),
		ttl:      ttl,
		clock:    clock,
		logger:   logger.With(slog.String("component", "registry")),
	}
}

// Upsert validates the payload, assigns a fresh id, and stores the auction.
// Ids are always registry-generated; no caller-supplied id can overwrite an
// existing auction.
func (r *Registry) Upsert(ctx context.Context, payload domain.AuctionPayload) (domain.Auction, error) {
	if err := payload.Validate(); err != nil {
		return domain.Auction{}, err
	}

	now := r.clock.Now()
	a := domain.Auction{
		ID:        uuid.NewString(),
		Payload:   payload,
		CreatedAt: now,
	}

	r.mu.Lock()
	r.auctions[a.ID] = &entry{
		auction:   a,
		expiresAt: now.Add(r.ttl),
	}
	r.mu.Unlock()

	r.logger.Info("auction created",
		slog.String("auction_id", a.ID),
		slog.String("maker", payload.Maker),
		slog.String("wager", payload.Wager),
	)
	return a, nil
}

// Get returns the auction with the given id. Expired auctions are reported
// as not found; eviction itself is left to SweepExpired.
func (r *Registry) Get(ctx context.Context, id string) (domain.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.auctions[id]
	if !ok || r.expired(e) {
		return domain.Auction{}, domain.ErrAuctionNotFound
	}
	return e.auction, nil
}

// AddBid appends a bid to the auction's bid list and returns the committed
// bid with its server-assigned ReceivedAt. The append happens under the
// registry lock, so concurrent bids for the same auction are all recorded.
func (r *Registry) AddBid(ctx context.Context, id string, bid domain.Bid) (domain.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.auctions[id]
	if !ok || r.expired(e) {
		return domain.Bid{}, domain.ErrAuctionNotFound
	}

	bid.AuctionID = id
	bid.ReceivedAt = r.clock.Now()
	e.bids = append(e.bids, bid)
	return bid, nil
}

// Bids returns the auction's bids in insertion order. The returned slice is
// a copy.
func (r *Registry) Bids(ctx context.Context, id string) ([]domain.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.auctions[id]
	if !ok || r.expired(e) {
		return nil, domain.ErrAuctionNotFound
	}
	out := make([]domain.Bid, len(e.bids))
	copy(out, e.bids)
	return out, nil
}

// List returns all currently open (non-expired) auctions.
func (r *Registry) List(ctx context.Context) ([]domain.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Auction, 0, len(r.auctions))
	for _, e := range r.auctions {
		if !r.expired(e) {
			out = append(out, e.auction)
		}
	}
	return out, nil
}

// SweepExpired removes every expired auction and returns the evicted
// snapshots for archival.
func (r *Registry) SweepExpired(ctx context.Context) ([]domain.AuctionSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []domain.AuctionSnapshot
	for id, e := range r.auctions {
		if !r.expired(e) {
			continue
		}
		evicted = append(evicted, domain.AuctionSnapshot{
			Auction: e.auction,
			Bids:    e.bids,
		})
		delete(r.auctions, id)
	}

	if len(evicted) > 0 {
		r.logger.Info("swept expired auctions", slog.Int("count", len(evicted)))
	}
	return evicted, nil
}

// expired must be called with at least the read lock held.
func (r *Registry) expired(e *entry) bool {
	return !r.clock.Now().Before(e.expiresAt)
}

// Len reports the number of auctions currently stored, including ones that
// have expired but not yet been swept. Used by the health endpoint.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.auctions)
}

var (
	_ domain.AuctionRegistry = (*Registry)(nil)
	_ domain.AuctionSweeper  = (*Registry)(nil)
)

// String implements fmt.Stringer for debug logging.
func (r *Registry) String() string {
	return fmt.Sprintf("auction.Registry(%d auctions, ttl=%s)", r.Len(), r.ttl)
}
