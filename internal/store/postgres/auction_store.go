package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/auctionhub/internal/domain"
)

// AuctionStore implements domain.AuctionRegistry and domain.AuctionSweeper
// on PostgreSQL. Expired auctions are invisible to every read path and are
// physically removed by SweepExpired.
type AuctionStore struct {
	pool  *pgxpool.Pool
	ttl   time.Duration
	clock domain.Clock
}

var (
	_ domain.AuctionRegistry = (*AuctionStore)(nil)
	_ domain.AuctionSweeper  = (*AuctionStore)(nil)
)

// NewAuctionStore creates an AuctionStore backed by the given pool. Auctions
// live for ttl from creation.
func NewAuctionStore(pool *pgxpool.Pool, ttl time.Duration, clock domain.Clock) *AuctionStore {
	if clock == nil {
		clock = domain.SystemClock()
	}
	return &AuctionStore{pool: pool, ttl: ttl, clock: clock}
}

// Upsert validates the payload, assigns a fresh id and inserts the auction.
func (s *AuctionStore) Upsert(ctx context.Context, payload domain.AuctionPayload) (domain.Auction, error) {
	if err := payload.Validate(); err != nil {
		return domain.Auction{}, err
	}

	a := domain.Auction{
		ID:        uuid.NewString(),
		Payload:   payload,
		CreatedAt: s.clock.Now().UTC(),
	}

	const query = `
		INSERT INTO auctions (id, wager, predicted_outcomes, resolver, maker, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		a.ID, payload.Wager, payload.PredictedOutcomes, payload.Resolver, payload.Maker,
		a.CreatedAt, a.CreatedAt.Add(s.ttl),
	)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("postgres: insert auction %s: %w", a.ID, err)
	}
	return a, nil
}

// Get returns the auction with the given id if it has not expired.
func (s *AuctionStore) Get(ctx context.Context, id string) (domain.Auction, error) {
	const query = `
		SELECT id, wager, predicted_outcomes, resolver, maker, created_at
		FROM auctions
		WHERE id = $1 AND expires_at > $2`

	var a domain.Auction
	err := s.pool.QueryRow(ctx, query, id, s.clock.Now().UTC()).Scan(
		&a.ID, &a.Payload.Wager, &a.Payload.PredictedOutcomes,
		&a.Payload.Resolver, &a.Payload.Maker, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Auction{}, domain.ErrAuctionNotFound
	}
	if err != nil {
		return domain.Auction{}, fmt.Errorf("postgres: get auction %s: %w", id, err)
	}
	return a, nil
}

// AddBid appends a bid to an open auction. The existence check and the
// insert share a transaction so a sweep between them cannot orphan the bid.
func (s *AuctionStore) AddBid(ctx context.Context, id string, bid domain.Bid) (domain.Bid, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("postgres: begin add bid: %w", err)
	}
	defer tx.Rollback(ctx)

	var found string
	err = tx.QueryRow(ctx,
		"SELECT id FROM auctions WHERE id = $1 AND expires_at > $2 FOR SHARE",
		id, s.clock.Now().UTC(),
	).Scan(&found)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Bid{}, domain.ErrAuctionNotFound
	}
	if err != nil {
		return domain.Bid{}, fmt.Errorf("postgres: check auction %s: %w", id, err)
	}

	bid.AuctionID = id
	bid.ReceivedAt = s.clock.Now().UTC()

	const query = `
		INSERT INTO bids (auction_id, taker, taker_wager, taker_deadline, taker_signature, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = tx.Exec(ctx, query,
		bid.AuctionID, bid.Taker, bid.TakerWager, bid.TakerDeadline,
		bid.TakerSignature, bid.ReceivedAt,
	)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("postgres: insert bid for %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Bid{}, fmt.Errorf("postgres: commit bid for %s: %w", id, err)
	}
	return bid, nil
}

// Bids returns the auction's bids in commit order.
func (s *AuctionStore) Bids(ctx context.Context, id string) ([]domain.Bid, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	const query = `
		SELECT auction_id, taker, taker_wager, taker_deadline, taker_signature, received_at
		FROM bids
		WHERE auction_id = $1
		ORDER BY seq`

	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bids for %s: %w", id, err)
	}
	defer rows.Close()

	bids := make([]domain.Bid, 0)
	for rows.Next() {
		var b domain.Bid
		if err := rows.Scan(
			&b.AuctionID, &b.Taker, &b.TakerWager, &b.TakerDeadline,
			&b.TakerSignature, &b.ReceivedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate bids for %s: %w", id, err)
	}
	return bids, nil
}

// List returns all currently open auctions, newest first.
func (s *AuctionStore) List(ctx context.Context) ([]domain.Auction, error) {
	const query = `
		SELECT id, wager, predicted_outcomes, resolver, maker, created_at
		FROM auctions
		WHERE expires_at > $1
		ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, s.clock.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres: list auctions: %w", err)
	}
	defer rows.Close()

	auctions := make([]domain.Auction, 0)
	for rows.Next() {
		var a domain.Auction
		if err := rows.Scan(
			&a.ID, &a.Payload.Wager, &a.Payload.PredictedOutcomes,
			&a.Payload.Resolver, &a.Payload.Maker, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate auctions: %w", err)
	}
	return auctions, nil
}

// SweepExpired deletes every expired auction (bids cascade) and returns the
// removed auctions with their bids for archival.
func (s *AuctionStore) SweepExpired(ctx context.Context) ([]domain.AuctionSnapshot, error) {
	now := s.clock.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin sweep: %w", err)
	}
	defer tx.Rollback(ctx)

	const selectExpired = `
		SELECT id, wager, predicted_outcomes, resolver, maker, created_at
		FROM auctions
		WHERE expires_at <= $1
		FOR UPDATE`

	rows, err := tx.Query(ctx, selectExpired, now)
	if err != nil {
		return nil, fmt.Errorf("postgres: select expired: %w", err)
	}

	snapshots := make([]domain.AuctionSnapshot, 0)
	index := make(map[string]int)
	for rows.Next() {
		var a domain.Auction
		if err := rows.Scan(
			&a.ID, &a.Payload.Wager, &a.Payload.PredictedOutcomes,
			&a.Payload.Resolver, &a.Payload.Maker, &a.CreatedAt,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: scan expired auction: %w", err)
		}
		index[a.ID] = len(snapshots)
		snapshots = append(snapshots, domain.AuctionSnapshot{Auction: a, Bids: []domain.Bid{}})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate expired: %w", err)
	}
	if len(snapshots) == 0 {
		return nil, tx.Commit(ctx)
	}

	const selectBids = `
		SELECT b.auction_id, b.taker, b.taker_wager, b.taker_deadline, b.taker_signature, b.received_at
		FROM bids b
		JOIN auctions a ON a.id = b.auction_id
		WHERE a.expires_at <= $1
		ORDER BY b.seq`

	bidRows, err := tx.Query(ctx, selectBids, now)
	if err != nil {
		return nil, fmt.Errorf("postgres: select expired bids: %w", err)
	}
	for bidRows.Next() {
		var b domain.Bid
		if err := bidRows.Scan(
			&b.AuctionID, &b.Taker, &b.TakerWager, &b.TakerDeadline,
			&b.TakerSignature, &b.ReceivedAt,
		); err != nil {
			bidRows.Close()
			return nil, fmt.Errorf("postgres: scan expired bid: %w", err)
		}
		if i, ok := index[b.AuctionID]; ok {
			snapshots[i].Bids = append(snapshots[i].Bids, b)
		}
	}
	bidRows.Close()
	if err := bidRows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate expired bids: %w", err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM auctions WHERE expires_at <= $1", now); err != nil {
		return nil, fmt.Errorf("postgres: delete expired: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: commit sweep: %w", err)
	}
	return snapshots, nil
}
