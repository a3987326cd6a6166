package auction

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/auctionhub/internal/domain"
)

// fakeClock is a manually-advanced clock shared by the registry and
// validator tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validPayload() domain.AuctionPayload {
	return domain.AuctionPayload{
		Wager:             "100",
		PredictedOutcomes: []string{"0x01"},
		Resolver:          "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		Maker:             "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
	}
}

func validBid(deadline int64) domain.Bid {
	return domain.Bid{
		Taker:          "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC",
		TakerWager:     "100",
		TakerDeadline:  deadline,
		TakerSignature: "0x" + string(make64HexBytes()),
	}
}

// make64HexBytes returns 130 hex characters, the body of a well-formed
// 65-byte signature.
func make64HexBytes() []byte {
	b := make([]byte, 130)
	for i := range b {
		b[i] = 'a'
	}
	return b
}

func newTestRegistry(t *testing.T) (*Registry, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	return NewRegistry(RegistryConfig{TTL: time.Hour}, clock, testLogger()), clock
}

func TestUpsertGeneratesFreshIDs(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		a, err := reg.Upsert(ctx, validPayload())
		if err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		if a.ID == "" {
			t.Fatal("Upsert returned empty id")
		}
		if seen[a.ID] {
			t.Fatalf("Upsert returned duplicate id %s", a.ID)
		}
		seen[a.ID] = true
	}
}

func TestUpsertRejectsInvalidPayload(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*domain.AuctionPayload)
	}{
		{"zero wager", func(p *domain.AuctionPayload) { p.Wager = "0" }},
		{"negative wager", func(p *domain.AuctionPayload) { p.Wager = "-5" }},
		{"non-numeric wager", func(p *domain.AuctionPayload) { p.Wager = "ten" }},
		{"no outcomes", func(p *domain.AuctionPayload) { p.PredictedOutcomes = nil }},
		{"empty outcome", func(p *domain.AuctionPayload) { p.PredictedOutcomes = []string{"0x"} }},
		{"bad resolver", func(p *domain.AuctionPayload) { p.Resolver = "0x123" }},
		{"bad maker", func(p *domain.AuctionPayload) { p.Maker = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validPayload()
			tc.mutate(&p)
			if _, err := reg.Upsert(ctx, p); err == nil {
				t.Fatalf("Upsert accepted payload with %s", tc.name)
			}
		})
	}
}

func TestGetUnknownAuction(t *testing.T) {
	reg, _ := newTestRegistry(t)
	if _, err := reg.Get(context.Background(), "nope"); err != domain.ErrAuctionNotFound {
		t.Fatalf("Get(unknown) error = %v, want ErrAuctionNotFound", err)
	}
}

func TestAddBidUnknownAuction(t *testing.T) {
	reg, _ := newTestRegistry(t)
	_, err := reg.AddBid(context.Background(), "nope", validBid(1_700_000_100))
	if err != domain.ErrAuctionNotFound {
		t.Fatalf("AddBid(unknown) error = %v, want ErrAuctionNotFound", err)
	}
}

func TestAddBidStampsReceivedAtAndOrder(t *testing.T) {
	reg, clock := newTestRegistry(t)
	ctx := context.Background()

	a, err := reg.Upsert(ctx, validPayload())
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	first := validBid(1_700_000_100)
	first.TakerWager = "1"
	committed, err := reg.AddBid(ctx, a.ID, first)
	if err != nil {
		t.Fatalf("AddBid: %v", err)
	}
	if !committed.ReceivedAt.Equal(clock.Now()) {
		t.Fatalf("ReceivedAt = %v, want %v", committed.ReceivedAt, clock.Now())
	}
	if committed.AuctionID != a.ID {
		t.Fatalf("AuctionID = %q, want %q", committed.AuctionID, a.ID)
	}

	second := validBid(1_700_000_100)
	second.TakerWager = "2"
	if _, err := reg.AddBid(ctx, a.ID, second); err != nil {
		t.Fatalf("AddBid: %v", err)
	}

	bids, err := reg.Bids(ctx, a.ID)
	if err != nil {
		t.Fatalf("Bids: %v", err)
	}
	if len(bids) != 2 || bids[0].TakerWager != "1" || bids[1].TakerWager != "2" {
		t.Fatalf("Bids() = %+v, want insertion order [1, 2]", bids)
	}
}

func TestConcurrentBidsAreNotLost(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	a, err := reg.Upsert(ctx, validPayload())
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	const n = 64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			bid := validBid(1_700_000_100)
			bid.TakerWager = "1"
			if _, err := reg.AddBid(ctx, a.ID, bid); err != nil {
				t.Errorf("AddBid: %v", err)
			}
		}(i)
	}
	wg.Wait()

	bids, err := reg.Bids(ctx, a.ID)
	if err != nil {
		t.Fatalf("Bids: %v", err)
	}
	if len(bids) != n {
		t.Fatalf("len(Bids()) = %d, want %d: bids were lost under concurrency", len(bids), n)
	}
}

func TestExpiryCollapsesToNotFound(t *testing.T) {
	reg, clock := newTestRegistry(t)
	ctx := context.Background()

	a, err := reg.Upsert(ctx, validPayload())
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := reg.AddBid(ctx, a.ID, validBid(1_700_000_100)); err != nil {
		t.Fatalf("AddBid: %v", err)
	}

	clock.Advance(time.Hour) // exactly the TTL boundary is expired

	if _, err := reg.Get(ctx, a.ID); err != domain.ErrAuctionNotFound {
		t.Fatalf("Get(expired) error = %v, want ErrAuctionNotFound", err)
	}
	if _, err := reg.AddBid(ctx, a.ID, validBid(1_700_010_000)); err != domain.ErrAuctionNotFound {
		t.Fatalf("AddBid(expired) error = %v, want ErrAuctionNotFound", err)
	}
}

func TestSweepExpiredEvictsAndReturnsSnapshots(t *testing.T) {
	reg, clock := newTestRegistry(t)
	ctx := context.Background()

	expired, err := reg.Upsert(ctx, validPayload())
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := reg.AddBid(ctx, expired.ID, validBid(1_700_000_100)); err != nil {
		t.Fatalf("AddBid: %v", err)
	}

	clock.Advance(30 * time.Minute)
	alive, err := reg.Upsert(ctx, validPayload())
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	clock.Advance(30 * time.Minute) // first auction is now past its TTL

	snaps, err := reg.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("SweepExpired returned %d snapshots, want 1", len(snaps))
	}
	if snaps[0].Auction.ID != expired.ID || len(snaps[0].Bids) != 1 {
		t.Fatalf("SweepExpired snapshot = %+v, want auction %s with 1 bid", snaps[0], expired.ID)
	}

	if _, err := reg.Get(ctx, alive.ID); err != nil {
		t.Fatalf("Get(alive) after sweep: %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("Len() = %d after sweep, want 1", reg.Len())
	}
}
