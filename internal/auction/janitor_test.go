package auction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/auctionhub/internal/domain"
)

type captureArchiver struct {
	mu      sync.Mutex
	batches [][]domain.AuctionSnapshot
}

func (c *captureArchiver) Archive(_ context.Context, snapshots []domain.AuctionSnapshot, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, snapshots)
	return nil
}

func (c *captureArchiver) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.batches {
		n += len(b)
	}
	return n
}

func TestJanitorArchivesExpiredAuctions(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(RegistryConfig{}, clock, testLogger())

	a, err := reg.Upsert(context.Background(), validPayload())
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := reg.AddBid(context.Background(), a.ID, validBid(clock.Now().Unix()+3600)); err != nil {
		t.Fatalf("AddBid: %v", err)
	}
	clock.Advance(DefaultTTL + time.Second)

	arch := &captureArchiver{}
	j := NewJanitor(reg, arch, 10*time.Millisecond, clock, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := j.Run(ctx); err != context.DeadlineExceeded {
		t.Fatalf("Run returned %v, want context.DeadlineExceeded", err)
	}

	if got := arch.total(); got != 1 {
		t.Fatalf("archived %d snapshots, want 1", got)
	}
	arch.mu.Lock()
	snap := arch.batches[0][0]
	arch.mu.Unlock()
	if snap.Auction.ID != a.ID {
		t.Errorf("archived auction %s, want %s", snap.Auction.ID, a.ID)
	}
	if len(snap.Bids) != 1 {
		t.Errorf("archived %d bids, want 1", len(snap.Bids))
	}
	if reg.Len() != 0 {
		t.Errorf("registry still holds %d auctions after sweep", reg.Len())
	}
}

func TestJanitorNilArchiver(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(RegistryConfig{}, clock, testLogger())

	if _, err := reg.Upsert(context.Background(), validPayload()); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	clock.Advance(DefaultTTL + time.Second)

	j := NewJanitor(reg, nil, 10*time.Millisecond, clock, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := j.Run(ctx); err != context.DeadlineExceeded {
		t.Fatalf("Run returned %v, want context.DeadlineExceeded", err)
	}

	if reg.Len() != 0 {
		t.Errorf("registry still holds %d auctions after sweep", reg.Len())
	}
}
