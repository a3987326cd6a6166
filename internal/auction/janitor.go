package auction

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/auctionhub/internal/domain"
)

// SnapshotArchiver persists swept auction snapshots. Implemented by the S3
// archiver; a nil archiver means sweeps are discarded.
type SnapshotArchiver interface {
	Archive(ctx context.Context, snapshots []domain.AuctionSnapshot, sweptAt time.Time) error
}

// Janitor periodically evicts expired auctions from the registry and hands
// the evicted snapshots to the archiver. Registries also expire lazily on
// read; the janitor bounds how long expired state can linger.
type Janitor struct {
	sweeper  domain.AuctionSweeper
	archiver SnapshotArchiver
	interval time.Duration
	clock    domain.Clock
	logger   *slog.Logger
}

// NewJanitor creates a Janitor sweeping at the given interval.
func NewJanitor(sweeper domain.AuctionSweeper, archiver SnapshotArchiver, interval time.Duration, clock domain.Clock, logger *slog.Logger) *Janitor {
	if clock == nil {
		clock = domain.SystemClock()
	}
	return &Janitor{
		sweeper:  sweeper,
		archiver: archiver,
		interval: interval,
		clock:    clock,
		logger:   logger.With(slog.String("component", "janitor")),
	}
}

// Run sweeps until the context is cancelled. Sweep and archive errors are
// logged and the loop continues; only context cancellation stops it.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	snapshots, err := j.sweeper.SweepExpired(ctx)
	if err != nil {
		j.logger.ErrorContext(ctx, "sweep failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if len(snapshots) == 0 {
		return
	}

	j.logger.InfoContext(ctx, "expired auctions evicted",
		slog.Int("count", len(snapshots)),
	)

	if j.archiver == nil {
		return
	}
	if err := j.archiver.Archive(ctx, snapshots, j.clock.Now()); err != nil {
		j.logger.ErrorContext(ctx, "archive failed",
			slog.Int("count", len(snapshots)),
			slog.String("error", err.Error()),
		)
	}
}
