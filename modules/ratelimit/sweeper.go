package ratelimit

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"planhub/modules/clock"
	"planhub/worker"
)

// Sweeper prunes idle identities from a LocalWindow in the background.
// Expiry-on-read already keeps counts correct; the sweeper only reclaims
// capacity held by clients that stopped sending requests, so that they are
// not evicted "least recently seen" slots ahead of active clients.
type Sweeper struct {
	store    *LocalWindow
	clk      clock.Clock
	interval time.Duration
	workers  int
}

func NewSweeper(store *LocalWindow, clk clock.Clock, interval time.Duration, workers int) *Sweeper {
	if clk == nil {
		clk = clock.RealClockProvider()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		store:    store,
		clk:      clk,
		interval: interval,
		workers:  workers,
	}
}

// Run blocks until ctx is cancelled, sweeping every interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

// sweepOnce fans the per-shard sweeps through a bounded worker pool; each
// shard holds its own lock, so shards can be swept in parallel without
// stalling concurrent Record calls on the others.
func (s *Sweeper) sweepOnce(ctx context.Context) {
	cutoff := s.clk.Now().Add(-s.store.period)

	jobs := make(chan *windowShard, len(s.store.shards))
	for _, sh := range s.store.shards {
		jobs <- sh
	}
	close(jobs)

	var removed atomic.Int64
	worker.BlockingPool(ctx, s.workers, jobs, func(_ context.Context, sh *windowShard) {
		removed.Add(int64(sh.sweep(cutoff)))
	})

	if n := removed.Load(); n > 0 {
		slog.DebugContext(ctx, "swept idle rate limit identities", slog.Int64("removed", n))
	}
}
