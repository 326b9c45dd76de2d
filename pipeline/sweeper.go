package pipeline

import (
	"context"
	"log"
	"time"

	"newskeep/config"
)

// SweepStore is the persistence surface the background sweeper needs.
type SweepStore interface {
	SweepStale(ctx context.Context, olderThan time.Duration) (int64, error)
	RequeueFailed(ctx context.Context, retryCap int) ([]int64, error)
}

// Sweeper recovers stuck and transiently failed articles: rows stuck in
// PENDING/PROCESSING past the watermark get force-failed, and failed rows
// with retries remaining go back on the ingest queue.
type Sweeper struct {
	store    SweepStore
	queue    Requeuer
	interval time.Duration
}

func NewSweeper(st SweepStore, queue Requeuer) *Sweeper {
	return &Sweeper{
		store:    st,
		queue:    queue,
		interval: config.StaleProcessingAfter,
	}
}

// Run sweeps on a fixed interval until the context is canceled.
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

func (s *Sweeper) sweepOnce(ctx context.Context) {
	swept, err := s.store.SweepStale(ctx, config.StaleProcessingAfter)
	if err != nil {
		log.Printf("[sweeper] stale sweep failed: %v", err)
	} else if swept > 0 {
		log.Printf("[sweeper] force-failed %d stale article(s)", swept)
	}

	ids, err := s.store.RequeueFailed(ctx, config.MaxRetries)
	if err != nil {
		log.Printf("[sweeper] requeue query failed: %v", err)
		return
	}
	for _, id := range ids {
		if err := s.queue.EnqueueIngest(id); err != nil {
			log.Printf("[sweeper] re-enqueue of article %d failed: %v", id, err)
		}
	}
	if len(ids) > 0 {
		log.Printf("[sweeper] re-enqueued %d failed article(s)", len(ids))
	}
}
