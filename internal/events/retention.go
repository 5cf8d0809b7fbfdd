package events

import (
	"context"
	"time"

	"github.com/wolfman30/medpractice-booking/pkg/logging"
)

type pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

type deliveredPruner interface {
	PruneDelivered(ctx context.Context, cutoff time.Time) (int64, error)
}

// Retention periodically deletes delivered outbox rows and dedupe markers older than keep.
type Retention struct {
	outbox    deliveredPruner
	processed pruner
	keep      time.Duration
	interval  time.Duration
	logger    *logging.Logger
	now       func() time.Time
}

func NewRetention(outbox *OutboxStore, processed *ProcessedStore, keep time.Duration, logger *logging.Logger) *Retention {
	if logger == nil {
		logger = logging.Default()
	}
	r := &Retention{keep: keep, interval: time.Hour, logger: logger, now: time.Now}
	if outbox != nil {
		r.outbox = outbox
	}
	if processed != nil {
		r.processed = processed
	}
	return r
}

// Start sweeps once immediately and then every hour until ctx ends. A non-positive keep disables it.
func (r *Retention) Start(ctx context.Context) {
	if r.keep <= 0 {
		return
	}
	r.sweep(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Retention) sweep(ctx context.Context) {
	cutoff := r.now().Add(-r.keep)
	if r.outbox != nil {
		if n, err := r.outbox.PruneDelivered(ctx, cutoff); err != nil {
			r.logger.Error("outbox retention failed", "error", err)
		} else if n > 0 {
			r.logger.Info("pruned delivered outbox entries", "count", n, "cutoff", cutoff)
		}
	}
	if r.processed != nil {
		if n, err := r.processed.Prune(ctx, cutoff); err != nil {
			r.logger.Error("processed event retention failed", "error", err)
		} else if n > 0 {
			r.logger.Info("pruned processed event markers", "count", n, "cutoff", cutoff)
		}
	}
}
