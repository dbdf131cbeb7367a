package auth

import (
	"context"
	"log/slog"
	"time"
)

// Janitor periodically sweeps a PendingStore so abandoned authorization
// attempts do not accumulate.
type Janitor struct {
	store    PendingStore
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewJanitor creates a janitor sweeping store every interval.
func NewJanitor(store PendingStore, interval time.Duration, logger *slog.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		store:    store,
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
}

// Run sweeps until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweepOnce(ctx)
		}
	}
}

func (j *Janitor) sweepOnce(ctx context.Context) {
	removed, err := j.store.Sweep(ctx, j.now())
	if err != nil {
		j.logger.Warn("pending authorization sweep failed", "error", err)
		return
	}
	if removed > 0 {
		j.logger.Debug("pending authorizations swept", "removed", removed)
	}
}
