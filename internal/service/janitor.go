// Package service holds background workers that keep supporting tables tidy.
package service

import (
	"context"
	"log/slog"
	"time"
)

type expiredDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// IdempotencyJanitor periodically removes cached HTTP responses whose replay
// window has passed.
type IdempotencyJanitor struct {
	cache    expiredDeleter
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

func NewIdempotencyJanitor(cache expiredDeleter, logger *slog.Logger, interval time.Duration) *IdempotencyJanitor {
	return &IdempotencyJanitor{
		cache:    cache,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Start sweeps once immediately and then on every tick until ctx is done.
func (j *IdempotencyJanitor) Start(ctx context.Context) {
	j.logger.Info("idempotency janitor started", "interval", j.interval)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("idempotency janitor stopped")
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep deletes expired entries and returns how many went.
func (j *IdempotencyJanitor) Sweep(ctx context.Context) int64 {
	n, err := j.cache.DeleteExpired(ctx, j.now().UTC())
	if err != nil {
		if ctx.Err() == nil {
			j.logger.Error("failed to sweep idempotency cache", "error", err)
		}
		return 0
	}
	if n > 0 {
		j.logger.Info("idempotency cache swept", "deleted", n)
	}
	return n
}
