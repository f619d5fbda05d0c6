package main

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	tokenReaperInterval      = 15 * time.Minute
	tokenReaperDeleteTimeout = 10 * time.Second
)

type tokenReaperStore interface {
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// runTokenReaper periodically clears expired verification and reset tokens
// so stale codes cannot linger in the database.
func runTokenReaper(
	ctx context.Context,
	logger *slog.Logger,
	store tokenReaperStore,
	interval time.Duration,
	now func() time.Time,
) {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	if interval <= 0 {
		logger.Error("token reaper disabled: interval must be positive", "interval", interval)
		return
	}

	// Run once at startup so long-lived processes do not wait an entire tick
	// before clearing stale tokens.
	runTokenReaperOnce(ctx, logger, store, now)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runTokenReaperOnce(ctx, logger, store, now)
		}
	}
}

func runTokenReaperOnce(
	ctx context.Context,
	logger *slog.Logger,
	store tokenReaperStore,
	now func() time.Time,
) {
	if ctx.Err() != nil {
		return
	}

	cctx, cancel := context.WithTimeout(ctx, tokenReaperDeleteTimeout)
	defer cancel()

	cleared, err := store.DeleteExpiredTokens(cctx, now().UTC())
	if err != nil {
		// Shutdown/timeout cancellation is expected; avoid noisy logs.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		logger.Error("token reaper failed", "err", err)
		return
	}
	if cleared > 0 {
		logger.Info("expired tokens cleared", "count", cleared)
	}
}
