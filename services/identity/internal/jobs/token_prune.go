package jobs

import (
	"context"
	"log/slog"
	"time"
)

type ExpiredTokenStore interface {
	DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error)
}

// StartTokenPruneJob periodically removes refresh rows past their expiry.
// A non-positive interval disables the job.
func StartTokenPruneJob(ctx context.Context, store ExpiredTokenStore, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		logger.Info("token prune job disabled")
		return
	}
	timeout := 10 * time.Second
	if interval < timeout {
		timeout = interval
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pruneOnce(ctx, store, timeout, logger)
			}
		}
	}()
}

func pruneOnce(ctx context.Context, store ExpiredTokenStore, timeout time.Duration, logger *slog.Logger) {
	tickCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	removed, err := store.DeleteExpiredRefreshTokens(tickCtx, time.Now().UTC())
	if err != nil {
		logger.Warn("token prune job error", "error", err)
		return
	}
	if removed > 0 {
		logger.Info("token prune job removed expired refresh tokens", "count", removed)
	}
}
