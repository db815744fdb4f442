package auth

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultSweepInterval is how often expired pending registrations are purged.
const DefaultSweepInterval = 15 * time.Minute

// RunSweeper purges expired pending registrations every interval until ctx is done.
func RunSweeper(ctx context.Context, store PendingStore, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, err := store.Sweep(ctx)
			if err != nil {
				log.Warn("pending registration sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				log.Debug("swept expired pending registrations", zap.Int("removed", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}
