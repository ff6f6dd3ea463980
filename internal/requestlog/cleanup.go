package requestlog

import (
	"context"
	"log/slog"
	"time"
)

// cleanupInterval is how often retention pruning runs.
const cleanupInterval = time.Hour

// pruneFunc deletes entries older than cutoff and reports how many went.
type pruneFunc func(ctx context.Context, cutoff time.Time) (int64, error)

// cleanupLoop prunes old entries on a timer. A nil loop is valid and all
// its methods are no-ops, so stores can hold one unconditionally.
type cleanupLoop struct {
	done chan struct{}
}

// startCleanup launches a pruning goroutine, or returns nil when retention
// is disabled.
func startCleanup(prune pruneFunc, retentionDays int) *cleanupLoop {
	if retentionDays <= 0 {
		return nil
	}

	c := &cleanupLoop{done: make(chan struct{})}

	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				runPrune(prune, retentionDays)
			case <-c.done:
				return
			}
		}
	}()

	return c
}

func (c *cleanupLoop) stop() {
	if c == nil {
		return
	}
	close(c.done)
}

func runPrune(prune pruneFunc, retentionDays int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted, err := prune(ctx, cutoff)
	if err != nil {
		slog.Error("request log cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("pruned old request log entries",
			"deleted", deleted,
			"retention_days", retentionDays,
		)
	}
}
