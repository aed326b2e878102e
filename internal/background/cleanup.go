package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/mercatohq/bastion/internal/store"
)

// CleanupManager periodically sweeps expired records out of the key-value
// store. Only stores that implement Pruner need this; Redis expires keys
// natively and the sweep is skipped entirely.
type CleanupManager struct {
	pruner   store.Pruner
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(pruner store.Pruner, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		pruner:   pruner,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// runCleanup removes expired records from the store
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pruned, err := cm.pruner.PruneExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to prune expired records", slog.Any("error", err))
		return
	}

	if pruned > 0 {
		cm.logger.Info("expired record cleanup completed", slog.Int64("records_pruned", pruned))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
