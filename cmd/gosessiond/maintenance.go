package main

import (
	"context"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"go.uber.org/zap"
)

// runMaintenance rotates signing keys that are due and purges expired lineage
// history every interval until ctx is done. One pass runs immediately.
func runMaintenance(ctx context.Context, engine *goSession.Engine, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		maintain(ctx, engine, logger)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func maintain(ctx context.Context, engine *goSession.Engine, logger *zap.Logger) {
	start := time.Now()

	report, err := engine.RotateSigningKeys(ctx)
	if err != nil {
		logger.Error("key rotation failed", zap.Error(err))
	}

	purged, err := engine.PurgeHistory(ctx)
	if err != nil {
		logger.Error("history purge failed", zap.Error(err))
	}

	logger.Debug("maintenance pass finished",
		zap.Bool("access_key_rotated", report.Access.Rotated),
		zap.Bool("refresh_key_rotated", report.Refresh.Rotated),
		zap.Int("history_purged", purged),
		zap.Duration("took", time.Since(start)))
}
