package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dropline-network/dropline-node/distributor/db"
	"github.com/dropline-network/dropline-node/distributor/executor"
)

// ReceiptCleaner periodically removes executed receipts once they outlive the
// retention period. Pending and failed receipts are never touched; they are
// the retry backlog.
type ReceiptCleaner struct {
	database        *db.DB
	receipts        *executor.ReceiptStore
	cleanupInterval time.Duration
	retentionPeriod time.Duration
	logger          zerolog.Logger
	ticker          *time.Ticker
	stopCh          chan struct{}
}

// NewReceiptCleaner creates a new receipt cleaner.
func NewReceiptCleaner(
	database *db.DB,
	cleanupInterval time.Duration,
	retentionPeriod time.Duration,
	logger zerolog.Logger,
) *ReceiptCleaner {
	return &ReceiptCleaner{
		database:        database,
		receipts:        executor.NewReceiptStore(database),
		cleanupInterval: cleanupInterval,
		retentionPeriod: retentionPeriod,
		logger:          logger.With().Str("component", "receipt_cleaner").Logger(),
		stopCh:          make(chan struct{}),
	}
}

// Start begins the periodic cleanup process.
func (rc *ReceiptCleaner) Start(ctx context.Context) error {
	rc.logger.Info().
		Str("cleanup_interval", rc.cleanupInterval.String()).
		Str("retention_period", rc.retentionPeriod.String()).
		Msg("starting receipt cleaner")

	if err := rc.performCleanup(); err != nil {
		rc.logger.Error().Err(err).Msg("failed to perform initial cleanup")
	}

	rc.ticker = time.NewTicker(rc.cleanupInterval)

	go func() {
		defer rc.ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				rc.logger.Info().Msg("context cancelled, stopping receipt cleaner")
				return
			case <-rc.stopCh:
				rc.logger.Info().Msg("stop signal received, stopping receipt cleaner")
				return
			case <-rc.ticker.C:
				if err := rc.performCleanup(); err != nil {
					rc.logger.Error().Err(err).Msg("failed to perform scheduled cleanup")
				}
			}
		}
	}()

	return nil
}

// Stop gracefully stops the receipt cleaner.
func (rc *ReceiptCleaner) Stop() {
	rc.logger.Info().Msg("stopping receipt cleaner")

	if rc.ticker != nil {
		rc.ticker.Stop()
	}

	close(rc.stopCh)
}

// performCleanup deletes executed receipts older than the retention period.
func (rc *ReceiptCleaner) performCleanup() error {
	start := time.Now()

	cutoff := time.Now().Add(-rc.retentionPeriod)
	deleted, err := rc.receipts.DeleteExecutedBefore(cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup receipts: %w", err)
	}

	duration := time.Since(start)

	if deleted > 0 {
		rc.logger.Info().
			Int64("deleted_count", deleted).
			Str("duration", duration.String()).
			Msg("executed receipt cleanup completed")

		// Checkpoint WAL after cleanup
		rc.checkpointWAL()
	} else {
		rc.logger.Debug().
			Str("duration", duration.String()).
			Msg("receipt cleanup completed - nothing past retention")
	}

	return nil
}

// checkpointWAL forces a checkpoint and truncates the WAL file.
func (rc *ReceiptCleaner) checkpointWAL() {
	if err := rc.database.Client().Exec("PRAGMA wal_checkpoint(TRUNCATE)").Error; err != nil {
		rc.logger.Warn().
			Err(err).
			Msg("failed to checkpoint WAL")
	} else {
		rc.logger.Debug().Msg("WAL checkpoint completed")
	}
}
