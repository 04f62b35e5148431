// Package cron runs the engine's periodic jobs: redispatching receipts whose
// payout never executed, and pruning executed receipts past retention.
package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dropline-network/dropline-node/distributor/executor"
	"github.com/dropline-network/dropline-node/distributor/metrics"
	"github.com/dropline-network/dropline-node/distributor/store"
)

// RetryPolicy shapes the redispatch schedule.
type RetryPolicy struct {
	Interval    time.Duration // sweep cadence
	BaseBackoff time.Duration // delay before the first redispatch, doubled per attempt
	MaxBackoff  time.Duration // backoff cap
	MaxAttempts uint64        // receipts at this many attempts are left alone
	BatchSize   int           // receipts per sweep, 0 = unbounded
}

// DefaultRetryPolicy returns the schedule used when configuration does not
// override it.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Interval:    30 * time.Second,
		BaseBackoff: 10 * time.Second,
		MaxBackoff:  10 * time.Minute,
		MaxAttempts: 10,
		BatchSize:   50,
	}
}

// DispatchRetrier periodically re-dispatches receipts that are still pending
// (committed but never executed, as after a crash between commit and
// dispatch) or failed. The ledger already settled these claims, so the only
// safe direction is forward.
type DispatchRetrier struct {
	dispatcher *executor.Dispatcher
	policy     RetryPolicy
	logger     zerolog.Logger
	ticker     *time.Ticker
	stopCh     chan struct{}
}

// NewDispatchRetrier creates a new dispatch retrier.
func NewDispatchRetrier(dispatcher *executor.Dispatcher, policy RetryPolicy, logger zerolog.Logger) *DispatchRetrier {
	return &DispatchRetrier{
		dispatcher: dispatcher,
		policy:     policy,
		logger:     logger.With().Str("component", "dispatch_retrier").Logger(),
		stopCh:     make(chan struct{}),
	}
}

// Start begins the periodic redispatch sweeps.
func (dr *DispatchRetrier) Start(ctx context.Context) error {
	dr.logger.Info().
		Str("interval", dr.policy.Interval.String()).
		Uint64("max_attempts", dr.policy.MaxAttempts).
		Msg("starting dispatch retrier")

	// Pick up anything a previous run left behind.
	if err := dr.performSweep(ctx); err != nil {
		dr.logger.Error().Err(err).Msg("failed to perform initial sweep")
	}

	dr.ticker = time.NewTicker(dr.policy.Interval)

	go func() {
		defer dr.ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				dr.logger.Info().Msg("context cancelled, stopping dispatch retrier")
				return
			case <-dr.stopCh:
				dr.logger.Info().Msg("stop signal received, stopping dispatch retrier")
				return
			case <-dr.ticker.C:
				if err := dr.performSweep(ctx); err != nil {
					dr.logger.Error().Err(err).Msg("failed to perform scheduled sweep")
				}
			}
		}
	}()

	return nil
}

// Stop gracefully stops the retrier.
func (dr *DispatchRetrier) Stop() {
	dr.logger.Info().Msg("stopping dispatch retrier")

	if dr.ticker != nil {
		dr.ticker.Stop()
	}

	close(dr.stopCh)
}

// performSweep redispatches every due receipt and refreshes the backlog
// gauge. Receipts younger than their backoff window are skipped; that window
// also keeps the sweep off receipts the claim path is dispatching right now.
func (dr *DispatchRetrier) performSweep(ctx context.Context) error {
	start := time.Now()
	receipts := dr.dispatcher.Receipts()

	candidates, err := receipts.ListRetryable(dr.policy.MaxAttempts, dr.policy.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list retryable receipts: %w", err)
	}

	var retried, executed int
	for i := range candidates {
		receipt := &candidates[i]
		if time.Since(receipt.UpdatedAt) < dr.backoffFor(receipt.Attempts) {
			continue
		}

		retried++
		if err := dr.dispatcher.Dispatch(ctx, receipt); err != nil {
			metrics.RecordDispatch("failed")
			dr.logger.Warn().
				Err(err).
				Uint("receipt_id", receipt.ID).
				Uint64("attempts", receipt.Attempts).
				Msg("redispatch failed")
			continue
		}
		metrics.RecordDispatch("executed")
		executed++
	}

	if err := dr.refreshBacklogGauge(); err != nil {
		dr.logger.Warn().Err(err).Msg("failed to refresh backlog gauge")
	}

	if retried > 0 {
		dr.logger.Info().
			Int("retried", retried).
			Int("executed", executed).
			Str("duration", time.Since(start).String()).
			Msg("dispatch sweep completed")
	} else {
		dr.logger.Debug().
			Str("duration", time.Since(start).String()).
			Msg("dispatch sweep completed - nothing due")
	}

	return nil
}

// backoffFor doubles the base delay per recorded attempt, capped at the
// policy maximum.
func (dr *DispatchRetrier) backoffFor(attempts uint64) time.Duration {
	backoff := dr.policy.BaseBackoff
	for i := uint64(0); i < attempts; i++ {
		backoff *= 2
		if backoff >= dr.policy.MaxBackoff {
			return dr.policy.MaxBackoff
		}
	}
	return backoff
}

// refreshBacklogGauge publishes the count of receipts that still lack a
// successful execution.
func (dr *DispatchRetrier) refreshBacklogGauge() error {
	receipts := dr.dispatcher.Receipts()

	pending, err := receipts.CountByStatus(store.ReceiptStatusPending)
	if err != nil {
		return err
	}
	failed, err := receipts.CountByStatus(store.ReceiptStatusFailed)
	if err != nil {
		return err
	}

	metrics.SetPendingReceipts(pending + failed)
	return nil
}
