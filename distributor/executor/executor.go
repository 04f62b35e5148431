// Package executor dispatches settled payout action lists to an execution
// backend and tracks every dispatch as a durable receipt. The claim flow
// writes its ledger update and the pending receipt in one transaction
// before dispatching, so no execution can outrun its ledger entry; a
// dispatch that fails leaves the receipt behind for the retry job instead
// of rolling the ledger back.
package executor

import (
	"context"
	"encoding/json"

	sdkerrors "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/dropline-network/dropline-node/distributor/db"
	disterrors "github.com/dropline-network/dropline-node/distributor/errors"
	"github.com/dropline-network/dropline-node/distributor/store"
	"github.com/dropline-network/dropline-node/distributor/types"
)

// Dispatcher pairs an execution backend with the receipt bookkeeping. All
// dispatches, first attempts and retries alike, flow through it.
type Dispatcher struct {
	executor types.Executor
	receipts *ReceiptStore
	logger   zerolog.Logger
}

// NewDispatcher creates a dispatcher for the given backend.
func NewDispatcher(backend types.Executor, database *db.DB, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		executor: backend,
		receipts: NewReceiptStore(database),
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Receipts exposes the receipt store for ledger transactions and queries.
func (d *Dispatcher) Receipts() *ReceiptStore {
	return d.receipts
}

// NewReceipt builds the pending receipt row for a settled claim.
func NewReceipt(executionID types.ExecutionID, campaignID uint64, recipient ethcommon.Address, amount sdkmath.Int, actions []types.Action) (*store.ExecutionReceipt, error) {
	encoded, err := json.Marshal(actions)
	if err != nil {
		return nil, sdkerrors.Wrapf(disterrors.ErrExecutionFailed, "encoding actions: %s", err)
	}

	return &store.ExecutionReceipt{
		ExecutionID: executionID.Hex(),
		CampaignID:  campaignID,
		Recipient:   recipient.Hex(),
		Amount:      amount.String(),
		Actions:     encoded,
		Status:      store.ReceiptStatusPending,
	}, nil
}

// Dispatch sends the receipt's action list to the backend and records the
// outcome. A failed dispatch marks the receipt failed and returns the
// execution error; the claim ledger is never touched here.
func (d *Dispatcher) Dispatch(ctx context.Context, receipt *store.ExecutionReceipt) error {
	executionID, err := types.ExecutionIDFromHex(receipt.ExecutionID)
	if err != nil {
		return d.fail(receipt, sdkerrors.Wrapf(disterrors.ErrExecutionFailed, "receipt %d has malformed execution id: %s", receipt.ID, err))
	}

	var actions []types.Action
	if err := json.Unmarshal(receipt.Actions, &actions); err != nil {
		return d.fail(receipt, sdkerrors.Wrapf(disterrors.ErrExecutionFailed, "receipt %d has malformed actions: %s", receipt.ID, err))
	}

	if err := d.executor.Execute(ctx, executionID, actions); err != nil {
		return d.fail(receipt, sdkerrors.Wrapf(disterrors.ErrExecutionFailed, "receipt %d: %s", receipt.ID, err))
	}

	if err := d.receipts.MarkExecuted(receipt.ID); err != nil {
		return err
	}

	d.logger.Info().
		Uint("receipt_id", receipt.ID).
		Uint64("campaign_id", receipt.CampaignID).
		Str("recipient", receipt.Recipient).
		Str("amount", receipt.Amount).
		Msg("payout executed")

	return nil
}

func (d *Dispatcher) fail(receipt *store.ExecutionReceipt, dispatchErr error) error {
	if err := d.receipts.MarkFailed(receipt.ID, dispatchErr.Error()); err != nil {
		d.logger.Error().
			Err(err).
			Uint("receipt_id", receipt.ID).
			Msg("failed to record dispatch failure")
	}

	d.logger.Error().
		Err(dispatchErr).
		Uint("receipt_id", receipt.ID).
		Uint64("campaign_id", receipt.CampaignID).
		Msg("payout dispatch failed")

	return dispatchErr
}
