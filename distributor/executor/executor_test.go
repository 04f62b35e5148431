package executor

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dropline-network/dropline-node/distributor/db"
	disterrors "github.com/dropline-network/dropline-node/distributor/errors"
	"github.com/dropline-network/dropline-node/distributor/store"
	"github.com/dropline-network/dropline-node/distributor/types"
)

var (
	testDistributor = ethcommon.HexToAddress("0xd157")
	testClaimant    = ethcommon.HexToAddress("0xc1a1")
)

// stubBackend records executions and can be forced to fail.
type stubBackend struct {
	executions []stubExecution
	err        error
}

type stubExecution struct {
	id      types.ExecutionID
	actions []types.Action
}

func (s *stubBackend) Execute(_ context.Context, id types.ExecutionID, actions []types.Action) error {
	if s.err != nil {
		return s.err
	}
	s.executions = append(s.executions, stubExecution{id: id, actions: actions})
	return nil
}

func setupExecutorDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func insertReceipt(t *testing.T, database *db.DB, campaignID uint64, attempts uint64, status string) *store.ExecutionReceipt {
	t.Helper()

	actions := []types.Action{
		types.NewAction(ethcommon.HexToAddress("0x70c3"), simCallData(simTransferSelector, addrWord(testClaimant), intWord(5))),
	}
	receipt, err := NewReceipt(types.NewExecutionID(testDistributor, campaignID), campaignID, testClaimant, sdkmath.NewInt(5), actions)
	require.NoError(t, err)

	receipts := NewReceiptStore(database)
	require.NoError(t, database.Transaction(func(tx *gorm.DB) error {
		return receipts.InsertPending(tx, receipt)
	}))

	// Pre-set bookkeeping for list filtering scenarios.
	if attempts > 0 || status != store.ReceiptStatusPending {
		require.NoError(t, database.Client().
			Model(&store.ExecutionReceipt{}).
			Where("id = ?", receipt.ID).
			Updates(map[string]interface{}{"attempts": attempts, "status": status}).Error)
	}

	return receipt
}

func TestReceiptStore(t *testing.T) {
	t.Run("insert pending and get", func(t *testing.T) {
		database := setupExecutorDB(t)
		receipt := insertReceipt(t, database, 1, 0, store.ReceiptStatusPending)
		require.NotZero(t, receipt.ID)

		fetched, err := NewReceiptStore(database).Get(receipt.ID)
		require.NoError(t, err)
		assert.Equal(t, store.ReceiptStatusPending, fetched.Status)
		assert.Equal(t, receipt.ExecutionID, fetched.ExecutionID)
		assert.Equal(t, "5", fetched.Amount)
	})

	t.Run("mark executed bumps attempts and clears error", func(t *testing.T) {
		database := setupExecutorDB(t)
		receipts := NewReceiptStore(database)
		receipt := insertReceipt(t, database, 1, 0, store.ReceiptStatusPending)

		require.NoError(t, receipts.MarkFailed(receipt.ID, "boom"))
		require.NoError(t, receipts.MarkExecuted(receipt.ID))

		fetched, err := receipts.Get(receipt.ID)
		require.NoError(t, err)
		assert.Equal(t, store.ReceiptStatusExecuted, fetched.Status)
		assert.Equal(t, uint64(2), fetched.Attempts)
		assert.Empty(t, fetched.ErrorMsg)
	})

	t.Run("mark failed records message", func(t *testing.T) {
		database := setupExecutorDB(t)
		receipts := NewReceiptStore(database)
		receipt := insertReceipt(t, database, 1, 0, store.ReceiptStatusPending)

		require.NoError(t, receipts.MarkFailed(receipt.ID, "backend unavailable"))

		fetched, err := receipts.Get(receipt.ID)
		require.NoError(t, err)
		assert.Equal(t, store.ReceiptStatusFailed, fetched.Status)
		assert.Equal(t, uint64(1), fetched.Attempts)
		assert.Equal(t, "backend unavailable", fetched.ErrorMsg)
	})

	t.Run("marking a missing receipt fails", func(t *testing.T) {
		database := setupExecutorDB(t)
		receipts := NewReceiptStore(database)

		require.Error(t, receipts.MarkExecuted(4242))
		require.Error(t, receipts.MarkFailed(4242, "nope"))
	})

	t.Run("list retryable honors attempt cap and order", func(t *testing.T) {
		database := setupExecutorDB(t)
		receipts := NewReceiptStore(database)

		pending := insertReceipt(t, database, 1, 0, store.ReceiptStatusPending)
		failed := insertReceipt(t, database, 2, 1, store.ReceiptStatusFailed)
		insertReceipt(t, database, 3, 5, store.ReceiptStatusFailed)   // exhausted
		insertReceipt(t, database, 4, 1, store.ReceiptStatusExecuted) // done

		retryable, err := receipts.ListRetryable(3, 0)
		require.NoError(t, err)
		require.Len(t, retryable, 2)
		assert.Equal(t, pending.ID, retryable[0].ID)
		assert.Equal(t, failed.ID, retryable[1].ID)

		limited, err := receipts.ListRetryable(3, 1)
		require.NoError(t, err)
		require.Len(t, limited, 1)
		assert.Equal(t, pending.ID, limited[0].ID)
	})

	t.Run("list by campaign and count by status", func(t *testing.T) {
		database := setupExecutorDB(t)
		receipts := NewReceiptStore(database)

		insertReceipt(t, database, 7, 0, store.ReceiptStatusPending)
		insertReceipt(t, database, 7, 1, store.ReceiptStatusExecuted)
		insertReceipt(t, database, 8, 0, store.ReceiptStatusPending)

		byCampaign, err := receipts.ListByCampaign(7)
		require.NoError(t, err)
		assert.Len(t, byCampaign, 2)

		pendingCount, err := receipts.CountByStatus(store.ReceiptStatusPending)
		require.NoError(t, err)
		assert.Equal(t, int64(2), pendingCount)
	})
}

func TestDispatcher(t *testing.T) {
	ctx := context.Background()

	t.Run("successful dispatch marks executed", func(t *testing.T) {
		database := setupExecutorDB(t)
		backend := &stubBackend{}
		dispatcher := NewDispatcher(backend, database, zerolog.Nop())

		receipt := insertReceipt(t, database, 1, 0, store.ReceiptStatusPending)
		require.NoError(t, dispatcher.Dispatch(ctx, receipt))

		require.Len(t, backend.executions, 1)
		assert.Equal(t, types.NewExecutionID(testDistributor, 1), backend.executions[0].id)
		require.Len(t, backend.executions[0].actions, 1)

		fetched, err := dispatcher.Receipts().Get(receipt.ID)
		require.NoError(t, err)
		assert.Equal(t, store.ReceiptStatusExecuted, fetched.Status)
		assert.Equal(t, uint64(1), fetched.Attempts)
	})

	t.Run("failed dispatch marks failed and keeps receipt", func(t *testing.T) {
		database := setupExecutorDB(t)
		backend := &stubBackend{err: assert.AnError}
		dispatcher := NewDispatcher(backend, database, zerolog.Nop())

		receipt := insertReceipt(t, database, 1, 0, store.ReceiptStatusPending)
		err := dispatcher.Dispatch(ctx, receipt)
		require.ErrorIs(t, err, disterrors.ErrExecutionFailed)

		fetched, fetchErr := dispatcher.Receipts().Get(receipt.ID)
		require.NoError(t, fetchErr)
		assert.Equal(t, store.ReceiptStatusFailed, fetched.Status)
		assert.Equal(t, uint64(1), fetched.Attempts)
		assert.NotEmpty(t, fetched.ErrorMsg)
	})

	t.Run("malformed stored actions mark failed", func(t *testing.T) {
		database := setupExecutorDB(t)
		dispatcher := NewDispatcher(&stubBackend{}, database, zerolog.Nop())

		receipt := insertReceipt(t, database, 1, 0, store.ReceiptStatusPending)
		require.NoError(t, database.Client().
			Model(&store.ExecutionReceipt{}).
			Where("id = ?", receipt.ID).
			Update("actions", []byte("{not json")).Error)
		receipt.Actions = []byte("{not json")

		err := dispatcher.Dispatch(ctx, receipt)
		require.ErrorIs(t, err, disterrors.ErrExecutionFailed)

		fetched, fetchErr := dispatcher.Receipts().Get(receipt.ID)
		require.NoError(t, fetchErr)
		assert.Equal(t, store.ReceiptStatusFailed, fetched.Status)
	})
}
