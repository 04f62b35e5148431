package cron

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropline-network/dropline-node/distributor/db"
	"github.com/dropline-network/dropline-node/distributor/executor"
	"github.com/dropline-network/dropline-node/distributor/store"
)

func TestReceiptCleaner(t *testing.T) {
	database, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, database.Close())
	})

	oldExecuted := stageReceipt(t, database, 1, store.ReceiptStatusExecuted, 1, 48*time.Hour)
	freshExecuted := stageReceipt(t, database, 1, store.ReceiptStatusExecuted, 1, time.Hour)
	oldFailed := stageReceipt(t, database, 1, store.ReceiptStatusFailed, 1, 48*time.Hour)

	cleaner := NewReceiptCleaner(database, time.Minute, 24*time.Hour, zerolog.Nop())
	require.NoError(t, cleaner.performCleanup())

	receipts := executor.NewReceiptStore(database)

	_, err = receipts.Get(oldExecuted)
	assert.Error(t, err)

	fresh, err := receipts.Get(freshExecuted)
	require.NoError(t, err)
	assert.Equal(t, store.ReceiptStatusExecuted, fresh.Status)

	// The retry backlog is never pruned, no matter how old.
	failed, err := receipts.Get(oldFailed)
	require.NoError(t, err)
	assert.Equal(t, store.ReceiptStatusFailed, failed.Status)
}
