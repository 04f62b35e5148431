package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dropline-network/dropline-node/distributor/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestDB_OpenModes(t *testing.T) {
	t.Run("in-memory alias", func(t *testing.T) {
		db, err := OpenInMemoryDB(true)
		require.NoError(t, err)
		require.NotNil(t, db)

		runSampleInsertSelectTest(t, db)
		assert.NoError(t, db.Close())
	})

	t.Run("in-memory direct", func(t *testing.T) {
		db, err := openSQLite(InMemorySQLiteDSN, true)
		require.NoError(t, err)
		require.NotNil(t, db)

		runSampleInsertSelectTest(t, db)
		assert.NoError(t, db.Close())
	})

	t.Run("file-based DB", func(t *testing.T) {
		dir := t.TempDir()
		dbName := "test.db"

		db, err := OpenFileDB(dir, dbName, true)
		require.NoError(t, err)
		require.NotNil(t, db)

		assert.FileExists(t, filepath.Join(dir, dbName))

		runSampleInsertSelectTest(t, db)

		assert.NoError(t, db.Close())

		t.Run("close twice", func(t *testing.T) {
			assert.NoError(t, db.Close())
		})
	})

	t.Run("invalid path fails", func(t *testing.T) {
		occupied := filepath.Join(t.TempDir(), "plain.txt")
		require.NoError(t, os.WriteFile(occupied, []byte("not a directory"), 0o600))

		db, err := OpenFileDB(filepath.Join(occupied, "sub"), "db.db", true)
		require.ErrorContains(t, err, "failed to prepare database path")
		require.Nil(t, db)
	})
}

func TestDB_Transaction(t *testing.T) {
	db, err := OpenInMemoryDB(true)
	require.NoError(t, err)
	defer db.Close()

	t.Run("commit persists all writes", func(t *testing.T) {
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&store.ClaimRecord{CampaignID: 1, Account: "0xaa", ClaimedAmount: "5"}).Error; err != nil {
				return err
			}
			return tx.Create(&store.ClaimRecord{CampaignID: 1, Account: "0xbb", ClaimedAmount: "7"}).Error
		})
		require.NoError(t, err)

		var count int64
		require.NoError(t, db.Client().Model(&store.ClaimRecord{}).Count(&count).Error)
		assert.Equal(t, int64(2), count)
	})

	t.Run("rollback discards all writes", func(t *testing.T) {
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&store.ClaimRecord{CampaignID: 2, Account: "0xcc", ClaimedAmount: "1"}).Error; err != nil {
				return err
			}
			return assert.AnError
		})
		require.ErrorIs(t, err, assert.AnError)

		var count int64
		require.NoError(t, db.Client().Model(&store.ClaimRecord{}).Where("campaign_id = ?", 2).Count(&count).Error)
		assert.Equal(t, int64(0), count)
	})
}

func runSampleInsertSelectTest(t *testing.T, db *DB) {
	// Given a sample row
	entry := store.Campaign{
		Owner:           "0x1111111111111111111111111111111111111111",
		Token:           "0x2222222222222222222222222222222222222222",
		StrategyAddress: "0x3333333333333333333333333333333333333333",
		Active:          true,
	}

	// ACT: Insert
	err := db.Client().Create(&entry).Error
	require.NoError(t, err)

	// ACT: Select
	var result store.Campaign
	err = db.Client().First(&result).Error
	require.NoError(t, err)
	assert.Equal(t, entry.Owner, result.Owner)
	assert.True(t, result.Active)
}
