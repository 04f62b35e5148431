package encoder

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/dropline-network/dropline-node/distributor/db"
	"github.com/dropline-network/dropline-node/distributor/store"
)

// PayoutStore provides database operations for per-campaign encoder state.
type PayoutStore struct {
	database *db.DB
}

// NewPayoutStore creates a new payout store.
func NewPayoutStore(database *db.DB) *PayoutStore {
	return &PayoutStore{
		database: database,
	}
}

// InsertConfigIfNotExists persists a campaign config unless one already
// exists for its (instance, owner, campaign) key. Returns (true, nil) if a
// new config was inserted, (false, nil) if the key was already configured,
// or (false, error) if insertion failed.
func (s *PayoutStore) InsertConfigIfNotExists(config *store.PayoutConfig) (bool, error) {
	if s.database == nil {
		return false, fmt.Errorf("database is nil")
	}

	var existing store.PayoutConfig
	err := s.database.Client().
		Where("instance = ? AND owner = ? AND campaign_id = ?", config.Instance, config.Owner, config.CampaignID).
		First(&existing).Error
	if err == nil {
		return false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return false, fmt.Errorf("failed to check existing payout config: %w", err)
	}

	if err := s.database.Client().Create(config).Error; err != nil {
		return false, fmt.Errorf("failed to create payout config: %w", err)
	}

	return true, nil
}

// GetConfig fetches the campaign config for the key, reporting whether it
// exists.
func (s *PayoutStore) GetConfig(instance, owner string, campaignID uint64) (*store.PayoutConfig, bool, error) {
	if s.database == nil {
		return nil, false, fmt.Errorf("database is nil")
	}

	var config store.PayoutConfig
	err := s.database.Client().
		Where("instance = ? AND owner = ? AND campaign_id = ?", instance, owner, campaignID).
		First(&config).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query payout config: %w", err)
	}

	return &config, true, nil
}
