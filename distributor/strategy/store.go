package strategy

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/dropline-network/dropline-node/distributor/db"
	"github.com/dropline-network/dropline-node/distributor/store"
)

// AllocationStore provides database operations for per-campaign allocator
// state.
type AllocationStore struct {
	database *db.DB
}

// NewAllocationStore creates a new allocation store.
func NewAllocationStore(database *db.DB) *AllocationStore {
	return &AllocationStore{
		database: database,
	}
}

// InsertConfigIfNotExists persists a campaign config unless one already
// exists for its (instance, owner, campaign) key. Returns (true, nil) if a
// new config was inserted, (false, nil) if the key was already configured,
// or (false, error) if insertion failed.
func (s *AllocationStore) InsertConfigIfNotExists(config *store.AllocationConfig) (bool, error) {
	if s.database == nil {
		return false, fmt.Errorf("database is nil")
	}

	var existing store.AllocationConfig
	err := s.database.Client().
		Where("instance = ? AND owner = ? AND campaign_id = ?", config.Instance, config.Owner, config.CampaignID).
		First(&existing).Error
	if err == nil {
		return false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return false, fmt.Errorf("failed to check existing allocation config: %w", err)
	}

	if err := s.database.Client().Create(config).Error; err != nil {
		return false, fmt.Errorf("failed to create allocation config: %w", err)
	}

	return true, nil
}

// GetConfig fetches the campaign config for the key, reporting whether it
// exists.
func (s *AllocationStore) GetConfig(instance, owner string, campaignID uint64) (*store.AllocationConfig, bool, error) {
	if s.database == nil {
		return nil, false, fmt.Errorf("database is nil")
	}

	var config store.AllocationConfig
	err := s.database.Client().
		Where("instance = ? AND owner = ? AND campaign_id = ?", instance, owner, campaignID).
		First(&config).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query allocation config: %w", err)
	}

	return &config, true, nil
}

// UpdateRoot replaces the stored root for the key. Returns the number of
// rows updated; zero means the key was never configured.
func (s *AllocationStore) UpdateRoot(instance, owner string, campaignID uint64, root string) (int64, error) {
	if s.database == nil {
		return 0, fmt.Errorf("database is nil")
	}

	res := s.database.Client().
		Model(&store.AllocationConfig{}).
		Where("instance = ? AND owner = ? AND campaign_id = ?", instance, owner, campaignID).
		Update("root", root)

	if res.Error != nil {
		return 0, fmt.Errorf("failed to update root: %w", res.Error)
	}

	return res.RowsAffected, nil
}
