package core

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"

	"github.com/dropline-network/dropline-node/distributor/db"
	"github.com/dropline-network/dropline-node/distributor/store"
)

// LedgerStore provides database operations for campaigns and their
// per-recipient claim records. It implements types.ClaimReader so allocator
// strategies can read the cumulative-claimed ledger.
type LedgerStore struct {
	database *db.DB
}

// NewLedgerStore creates a new ledger store.
func NewLedgerStore(database *db.DB) *LedgerStore {
	return &LedgerStore{
		database: database,
	}
}

// InsertCampaign persists a new campaign row. GORM assigns the campaign id
// on the way in.
func (s *LedgerStore) InsertCampaign(campaign *store.Campaign) error {
	if s.database == nil {
		return fmt.Errorf("database is nil")
	}

	if err := s.database.Client().Create(campaign).Error; err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	return nil
}

// DiscardCampaign soft-deletes a campaign row whose configuration never
// completed. The row stays behind so the id is never handed out again; the
// default query scope hides it.
func (s *LedgerStore) DiscardCampaign(id uint) error {
	if s.database == nil {
		return fmt.Errorf("database is nil")
	}

	if err := s.database.Client().Delete(&store.Campaign{}, id).Error; err != nil {
		return fmt.Errorf("failed to discard campaign %d: %w", id, err)
	}

	return nil
}

// GetCampaign fetches a campaign by id, reporting whether it exists.
func (s *LedgerStore) GetCampaign(campaignID uint64) (*store.Campaign, bool, error) {
	if s.database == nil {
		return nil, false, fmt.Errorf("database is nil")
	}

	var campaign store.Campaign
	err := s.database.Client().First(&campaign, campaignID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query campaign %d: %w", campaignID, err)
	}

	return &campaign, true, nil
}

// ListCampaigns returns campaigns in creation order. With activeOnly set,
// rows whose active flag was cleared are skipped; time windows are not
// evaluated here.
func (s *LedgerStore) ListCampaigns(activeOnly bool) ([]store.Campaign, error) {
	if s.database == nil {
		return nil, fmt.Errorf("database is nil")
	}

	query := s.database.Client().Order("id ASC")
	if activeOnly {
		query = query.Where("active = ?", true)
	}

	var campaigns []store.Campaign
	if err := query.Find(&campaigns).Error; err != nil {
		return nil, fmt.Errorf("failed to query campaigns: %w", err)
	}

	return campaigns, nil
}

// Deactivate clears a campaign's active flag. The update is conditional on
// the flag still being set; the return reports whether this call flipped it.
func (s *LedgerStore) Deactivate(campaignID uint64) (bool, error) {
	if s.database == nil {
		return false, fmt.Errorf("database is nil")
	}

	result := s.database.Client().
		Model(&store.Campaign{}).
		Where("id = ? AND active = ?", campaignID, true).
		Update("active", false)
	if result.Error != nil {
		return false, fmt.Errorf("failed to deactivate campaign %d: %w", campaignID, result.Error)
	}

	return result.RowsAffected > 0, nil
}

// GetClaim fetches the claim record for one (campaign, account) pair,
// reporting whether it exists.
func (s *LedgerStore) GetClaim(campaignID uint64, account string) (*store.ClaimRecord, bool, error) {
	if s.database == nil {
		return nil, false, fmt.Errorf("database is nil")
	}

	var record store.ClaimRecord
	err := s.database.Client().
		Where("campaign_id = ? AND account = ?", campaignID, account).
		First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query claim record: %w", err)
	}

	return &record, true, nil
}

// ClaimedAmount implements types.ClaimReader. Accounts without a record have
// claimed zero.
func (s *LedgerStore) ClaimedAmount(_ context.Context, campaignID uint64, account ethcommon.Address) (sdkmath.Int, error) {
	record, found, err := s.GetClaim(campaignID, account.Hex())
	if err != nil {
		return sdkmath.Int{}, err
	}
	if !found {
		return sdkmath.ZeroInt(), nil
	}

	claimed, ok := sdkmath.NewIntFromString(record.ClaimedAmount)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("corrupt claimed amount %q for campaign %d account %s",
			record.ClaimedAmount, campaignID, account.Hex())
	}

	return claimed, nil
}

// ApplyClaim records a settled claim inside tx. The cumulative claimed
// amount is replaced with total and the claim count incremented; the first
// claim for a pair creates the record.
func (s *LedgerStore) ApplyClaim(tx *gorm.DB, campaignID uint64, account string, total sdkmath.Int) error {
	if tx == nil {
		return fmt.Errorf("transaction is nil")
	}

	var record store.ClaimRecord
	err := tx.Where("campaign_id = ? AND account = ?", campaignID, account).First(&record).Error
	if err == gorm.ErrRecordNotFound {
		record = store.ClaimRecord{
			CampaignID:    campaignID,
			Account:       account,
			ClaimedAmount: total.String(),
			ClaimCount:    1,
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to create claim record: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to query claim record: %w", err)
	}

	updates := map[string]interface{}{
		"claimed_amount": total.String(),
		"claim_count":    gorm.Expr("claim_count + 1"),
	}
	if err := tx.Model(&record).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update claim record: %w", err)
	}

	return nil
}

// Transaction runs fn inside one database transaction.
func (s *LedgerStore) Transaction(fn func(tx *gorm.DB) error) error {
	if s.database == nil {
		return fmt.Errorf("database is nil")
	}
	return s.database.Transaction(fn)
}
