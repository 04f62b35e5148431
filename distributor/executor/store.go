package executor

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dropline-network/dropline-node/distributor/db"
	"github.com/dropline-network/dropline-node/distributor/store"
)

// ReceiptStore provides database operations for execution receipts.
type ReceiptStore struct {
	database *db.DB
}

// NewReceiptStore creates a new receipt store.
func NewReceiptStore(database *db.DB) *ReceiptStore {
	return &ReceiptStore{
		database: database,
	}
}

// InsertPending persists a fresh receipt inside the given transaction. The
// claim flow passes its ledger transaction here so the claim update and the
// pending receipt commit together.
func (s *ReceiptStore) InsertPending(tx *gorm.DB, receipt *store.ExecutionReceipt) error {
	if tx == nil {
		return fmt.Errorf("transaction is nil")
	}

	receipt.Status = store.ReceiptStatusPending
	if err := tx.Create(receipt).Error; err != nil {
		return fmt.Errorf("failed to create execution receipt: %w", err)
	}

	return nil
}

// MarkExecuted records a successful dispatch.
func (s *ReceiptStore) MarkExecuted(id uint) error {
	if s.database == nil {
		return fmt.Errorf("database is nil")
	}

	result := s.database.Client().
		Model(&store.ExecutionReceipt{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":    store.ReceiptStatusExecuted,
			"attempts":  gorm.Expr("attempts + 1"),
			"error_msg": "",
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark receipt executed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("receipt %d not found", id)
	}

	return nil
}

// MarkFailed records a failed dispatch attempt with its error message.
func (s *ReceiptStore) MarkFailed(id uint, message string) error {
	if s.database == nil {
		return fmt.Errorf("database is nil")
	}

	result := s.database.Client().
		Model(&store.ExecutionReceipt{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":    store.ReceiptStatusFailed,
			"attempts":  gorm.Expr("attempts + 1"),
			"error_msg": message,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark receipt failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("receipt %d not found", id)
	}

	return nil
}

// ListRetryable returns receipts that still need a dispatch: pending or
// failed rows whose attempt count is below maxAttempts, oldest first.
func (s *ReceiptStore) ListRetryable(maxAttempts uint64, limit int) ([]store.ExecutionReceipt, error) {
	if s.database == nil {
		return nil, fmt.Errorf("database is nil")
	}

	var receipts []store.ExecutionReceipt
	query := s.database.Client().
		Where("status IN ? AND attempts < ?", []string{store.ReceiptStatusPending, store.ReceiptStatusFailed}, maxAttempts).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&receipts).Error; err != nil {
		return nil, fmt.Errorf("failed to list retryable receipts: %w", err)
	}

	return receipts, nil
}

// ListByCampaign returns all receipts recorded for a campaign, oldest first.
func (s *ReceiptStore) ListByCampaign(campaignID uint64) ([]store.ExecutionReceipt, error) {
	if s.database == nil {
		return nil, fmt.Errorf("database is nil")
	}

	var receipts []store.ExecutionReceipt
	if err := s.database.Client().
		Where("campaign_id = ?", campaignID).
		Order("id ASC").
		Find(&receipts).Error; err != nil {
		return nil, fmt.Errorf("failed to list campaign receipts: %w", err)
	}

	return receipts, nil
}

// Get fetches one receipt by its row id.
func (s *ReceiptStore) Get(id uint) (*store.ExecutionReceipt, error) {
	if s.database == nil {
		return nil, fmt.Errorf("database is nil")
	}

	var receipt store.ExecutionReceipt
	if err := s.database.Client().First(&receipt, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get receipt %d: %w", id, err)
	}

	return &receipt, nil
}

// CountByStatus returns the number of receipts in the given status.
func (s *ReceiptStore) CountByStatus(status string) (int64, error) {
	if s.database == nil {
		return 0, fmt.Errorf("database is nil")
	}

	var count int64
	if err := s.database.Client().
		Model(&store.ExecutionReceipt{}).
		Where("status = ?", status).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count receipts: %w", err)
	}

	return count, nil
}

// DeleteExecutedBefore removes executed receipts last touched before cutoff.
// Returns the number of rows removed.
func (s *ReceiptStore) DeleteExecutedBefore(cutoff time.Time) (int64, error) {
	if s.database == nil {
		return 0, fmt.Errorf("database is nil")
	}

	result := s.database.Client().
		Where("status = ? AND updated_at < ?", store.ReceiptStatusExecuted, cutoff).
		Delete(&store.ExecutionReceipt{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete executed receipts: %w", result.Error)
	}

	return result.RowsAffected, nil
}
