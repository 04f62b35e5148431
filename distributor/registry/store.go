package registry

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/dropline-network/dropline-node/distributor/db"
	"github.com/dropline-network/dropline-node/distributor/store"
)

// Store provides database operations for the kind table and the instance
// table.
type Store struct {
	database *db.DB
}

// NewStore creates a new registry store.
func NewStore(database *db.DB) *Store {
	return &Store{
		database: database,
	}
}

// InsertKindIfNotExists appends a kind record if none exists for its id.
// Returns (true, nil) if a new record was inserted, (false, nil) if the id
// was already persisted, or (false, error) if insertion failed.
func (s *Store) InsertKindIfNotExists(record *store.KindRecord) (bool, error) {
	if s.database == nil {
		return false, fmt.Errorf("database is nil")
	}

	var existing store.KindRecord
	err := s.database.Client().Where("kind_id = ?", record.KindID).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return false, fmt.Errorf("failed to check existing kind: %w", err)
	}

	if err := s.database.Client().Create(record).Error; err != nil {
		return false, fmt.Errorf("failed to create kind record: %w", err)
	}

	return true, nil
}

// ListKinds returns all persisted kind records.
func (s *Store) ListKinds() ([]store.KindRecord, error) {
	if s.database == nil {
		return nil, fmt.Errorf("database is nil")
	}

	var records []store.KindRecord
	if err := s.database.Client().
		Order("created_at ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query kinds: %w", err)
	}

	return records, nil
}

// InsertInstance persists a newly deployed instance.
func (s *Store) InsertInstance(record *store.InstanceRecord) error {
	if s.database == nil {
		return fmt.Errorf("database is nil")
	}

	if err := s.database.Client().Create(record).Error; err != nil {
		return fmt.Errorf("failed to create instance record: %w", err)
	}

	return nil
}

// ListInstances returns all persisted instances in deployment order.
func (s *Store) ListInstances() ([]store.InstanceRecord, error) {
	if s.database == nil {
		return nil, fmt.Errorf("database is nil")
	}

	var records []store.InstanceRecord
	if err := s.database.Client().
		Order("id ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}

	return records, nil
}

// GetInstanceByAddress looks up one instance record by its address.
func (s *Store) GetInstanceByAddress(address string) (*store.InstanceRecord, error) {
	if s.database == nil {
		return nil, fmt.Errorf("database is nil")
	}

	var record store.InstanceRecord
	if err := s.database.Client().Where("address = ?", address).First(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to query instance %s: %w", address, err)
	}

	return &record, nil
}
