// Package store contains GORM-backed SQLite models used by the distribution
// engine.
//
// Database Structure (database file: distributor.db):
//
//	databases/
//	└── distributor.db
//	    ├── kind_records
//	    ├── instance_records
//	    ├── campaigns
//	    ├── claim_records
//	    ├── allocation_configs
//	    ├── payout_configs
//	    └── execution_receipts
package store

import (
	"gorm.io/gorm"
)

// KindRecord is one entry in the append-only kind registry. A kind binds a
// human-readable implementation name to its 32-byte identifier.
type KindRecord struct {
	gorm.Model
	KindID       string `gorm:"uniqueIndex;not null"` // Hex of keccak256(name)
	Name         string `gorm:"not null"`             // e.g. "allocator.merkle.v1"
	Role         string `gorm:"index;not null"`       // "allocator" or "payout"
	RegisteredBy string // Address that registered the kind
}

// InstanceRecord is one deduplicated instance produced by the factory.
// InstanceKey is the full-parameter hash, so identical deployment requests
// resolve to the same record.
type InstanceRecord struct {
	gorm.Model
	InstanceKey string `gorm:"uniqueIndex;not null"` // Hex of keccak256(kindID ‖ authority ‖ initParams)
	KindID      string `gorm:"index;not null"`
	Authority   string // Address allowed to administer the instance
	InitParams  []byte // Raw constructor parameters
	Address     string `gorm:"uniqueIndex;not null"` // Deterministic instance address
}

// Campaign is one distribution campaign tracked by the ledger. Rows are never
// deleted and ids are never reused. StrategyAddress and Token are immutable
// after creation; Active only ever flips true to false.
type Campaign struct {
	gorm.Model
	Owner           string `gorm:"index;not null"` // Campaign creator
	Token           string `gorm:"not null"`       // Distributed asset
	StrategyAddress string `gorm:"not null"`       // Bound allocator instance
	EncoderAddress  string // Bound payout encoder instance (empty = plain transfer)
	Metadata        []byte // Opaque metadata blob, uninterpreted
	MultipleClaims  bool   // Whether a recipient may claim more than once
	StartTime       int64  // Unix seconds, 0 = open start
	EndTime         int64  // Unix seconds, 0 = open end
	Active          bool   `gorm:"index"`
}

// ClaimRecord tracks the cumulative amount claimed by one recipient in one
// campaign. The amount only ever grows.
type ClaimRecord struct {
	gorm.Model
	CampaignID    uint64 `gorm:"uniqueIndex:idx_claim_campaign_account;not null"`
	Account       string `gorm:"uniqueIndex:idx_claim_campaign_account;not null"`
	ClaimedAmount string `gorm:"not null"` // Decimal string, cumulative
	ClaimCount    uint64 // Number of successful claims
}

// AllocationConfig is the per-campaign state held by an allocator instance,
// namespaced by the owner that configured it.
type AllocationConfig struct {
	gorm.Model
	Instance       string `gorm:"uniqueIndex:idx_alloc_instance_owner_campaign;not null"` // Allocator instance address
	Owner          string `gorm:"uniqueIndex:idx_alloc_instance_owner_campaign;not null"`
	CampaignID     uint64 `gorm:"uniqueIndex:idx_alloc_instance_owner_campaign;not null"`
	KindID         string `gorm:"index;not null"`
	Root           string // Merkle root hex (merkle allocator only, updatable)
	Aux            []byte // Raw variant-specific setup bytes
	MultipleClaims bool   // Whether a recipient may claim more than once
}

// PayoutConfig is the per-campaign state held by a payout encoder instance,
// namespaced by the owner that configured it.
type PayoutConfig struct {
	gorm.Model
	Instance   string `gorm:"uniqueIndex:idx_payout_instance_owner_campaign;not null"` // Encoder instance address
	Owner      string `gorm:"uniqueIndex:idx_payout_instance_owner_campaign;not null"`
	CampaignID uint64 `gorm:"uniqueIndex:idx_payout_instance_owner_campaign;not null"`
	KindID     string `gorm:"index;not null"`
	Aux        []byte // Raw variant-specific setup bytes
}

// ExecutionReceipt records one dispatch of a claim's action list to the
// executor. The ledger row is written before dispatch, so a crash between
// ledger update and execution leaves a pending receipt behind for retry.
type ExecutionReceipt struct {
	gorm.Model
	ExecutionID string `gorm:"index;not null"` // Hex of the deterministic execution identifier
	CampaignID  uint64 `gorm:"index;not null"`
	Recipient   string `gorm:"not null"`
	Amount      string `gorm:"not null"` // Decimal string
	Actions     []byte // JSON-encoded action list
	Status      string `gorm:"index"` // "pending", "executed", "failed"
	Attempts    uint64 // Dispatch attempts so far
	ErrorMsg    string `gorm:"type:text"` // Last dispatch error if any
}

// Receipt status values.
const (
	ReceiptStatusPending  = "pending"
	ReceiptStatusExecuted = "executed"
	ReceiptStatusFailed   = "failed"
)

// Kind roles.
const (
	RoleAllocator = "allocator"
	RolePayout    = "payout"
)
